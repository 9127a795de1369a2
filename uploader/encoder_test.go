package uploader_test

import (
	"bytes"
	"testing"

	"github.com/dreamware/brightvault/build"
	"github.com/dreamware/brightvault/capability"
	"github.com/dreamware/brightvault/client"
	"github.com/dreamware/brightvault/peers"
	"github.com/dreamware/brightvault/storage"
	"github.com/dreamware/brightvault/uploader"
)

func newTestPeer(t *testing.T, id byte) *client.LocalPeer {
	t.Helper()
	backend, err := storage.NewLocalBackend(build.TempDir("uploader", t.Name(), string(rune('a'+int(id)))))
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}
	var seed [32]byte
	seed[0] = id
	ann := peers.Announcement{ServerID: string(rune('A' + int(id))), PermutationSeed: seed}
	return &client.LocalPeer{Ann: ann, Server: storage.NewStorageServer(backend)}
}

func uploaderServers(peers []*client.LocalPeer) []uploader.Server {
	out := make([]uploader.Server, len(peers))
	for i, p := range peers {
		out[i] = p
	}
	return out
}

func TestUploadTinyFileYieldsLIT(t *testing.T) {
	data := []byte("a file short enough to be inlined")
	cap, err := uploader.Upload(data, uploader.Params{K: 3, Happy: 3, N: 10}, nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if cap.Kind != capability.KindLIT {
		t.Fatalf("expected LIT capability for a %d-byte file, got kind %v", len(data), cap.Kind)
	}
	if !bytes.Equal(cap.LiteralData, data) {
		t.Fatalf("LIT capability does not carry the original bytes")
	}
}

func TestUploadLITThresholdBoundary(t *testing.T) {
	at := bytes.Repeat([]byte{0x01}, uploader.LITThreshold)
	capAt, err := uploader.Upload(at, uploader.Params{K: 3, Happy: 3, N: 10}, nil)
	if err != nil {
		t.Fatalf("Upload at threshold: %v", err)
	}
	if capAt.Kind != capability.KindLIT {
		t.Fatalf("expected LIT at exactly the threshold size, got kind %v", capAt.Kind)
	}

	peers := []*client.LocalPeer{newTestPeer(t, 0), newTestPeer(t, 1), newTestPeer(t, 2)}
	over := bytes.Repeat([]byte{0x01}, uploader.LITThreshold+1)
	capOver, err := uploader.Upload(over, uploader.Params{K: 1, Happy: 1, N: 3}, uploaderServers(peers))
	if err != nil {
		t.Fatalf("Upload over threshold: %v", err)
	}
	if capOver.Kind != capability.KindCHK {
		t.Fatalf("expected CHK one byte past the threshold, got kind %v", capOver.Kind)
	}
}

func TestUploadConvergentReadKeyIsDeterministic(t *testing.T) {
	data := bytes.Repeat([]byte("convergent"), 5000)
	secret := []byte("shared secret")

	mkPeers := func() []*client.LocalPeer {
		return []*client.LocalPeer{newTestPeer(t, 0), newTestPeer(t, 1), newTestPeer(t, 2)}
	}
	params := uploader.Params{K: 2, Happy: 3, N: 3, ConvergenceSecret: secret}

	capA, err := uploader.Upload(data, params, uploaderServers(mkPeers()))
	if err != nil {
		t.Fatalf("first Upload: %v", err)
	}
	capB, err := uploader.Upload(data, params, uploaderServers(mkPeers()))
	if err != nil {
		t.Fatalf("second Upload: %v", err)
	}
	if capA.String() != capB.String() {
		t.Fatalf("expected identical capabilities for convergent uploads of the same file, got %q and %q", capA.String(), capB.String())
	}
}

func TestUploadFailsWhenTooFewServersForHappy(t *testing.T) {
	data := bytes.Repeat([]byte("needs more servers than are available"), 100)
	peers := []*client.LocalPeer{newTestPeer(t, 0), newTestPeer(t, 1)}
	params := uploader.Params{K: 2, Happy: 5, N: 5}

	_, err := uploader.Upload(data, params, uploaderServers(peers))
	if err == nil {
		t.Fatalf("expected NotEnoughSharesError when happy cannot be met")
	}
	if _, ok := err.(uploader.NotEnoughSharesError); !ok {
		t.Fatalf("expected NotEnoughSharesError, got %T: %v", err, err)
	}
}
