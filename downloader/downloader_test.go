package downloader_test

import (
	"bytes"
	"testing"

	"github.com/dreamware/brightvault/build"
	"github.com/dreamware/brightvault/client"
	"github.com/dreamware/brightvault/downloader"
	"github.com/dreamware/brightvault/peers"
	"github.com/dreamware/brightvault/storage"
	"github.com/dreamware/brightvault/uploader"
)

func newPeer(t *testing.T, id byte) *client.LocalPeer {
	t.Helper()
	backend, err := storage.NewLocalBackend(build.TempDir("downloader", t.Name(), string(rune('a'+int(id)))))
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}
	var seed [32]byte
	seed[0] = id
	ann := peers.Announcement{ServerID: string(rune('A' + int(id))), PermutationSeed: seed}
	return &client.LocalPeer{Ann: ann, Server: storage.NewStorageServer(backend)}
}

func uploadServers(peers []*client.LocalPeer) []uploader.Server {
	out := make([]uploader.Server, len(peers))
	for i, p := range peers {
		out[i] = p
	}
	return out
}

func downloadServers(peers []*client.LocalPeer) []downloader.Server {
	out := make([]downloader.Server, len(peers))
	for i, p := range peers {
		out[i] = p
	}
	return out
}

func TestUploadThenDownloadRoundTrips(t *testing.T) {
	data := bytes.Repeat([]byte("round trip me through erasure coding, please"), 10000)
	peers := []*client.LocalPeer{newPeer(t, 0), newPeer(t, 1), newPeer(t, 2), newPeer(t, 3), newPeer(t, 4)}

	cap, err := uploader.Upload(data, uploader.Params{K: 3, Happy: 5, N: 5}, uploadServers(peers))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	got, err := downloader.Download(cap, downloadServers(peers))
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("downloaded data does not match uploaded data (lengths %d vs %d)", len(got), len(data))
	}
}

func TestDownloadFailsBelowK(t *testing.T) {
	data := bytes.Repeat([]byte("not enough servers left to reconstruct this"), 10000)
	peers := []*client.LocalPeer{newPeer(t, 0), newPeer(t, 1), newPeer(t, 2), newPeer(t, 3), newPeer(t, 4)}

	cap, err := uploader.Upload(data, uploader.Params{K: 3, Happy: 5, N: 5}, uploadServers(peers))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}

	surviving := []*client.LocalPeer{peers[0], peers[1]}
	_, err = downloader.Download(cap, downloadServers(surviving))
	if err == nil {
		t.Fatalf("expected UnrecoverableFileError with fewer than k servers reachable")
	}
	if _, ok := err.(downloader.UnrecoverableFileError); !ok {
		t.Fatalf("expected UnrecoverableFileError, got %T: %v", err, err)
	}
}

func TestDownloadLITCapabilityReturnsInlineData(t *testing.T) {
	data := []byte("inline me")
	cap, err := uploader.Upload(data, uploader.Params{K: 3, Happy: 3, N: 10}, nil)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	got, err := downloader.Download(cap, nil)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("expected LIT data %q, got %q", data, got)
	}
}
