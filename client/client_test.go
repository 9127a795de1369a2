package client

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/NebulousLabs/threadgroup"

	"github.com/dreamware/brightvault/build"
	"github.com/dreamware/brightvault/crypto"
	"github.com/dreamware/brightvault/mutable"
	"github.com/dreamware/brightvault/peers"
	"github.com/dreamware/brightvault/storage"
	"github.com/dreamware/brightvault/uploader"
)

func newClientPeer(t *testing.T, id byte) *LocalPeer {
	t.Helper()
	backend, err := storage.NewLocalBackend(build.TempDir("client", t.Name(), string(rune('a'+int(id)))))
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}
	var seed [32]byte
	seed[0] = id
	ann := peers.Announcement{ServerID: string(rune('A' + int(id))), PermutationSeed: seed}
	return &LocalPeer{Ann: ann, Server: storage.NewStorageServer(backend)}
}

func TestClientUploadThenDownloadRoundTrips(t *testing.T) {
	c := New()
	defer c.Close()
	for i := byte(0); i < 3; i++ {
		c.AddServer(newClientPeer(t, i))
	}

	data := bytes.Repeat([]byte("client-level round trip"), 5000)
	ut, err := c.Upload(data, uploader.Params{K: 2, Happy: 3, N: 3})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if err := ut.Wait(); err != nil {
		t.Fatalf("upload task failed: %v", err)
	}

	dt, err := c.Download(ut.Result)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if err := dt.Wait(); err != nil {
		t.Fatalf("download task failed: %v", err)
	}
	if !bytes.Equal(dt.Result, data) {
		t.Fatalf("downloaded data does not match uploaded data")
	}
}

func TestClientPublishThenRetrieveRoundTrips(t *testing.T) {
	c := New()
	defer c.Close()
	c.AddServer(newClientPeer(t, 0))

	sk, pk, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	var readkey [crypto.WriteKeySize]byte
	crypto.Read(readkey[:])
	id := mutable.Identity{SecretKey: sk, PublicKey: pk, Readkey: readkey}

	pt, err := c.Publish(id, []byte("mutable contents"), 2, 3, 1)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := pt.Wait(); err != nil {
		t.Fatalf("publish task failed: %v", err)
	}
	if pt.Seqnum != 1 {
		t.Fatalf("expected first publish seqnum 1, got %d", pt.Seqnum)
	}

	rt, err := c.Retrieve(id, 2, 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if err := rt.Wait(); err != nil {
		t.Fatalf("retrieve task failed: %v", err)
	}
	if string(rt.Result) != "mutable contents" {
		t.Fatalf("expected %q, got %q", "mutable contents", rt.Result)
	}
	if rt.Seqnum != pt.Seqnum {
		t.Fatalf("expected retrieved seqnum %d, got %d", pt.Seqnum, rt.Seqnum)
	}
}

func TestTaskCancelUnblocksWait(t *testing.T) {
	var tg threadgroup.ThreadGroup
	started := make(chan struct{})

	task, err := run(&tg, func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	<-started
	task.Cancel()

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected task to finish promptly after Cancel")
	}
	if task.Wait() == nil {
		t.Fatalf("expected cancelled task to return a non-nil error")
	}
}

func TestClientCloseStopsOutstandingLeaseRenewal(t *testing.T) {
	c := New()
	task, err := c.StartLeaseRenewal(time.Millisecond)
	if err != nil {
		t.Fatalf("StartLeaseRenewal: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case <-task.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected lease-renewal task to stop once the client is closed")
	}
}

func TestAddAndRemoveServer(t *testing.T) {
	c := New()
	defer c.Close()
	p := newClientPeer(t, 0)
	c.AddServer(p)
	if len(c.snapshotPeers()) != 1 {
		t.Fatalf("expected 1 peer after AddServer")
	}
	c.RemoveServer(p.ID())
	if len(c.snapshotPeers()) != 0 {
		t.Fatalf("expected 0 peers after RemoveServer")
	}
}
