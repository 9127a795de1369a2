package mutable_test

import (
	"testing"

	"github.com/dreamware/brightvault/client"
	"github.com/dreamware/brightvault/mutable"
)

func TestRepairSucceedsWithAnAddedServer(t *testing.T) {
	id := newIdentity(t)
	original := newMutablePeer(t, 0)
	srv := mutableServers([]*client.LocalPeer{original})

	seqnum, err := mutable.Publish(id, []byte("needs repairing onto a second server"), 2, 3, 1, srv)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	fresh := newMutablePeer(t, 1)
	withFresh := mutableServers([]*client.LocalPeer{original, fresh})

	repairedSeqnum, err := mutable.Repair(id, 2, 3, 1, withFresh)
	if err != nil {
		t.Fatalf("Repair: %v", err)
	}
	if repairedSeqnum != seqnum {
		t.Fatalf("expected Repair to preserve seqnum %d, got %d", seqnum, repairedSeqnum)
	}

	got, gotSeqnum, err := mutable.Retrieve(id, 2, 3, withFresh)
	if err != nil {
		t.Fatalf("Retrieve after repair: %v", err)
	}
	if gotSeqnum != seqnum {
		t.Fatalf("expected retrieved seqnum %d after repair, got %d", seqnum, gotSeqnum)
	}
	if string(got) != "needs repairing onto a second server" {
		t.Fatalf("unexpected contents after repair: %q", got)
	}
}

func TestRepairIsIdempotent(t *testing.T) {
	id := newIdentity(t)
	peer := newMutablePeer(t, 0)
	srv := mutableServers([]*client.LocalPeer{peer})

	seqnum, err := mutable.Publish(id, []byte("repair me twice"), 2, 3, 1, srv)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}

	first, err := mutable.Repair(id, 2, 3, 1, srv)
	if err != nil {
		t.Fatalf("first Repair: %v", err)
	}
	second, err := mutable.Repair(id, 2, 3, 1, srv)
	if err != nil {
		t.Fatalf("second Repair: %v", err)
	}
	if first != seqnum || second != seqnum {
		t.Fatalf("expected repair to preserve seqnum %d across repeated runs, got %d then %d", seqnum, first, second)
	}

	got, _, err := mutable.Retrieve(id, 2, 3, srv)
	if err != nil {
		t.Fatalf("Retrieve after repeated repair: %v", err)
	}
	if string(got) != "repair me twice" {
		t.Fatalf("unexpected contents after repeated repair: %q", got)
	}
}
