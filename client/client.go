// Package client wires the capability codec, immutable encoder/decoder,
// mutable publish/retrieve/repair, and peer selection into the one stateful
// value an application holds: a Client. Every long-running operation
// returns a Task rather than taking a callback, and every piece of shared
// mutable state -- the server set, the lease-renewal timer -- lives on the
// Client itself rather than in package-level variables.
package client

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/NebulousLabs/threadgroup"

	"github.com/dreamware/brightvault/capability"
	"github.com/dreamware/brightvault/crypto"
	"github.com/dreamware/brightvault/downloader"
	"github.com/dreamware/brightvault/mutable"
	"github.com/dreamware/brightvault/uploader"
)

// Client is the single point of entry for file storage operations. The
// zero value is not usable; construct one with New.
type Client struct {
	tg threadgroup.ThreadGroup

	mu     sync.Mutex
	peers  map[string]*LocalPeer
	leases []leaseTarget

	// workSem bounds concurrent CPU-bound work (erasure coding, hashing,
	// AES) to the number of hardware threads, the way a fixed-size worker
	// pool would; upload/download tasks acquire a slot before doing their
	// encode/decode work and release it before returning.
	workSem chan struct{}
}

type leaseTarget struct {
	peer        *LocalPeer
	si          crypto.StorageIndex
	shareNum    int
	renewSecret crypto.Hash
}

// New returns a Client with no servers configured yet.
func New() *Client {
	return &Client{
		peers:   make(map[string]*LocalPeer),
		workSem: make(chan struct{}, runtime.NumCPU()),
	}
}

// AddServer registers a reachable storage server under the client's
// single-writer server set.
func (c *Client) AddServer(p *LocalPeer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peers[p.ID()] = p
}

// RemoveServer drops a server, e.g. once the introducer subscription
// reports it unreachable.
func (c *Client) RemoveServer(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.peers, id)
}

func (c *Client) snapshotPeers() []*LocalPeer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*LocalPeer, 0, len(c.peers))
	for _, p := range c.peers {
		out = append(out, p)
	}
	return out
}

func (c *Client) acquireWork() { c.workSem <- struct{}{} }
func (c *Client) releaseWork() { <-c.workSem }

// UploadTask is the handle Upload returns. Once Wait returns nil, Result
// holds the resulting capability.
type UploadTask struct {
	*Task
	Result capability.Capability
}

// Upload starts an immutable upload and returns immediately with a Task.
func (c *Client) Upload(plaintext []byte, params uploader.Params) (*UploadTask, error) {
	ut := &UploadTask{}
	servers := c.uploadServers()

	t, err := run(&c.tg, func(ctx context.Context) error {
		c.acquireWork()
		defer c.releaseWork()

		cap, err := uploader.Upload(plaintext, params, servers)
		if err != nil {
			return err
		}
		ut.Result = cap
		return nil
	})
	if err != nil {
		return nil, err
	}
	ut.Task = t
	return ut, nil
}

func (c *Client) uploadServers() []uploader.Server {
	peers := c.snapshotPeers()
	out := make([]uploader.Server, len(peers))
	for i, p := range peers {
		out[i] = p
	}
	return out
}

func (c *Client) downloadServers() []downloader.Server {
	ps := c.snapshotPeers()
	out := make([]downloader.Server, len(ps))
	for i, p := range ps {
		out[i] = p
	}
	return out
}

func (c *Client) mutableServers() []mutable.Server {
	ps := c.snapshotPeers()
	out := make([]mutable.Server, len(ps))
	for i, p := range ps {
		out[i] = p
	}
	return out
}

// DownloadTask is the handle Download returns.
type DownloadTask struct {
	*Task
	Result []byte
}

// Download starts fetching and decoding the file named by cap and returns
// immediately with a Task.
func (c *Client) Download(cap capability.Capability) (*DownloadTask, error) {
	dt := &DownloadTask{}
	servers := c.downloadServers()

	t, err := run(&c.tg, func(ctx context.Context) error {
		c.acquireWork()
		defer c.releaseWork()

		data, err := downloader.Download(cap, servers)
		if err != nil {
			return err
		}
		dt.Result = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	dt.Task = t
	return dt, nil
}

// PublishTask is the handle Publish returns.
type PublishTask struct {
	*Task
	Seqnum uint64
}

// Publish starts writing a new version of a mutable file.
func (c *Client) Publish(id mutable.Identity, contents []byte, k, n, happy int) (*PublishTask, error) {
	pt := &PublishTask{}
	servers := c.mutableServers()

	t, err := run(&c.tg, func(ctx context.Context) error {
		c.acquireWork()
		defer c.releaseWork()

		seq, err := mutable.Publish(id, contents, k, n, happy, servers)
		if err != nil {
			return err
		}
		pt.Seqnum = seq
		return nil
	})
	if err != nil {
		return nil, err
	}
	pt.Task = t
	return pt, nil
}

// RetrieveTask is the handle Retrieve returns.
type RetrieveTask struct {
	*Task
	Result []byte
	Seqnum uint64
}

// Retrieve starts reading the current version of a mutable file.
func (c *Client) Retrieve(id mutable.Identity, k, n int) (*RetrieveTask, error) {
	rt := &RetrieveTask{}
	servers := c.mutableServers()

	t, err := run(&c.tg, func(ctx context.Context) error {
		c.acquireWork()
		defer c.releaseWork()

		data, seq, err := mutable.Retrieve(id, k, n, servers)
		if err != nil {
			return err
		}
		rt.Result = data
		rt.Seqnum = seq
		return nil
	})
	if err != nil {
		return nil, err
	}
	rt.Task = t
	return rt, nil
}

// RepairTask is the handle Repair returns.
type RepairTask struct {
	*Task
	Seqnum uint64
}

// Repair starts restoring full share coverage for a mutable file.
func (c *Client) Repair(id mutable.Identity, k, n, happy int) (*RepairTask, error) {
	rt := &RepairTask{}
	servers := c.mutableServers()

	t, err := run(&c.tg, func(ctx context.Context) error {
		c.acquireWork()
		defer c.releaseWork()

		seq, err := mutable.Repair(id, k, n, happy, servers)
		if err != nil {
			return err
		}
		rt.Seqnum = seq
		return nil
	})
	if err != nil {
		return nil, err
	}
	rt.Task = t
	return rt, nil
}

// TrackLease registers a share for periodic renewal by StartLeaseRenewal,
// e.g. right after an Upload or Publish task completes successfully.
func (c *Client) TrackLease(p *LocalPeer, si crypto.StorageIndex, shareNum int, renewSecret crypto.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.leases = append(c.leases, leaseTarget{peer: p, si: si, shareNum: shareNum, renewSecret: renewSecret})
}

// StartLeaseRenewal starts a background task that renews every tracked
// lease once per interval until the client is closed or the task is
// cancelled.
func (c *Client) StartLeaseRenewal(interval time.Duration) (*Task, error) {
	return run(&c.tg, func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				c.renewAllLeases()
			}
		}
	})
}

func (c *Client) renewAllLeases() {
	c.mu.Lock()
	targets := append([]leaseTarget(nil), c.leases...)
	c.mu.Unlock()

	for _, lt := range targets {
		_ = lt.peer.Server.RenewLease(lt.si, lt.shareNum, lt.renewSecret)
	}
}

// Close stops every outstanding task and waits for them to finish.
func (c *Client) Close() error {
	return c.tg.Stop()
}
