package storage

// lease.go implements lease bookkeeping for immutable shares. A lease is a
// promise from a storage server to hold a share until its expiration time;
// clients keep leases alive with periodic add_lease/renew_lease calls.
// Letting all leases on a share lapse is what permits garbage collection --
// this package only tracks the bookkeeping, not the sweep itself.

import (
	"time"

	"github.com/dreamware/brightvault/crypto"
)

// DefaultLeasePeriod mirrors Tahoe's convention of a 31-day lease with
// renewal well inside that window.
const DefaultLeasePeriod = 31 * 24 * time.Hour

// Lease is one client's claim on a share. RenewSecret and CancelSecret are
// opaque tokens the server stores as given. The uploader derives a single
// pair from the file's readkey (crypto.DeriveLeaseSecrets) and sends that
// same pair to every server for every share, so the secrets are not scoped
// per share or per server.
type Lease struct {
	RenewSecret  crypto.Hash
	CancelSecret crypto.Hash
	Expiration   time.Time
}

// Renew extends the lease's expiration to now+period if that is later than
// its current expiration. Leases only ever move forward in time.
func (l *Lease) Renew(now time.Time, period time.Duration) {
	next := now.Add(period)
	if next.After(l.Expiration) {
		l.Expiration = next
	}
}

// Expired reports whether the lease had lapsed as of now.
func (l Lease) Expired(now time.Time) bool {
	return now.After(l.Expiration)
}

// leaseSet is the per-share collection of leases a storage server tracks,
// keyed by renew secret so add_lease/renew_lease can find (and refresh) an
// existing grant instead of piling up duplicates for the same client.
type leaseSet struct {
	byRenewSecret map[crypto.Hash]*Lease
}

func newLeaseSet() *leaseSet {
	return &leaseSet{byRenewSecret: make(map[crypto.Hash]*Lease)}
}

// Add installs a lease, or renews the existing one sharing its renew
// secret.
func (s *leaseSet) Add(renewSecret, cancelSecret crypto.Hash, now time.Time, period time.Duration) {
	if l, ok := s.byRenewSecret[renewSecret]; ok {
		l.Renew(now, period)
		return
	}
	s.byRenewSecret[renewSecret] = &Lease{
		RenewSecret:  renewSecret,
		CancelSecret: cancelSecret,
		Expiration:   now.Add(period),
	}
}

// Renew extends an existing lease found by renew secret. It reports
// ErrNoSuchLease if no lease with that secret has ever been added.
func (s *leaseSet) Renew(renewSecret crypto.Hash, now time.Time, period time.Duration) error {
	l, ok := s.byRenewSecret[renewSecret]
	if !ok {
		return ErrNoSuchLease{}
	}
	l.Renew(now, period)
	return nil
}

// Cancel removes a lease found by cancel secret.
func (s *leaseSet) Cancel(cancelSecret crypto.Hash) error {
	for k, l := range s.byRenewSecret {
		if l.CancelSecret == cancelSecret {
			delete(s.byRenewSecret, k)
			return nil
		}
	}
	return ErrNoSuchLease{}
}

// AnyLive reports whether at least one unexpired lease remains, which is
// what keeps a share's bytes from being eligible for garbage collection.
func (s *leaseSet) AnyLive(now time.Time) bool {
	for _, l := range s.byRenewSecret {
		if !l.Expired(now) {
			return true
		}
	}
	return false
}

// ErrNoSuchLease is returned by RenewLease/CancelLease when the secret
// given doesn't match any lease on file.
type ErrNoSuchLease struct{}

func (ErrNoSuchLease) Error() string { return "storage: no such lease" }
