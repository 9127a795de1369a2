package mutable

// Repair re-publishes the highest recoverable version of a mutable file at
// its existing seqnum: every share number of that version that no server
// returned is re-encoded and written to the first server that accepts it,
// restoring n-way share coverage without incrementing the seqnum. It is
// idempotent: once every share of the current version is present, running
// it again writes nothing.
func Repair(id Identity, k, n, happy int, servers []Server) (uint64, error) {
	si := id.StorageIndex()

	groups, err := gatherVersions(si, n, servers)
	if err != nil {
		return 0, err
	}
	best, bestKey, tie, err := pickHighestRecoverable(groups, k, id.PublicKey)
	if err != nil {
		return 0, err
	}
	if tie {
		return 0, UnrecoverableFileError{Reason: "uncoordinated write: multiple root-hashes at the same seqnum"}
	}

	plaintext, err := decodeGroup(best, k, n, id.Readkey)
	if err != nil {
		return 0, err
	}

	encShares, _, err := encodeVersion(id, plaintext, k, n, bestKey.seqnum)
	if err != nil {
		return 0, err
	}

	ackedServers := make(map[string]bool)
	for shareNum, ms := range encShares {
		if _, already := best.shares[shareNum]; already {
			ackedServers[best.servers[shareNum]] = true
			continue
		}
		for _, srv := range servers {
			// Repair writes at the slot's own seqnum: the test vector
			// matches whatever the target server currently holds (absent,
			// or this same version already), tolerating the equal-seqnum
			// replacement a fresh share needs.
			ok, _, err := srv.TestAndWriteSlot(si, shareNum, 0, ms)
			if err == nil && !ok {
				ok, _, err = srv.TestAndWriteSlot(si, shareNum, equalSeqnumProbe(bestKey.seqnum), ms)
			}
			if err != nil || !ok {
				continue
			}
			ackedServers[srv.ID()] = true
			break
		}
	}

	if len(ackedServers) < happy {
		return 0, NotEnoughCopiesError{Happy: happy, Have: len(ackedServers)}
	}
	return bestKey.seqnum, nil
}

// equalSeqnumProbe returns the old-seqnum value Repair's second test vector
// expects: the version already being repaired (a no-op rewrite). A server
// that lost its copy entirely is matched by the first test, old-seqnum 0.
func equalSeqnumProbe(seqnum uint64) uint64 {
	return seqnum
}

// NotEnoughCopiesError is returned when Repair cannot restore coverage on
// at least happy servers.
type NotEnoughCopiesError struct {
	Happy, Have int
}

func (e NotEnoughCopiesError) Error() string {
	return "repair failed: restored coverage on too few servers"
}
