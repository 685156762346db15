// Package lock provides per-key mutual exclusion.
//
// The memory driver is a keyed mutex for a single process. The redis driver
// (bsm/redislock) serializes across processes sharing a database. Features lock
// lot:<id> around ledger adjustments, listing:<id> around sync state changes and
// mismatch:<id> around resolutions.
//
// # Usage
//
//	unlock, err := locker.Lock(ctx, lock.LotKey(lot.ID))
//	if err != nil {
//	    return err
//	}
//	defer unlock()
package lock
