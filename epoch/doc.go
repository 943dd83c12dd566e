// Package epoch implements epoch-based thread protection and deferred
// reclamation: the lock-free substrate a concurrent key-value store uses to
// let readers observe a consistent snapshot of memory while writers reclaim
// old versions safely.
//
// A goroutine calls Acquire once to reserve a slot in the Manager's entry
// table, then calls ProtectAndDrain around every operation that touches
// memory a concurrent reclaimer might otherwise free. Any goroutine may call
// BumpCurrentEpoch or BumpCurrentEpochWithAction to advance the global epoch
// and, in the latter case, register a callback that fires only once every
// goroutine has moved past the epoch it was registered against.
//
// The hot path (ProtectAndDrain with nothing pending to drain) is wait-free
// and allocation-free. Reservation and the drain-list enqueue spin under
// contention but make bounded (reservation) or fairness-diagnosed
// (enqueue) progress.
package epoch
