package epoch

// Handle is a caller-held reference to a reserved entry-table slot. Go has
// no library-reachable equivalent of native thread-local storage, so unlike
// an implementation that stashes the slot index behind the OS thread id,
// this one asks the caller to hold the value across calls the way a mutex
// token or a database transaction handle is held. It must not be shared
// concurrently across goroutines: acquire one per goroutine and keep calls
// on it sequential.
type Handle struct {
	slot uint32
}

// Initialized reports whether this handle holds a slot index, i.e. whether
// it came from Acquire rather than being the zero Handle. Release takes the
// handle by value and does not reset the caller's copy, so a released handle
// still reports true.
func (h Handle) Initialized() bool {
	return h.slot != 0
}
