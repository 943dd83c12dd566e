package epoch

import "errors"

var (
	// ErrTableExhausted is returned by Acquire when 3*N probes fail to find
	// a free slot. It is fatal: callers should abort rather than retry.
	ErrTableExhausted = errors.New("epoch: table exhausted, increase table size")

	// ErrNotProtected is returned by operations that require an initialized
	// Handle when called with the zero Handle. A Handle that has been
	// Released is not detected.
	ErrNotProtected = errors.New("epoch: handle is not protected")

	// ErrAlreadyDisposed is returned by Acquire, ProtectAndDrain and
	// BumpCurrentEpochWithAction when called after Dispose.
	ErrAlreadyDisposed = errors.New("epoch: manager already disposed")
)
