package epoch

import (
	"unsafe"

	"github.com/epochkv/epochkv/internal/machine"
)

// MarkerCount is the number of independent phase markers each entry carries.
// With 16 markers the entry's fields take 80 bytes; 48 bytes of trailing
// padding bring it to exactly two cache lines.
const MarkerCount = 16

// entry is one thread's protection record. It is padded to a whole multiple
// of the cache line size, so no two goroutines' entries share a line as long
// as the table's backing array starts on a line boundary; entryTable does
// not enforce that alignment.
type entry struct {
	// localEpoch is the most recent global epoch this thread published while
	// inside a protected region. Zero means "not currently protected".
	localEpoch int64

	// threadID identifies the owning thread. Zero means "slot free"; it is
	// the sole means of detecting freeness, so callers must never be minted
	// thread id zero (see Manager.Acquire).
	threadID uint32

	// reentrant is carried for layout fidelity with the design this was
	// grounded on but is never incremented: ProtectAndDrain on an
	// already-protected handle just overwrites localEpoch.
	reentrant uint32

	// markers holds one version stamp per supported checkpoint phase index.
	markers [MarkerCount]int32

	_ [48]byte
}

type ( // ensure entries are exactly two cache lines
	_ [unsafe.Sizeof(entry{}) - 2*machine.CacheLine]byte
	_ [2*machine.CacheLine - unsafe.Sizeof(entry{})]byte
)
