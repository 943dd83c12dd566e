package epoch

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/spaolacci/murmur3"
)

// entryTable is a fixed-size, hashed slot table. Index 0 is a reserved
// invalid sentinel; usable slots run 1..size, so the backing slice needs
// size+1 entries. It allocates one more than that as headroom; nothing
// about the layout is cache-line aligned.
type entryTable struct {
	entries []entry
	size    uint32 // power-of-two table size N
	mask    uint32 // size - 1
}

func newEntryTable(size uint32) *entryTable {
	return &entryTable{
		entries: make([]entry, size+2),
		size:    size,
		mask:    size - 1,
	}
}

// hashThreadID runs the thread id through Murmur3 to pick a probe start
// index that spreads unrelated threads across the table.
func hashThreadID(id uint32) uint32 {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], id)
	return murmur3.Sum32(buf[:])
}

// reserve finds a free slot for threadID via a hashed linear probe, CASing
// the slot's threadID from 0 to threadID. It gives up after 3*size probes.
func (t *entryTable) reserve(threadID uint32) (uint32, error) {
	start := hashThreadID(threadID) & t.mask
	maxAttempts := 3 * t.size

	for attempt := uint32(0); attempt < maxAttempts; attempt++ {
		idx := 1 + ((start + attempt) & t.mask)
		e := &t.entries[idx]
		if atomic.CompareAndSwapUint32(&e.threadID, 0, threadID) {
			return idx, nil
		}
	}

	return 0, ErrTableExhausted
}

// free clears a reserved slot, making it eligible for reuse.
func (t *entryTable) free(idx uint32) {
	e := &t.entries[idx]
	atomic.StoreInt64(&e.localEpoch, 0)
	atomic.StoreUint32(&e.threadID, 0)
}
