package fsvol

import "encoding/binary"

// Sentinel FAT entry values (spec.md §3.2).
const (
	EntryFree     uint32 = 0x00000000
	EntryReserved uint32 = 0xFFFFFFFE
	EntryEOF      uint32 = 0xFFFFFFFF
)

// FAT is the in-memory mirror of the on-disk File Allocation Table.
// It is not safe for concurrent use on its own; Volume's single
// metadata mutex is what makes that safe (spec.md §3.2 "FAT cache",
// §5). Grounded in alloc.go's lock-guarded bitmap allocator, here
// generalized to a singly-linked free/EOF/next table instead of a
// bitmap, since the spec's FAT needs an explicit next-link per block.
type FAT struct {
	entries []uint32
}

// NewFAT builds an all-FREE FAT for n blocks; Format uses this then
// reserves the metadata range.
func NewFAT(n int) *FAT {
	return &FAT{entries: make([]uint32, n)}
}

func (f *FAT) Len() int { return len(f.entries) }

func (f *FAT) Get(i int) uint32 { return f.entries[i] }

func (f *FAT) Set(i int, v uint32) { f.entries[i] = v }

// ReserveRange marks [start, end) RESERVED, used at format time for
// the metadata extent (spec.md §3.2 invariant 1).
func (f *FAT) ReserveRange(start, end int) {
	for i := start; i < end; i++ {
		f.entries[i] = EntryReserved
	}
}

// FreeChain walks from head following next-links, freeing every block
// up to and including the one before EOF (spec.md §4.3.2 "D").
func (f *FAT) FreeChain(head uint32) {
	cur := head
	for cur != EntryEOF {
		next := f.entries[cur]
		f.entries[cur] = EntryFree
		cur = next
	}
}

// AllocChain scans the data area (from dataStart upward) for k FREE
// blocks, links them in scan order with the last set to EOF, and
// returns the chain head plus ok=false if fewer than k were free
// (spec.md §4.3.2 "W"). The scan order matches the teacher's
// lowest-index-first allocation policy in alloc.go's findFreeRegion.
func (f *FAT) AllocChain(dataStart, k int) (head uint32, ok bool) {
	found := make([]int, 0, k)
	for i := dataStart; i < len(f.entries) && len(found) < k; i++ {
		if f.entries[i] == EntryFree {
			found = append(found, i)
		}
	}
	if len(found) < k {
		return 0, false
	}
	for i := 0; i < len(found)-1; i++ {
		f.entries[found[i]] = uint32(found[i+1])
	}
	f.entries[found[len(found)-1]] = EntryEOF
	return uint32(found[0]), true
}

// Encode renders the FAT as Len()*4 bytes of little-endian uint32
// entries in block order (32 per sector). The result is not padded to
// a whole number of sectors; writeFAT zero-fills the tail of the last
// FAT sector.
func (f *FAT) Encode() []byte {
	buf := make([]byte, len(f.entries)*4)
	enc := binary.LittleEndian
	for i, v := range f.entries {
		enc.PutUint32(buf[i*4:], v)
	}
	return buf
}

// DecodeFAT parses n entries worth of FAT sectors.
func DecodeFAT(data []byte, n int) *FAT {
	entries := make([]uint32, n)
	dec := binary.LittleEndian
	for i := 0; i < n; i++ {
		entries[i] = dec.Uint32(data[i*4:])
	}
	return &FAT{entries: entries}
}
