package fsvol

import (
	"encoding/binary"
	"fmt"
)

// Magic is the formatted-volume tag stored at the start of sector 0
// (spec.md §3.2). "Formatted" is defined as "sector 0 carries this
// magic and a parseable Superblock" (spec.md §3.2, glossary).
const Magic = "CSFS1"

// Superblock is the on-disk header occupying sector 0. All multi-byte
// integers are little-endian (spec.md §6.3).
type Superblock struct {
	TotalBlocks int
	FATStart    int
	FATSectors  int
	DirStart    int
	DirSectors  int
	DirCapacity int
}

func NewSuperblock(l Layout) Superblock {
	return Superblock{
		TotalBlocks: l.TotalBlocks,
		FATStart:    l.FATStart,
		FATSectors:  l.FATSectors,
		DirStart:    l.DirStart,
		DirSectors:  l.DirSectors,
		DirCapacity: DirCapacity,
	}
}

func (sb Superblock) Layout() Layout {
	return Layout{
		TotalBlocks: sb.TotalBlocks,
		FATStart:    sb.FATStart,
		FATSectors:  sb.FATSectors,
		DirStart:    sb.DirStart,
		DirSectors:  sb.DirSectors,
		DataStart:   sb.DirStart + sb.DirSectors,
	}
}

// Encode renders the superblock as one SectorSize-byte sector.
func (sb Superblock) Encode() []byte {
	buf := make([]byte, SectorSize)
	copy(buf, Magic)
	enc := binary.LittleEndian
	enc.PutUint32(buf[8:], uint32(sb.TotalBlocks))
	enc.PutUint32(buf[12:], uint32(sb.FATStart))
	enc.PutUint32(buf[16:], uint32(sb.FATSectors))
	enc.PutUint32(buf[20:], uint32(sb.DirStart))
	enc.PutUint32(buf[24:], uint32(sb.DirSectors))
	enc.PutUint32(buf[28:], uint32(sb.DirCapacity))
	return buf
}

// DecodeSuperblock parses sector 0. It fails if the magic tag is
// absent; callers use that failure to mean "not formatted"
// (spec.md §3.2, §4.3.2 state machine).
func DecodeSuperblock(sector []byte) (Superblock, error) {
	if len(sector) != SectorSize {
		return Superblock{}, fmt.Errorf("fsvol: superblock sector must be %d bytes", SectorSize)
	}
	if string(sector[:len(Magic)]) != Magic {
		return Superblock{}, fmt.Errorf("fsvol: not formatted: missing magic")
	}
	dec := binary.LittleEndian
	return Superblock{
		TotalBlocks: int(dec.Uint32(sector[8:])),
		FATStart:    int(dec.Uint32(sector[12:])),
		FATSectors:  int(dec.Uint32(sector[16:])),
		DirStart:    int(dec.Uint32(sector[20:])),
		DirSectors:  int(dec.Uint32(sector[24:])),
		DirCapacity: int(dec.Uint32(sector[28:])),
	}, nil
}
