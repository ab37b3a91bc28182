package fsvol

import (
	"errors"
	"fmt"
	"sync"

	"github.com/coldforge/diskfs/util"
)

var (
	ErrNotFormatted = errors.New("fsvol: volume not formatted")
	ErrExists       = errors.New("fsvol: name already exists")
	ErrNotFound     = errors.New("fsvol: name not found")
	ErrInvalidName  = errors.New("fsvol: invalid name")
	ErrDirFull      = errors.New("fsvol: directory full")
	ErrNoSpace      = errors.New("fsvol: no free blocks")
)

// Device is what a Volume needs from the caller's block connection:
// read and write by absolute block index, plus the geometry that
// bounds those indices. diskconn.Conn satisfies this against a live
// disk service; tests satisfy it with an in-memory fake.
//
// Every Volume method takes a Device argument rather than storing one,
// because spec.md §4.2/§4.3 splits ownership: each filesystem worker
// owns one disk connection for its lifetime, while the FAT cache,
// directory view, and formatted flag are shared service-wide state
// guarded by one mutex. fsproto.Server hands each connection's own
// diskconn.Conn to whichever Volume method the client's request needs.
type Device interface {
	ReadBlock(idx int) ([]byte, error)
	WriteBlock(idx int, sector []byte) error
	Blocks() int
}

// Volume is the filesystem service's metadata core: superblock, FAT
// cache, and directory view, all guarded by one mutex so that at most
// one client's F/C/D/R/W/L is in its critical section at a time, and
// the disk round-trips it makes happen inside that section
// (spec.md §5). Grounded in addrlock.LockMap/lock.go's per-address
// locking, collapsed here to the single coarse lock the spec mandates
// since nothing in this design needs finer-grained concurrency inside
// a critical section that already spans every disk round trip.
type Volume struct {
	mu sync.Mutex

	formatted bool
	layout    Layout
	sb        Superblock
	fat       *FAT
	dir       *Directory
}

func NewVolume() *Volume {
	return &Volume{}
}

// Format computes the layout from dev's block count, writes a fresh
// superblock, zeroes and reserves the FAT, and zeroes the directory
// (spec.md §3.2 lifecycle, §4.3.2 "F").
func (v *Volume) Format(dev Device) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	layout, err := ComputeLayout(dev.Blocks())
	if err != nil {
		return err
	}
	sb := NewSuperblock(layout)
	fat := NewFAT(layout.TotalBlocks)
	start, end := layout.MetadataBlocks()
	fat.ReserveRange(start, end)
	dir := NewDirectory()

	if err := dev.WriteBlock(0, sb.Encode()); err != nil {
		return fmt.Errorf("fsvol: format: write superblock: %w", err)
	}
	if err := writeFAT(dev, layout, fat); err != nil {
		return fmt.Errorf("fsvol: format: write fat: %w", err)
	}
	if err := writeDirectory(dev, layout, dir); err != nil {
		return fmt.Errorf("fsvol: format: write directory: %w", err)
	}

	v.layout, v.sb, v.fat, v.dir, v.formatted = layout, sb, fat, dir, true
	util.DPrintf(1, "fsvol: formatted %d blocks (fat %d..%d, dir %d..%d, data from %d)\n",
		layout.TotalBlocks, layout.FATStart, layout.FATStart+layout.FATSectors,
		layout.DirStart, layout.DirStart+layout.DirSectors, layout.DataStart)
	return nil
}

// ensureLoaded lazily adopts an already-formatted volume the first
// time any operation touches it (spec.md §4.3.2 state machine). The
// formatted flag is written under v.mu, so concurrent first use is
// safe even though two workers might both detect the same superblock
// (spec.md §9 "lazy adoption race").
func (v *Volume) ensureLoaded(dev Device) error {
	if v.formatted {
		return nil
	}
	sector, err := dev.ReadBlock(0)
	if err != nil {
		return fmt.Errorf("fsvol: read superblock: %w", err)
	}
	sb, err := DecodeSuperblock(sector)
	if err != nil {
		return ErrNotFormatted
	}
	layout := sb.Layout()
	fat, err := readFAT(dev, layout)
	if err != nil {
		return fmt.Errorf("fsvol: read fat: %w", err)
	}
	dir, err := readDirectory(dev, layout)
	if err != nil {
		return fmt.Errorf("fsvol: read directory: %w", err)
	}
	v.layout, v.sb, v.fat, v.dir, v.formatted = layout, sb, fat, dir, true
	return nil
}

// Create adds a zero-length entry named name (spec.md §4.3.2 "C").
func (v *Volume) Create(dev Device, name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(dev); err != nil {
		return err
	}
	if len(name) < 1 || len(name) > MaxNameLen {
		return ErrInvalidName
	}
	if v.dir.Find(name) >= 0 {
		return ErrExists
	}
	slot := v.dir.FirstFree()
	if slot < 0 {
		return ErrDirFull
	}
	v.dir.SetEntry(slot, DirEntry{Name: name, Length: 0, First: EntryEOF, Used: true})
	return v.flushDirSlot(dev, slot)
}

// Delete frees the named file's chain and clears its directory slot
// (spec.md §4.3.2 "D").
func (v *Volume) Delete(dev Device, name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(dev); err != nil {
		return err
	}
	slot := v.dir.Find(name)
	if slot < 0 {
		return ErrNotFound
	}
	entry := v.dir.Entry(slot)
	if entry.First != EntryEOF {
		v.fat.FreeChain(entry.First)
		if err := writeFAT(dev, v.layout, v.fat); err != nil {
			return fmt.Errorf("fsvol: delete: flush fat: %w", err)
		}
	}
	v.dir.SetEntry(slot, DirEntry{})
	return v.flushDirSlot(dev, slot)
}

// List returns used entries in slot order (spec.md §4.3.2 "L").
func (v *Volume) List(dev Device) ([]DirEntry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(dev); err != nil {
		return nil, err
	}
	return v.dir.Used(), nil
}

// Read returns the full contents of the named file (spec.md §4.3.2 "R").
func (v *Volume) Read(dev Device, name string) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(dev); err != nil {
		return nil, err
	}
	slot := v.dir.Find(name)
	if slot < 0 {
		return nil, ErrNotFound
	}
	entry := v.dir.Entry(slot)
	out := make([]byte, 0, entry.Length)
	remaining := int(entry.Length)
	cur := entry.First
	for remaining > 0 {
		if cur == EntryEOF {
			return nil, fmt.Errorf("fsvol: read %q: chain ended early", name)
		}
		block, err := dev.ReadBlock(int(cur))
		if err != nil {
			return nil, fmt.Errorf("fsvol: read %q: %w", name, err)
		}
		n := remaining
		if n > SectorSize {
			n = SectorSize
		}
		out = append(out, block[:n]...)
		remaining -= n
		cur = v.fat.Get(int(cur))
	}
	return out, nil
}

// Write overwrites the named file's contents, replacing its chain
// (spec.md §4.3.2 "W"). The file must already exist; Create makes it
// first. Per spec.md §9, the old chain is freed before the new one is
// allocated, so a failed allocation leaves the file truncated to
// length 0 — an accepted, documented degradation, not a bug.
func (v *Volume) Write(dev Device, name string, data []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ensureLoaded(dev); err != nil {
		return err
	}
	slot := v.dir.Find(name)
	if slot < 0 {
		return ErrNotFound
	}
	entry := v.dir.Entry(slot)
	if entry.First != EntryEOF {
		v.fat.FreeChain(entry.First)
	}

	if len(data) == 0 {
		entry.First, entry.Length = EntryEOF, 0
		v.dir.SetEntry(slot, entry)
		if err := writeFAT(dev, v.layout, v.fat); err != nil {
			return fmt.Errorf("fsvol: write %q: flush fat: %w", name, err)
		}
		return v.flushDirSlot(dev, slot)
	}

	k := ceilDiv(len(data), SectorSize)
	head, ok := v.fat.AllocChain(v.layout.DataStart, k)
	if !ok {
		entry.First, entry.Length = EntryEOF, 0
		v.dir.SetEntry(slot, entry)
		_ = writeFAT(dev, v.layout, v.fat)
		_ = v.flushDirSlot(dev, slot)
		return ErrNoSpace
	}

	cur := head
	off := 0
	for off < len(data) {
		block := make([]byte, SectorSize)
		n := len(data) - off
		if n > SectorSize {
			n = SectorSize
		}
		copy(block, data[off:off+n])
		if err := dev.WriteBlock(int(cur), block); err != nil {
			return fmt.Errorf("fsvol: write %q: %w", name, err)
		}
		off += n
		cur = v.fat.Get(int(cur))
	}

	entry.First, entry.Length = head, uint32(len(data))
	v.dir.SetEntry(slot, entry)
	if err := writeFAT(dev, v.layout, v.fat); err != nil {
		return fmt.Errorf("fsvol: write %q: flush fat: %w", name, err)
	}
	return v.flushDirSlot(dev, slot)
}

func (v *Volume) flushDirSlot(dev Device, slot int) error {
	sector, offset := SectorOfSlot(slot)
	blkIdx := v.layout.DirStart + sector
	buf := make([]byte, SectorSize)
	const perSector = SectorSize / DirEntrySize
	base := slot - offset
	for i := 0; i < perSector; i++ {
		copy(buf[i*DirEntrySize:], EncodeDirEntry(v.dir.Entry(base+i)))
	}
	if err := dev.WriteBlock(blkIdx, buf); err != nil {
		return fmt.Errorf("fsvol: flush directory slot %d: %w", slot, err)
	}
	return nil
}

func writeFAT(dev Device, l Layout, f *FAT) error {
	raw := f.Encode()
	for s := 0; s < l.FATSectors; s++ {
		sector := make([]byte, SectorSize)
		off := s * SectorSize
		end := off + SectorSize
		if end > len(raw) {
			end = len(raw)
		}
		if off < len(raw) {
			copy(sector, raw[off:end])
		}
		if err := dev.WriteBlock(l.FATStart+s, sector); err != nil {
			return err
		}
	}
	return nil
}

func readFAT(dev Device, l Layout) (*FAT, error) {
	raw := make([]byte, 0, l.FATSectors*SectorSize)
	for s := 0; s < l.FATSectors; s++ {
		sector, err := dev.ReadBlock(l.FATStart + s)
		if err != nil {
			return nil, err
		}
		raw = append(raw, sector...)
	}
	return DecodeFAT(raw, l.TotalBlocks), nil
}

func writeDirectory(dev Device, l Layout, d *Directory) error {
	const perSector = SectorSize / DirEntrySize
	for s := 0; s < l.DirSectors; s++ {
		buf := make([]byte, SectorSize)
		for i := 0; i < perSector; i++ {
			copy(buf[i*DirEntrySize:], EncodeDirEntry(d.Entry(s*perSector+i)))
		}
		if err := dev.WriteBlock(l.DirStart+s, buf); err != nil {
			return err
		}
	}
	return nil
}

func readDirectory(dev Device, l Layout) (*Directory, error) {
	d := NewDirectory()
	const perSector = SectorSize / DirEntrySize
	for s := 0; s < l.DirSectors; s++ {
		sector, err := dev.ReadBlock(l.DirStart + s)
		if err != nil {
			return nil, err
		}
		for i := 0; i < perSector; i++ {
			entry, err := DecodeDirEntry(sector[i*DirEntrySize : (i+1)*DirEntrySize])
			if err != nil {
				return nil, err
			}
			d.SetEntry(s*perSector+i, entry)
		}
	}
	return d, nil
}
