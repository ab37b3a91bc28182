package fsvol

import (
	"encoding/binary"
	"fmt"
)

// MaxNameLen is the longest name a directory entry can hold, leaving
// room for a NUL terminator within the 32-byte name field
// (spec.md §3.2).
const MaxNameLen = 31

// DirEntry is one 64-byte directory record (spec.md §3.2). Grounded
// in dir/dir.go's dirEnt type and its encode/decode helpers,
// generalized from a variable-length inode-backed directory to this
// fixed 64-entry flat table.
type DirEntry struct {
	Name   string
	Length uint32
	First  uint32
	Used   bool
}

// EncodeDirEntry renders one 64-byte record.
func EncodeDirEntry(e DirEntry) []byte {
	buf := make([]byte, DirEntrySize)
	copy(buf[0:32], e.Name)
	enc := binary.LittleEndian
	enc.PutUint32(buf[32:], e.Length)
	enc.PutUint32(buf[36:], e.First)
	if e.Used {
		buf[40] = 1
	}
	return buf
}

// DecodeDirEntry parses one 64-byte record.
func DecodeDirEntry(buf []byte) (DirEntry, error) {
	if len(buf) != DirEntrySize {
		return DirEntry{}, fmt.Errorf("fsvol: directory entry must be %d bytes", DirEntrySize)
	}
	nameEnd := 0
	for nameEnd < 32 && buf[nameEnd] != 0 {
		nameEnd++
	}
	dec := binary.LittleEndian
	return DirEntry{
		Name:   string(buf[0:nameEnd]),
		Length: dec.Uint32(buf[32:]),
		First:  dec.Uint32(buf[36:]),
		Used:   buf[40] != 0,
	}, nil
}

// Directory is the in-memory mirror of the fixed directory table.
// Like FAT, it relies on Volume's single metadata mutex for safety.
type Directory struct {
	entries []DirEntry
}

func NewDirectory() *Directory {
	return &Directory{entries: make([]DirEntry, DirCapacity)}
}

func (d *Directory) Entry(slot int) DirEntry { return d.entries[slot] }

func (d *Directory) SetEntry(slot int, e DirEntry) { d.entries[slot] = e }

// Find returns the slot index of the used entry named name, or -1.
func (d *Directory) Find(name string) int {
	for i, e := range d.entries {
		if e.Used && e.Name == name {
			return i
		}
	}
	return -1
}

// FirstFree returns the lowest-index unused slot, or -1 if the
// directory is full (spec.md §4.3.2 "C").
func (d *Directory) FirstFree() int {
	for i, e := range d.entries {
		if !e.Used {
			return i
		}
	}
	return -1
}

// Used lists occupied slots in slot-index order (spec.md §4.3.2 "L").
func (d *Directory) Used() []DirEntry {
	out := make([]DirEntry, 0, len(d.entries))
	for _, e := range d.entries {
		if e.Used {
			out = append(out, e)
		}
	}
	return out
}

// SectorOfSlot returns the directory-relative sector index and the
// in-sector entry offset (0 or 1) holding slot, since two entries
// pack per sector (spec.md §3.2).
func SectorOfSlot(slot int) (sector, offsetInSector int) {
	const entriesPerSector = SectorSize / DirEntrySize
	return slot / entriesPerSector, slot % entriesPerSector
}
