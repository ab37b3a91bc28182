// Package fsvol implements the flat-filesystem metadata layer:
// superblock, FAT, and directory table, composed into a Volume that
// drives a remote block device (spec.md §3.2, §4.3). Grounded in
// super.FsSuper's layout-offset methods (BitmapBlockStart, InodeStart,
// DataStart), generalized here from a bitmap+inode layout to the
// spec's FAT+fixed-directory layout.
package fsvol

import (
	"fmt"

	"github.com/coldforge/diskfs/disk"
)

const (
	// SectorSize mirrors disk.SectorSize; fsvol never talks to the
	// disk image directly but shares its unit of transfer.
	SectorSize = disk.SectorSize

	// DirEntrySize is the fixed width of one directory record.
	DirEntrySize = 64
	// DirCapacity is the fixed number of directory slots (spec.md §3.2).
	DirCapacity = 64
	// DirSectors is the fixed directory extent in sectors (spec.md §3.2).
	DirSectors = 32

	fatEntrySize     = 4
	fatEntriesPerSec = SectorSize / fatEntrySize
)

// Layout is the deterministic placement of metadata derived from a
// device's block count (spec.md §4.3.1).
type Layout struct {
	TotalBlocks int
	FATStart    int
	FATSectors  int
	DirStart    int
	DirSectors  int
	DataStart   int
}

// ComputeLayout derives the layout from a total block count. It
// rejects geometries too small to hold metadata plus at least one
// data block, per spec.md §4.3.1.
func ComputeLayout(totalBlocks int) (Layout, error) {
	fatSectors := ceilDiv(totalBlocks*fatEntrySize, SectorSize)
	fatStart := 1
	dirStart := fatStart + fatSectors
	dataStart := dirStart + DirSectors

	if totalBlocks <= dataStart {
		return Layout{}, fmt.Errorf("fsvol: geometry too small: %d blocks, need more than %d for metadata", totalBlocks, dataStart)
	}

	return Layout{
		TotalBlocks: totalBlocks,
		FATStart:    fatStart,
		FATSectors:  fatSectors,
		DirStart:    dirStart,
		DirSectors:  DirSectors,
		DataStart:   dataStart,
	}, nil
}

// MetadataBlocks returns the half-open range [0, DataStart) of blocks
// that FAT entries must mark RESERVED (spec.md §3.2 invariant 1).
func (l Layout) MetadataBlocks() (start, end int) {
	return 0, l.DataStart
}

func ceilDiv(n, d int) int {
	return (n + d - 1) / d
}
