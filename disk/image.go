package disk

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// Image is the memory-mapped backing file for a Geometry. It is
// created and extended to the exact geometric capacity on open, and
// every sector access is a slice into the mapped region. Grounded in
// go-journal's disk/disk_impl.go fileDisk, which opens the backing
// file with golang.org/x/sys/unix and operates on it by absolute
// byte offset; here the same dependency is used for Mmap instead of
// Pread/Pwrite, since the spec requires an mmapped image.
type Image struct {
	mu   sync.Mutex // guards closing; sector access is arm-serialized by Arm, not here
	f    *os.File
	data []byte
	geo  Geometry
}

// OpenImage opens (creating if absent) the backing file at path,
// extends it to exactly geo.Bytes(), and maps it shared read/write.
func OpenImage(path string, geo Geometry) (*Image, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("disk: open backing file: %w", err)
	}
	if err := f.Truncate(geo.Bytes()); err != nil {
		f.Close()
		return nil, fmt.Errorf("disk: size backing file: %w", err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(geo.Bytes()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("disk: mmap backing file: %w", err)
	}
	return &Image{f: f, data: data, geo: geo}, nil
}

func (img *Image) Geometry() Geometry {
	return img.geo
}

// ReadSector copies the current contents of sector idx into a new
// SectorSize-byte slice.
func (img *Image) ReadSector(idx int) []byte {
	out := make([]byte, SectorSize)
	off := idx * SectorSize
	copy(out, img.data[off:off+SectorSize])
	return out
}

// WriteSector overwrites sector idx with exactly SectorSize bytes.
func (img *Image) WriteSector(idx int, sector []byte) {
	if len(sector) != SectorSize {
		panic("disk: WriteSector requires a full sector")
	}
	off := idx * SectorSize
	copy(img.data[off:off+SectorSize], sector)
}

// Close unmaps the image and closes the backing file.
func (img *Image) Close() error {
	img.mu.Lock()
	defer img.mu.Unlock()
	if img.data != nil {
		if err := unix.Munmap(img.data); err != nil {
			return fmt.Errorf("disk: munmap: %w", err)
		}
		img.data = nil
	}
	return img.f.Close()
}
