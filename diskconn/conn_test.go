package diskconn

import (
	"net"
	"path/filepath"
	"testing"

	"github.com/coldforge/diskfs/disk"
	"github.com/stretchr/testify/require"
)

func startDisk(t *testing.T) string {
	t.Helper()
	geo, err := disk.NewGeometry(4, 4)
	require.NoError(t, err)
	srv, err := disk.NewServer(geo, filepath.Join(t.TempDir(), "disk.img"), 0)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln) //nolint:errcheck
	t.Cleanup(func() {
		srv.Shutdown()
		srv.Close()
	})
	return ln.Addr().String()
}

func TestDialLearnsGeometry(t *testing.T) {
	addr := startDisk(t)
	c, err := Dial(addr)
	require.NoError(t, err)
	defer c.Close()
	require.Equal(t, 4, c.Geometry().Cylinders)
	require.Equal(t, 4, c.Geometry().SectorsPerTrack)
}

func TestWriteReadBlockRoundTrips(t *testing.T) {
	addr := startDisk(t)
	c, err := Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	sector := make([]byte, disk.SectorSize)
	copy(sector, "block-data")
	require.NoError(t, c.WriteBlock(5, sector))

	got, err := c.ReadBlock(5)
	require.NoError(t, err)
	require.Equal(t, sector, got)
}
