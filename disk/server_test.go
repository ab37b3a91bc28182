package disk

import (
	"bufio"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T, geo Geometry, trackMicros int) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	srv, err := NewServer(geo, filepath.Join(dir, "disk.img"), trackMicros)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln) //nolint:errcheck
	t.Cleanup(func() {
		srv.Shutdown()
		srv.Close()
	})
	return srv, ln.Addr().String()
}

func dial(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func TestInfoReportsGeometry(t *testing.T) {
	geo, err := NewGeometry(4, 4)
	require.NoError(t, err)
	_, addr := startTestServer(t, geo, 0)
	conn, r := dial(t, addr)

	_, err = conn.Write([]byte("I\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "4 4\n", line)
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	geo, err := NewGeometry(4, 4)
	require.NoError(t, err)
	_, addr := startTestServer(t, geo, 0)
	conn, r := dial(t, addr)

	_, err = conn.Write([]byte("W 0 0 5\nHELLO"))
	require.NoError(t, err)
	status, err := r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte('1'), status)

	_, err = conn.Write([]byte("R 0 0\n"))
	require.NoError(t, err)
	status, err = r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte('1'), status)

	sector := make([]byte, SectorSize)
	_, err = io.ReadFull(r, sector)
	require.NoError(t, err)

	want := make([]byte, SectorSize)
	copy(want, "HELLO")
	require.Equal(t, want, sector)
}

func TestInvalidCoordinateRejected(t *testing.T) {
	geo, err := NewGeometry(4, 4)
	require.NoError(t, err)
	_, addr := startTestServer(t, geo, 0)
	conn, r := dial(t, addr)

	_, err = conn.Write([]byte("R 4 0\n"))
	require.NoError(t, err)
	status, err := r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte('0'), status)
}

func TestOversizedWriteRejected(t *testing.T) {
	geo, err := NewGeometry(4, 4)
	require.NoError(t, err)
	_, addr := startTestServer(t, geo, 0)
	conn, r := dial(t, addr)

	_, err = conn.Write([]byte("W 0 0 200\n"))
	require.NoError(t, err)
	status, err := r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte('0'), status)
}

func TestSeekLatencyAccumulatesWithArmDistance(t *testing.T) {
	geo, err := NewGeometry(4, 4)
	require.NoError(t, err)
	_, addr := startTestServer(t, geo, 2000) // 2ms per cylinder of travel
	conn, r := dial(t, addr)

	start := time.Now()
	_, err = conn.Write([]byte("R 3 0\n"))
	require.NoError(t, err)
	status, err := r.ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte('1'), status)
	sector := make([]byte, SectorSize)
	_, err = io.ReadFull(r, sector)
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestPersistsAcrossRestart(t *testing.T) {
	geo, err := NewGeometry(2, 2)
	require.NoError(t, err)
	dir := t.TempDir()
	backing := filepath.Join(dir, "disk.img")

	srv, err := NewServer(geo, backing, 0)
	require.NoError(t, err)
	srv.img.WriteSector(0, append([]byte("PERSIST"), make([]byte, SectorSize-7)...))
	require.NoError(t, srv.Close())

	srv2, err := NewServer(geo, backing, 0)
	require.NoError(t, err)
	defer srv2.Close()
	got := srv2.img.ReadSector(0)
	require.Equal(t, byte('P'), got[0])
}
