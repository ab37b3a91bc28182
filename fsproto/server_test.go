package fsproto

import (
	"bufio"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coldforge/diskfs/disk"
)

// startDisk spins up a real disk service backed by a scratch file and
// returns its address.
func startDisk(t *testing.T, cyl, sec int) string {
	t.Helper()
	geo, err := disk.NewGeometry(cyl, sec)
	require.NoError(t, err)
	srv, err := disk.NewServer(geo, t.TempDir()+"/image.bin", 0)
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown()
		srv.Wait()
		srv.Close()
	})
	return ln.Addr().String()
}

// startFS spins up a filesystem service wired to a live disk service.
func startFS(t *testing.T, diskAddr string) string {
	t.Helper()
	srv := NewServer(diskAddr)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown()
		srv.Wait()
	})
	return ln.Addr().String()
}

func dial(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func TestFormatThenListIsEmpty(t *testing.T) {
	diskAddr := startDisk(t, 8, 8)
	fsAddr := startFS(t, diskAddr)
	conn, r := dial(t, fsAddr)

	_, err := conn.Write([]byte("F\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "0\n", line)

	_, err = conn.Write([]byte("L 0\n"))
	require.NoError(t, err)
	_, err = conn.Write([]byte("F\n"))
	require.NoError(t, err)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "0\n", line)
}

func TestCreateIsIdempotentlyRejected(t *testing.T) {
	diskAddr := startDisk(t, 8, 8)
	fsAddr := startFS(t, diskAddr)
	conn, r := dial(t, fsAddr)

	mustCmd(t, conn, r, "F\n", "0\n")
	mustCmd(t, conn, r, "C foo\n", "0\n")
	mustCmd(t, conn, r, "C foo\n", "1\n")
}

func TestWriteReadDelete(t *testing.T) {
	diskAddr := startDisk(t, 8, 8)
	fsAddr := startFS(t, diskAddr)
	conn, r := dial(t, fsAddr)

	mustCmd(t, conn, r, "F\n", "0\n")
	mustCmd(t, conn, r, "C foo\n", "0\n")

	_, err := fmt.Fprintf(conn, "W foo 12\nhello world!")
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "0\n", line)

	_, err = conn.Write([]byte("R foo\n"))
	require.NoError(t, err)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "0 12 hello world!\n", line)

	mustCmd(t, conn, r, "D foo\n", "0\n")

	_, err = conn.Write([]byte("R foo\n"))
	require.NoError(t, err)
	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "1 0 \n", line)
}

func TestMultiBlockChain(t *testing.T) {
	diskAddr := startDisk(t, 16, 16)
	fsAddr := startFS(t, diskAddr)
	conn, r := dial(t, fsAddr)

	mustCmd(t, conn, r, "F\n", "0\n")
	mustCmd(t, conn, r, "C big\n", "0\n")

	data := make([]byte, 300)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	_, err := fmt.Fprintf(conn, "W big %d\n", len(data))
	require.NoError(t, err)
	_, err = conn.Write(data)
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "0\n", line)

	_, err = conn.Write([]byte("R big\n"))
	require.NoError(t, err)
	header, err := r.ReadString(' ')
	require.NoError(t, err)
	require.Equal(t, "0 ", header)
	lenField, err := r.ReadString(' ')
	require.NoError(t, err)
	require.Equal(t, "300 ", lenField)
	buf := make([]byte, 300)
	_, err = readFull(r, buf)
	require.NoError(t, err)
	require.Equal(t, data, buf)
}

func TestListUnformattedReportsSoLiterally(t *testing.T) {
	diskAddr := startDisk(t, 8, 8)
	fsAddr := startFS(t, diskAddr)
	conn, r := dial(t, fsAddr)

	_, err := conn.Write([]byte("L 0\n"))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "(unformatted)\n", line)
}

func TestUnformattedMutationsReportResourceError(t *testing.T) {
	diskAddr := startDisk(t, 8, 8)
	fsAddr := startFS(t, diskAddr)
	conn, r := dial(t, fsAddr)

	mustCmd(t, conn, r, "C foo\n", "2\n")
	mustCmd(t, conn, r, "D foo\n", "2\n")

	_, err := fmt.Fprintf(conn, "W foo 1\nx")
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "2\n", line)
}

func mustCmd(t *testing.T, conn net.Conn, r *bufio.Reader, cmd, want string) {
	t.Helper()
	_, err := conn.Write([]byte(cmd))
	require.NoError(t, err)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, want, line)
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
