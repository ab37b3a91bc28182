// Package disk implements the simulated block device service: fixed
// geometry, an mmapped backing file, a shared single-arm seek
// simulation, and a line/binary TCP protocol served one goroutine per
// connection (spec.md §4.1). Grounded in cmd/go-nfsd/main.go's
// Listen/Accept/go-per-connection shape, restructured here as a
// reusable Server rather than inline main-function code so cmd/disk-server
// can stay a thin argument-parsing wrapper.
package disk

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/coldforge/diskfs/util"
	"github.com/coldforge/diskfs/util/stats"
)

const (
	opRead int = iota
	opWrite
	opInfo
)

var opNames = []string{"disk.Read", "disk.Write", "disk.Info"}

// Server owns the shared geometry/image/arm and accepts connections.
type Server struct {
	geo  Geometry
	img  *Image
	arm  *Arm
	ln   net.Listener
	wg   sync.WaitGroup
	ops  [3]stats.Op
	quit chan struct{}
}

// NewServer builds a Server over the given backing file, creating or
// extending it as needed to match geo (spec.md §3.1).
func NewServer(geo Geometry, backingFile string, trackMicros int) (*Server, error) {
	img, err := OpenImage(backingFile, geo)
	if err != nil {
		return nil, err
	}
	return &Server{
		geo:  img.Geometry(),
		img:  img,
		arm:  NewArm(trackMicros),
		quit: make(chan struct{}),
	}, nil
}

// ListenAndServe binds addr and serves connections until Shutdown is
// called or Accept fails. It returns once the accept loop has exited;
// in-flight connections are left to finish on their own goroutines,
// matching spec.md §4.1's shutdown semantics.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("disk: listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve runs the accept loop over an already-bound listener, e.g. one
// opened by the caller to learn the ephemeral port before serving.
func (s *Server) Serve(ln net.Listener) error {
	s.ln = ln
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			util.DPrintf(0, "disk: accept: %v\n", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

// Shutdown sets the stop flag and closes the listener so the accept
// loop exits on its next iteration (spec.md §4.1, §5). It does not
// wait for existing connections; call Wait for that.
func (s *Server) Shutdown() {
	close(s.quit)
	if s.ln != nil {
		s.ln.Close()
	}
}

func (s *Server) Wait() { s.wg.Wait() }

func (s *Server) Close() error { return s.img.Close() }

func (s *Server) WriteStats(w io.Writer) { stats.WriteTable(opNames, s.ops[:], w) }

func (s *Server) ResetStats() {
	for i := range s.ops {
		s.ops[i].Reset()
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		req, err := readRequest(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				util.DPrintf(1, "disk: %s: %v\n", conn.RemoteAddr(), err)
			}
			return
		}
		if err := s.handleRequest(conn, r, req); err != nil {
			util.DPrintf(1, "disk: %s: %v\n", conn.RemoteAddr(), err)
			return
		}
	}
}

func (s *Server) handleRequest(conn net.Conn, r *bufio.Reader, req request) error {
	switch req.op {
	case 'I':
		defer s.ops[opInfo].Record(time.Now())
		_, err := fmt.Fprintf(conn, "%s\n", s.geo.String())
		return err
	case 'R':
		defer s.ops[opRead].Record(time.Now())
		if !s.geo.Valid(req.c, req.s) {
			_, err := conn.Write([]byte{'0'})
			return err
		}
		idx := s.geo.Index(req.c, req.s)
		s.arm.Lock()
		s.arm.SeekTo(req.c)
		sector := s.img.ReadSector(idx)
		s.arm.Unlock()
		if _, err := conn.Write([]byte{'1'}); err != nil {
			return err
		}
		_, err := conn.Write(sector)
		return err
	case 'W':
		defer s.ops[opWrite].Record(time.Now())
		if !s.geo.Valid(req.c, req.s) || req.l < 0 || req.l > SectorSize {
			// spec.md §9: reject before consuming payload; this
			// desynchronizes the stream, so the caller is expected
			// to stop pipelining after a failed W.
			_, err := conn.Write([]byte{'0'})
			return err
		}
		payload := make([]byte, req.l)
		if _, err := io.ReadFull(r, payload); err != nil {
			return fmt.Errorf("disk: short write payload: %w", err)
		}
		sector := make([]byte, SectorSize)
		copy(sector, payload)
		idx := s.geo.Index(req.c, req.s)
		s.arm.Lock()
		s.arm.SeekTo(req.c)
		s.img.WriteSector(idx, sector)
		s.arm.Unlock()
		_, err := conn.Write([]byte{'1'})
		return err
	default:
		return fmt.Errorf("disk: unreachable command %q", req.op)
	}
}

// InstallSignalStats wires SIGUSR1 to dump a latency table to stderr,
// mirroring cmd/go-nfsd/main.go's -stats handler.
func (s *Server) InstallSignalStats(sig <-chan os.Signal) {
	go func() {
		for range sig {
			s.WriteStats(os.Stderr)
			s.ResetStats()
		}
	}()
}
