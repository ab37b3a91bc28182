package fsproto

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/coldforge/diskfs/diskconn"
	"github.com/coldforge/diskfs/fsvol"
	"github.com/coldforge/diskfs/util"
	"github.com/coldforge/diskfs/util/stats"
)

const (
	opFormat int = iota
	opCreate
	opDelete
	opList
	opRead
	opWrite
)

var opNames = []string{"fsproto.Format", "fsproto.Create", "fsproto.Delete", "fsproto.List", "fsproto.Read", "fsproto.Write"}

// Server accepts filesystem clients and drives a shared fsvol.Volume.
// Each accepted connection dials its own diskconn.Conn to the disk
// service and keeps it for the connection's lifetime, matching
// spec.md §3.3/§4.2's "each FS worker owns one disk connection".
type Server struct {
	vol      *fsvol.Volume
	diskAddr string

	ln   net.Listener
	wg   sync.WaitGroup
	quit chan struct{}

	mu  sync.Mutex
	ops [6]stats.Op
}

// NewServer builds a Server that will dial diskAddr once per accepted
// connection.
func NewServer(diskAddr string) *Server {
	return &Server{
		vol:      fsvol.NewVolume(),
		diskAddr: diskAddr,
		quit:     make(chan struct{}),
	}
}

func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("fsproto: listen: %w", err)
	}
	return s.Serve(ln)
}

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
			util.DPrintf(0, "fsproto: accept: %v\n", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(conn)
		}()
	}
}

func (s *Server) Shutdown() {
	close(s.quit)
	if s.ln != nil {
		s.ln.Close()
	}
}

func (s *Server) Wait() { s.wg.Wait() }

func (s *Server) WriteStats(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats.WriteTable(opNames, s.ops[:], w)
}

func (s *Server) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.ops {
		s.ops[i].Reset()
	}
}

func (s *Server) record(op int, start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[op].Record(start)
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()

	dev, err := diskconn.Dial(s.diskAddr)
	if err != nil {
		util.DPrintf(0, "fsproto: %s: dial disk: %v\n", conn.RemoteAddr(), err)
		return
	}
	defer dev.Close()
	defer func() {
		// Per-connection disk round-trip latency, gated behind the
		// same threshold as DPrintf(1, ...) call sites.
		if util.Debug >= 1 {
			dev.WriteStats(os.Stderr)
		}
	}()

	r := bufio.NewReader(conn)
	for {
		req, err := readRequest(r)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				util.DPrintf(1, "fsproto: %s: %v\n", conn.RemoteAddr(), err)
			}
			return
		}
		if err := s.handleRequest(conn, r, dev, req); err != nil {
			util.DPrintf(1, "fsproto: %s: %v\n", conn.RemoteAddr(), err)
			return
		}
	}
}

func (s *Server) handleRequest(conn net.Conn, r *bufio.Reader, dev *diskconn.Conn, req request) error {
	switch req.op {
	case 'F':
		defer s.record(opFormat, time.Now())
		if err := s.vol.Format(dev); err != nil {
			util.DPrintf(1, "fsproto: format: %v\n", err)
			return writeLine(conn, "2")
		}
		return writeLine(conn, "0")

	case 'C':
		defer s.record(opCreate, time.Now())
		err := s.vol.Create(dev, req.name)
		switch {
		case err == nil:
			return writeLine(conn, "0")
		case errors.Is(err, fsvol.ErrNotFormatted):
			return writeLine(conn, "2")
		case errors.Is(err, fsvol.ErrExists), errors.Is(err, fsvol.ErrInvalidName):
			return writeLine(conn, "1")
		default:
			util.DPrintf(1, "fsproto: create %q: %v\n", req.name, err)
			return writeLine(conn, "2")
		}

	case 'D':
		defer s.record(opDelete, time.Now())
		err := s.vol.Delete(dev, req.name)
		switch {
		case err == nil:
			return writeLine(conn, "0")
		case errors.Is(err, fsvol.ErrNotFormatted):
			return writeLine(conn, "2")
		case errors.Is(err, fsvol.ErrNotFound):
			return writeLine(conn, "1")
		default:
			util.DPrintf(1, "fsproto: delete %q: %v\n", req.name, err)
			return writeLine(conn, "2")
		}

	case 'L':
		defer s.record(opList, time.Now())
		entries, err := s.vol.List(dev)
		if errors.Is(err, fsvol.ErrNotFormatted) {
			return writeLine(conn, "(unformatted)")
		}
		if err != nil {
			util.DPrintf(1, "fsproto: list: %v\n", err)
			return nil
		}
		for _, e := range entries {
			if req.b == 0 {
				if err := writeLine(conn, e.Name); err != nil {
					return err
				}
			} else {
				if err := writeLine(conn, fmt.Sprintf("%s %d", e.Name, e.Length)); err != nil {
					return err
				}
			}
		}
		return nil

	case 'R':
		defer s.record(opRead, time.Now())
		data, err := s.vol.Read(dev, req.name)
		switch {
		case err == nil:
			_, werr := fmt.Fprintf(conn, "0 %d %s\n", len(data), data)
			return werr
		case errors.Is(err, fsvol.ErrNotFound), errors.Is(err, fsvol.ErrNotFormatted):
			_, werr := fmt.Fprintf(conn, "1 0 \n")
			return werr
		default:
			util.DPrintf(1, "fsproto: read %q: %v\n", req.name, err)
			_, werr := fmt.Fprintf(conn, "2 0 \n")
			return werr
		}

	case 'W':
		defer s.record(opWrite, time.Now())
		payload := make([]byte, req.l)
		if _, err := io.ReadFull(r, payload); err != nil {
			return fmt.Errorf("fsproto: short write payload: %w", err)
		}
		err := s.vol.Write(dev, req.name, payload)
		switch {
		case err == nil:
			return writeLine(conn, "0")
		case errors.Is(err, fsvol.ErrNotFormatted):
			return writeLine(conn, "2")
		case errors.Is(err, fsvol.ErrNotFound):
			return writeLine(conn, "1")
		default:
			util.DPrintf(1, "fsproto: write %q: %v\n", req.name, err)
			return writeLine(conn, "2")
		}

	default:
		return fmt.Errorf("fsproto: unreachable command %q", req.op)
	}
}

func writeLine(conn net.Conn, s string) error {
	_, err := fmt.Fprintf(conn, "%s\n", s)
	return err
}

// InstallSignalStats wires SIGUSR1 to dump a latency table to stderr,
// mirroring disk.Server's handler.
func (s *Server) InstallSignalStats(sig <-chan os.Signal) {
	go func() {
		for range sig {
			s.WriteStats(os.Stderr)
			s.ResetStats()
		}
	}()
}
