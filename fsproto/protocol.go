// Package fsproto implements the flat-filesystem wire protocol
// (spec.md §6.2): F/C/D/L/R/W over a line-framed TCP connection, one
// goroutine per client, each driving a shared fsvol.Volume through its
// own diskconn.Conn. Grounded in disk.Server's accept-loop shape
// (cmd/go-nfsd/main.go's Listen/Accept/go-per-connection pattern),
// adapted from the disk service's single-letter protocol to the
// richer name/length-bearing one this layer needs.
package fsproto

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

type request struct {
	op   byte
	name string
	b    int
	l    int
}

// readRequest reads one command line, splitting off any raw payload
// length the caller must then read separately (W). As with the disk
// protocol, the length field is authoritative; a reader must never
// scan payload bytes for '\n' (spec.md §9).
func readRequest(r *bufio.Reader) (request, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return request{}, err
	}
	line = strings.TrimRight(line, "\n")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return request{}, fmt.Errorf("fsproto: empty command line")
	}
	switch fields[0] {
	case "F":
		if len(fields) != 1 {
			return request{}, fmt.Errorf("fsproto: malformed F command")
		}
		return request{op: 'F'}, nil
	case "C":
		name, err := parseName(fields[1:])
		if err != nil {
			return request{}, err
		}
		return request{op: 'C', name: name}, nil
	case "D":
		name, err := parseName(fields[1:])
		if err != nil {
			return request{}, err
		}
		return request{op: 'D', name: name}, nil
	case "L":
		if len(fields) != 2 {
			return request{}, fmt.Errorf("fsproto: malformed L command")
		}
		b, err := strconv.Atoi(fields[1])
		if err != nil || (b != 0 && b != 1) {
			return request{}, fmt.Errorf("fsproto: bad L argument %q", fields[1])
		}
		return request{op: 'L', b: b}, nil
	case "R":
		name, err := parseName(fields[1:])
		if err != nil {
			return request{}, err
		}
		return request{op: 'R', name: name}, nil
	case "W":
		if len(fields) != 3 {
			return request{}, fmt.Errorf("fsproto: malformed W command")
		}
		l, err := strconv.Atoi(fields[2])
		if err != nil || l < 0 {
			return request{}, fmt.Errorf("fsproto: bad W length %q", fields[2])
		}
		return request{op: 'W', name: fields[1], l: l}, nil
	default:
		return request{}, fmt.Errorf("fsproto: unknown command %q", fields[0])
	}
}

func parseName(fields []string) (string, error) {
	if len(fields) != 1 {
		return "", fmt.Errorf("fsproto: expected a single name argument")
	}
	return fields[0], nil
}
