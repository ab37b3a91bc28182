// Command disk-probe is a minimal connectivity check for a running
// disk service: dial it, print the geometry it reports, and round-trip
// one write/read against block 0 (overwriting it). Grounded in original_source/disk_cli_v2.c
// and original_source/disk_rand_v2.c, reimplemented as a thin Go client
// of diskconn.Conn rather than a port of either C tool.
package main

import (
	"fmt"
	"os"

	"github.com/coldforge/diskfs/diskconn"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <disk_addr>\n", os.Args[0])
		os.Exit(2)
	}

	conn, err := diskconn.Dial(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[0], err)
		os.Exit(1)
	}
	defer conn.Close()

	geo := conn.Geometry()
	fmt.Printf("geometry: %s (%d blocks)\n", geo.String(), geo.Blocks())

	probe := []byte("disk-probe")
	sector := make([]byte, 128)
	copy(sector, probe)
	if err := conn.WriteBlock(0, sector); err != nil {
		fmt.Fprintf(os.Stderr, "%s: write probe: %v\n", os.Args[0], err)
		os.Exit(1)
	}
	got, err := conn.ReadBlock(0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: read probe: %v\n", os.Args[0], err)
		os.Exit(1)
	}
	fmt.Printf("round trip ok: %q\n", got[:len(probe)])
}
