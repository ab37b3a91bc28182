// Command disk-server runs the simulated block device service
// (spec.md §4.1, §6.1). Argument shape is positional rather than
// flag-based, following the bespoke CLI contract the original
// disk_server tool exposes, rather than cmd/go-nfsd's flag.Parse
// style.
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/coldforge/diskfs/disk"
	"github.com/coldforge/diskfs/util"
)

func main() {
	if len(os.Args) != 6 {
		fmt.Fprintf(os.Stderr, "usage: %s <port> <cyl> <sec> <track_us> <backing_file>\n", os.Args[0])
		os.Exit(2)
	}

	port, err1 := strconv.Atoi(os.Args[1])
	cyl, err2 := strconv.Atoi(os.Args[2])
	sec, err3 := strconv.Atoi(os.Args[3])
	trackMicros, err4 := strconv.Atoi(os.Args[4])
	backingFile := os.Args[5]
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		fmt.Fprintf(os.Stderr, "%s: bad numeric argument\n", os.Args[0])
		os.Exit(2)
	}

	geo, err := disk.NewGeometry(cyl, sec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[0], err)
		os.Exit(2)
	}

	srv, err := disk.NewServer(geo, backingFile, trackMicros)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: init: %v\n", os.Args[0], err)
		os.Exit(1)
	}
	defer srv.Close()

	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: listen: %v\n", os.Args[0], err)
		os.Exit(1)
	}

	statSig := make(chan os.Signal, 1)
	signal.Notify(statSig, syscall.SIGUSR1)
	srv.InstallSignalStats(statSig)

	interruptSig := make(chan os.Signal, 1)
	signal.Notify(interruptSig, os.Interrupt)
	go func() {
		<-interruptSig
		util.DPrintf(0, "disk-server: shutting down\n")
		srv.Shutdown()
	}()

	if err := srv.Serve(listener); err != nil {
		fmt.Fprintf(os.Stderr, "%s: serve: %v\n", os.Args[0], err)
		os.Exit(1)
	}
	srv.Wait()
}
