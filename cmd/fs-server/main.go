// Command fs-server runs the flat filesystem service on top of a
// running disk service (spec.md §4.3, §6.2).
package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/coldforge/diskfs/fsproto"
	"github.com/coldforge/diskfs/util"
)

func main() {
	if len(os.Args) != 4 {
		fmt.Fprintf(os.Stderr, "usage: %s <listen_port> <disk_host> <disk_port>\n", os.Args[0])
		os.Exit(2)
	}

	listenPort, err := strconv.Atoi(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: bad listen_port: %v\n", os.Args[0], err)
		os.Exit(2)
	}
	diskHost := os.Args[2]
	if _, err := strconv.Atoi(os.Args[3]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: bad disk_port: %v\n", os.Args[0], err)
		os.Exit(2)
	}
	diskAddr := net.JoinHostPort(diskHost, os.Args[3])

	srv := fsproto.NewServer(diskAddr)

	addr := fmt.Sprintf(":%d", listenPort)
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
		util.DPrintf(0, "fs-server: shutting down\n")
		srv.Shutdown()
	}()

	if err := srv.Serve(listener); err != nil {
		fmt.Fprintf(os.Stderr, "%s: serve: %v\n", os.Args[0], err)
		os.Exit(1)
	}
	srv.Wait()
	os.Exit(0)
}
