// Package util provides leveled debug logging shared by the disk and
// filesystem services.
package util

import "log"

// Debug is the maximum level that gets printed; raise it to see more
// detail from DPrintf call sites.
var Debug uint64 = 1

func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= Debug {
		log.Printf(format, a...)
	}
}
