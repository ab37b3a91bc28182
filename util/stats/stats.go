// Package stats tracks per-operation counts and latencies for the disk
// and filesystem services, and renders them as a table on demand.
package stats

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rodaine/table"
)

// Op accumulates a call count and total latency for one operation
// kind. Every field is updated atomically, so a reader never needs
// the caller's lock.
type Op struct {
	count uint32
	nanos uint64
}

func (op *Op) Record(start time.Time) {
	atomic.AddUint32(&op.count, 1)
	atomic.AddUint64(&op.nanos, uint64(time.Since(start).Nanoseconds()))
}

func (op *Op) Reset() {
	atomic.StoreUint32(&op.count, 0)
	atomic.StoreUint64(&op.nanos, 0)
}

func (op Op) MicrosPerOp() float64 {
	if op.count == 0 {
		return 0
	}
	return float64(op.nanos) / float64(op.count) / 1e3
}

func (op *Op) snapshot() Op {
	return Op{
		count: atomic.LoadUint32(&op.count),
		nanos: atomic.LoadUint64(&op.nanos),
	}
}

// WriteTable renders one row per named op plus a total row to w.
func WriteTable(names []string, ops []Op, w io.Writer) {
	if len(names) != len(ops) {
		panic("stats: mismatched names and ops lists")
	}
	tbl := table.New("op", "count", "latency")
	var total Op
	for i, name := range names {
		snap := ops[i].snapshot()
		total.count += snap.count
		total.nanos += snap.nanos
		tbl.AddRow(name, snap.count, fmt.Sprintf("%0.1f us/op", snap.MicrosPerOp()))
	}
	tbl.AddRow("total", total.count, fmt.Sprintf("%0.1f us", float64(total.nanos)/1e3))
	tbl.WithWriter(w).Print()
}
