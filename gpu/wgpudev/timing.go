package wgpudev

import (
	"time"

	"github.com/Carmen-Shannon/oxy-fx/gpu"
)

// The webgpu wrapper exposes no query sets, so pass timing falls back to the
// CPU clock: a timestamp query latches the wall clock at Issue, which brackets
// command submission rather than GPU execution. Good enough for relative pass
// cost, not for absolute GPU time.

type cpuTimestampQuery struct {
	value uint64
	valid bool
}

var _ gpu.TimestampQuery = (*cpuTimestampQuery)(nil)

func (q *cpuTimestampQuery) Issue() {
	q.value = uint64(time.Now().UnixNano())
	q.valid = true
}

func (q *cpuTimestampQuery) Poll() (uint64, bool) {
	return q.value, q.valid
}

func (q *cpuTimestampQuery) Release() {}

type cpuDisjointQuery struct {
	open   bool
	closed bool
}

var _ gpu.DisjointQuery = (*cpuDisjointQuery)(nil)

func (q *cpuDisjointQuery) Begin() {
	q.open = true
	q.closed = false
}

func (q *cpuDisjointQuery) End() {
	if q.open {
		q.closed = true
	}
}

func (q *cpuDisjointQuery) Poll() (uint64, bool, bool) {
	if !q.closed {
		return 0, false, false
	}
	// Nanosecond ticks; the wall clock is never disrupted.
	return uint64(time.Second / time.Nanosecond), false, true
}

func (q *cpuDisjointQuery) Release() {}

func (d *device) NewTimestampQuery() (gpu.TimestampQuery, error) {
	return &cpuTimestampQuery{}, nil
}

func (d *device) NewDisjointQuery() (gpu.DisjointQuery, error) {
	return &cpuDisjointQuery{}, nil
}
