package pipeline

import (
	"github.com/Carmen-Shannon/oxy-fx/gpu"
)

type timingState uint8

const (
	timingIdle timingState = iota
	timingIssuing
	timingPolling
)

// passTimings drives the pipeline's GPU timing queries: one disjoint query
// bracketing the frame plus passCount+1 timestamps. A cycle is issued across
// a single frame and then polled without blocking over the following frames;
// a new cycle starts only after the previous one resolves. All methods accept
// a nil receiver so the pipeline can call through unconditionally when timing
// is disabled.
type passTimings struct {
	device   gpu.Device
	disjoint gpu.DisjointQuery
	stamps   []gpu.TimestampQuery

	state     timingState
	pollIndex int
	lost      bool

	frequency uint64
	values    []uint64
	timings   []float32
}

// newPassTimings allocates the query set for a pipeline of passCount passes.
//
// Parameters:
//   - device: the device supplying the queries
//   - passCount: the number of passes to bracket
//
// Returns:
//   - *passTimings: the query set
//   - error: an error if the device does not support timing queries
func newPassTimings(device gpu.Device, passCount int) (*passTimings, error) {
	t := &passTimings{
		device:  device,
		values:  make([]uint64, passCount+1),
		timings: make([]float32, passCount+1),
	}
	if err := t.create(passCount); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *passTimings) create(passCount int) error {
	disjoint, err := t.device.NewDisjointQuery()
	if err != nil {
		return err
	}
	stamps := make([]gpu.TimestampQuery, passCount+1)
	for i := range stamps {
		stamps[i], err = t.device.NewTimestampQuery()
		if err != nil {
			disjoint.Release()
			for _, s := range stamps {
				if s != nil {
					s.Release()
				}
			}
			return err
		}
	}
	t.disjoint = disjoint
	t.stamps = stamps
	t.state = timingIdle
	t.lost = false
	return nil
}

// beginFrame opens a new query cycle when the previous one has resolved.
// After a device loss the queries are recreated first; a device still unable
// to supply them leaves timing dormant until it can.
func (t *passTimings) beginFrame() {
	if t == nil {
		return
	}
	if t.lost {
		if t.create(len(t.values)-1) != nil {
			return
		}
	}
	if t.state != timingIdle {
		return
	}
	t.state = timingIssuing
	t.disjoint.Begin()
	t.stamps[0].Issue()
}

// stamp issues the timestamp following pass index-1 when a cycle is open.
func (t *passTimings) stamp(index int) {
	if t == nil || t.state != timingIssuing {
		return
	}
	t.stamps[index].Issue()
}

// endFrame closes the open cycle and hands it to the poll state machine.
func (t *passTimings) endFrame() {
	if t == nil || t.state != timingIssuing {
		return
	}
	t.disjoint.End()
	t.state = timingPolling
	t.pollIndex = 0
}

// poll advances through the pending queries without blocking. Once every
// query in the cycle has resolved it converts the timestamps to per-pass
// seconds, with the final entry covering the whole pipeline.
//
// Returns:
//   - []float32: the resolved timings, valid until the next resolved cycle
//   - bool: true when a full cycle resolved on this call
func (t *passTimings) poll() ([]float32, bool) {
	if t == nil || t.state != timingPolling {
		return nil, false
	}

	if t.pollIndex == 0 {
		freq, disjointed, ok := t.disjoint.Poll()
		if !ok {
			return nil, false
		}
		if disjointed {
			// counter glitched mid-frame, discard the cycle
			t.state = timingIdle
			return nil, false
		}
		t.frequency = freq
		t.pollIndex++
	}

	for t.pollIndex <= len(t.stamps) {
		v, ok := t.stamps[t.pollIndex-1].Poll()
		if !ok {
			return nil, false
		}
		t.values[t.pollIndex-1] = v
		t.pollIndex++
	}
	t.state = timingIdle

	var scale float64
	if t.frequency > 0 {
		scale = 1.0 / float64(t.frequency)
	}

	n := len(t.stamps) - 1
	for i := 0; i < n; i++ {
		var d float64
		if t.values[i] < t.values[i+1] {
			d = float64(t.values[i+1]-t.values[i]) * scale
		}
		t.timings[i] = float32(d)
	}
	var total float64
	if t.values[0] < t.values[n] {
		total = float64(t.values[n]-t.values[0]) * scale
	}
	t.timings[n] = float32(total)

	return t.timings, true
}

// onDeviceLost drops the query handles. beginFrame recreates them.
func (t *passTimings) onDeviceLost() {
	if t == nil {
		return
	}
	t.releaseQueries()
	t.lost = true
	t.state = timingIdle
}

func (t *passTimings) release() {
	if t == nil {
		return
	}
	t.releaseQueries()
}

func (t *passTimings) releaseQueries() {
	if t.disjoint != nil {
		t.disjoint.Release()
		t.disjoint = nil
	}
	for _, s := range t.stamps {
		if s != nil {
			s.Release()
		}
	}
	t.stamps = nil
}
