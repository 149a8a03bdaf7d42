// Package gputest provides deterministic in-memory fakes for both device
// generations. The fakes validate the same preconditions a real device would
// reject, record every allocation and draw for assertions, and serve timing
// queries from a synthetic clock so profiling paths are reproducible.
package gputest

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/gpu"
)

// Texture is a recorded fake texture handle.
type Texture struct {
	Desc gpu.TextureDesc

	// Pixels holds the most recent upload, top-down BGRA rows.
	Pixels []byte

	// Uploads counts UploadTexture calls against this handle.
	Uploads int

	// Clears counts Clear calls against this handle.
	Clears int

	// Released reports whether the handle was freed.
	Released bool
}

// Size retrieves the texture dimensions in pixels.
//
// Returns:
//   - common.Vec2i: width and height
func (t *Texture) Size() common.Vec2i {
	return common.Vec2i{X: int32(t.Desc.Width), Y: int32(t.Desc.Height)}
}

// Format retrieves the texture's pixel format.
//
// Returns:
//   - gpu.TextureFormat: the format the texture was created with
func (t *Texture) Format() gpu.TextureFormat {
	return t.Desc.Format
}

// Release marks the handle freed.
func (t *Texture) Release() {
	t.Released = true
}

var _ gpu.Texture = &Texture{}

// Sampler is a recorded fake sampler handle.
type Sampler struct {
	Desc     gpu.SamplerDesc
	Released bool
}

// Release marks the handle freed.
func (s *Sampler) Release() {
	s.Released = true
}

var _ gpu.Sampler = &Sampler{}

// Program is a recorded fake shader stage handle.
type Program struct {
	// Vertex reports the stage the program was created for.
	Vertex bool

	// Code holds modern bytecode; Words holds a legacy word stream. Only one
	// is set depending on which device created the program.
	Code  []byte
	Words []uint32

	// EntryPoint and Label are the modern creation arguments.
	EntryPoint string
	Label      string

	Released bool
}

// Release marks the handle freed.
func (p *Program) Release() {
	p.Released = true
}

var _ gpu.Program = &Program{}

// UniformBuffer is a recorded fake constant buffer.
type UniformBuffer struct {
	// Data is the buffer contents, sized to the creation capacity.
	Data []byte

	// Updates counts UpdateUniformBuffer calls against this handle.
	Updates int

	Label    string
	Released bool
}

// Size retrieves the buffer capacity in bytes.
//
// Returns:
//   - uint32: the capacity the buffer was created with
func (b *UniformBuffer) Size() uint32 {
	return uint32(len(b.Data))
}

// Release marks the handle freed.
func (b *UniformBuffer) Release() {
	b.Released = true
}

var _ gpu.UniformBuffer = &UniformBuffer{}

// ClearOp records one Clear call.
type ClearOp struct {
	Target *Texture
	Color  common.Vec4f
}

// device is the core shared by both fake generations: caps, recorded
// allocations, and the synthetic query clock.
type device struct {
	caps gpu.Caps

	// Textures, Samplers, and Clears record every allocation and clear in
	// creation order.
	Textures []*Texture
	Samplers []*Sampler
	Clears   []ClearOp

	timingSupported bool
	pendingPolls    int
	queryStep       uint64
	frequency       uint64
	clock           uint64
}

func (d *device) Caps() gpu.Caps {
	return d.caps
}

func (d *device) CreateTexture(desc gpu.TextureDesc) (gpu.Texture, error) {
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("texture %q has a zero dimension", desc.Label)
	}
	if desc.Width > d.caps.MaxTextureWidth || desc.Height > d.caps.MaxTextureHeight {
		return nil, fmt.Errorf("texture size %dx%d exceeds device limits %dx%d",
			desc.Width, desc.Height, d.caps.MaxTextureWidth, d.caps.MaxTextureHeight)
	}
	if !d.caps.NonPow2 && (!common.IsPow2(desc.Width) || !common.IsPow2(desc.Height)) {
		return nil, fmt.Errorf("texture size %dx%d requires power-of-two support", desc.Width, desc.Height)
	}

	tex := &Texture{Desc: desc}
	d.Textures = append(d.Textures, tex)
	return tex, nil
}

func (d *device) UploadTexture(tex gpu.Texture, data common.TextureStagingData) error {
	t, ok := tex.(*Texture)
	if !ok {
		return fmt.Errorf("foreign texture handle")
	}
	if data.Width != t.Desc.Width || data.Height != t.Desc.Height {
		return fmt.Errorf("upload size %dx%d does not match texture %dx%d",
			data.Width, data.Height, t.Desc.Width, t.Desc.Height)
	}
	if len(data.Pixels) != int(data.Width*data.Height*4) {
		return fmt.Errorf("upload carries %d bytes for %dx%d", len(data.Pixels), data.Width, data.Height)
	}

	t.Pixels = append([]byte(nil), data.Pixels...)
	t.Uploads++
	return nil
}

func (d *device) CreateSampler(desc gpu.SamplerDesc) (gpu.Sampler, error) {
	if desc.Border && !d.caps.BorderSampling {
		return nil, fmt.Errorf("device does not support border sampling")
	}
	s := &Sampler{Desc: desc}
	d.Samplers = append(d.Samplers, s)
	return s, nil
}

func (d *device) Clear(target gpu.Texture, color common.Vec4f) error {
	t, ok := target.(*Texture)
	if !ok {
		return fmt.Errorf("foreign texture handle")
	}
	if !t.Desc.RenderTarget {
		return fmt.Errorf("clear target %q is not a render target", t.Desc.Label)
	}

	t.Clears++
	d.Clears = append(d.Clears, ClearOp{Target: t, Color: color})
	return nil
}

func (d *device) NewTimestampQuery() (gpu.TimestampQuery, error) {
	if !d.timingSupported {
		return nil, fmt.Errorf("device does not support timing queries")
	}
	return &TimestampQuery{device: d, pending: d.pendingPolls}, nil
}

func (d *device) NewDisjointQuery() (gpu.DisjointQuery, error) {
	if !d.timingSupported {
		return nil, fmt.Errorf("device does not support timing queries")
	}
	return &DisjointQuery{device: d, pending: d.pendingPolls}, nil
}

// TimestampQuery is a fake timestamp query served from the device clock. Each
// Issue advances the clock by the configured step, so consecutive timestamps
// differ by a known amount.
type TimestampQuery struct {
	device   *device
	value    uint64
	issued   bool
	pending  int
	Released bool
}

// Issue latches the current clock value and advances the clock.
func (q *TimestampQuery) Issue() {
	q.device.clock += q.device.queryStep
	q.value = q.device.clock
	q.issued = true
	q.pending = q.device.pendingPolls
}

// Poll retrieves the latched timestamp once the configured number of pending
// polls has elapsed.
//
// Returns:
//   - uint64: the timestamp in device ticks
//   - bool: true when the result is ready
func (q *TimestampQuery) Poll() (uint64, bool) {
	if !q.issued {
		return 0, false
	}
	if q.pending > 0 {
		q.pending--
		return 0, false
	}
	return q.value, true
}

// Release marks the query freed.
func (q *TimestampQuery) Release() {
	q.Released = true
}

var _ gpu.TimestampQuery = &TimestampQuery{}

// DisjointQuery is a fake frequency query. It always reports a stable clock
// at the configured frequency.
type DisjointQuery struct {
	device   *device
	begun    bool
	ended    bool
	pending  int
	Released bool
}

// Begin opens the query bracket.
func (q *DisjointQuery) Begin() {
	q.begun = true
	q.ended = false
	q.pending = q.device.pendingPolls
}

// End closes the query bracket.
func (q *DisjointQuery) End() {
	q.ended = true
}

// Poll retrieves the clock frequency once the bracket is closed and the
// configured number of pending polls has elapsed.
//
// Returns:
//   - uint64: ticks per second
//   - bool: true if the interval was disjoint and must be discarded
//   - bool: true when the result is ready
func (q *DisjointQuery) Poll() (uint64, bool, bool) {
	if !q.begun || !q.ended {
		return 0, false, false
	}
	if q.pending > 0 {
		q.pending--
		return 0, false, false
	}
	return q.device.frequency, false, true
}

// Release marks the query freed.
func (q *DisjointQuery) Release() {
	q.Released = true
}

var _ gpu.DisjointQuery = &DisjointQuery{}
