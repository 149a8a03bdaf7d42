package gputest

import (
	"github.com/Carmen-Shannon/oxy-fx/gpu"
)

// DeviceOption is a functional option used to configure a fake device during
// construction.
type DeviceOption func(*device)

// WithCaps overrides the fake's capability description.
//
// Parameters:
//   - caps: the caps the fake reports
//
// Returns:
//   - DeviceOption: a function that sets the caps
func WithCaps(caps gpu.Caps) DeviceOption {
	return func(d *device) {
		d.caps = caps
	}
}

// WithoutTiming makes the fake reject timing query allocation.
//
// Returns:
//   - DeviceOption: a function that disables timing support
func WithoutTiming() DeviceOption {
	return func(d *device) {
		d.timingSupported = false
	}
}

// WithQueryStep sets how far the synthetic clock advances per issued
// timestamp.
//
// Parameters:
//   - ticks: the clock increment
//
// Returns:
//   - DeviceOption: a function that sets the step
func WithQueryStep(ticks uint64) DeviceOption {
	return func(d *device) {
		d.queryStep = ticks
	}
}

// WithQueryFrequency sets the tick rate disjoint queries report.
//
// Parameters:
//   - ticksPerSecond: the reported frequency
//
// Returns:
//   - DeviceOption: a function that sets the frequency
func WithQueryFrequency(ticksPerSecond uint64) DeviceOption {
	return func(d *device) {
		d.frequency = ticksPerSecond
	}
}

// WithPendingPolls makes every query report not-ready for the first n polls
// after it is issued, exercising the callers' retry paths.
//
// Parameters:
//   - n: the number of not-ready polls
//
// Returns:
//   - DeviceOption: a function that sets the poll delay
func WithPendingPolls(n int) DeviceOption {
	return func(d *device) {
		d.pendingPolls = n
	}
}

// defaultDevice builds the shared core with permissive caps. Tests that need
// restrictive hardware override with WithCaps.
func defaultDevice(caps gpu.Caps) device {
	return device{
		caps:            caps,
		timingSupported: true,
		queryStep:       100,
		frequency:       10_000_000,
	}
}

// NewModernDevice creates a modern fake with feature level 11_0 caps.
//
// Parameters:
//   - opts: optional configuration overrides
//
// Returns:
//   - *ModernDevice: a ready-to-use fake
func NewModernDevice(opts ...DeviceOption) *ModernDevice {
	d := &ModernDevice{
		device: defaultDevice(gpu.Caps{
			MaxTextureWidth:   16384,
			MaxTextureHeight:  16384,
			NonPow2:           true,
			BorderSampling:    true,
			RGBA32FRenderable: true,
			MinPrecisionVS:    true,
			MinPrecisionPS:    true,
			FeatureLevel:      gpu.FeatureLevel11_0,
		}),
	}
	for _, opt := range opts {
		opt(&d.device)
	}
	return d
}

// NewLegacyDevice creates a legacy fake with shader model 3_0 caps.
//
// Parameters:
//   - opts: optional configuration overrides
//
// Returns:
//   - *LegacyDevice: a ready-to-use fake
func NewLegacyDevice(opts ...DeviceOption) *LegacyDevice {
	d := &LegacyDevice{
		device: defaultDevice(gpu.Caps{
			MaxTextureWidth:      8192,
			MaxTextureHeight:     8192,
			NonPow2:              true,
			BorderSampling:       true,
			RGBA32FRenderable:    true,
			MaxVertexVersion:     gpu.VertexVersion(3, 0),
			MaxPixelVersion:      gpu.PixelVersion(3, 0),
			PredicationSupported: true,
			TempRegisterCount:    32,
		}),
	}
	for _, opt := range opts {
		opt(&d.device)
	}
	return d
}
