package wgpudev

import (
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-fx/gpu"
	"github.com/cogentcore/webgpu/wgpu"
)

// program wraps a compiled shader module together with its entry point. The
// module compiles from the flattened WGSL carried in the shader code; the
// SPIR-V stream is bytecode for word-stream APIs and is not consumed here.
type program struct {
	module     *wgpu.ShaderModule
	entryPoint string
}

var _ gpu.Program = (*program)(nil)

func (p *program) Release() {
	if p.module != nil {
		p.module.Release()
		p.module = nil
	}
}

func (d *device) createProgram(code gpu.ShaderCode, entryPoint, label string) (gpu.Program, error) {
	if code.WGSL == "" {
		return nil, errors.New("shader code carries no source module")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	module, err := d.wgpuDevice.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: code.WGSL,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to compile shader module '%s': %w", label, err)
	}
	return &program{module: module, entryPoint: entryPoint}, nil
}

func (d *device) CreateVertexProgram(code gpu.ShaderCode, entryPoint, label string) (gpu.Program, error) {
	return d.createProgram(code, entryPoint, label)
}

func (d *device) CreateFragmentProgram(code gpu.ShaderCode, entryPoint, label string) (gpu.Program, error) {
	return d.createProgram(code, entryPoint, label)
}

type uniformBuffer struct {
	buf  *wgpu.Buffer
	size uint32
}

var _ gpu.UniformBuffer = (*uniformBuffer)(nil)

func (b *uniformBuffer) Size() uint32 {
	return b.size
}

func (b *uniformBuffer) Release() {
	if b.buf != nil {
		b.buf.Release()
		b.buf = nil
	}
}

func (d *device) CreateUniformBuffer(size uint32, label string) (gpu.UniformBuffer, error) {
	if size == 0 {
		return nil, errors.New("uniform buffer size must be positive")
	}

	// WebGPU requires uniform binding sizes in 16-byte steps.
	padded := (size + 15) &^ 15

	d.mu.Lock()
	defer d.mu.Unlock()

	buf, err := d.wgpuDevice.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(padded),
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to allocate uniform buffer '%s': %w", label, err)
	}
	return &uniformBuffer{buf: buf, size: padded}, nil
}

func (d *device) UpdateUniformBuffer(buf gpu.UniformBuffer, data []byte) error {
	b, ok := buf.(*uniformBuffer)
	if !ok {
		return errors.New("buffer does not belong to this device")
	}
	if uint32(len(data)) > b.size {
		return fmt.Errorf("update of %d bytes exceeds buffer capacity %d", len(data), b.size)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.queue.WriteBuffer(b.buf, 0, data)
	return nil
}
