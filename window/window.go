// Package window hosts a GLFW window for presenting effect pipeline output.
// It exposes just enough surface: a platform surface descriptor for WebGPU,
// pixel-accurate size reporting, and a message loop driving a per-frame
// callback.
package window

import (
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// Window provides platform windowing for the effect demo.
type Window interface {
	// SetUpdateCallback sets the function called each message loop iteration.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the framebuffer is
	// resized. Dimensions are in pixels, which differ from window units on
	// high-DPI displays.
	//
	// Parameters:
	//   - callback: function receiving new width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SurfaceDescriptor returns a platform-appropriate wgpu.SurfaceDescriptor
	// created by the wgpuglfw bridge from the underlying GLFW window.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the surface descriptor, or nil if the
	//     window is not initialized
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning reports whether the window is still active.
	//
	// Returns:
	//   - bool: true if the window is running, false if closed
	IsRunning() bool

	// Close closes the window and releases platform resources.
	//
	// Returns:
	//   - error: error if the window was never initialized
	Close() error

	// ProcessMessages runs the window message loop. Blocks until the window
	// is closed, calling the update callback each iteration.
	ProcessMessages()

	// Width returns the current framebuffer width in pixels.
	//
	// Returns:
	//   - int: width in pixels
	Width() int

	// Height returns the current framebuffer height in pixels.
	//
	// Returns:
	//   - int: height in pixels
	Height() int
}

type effectWindow struct {
	title  string
	width  int
	height int

	glfwWindow *glfw.Window
	running    bool

	onUpdate func()
	onResize func(width, height int)
}

var _ Window = (*effectWindow)(nil)

// NewWindow creates and shows a GLFW window configured for WebGPU rendering.
// Panics if the platform window cannot be created.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the running window
func NewWindow(options ...WindowOption) Window {
	w := &effectWindow{
		title:  "Effect Preview",
		width:  1280,
		height: 720,
	}
	for _, opt := range options {
		if opt != nil {
			opt(w)
		}
	}
	if err := w.open(); err != nil {
		panic(fmt.Sprintf("failed to create platform window: %v", err))
	}
	return w
}

// open initializes GLFW and creates the native window with its callbacks.
//
// GLFW reference: https://www.glfw.org/docs/latest/window_guide.html
func (w *effectWindow) open() error {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return fmt.Errorf("failed to initialize GLFW: %v", err)
	}

	// WebGPU provides its own graphics API, so disable OpenGL context
	// creation.
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)

	win, err := glfw.CreateWindow(w.width, w.height, w.title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return fmt.Errorf("failed to create GLFW window: %v", err)
	}
	w.glfwWindow = win
	w.running = true

	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.running = false
			win.SetShouldClose(true)
		}
	})

	// Framebuffer size callbacks report pixels; on high-DPI displays this
	// differs from the window size and is what surface configuration needs.
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		w.width = width
		w.height = height
		if w.onResize != nil {
			w.onResize(width, height)
		}
	})

	fbWidth, fbHeight := win.GetFramebufferSize()
	w.width = fbWidth
	w.height = fbHeight

	return nil
}

func (w *effectWindow) SetUpdateCallback(callback func()) {
	w.onUpdate = callback
}

func (w *effectWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *effectWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	if w.glfwWindow == nil {
		return nil
	}
	return wgpuglfw.GetSurfaceDescriptor(w.glfwWindow)
}

func (w *effectWindow) IsRunning() bool {
	return w.glfwWindow != nil && w.running && !w.glfwWindow.ShouldClose()
}

func (w *effectWindow) Close() error {
	if w.glfwWindow == nil {
		return fmt.Errorf("window is not initialized")
	}
	w.running = false
	w.glfwWindow.SetShouldClose(true)
	w.glfwWindow.Destroy()
	w.glfwWindow = nil
	glfw.Terminate()
	return nil
}

func (w *effectWindow) ProcessMessages() {
	for w.IsRunning() {
		glfw.PollEvents()
		if !w.IsRunning() {
			break
		}

		if w.onUpdate != nil {
			w.onUpdate()
		}

		runtime.Gosched()
	}
}

func (w *effectWindow) Width() int {
	return w.width
}

func (w *effectWindow) Height() int {
	return w.height
}
