// package common contains common types that are used throughout this library. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

// Vec2i is a two-component integer vector, used for texture and viewport sizes.
type Vec2i struct {
	X, Y int32
}

// Vec4f is a four-component float vector. Semantic shader variables (sizes, frame
// counters, direction flags) are stored and gathered as Vec4f values.
type Vec4f struct {
	X, Y, Z, W float32
}

// Rectf is an axis-aligned rectangle in float coordinates, used for the final
// presentation destination of a pipeline.
type Rectf struct {
	Left, Top, Right, Bottom float32
}

// Width returns the horizontal extent of the rectangle.
//
// Returns:
//   - float32: right minus left
func (r Rectf) Width() float32 {
	return r.Right - r.Left
}

// Height returns the vertical extent of the rectangle.
//
// Returns:
//   - float32: bottom minus top
func (r Rectf) Height() float32 {
	return r.Bottom - r.Top
}

// TextureStagingData holds BGRA pixel data for a texture pending GPU upload.
// This is primarily used by the texture loader to stage decoded image data before
// creating the GPU texture.
type TextureStagingData struct {
	// Pixels is the byte slice representing the actual pixel data for the texture. It should be in BGRA format, with 4 bytes per pixel, top-down row order.
	Pixels []byte
	// Width is the width of the texture in pixels. This is required to correctly create the GPU texture and interpret the pixel data.
	Width uint32
	// Height is the height of the texture in pixels. This is required to correctly create the GPU texture and interpret the pixel data.
	Height uint32
}
