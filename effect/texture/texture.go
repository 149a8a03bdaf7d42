// Package texture loads custom effect textures into device memory. TARGA
// files decode through the native path in tga.go; files carrying a known
// image magic decode through the registered stdlib and x/image decoders
// instead. Either way the result is staged as top-down BGRA and uploaded
// honoring the device caps.
package texture

import (
	"bytes"
	"fmt"
	"image"
	"os"

	// Registered decoders for the non-TARGA path.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/Carmen-Shannon/oxy-fx/common"
	"github.com/Carmen-Shannon/oxy-fx/gpu"
	"github.com/disintegration/imaging"
)

// Image is a decoded effect texture: BGRA bytes in top-down row order.
type Image struct {
	Width  uint32
	Height uint32
	Pixels []byte
}

// Staging wraps the image as upload data for the device.
//
// Returns:
//   - common.TextureStagingData: the staging view sharing the image pixels
func (i *Image) Staging() common.TextureStagingData {
	return common.TextureStagingData{
		Pixels: i.Pixels,
		Width:  i.Width,
		Height: i.Height,
	}
}

// loader is the implementation of the Loader interface.
type loader struct {
	device gpu.Device
}

// Loader decodes effect texture files and creates device textures from them.
type Loader interface {
	// Load reads and decodes an image file into top-down BGRA form.
	//
	// Parameters:
	//   - path: the image file
	//
	// Returns:
	//   - *Image: the decoded image
	//   - error: an error if the file cannot be read or decoded
	Load(path string) (*Image, error)

	// Upload creates a device texture from a decoded image, validating the
	// image against the device caps first.
	//
	// Parameters:
	//   - img: the decoded image
	//   - name: the texture name used in labels and errors
	//
	// Returns:
	//   - gpu.Texture: the uploaded texture
	//   - error: an error if the image violates device limits or upload fails
	Upload(img *Image, name string) (gpu.Texture, error)

	// LoadTexture loads a file and uploads it in one step.
	//
	// Parameters:
	//   - path: the image file
	//   - name: the texture name used in labels and errors
	//
	// Returns:
	//   - gpu.Texture: the uploaded texture
	//   - error: an error if decoding or upload fails
	LoadTexture(path, name string) (gpu.Texture, error)
}

var _ Loader = &loader{}

// NewLoader creates a Loader uploading through the given device.
//
// Parameters:
//   - device: the target device
//
// Returns:
//   - Loader: a ready-to-use loader
func NewLoader(device gpu.Device) Loader {
	return &loader{device: device}
}

func (l *loader) Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if hasImageMagic(data) {
		img, err := decodeRegistered(data)
		if err != nil {
			return nil, fmt.Errorf("unsupported image format in %q: %w", path, err)
		}
		return img, nil
	}

	img, err := decodeTGA(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

func (l *loader) Upload(img *Image, name string) (gpu.Texture, error) {
	caps := l.device.Caps()

	if img.Width > caps.MaxTextureWidth || img.Height > caps.MaxTextureHeight {
		return nil, fmt.Errorf("unable to create %dx%d texture '%s': exceeds device limit of %dx%d",
			img.Width, img.Height, name, caps.MaxTextureWidth, caps.MaxTextureHeight)
	}
	if !caps.NonPow2 && (!common.IsPow2(img.Width) || !common.IsPow2(img.Height)) {
		return nil, fmt.Errorf("unable to create %dx%d texture '%s': device requires power-of-two texture sizes",
			img.Width, img.Height, name)
	}

	tex, err := l.device.CreateTexture(gpu.TextureDesc{
		Width:  img.Width,
		Height: img.Height,
		Format: gpu.FormatBGRA8,
		Label:  name,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create %dx%d texture '%s': %w", img.Width, img.Height, name, err)
	}

	if err := l.device.UploadTexture(tex, img.Staging()); err != nil {
		tex.Release()
		return nil, fmt.Errorf("unable to create %dx%d texture '%s': %w", img.Width, img.Height, name, err)
	}

	return tex, nil
}

func (l *loader) LoadTexture(path, name string) (gpu.Texture, error) {
	img, err := l.Load(path)
	if err != nil {
		return nil, err
	}
	return l.Upload(img, name)
}

// imageMagics are the signatures that route a file to the registered
// decoders. Everything else is treated as TARGA, which has no magic.
var imageMagics = [][]byte{
	{137, 'P', 'N', 'G', 13, 10, 26, 10},
	{0xFF, 0xD8, 0xFF},
	[]byte("GIF8"),
	[]byte("BM"),
	{'I', 'I', 0x2A, 0x00},
	{'M', 'M', 0x00, 0x2A},
}

func hasImageMagic(data []byte) bool {
	for _, magic := range imageMagics {
		if bytes.HasPrefix(data, magic) {
			return true
		}
	}
	return false
}

// decodeRegistered decodes through the registered image decoders and converts
// to top-down BGRA.
func decodeRegistered(data []byte) (*Image, error) {
	decoded, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	rgba := imaging.Clone(decoded)
	bounds := rgba.Bounds()
	width := uint32(bounds.Dx())
	height := uint32(bounds.Dy())

	img := &Image{
		Width:  width,
		Height: height,
		Pixels: make([]byte, width*height*4),
	}

	for y := uint32(0); y < height; y++ {
		src := rgba.Pix[int(y)*rgba.Stride:]
		dst := img.Pixels[y*width*4:]
		for x := uint32(0); x < width; x++ {
			dst[x*4+0] = src[x*4+2]
			dst[x*4+1] = src[x*4+1]
			dst[x*4+2] = src[x*4+0]
			dst[x*4+3] = src[x*4+3]
		}
	}

	return img, nil
}
