// tga.go decodes TARGA images natively. Effect texture packs ship TGA files
// because the format round-trips BGRA exactly; only uncompressed and RLE
// truecolor images at 24 or 32 bpp are accepted, and dimensions must be
// powers of two within the effect texture limit.
package texture

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Carmen-Shannon/oxy-fx/common"
)

// Common errors returned by the TARGA decoder
var (
	errTGATruncated     = errors.New("truncated TARGA file")
	errTGADepth         = errors.New("TARGA image must be 24-bit or 32-bit")
	errTGADecompression = errors.New("TARGA decompression error")
)

const (
	// tgaHeaderSize is the fixed TARGA header length.
	tgaHeaderSize = 18

	// maxTGADimension bounds effect texture dimensions.
	maxTGADimension = 16384
)

// decodeTGA converts a raw TARGA file into top-down BGRA pixels.
func decodeTGA(data []byte) (*Image, error) {
	if len(data) < tgaHeaderSize {
		return nil, errTGATruncated
	}

	idSize := uint32(data[0])
	dataType := data[2]
	width := uint32(binary.LittleEndian.Uint16(data[12:]))
	height := uint32(binary.LittleEndian.Uint16(data[14:]))
	pixelSize := data[16]
	alphaBits := data[17] & 15
	topDown := data[17]&0x20 != 0

	if width == 0 || height == 0 || width > maxTGADimension || height > maxTGADimension ||
		!common.IsPow2(width) || !common.IsPow2(height) {
		return nil, fmt.Errorf("unsupported TARGA image size: %dx%d", width, height)
	}

	truecolor := dataType == 2 || dataType == 10
	var bpp uint32
	switch {
	case truecolor && pixelSize == 24 && alphaBits == 0:
		bpp = 3
	case truecolor && pixelSize == 32 && (alphaBits == 0 || alphaBits == 8):
		bpp = 4
	default:
		return nil, errTGADepth
	}

	offset := tgaHeaderSize + idSize
	if uint32(len(data)) < offset {
		return nil, errTGATruncated
	}
	raw := data[offset:]

	pixelBytes := bpp * width * height
	if dataType == 10 {
		decoded, err := decompressTGA(raw, bpp, pixelBytes)
		if err != nil {
			return nil, err
		}
		raw = decoded
	} else if uint32(len(raw)) < pixelBytes {
		return nil, errTGATruncated
	}

	img := &Image{
		Width:  width,
		Height: height,
		Pixels: make([]byte, width*height*4),
	}

	srcRowBytes := width * bpp
	for y := uint32(0); y < height; y++ {
		srcY := y
		if !topDown {
			srcY = height - 1 - y
		}
		src := raw[srcY*srcRowBytes:]
		dst := img.Pixels[y*width*4:]

		switch {
		case bpp == 3:
			for x := uint32(0); x < width; x++ {
				dst[x*4+0] = src[x*3+0]
				dst[x*4+1] = src[x*3+1]
				dst[x*4+2] = src[x*3+2]
				dst[x*4+3] = 0xFF
			}
		case alphaBits == 0:
			for x := uint32(0); x < width; x++ {
				dst[x*4+0] = src[x*4+0]
				dst[x*4+1] = src[x*4+1]
				dst[x*4+2] = src[x*4+2]
				dst[x*4+3] = 0xFF
			}
		default:
			copy(dst[:srcRowBytes], src[:srcRowBytes])
		}
	}

	return img, nil
}

// decompressTGA expands an RLE truecolor stream to exactly size bytes. Runs
// replicate one pixel; literal packets copy whole pixels through.
func decompressTGA(src []byte, bpp, size uint32) ([]byte, error) {
	dst := make([]byte, size)
	var di uint32

	for di < size {
		if uint32(len(src)) < bpp+1 {
			return nil, errTGADecompression
		}

		code := src[0]
		src = src[1:]
		count := uint32(code&0x7F) + 1
		runBytes := count * bpp
		if size-di < runBytes {
			return nil, errTGADecompression
		}

		if code&0x80 != 0 {
			pixel := src[:bpp]
			src = src[bpp:]
			for i := uint32(0); i < count; i++ {
				copy(dst[di:], pixel)
				di += bpp
			}
		} else {
			if uint32(len(src)) < runBytes {
				return nil, errTGADecompression
			}
			copy(dst[di:], src[:runBytes])
			src = src[runBytes:]
			di += runBytes
		}
	}

	return dst, nil
}
