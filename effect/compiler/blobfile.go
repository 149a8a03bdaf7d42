// blobfile.go reads and writes precompiled shader blobs. A blob file is the
// raw little-endian word stream of a compiled stage; passes write one next to
// the source when precompilation is requested and try to load it before
// compiling on later runs. Readers validate the header so a stale or foreign
// file fails fast instead of reaching the device.
package compiler

import (
	"encoding/binary"
	"errors"
	"os"
)

var (
	// ErrBlobTooLarge reports a precompiled blob over the size limit.
	ErrBlobTooLarge = errors.New("precompiled shader exceeds maximum size")

	// ErrBlobMalformed reports a blob whose header is not a supported
	// bytecode stream.
	ErrBlobMalformed = errors.New("malformed precompiled shader")
)

const (
	// blobMagic is the bytecode magic number in word 0.
	blobMagic uint32 = 0x07230203

	// maxBlobFileSize caps blob files at 64 KiB.
	maxBlobFileSize = 0x10000

	// minBlobVersion and maxBlobVersion bound the accepted version word,
	// versions 1.0 through 1.6.
	minBlobVersion uint32 = 0x00010000
	maxBlobVersion uint32 = 0x00010600

	// blobHeaderWords is the mandatory bytecode header length.
	blobHeaderWords = 5
)

// WriteBlobFile stores a compiled word stream at path.
//
// Parameters:
//   - path: the destination file
//   - words: the bytecode words
//
// Returns:
//   - error: an error if the file cannot be written
func WriteBlobFile(path string, words []uint32) error {
	buf := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[i*4:], w)
	}
	return os.WriteFile(path, buf, 0o644)
}

// ReadBlobFile loads and validates a precompiled word stream.
//
// Parameters:
//   - path: the blob file
//
// Returns:
//   - []uint32: the bytecode words
//   - error: the underlying read error, ErrBlobTooLarge, or ErrBlobMalformed
func ReadBlobFile(path string) ([]uint32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if len(data) > maxBlobFileSize {
		return nil, ErrBlobTooLarge
	}
	if len(data) < blobHeaderWords*4 || len(data)%4 != 0 {
		return nil, ErrBlobMalformed
	}

	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}

	if words[0] != blobMagic || words[1] < minBlobVersion || words[1] > maxBlobVersion {
		return nil, ErrBlobMalformed
	}

	return words, nil
}
