// Package codec compresses the serialized entries of a document.
//
// DynamoDB caps an item at 400 KB. Large documents can be stored with their
// entries compressed; the codec name is persisted next to the payload so
// readers can select the matching codec with ByName.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var (
	// ErrUnknownCodec is returned by ByName for unsupported names.
	ErrUnknownCodec = errors.New("codec: unknown codec")
	// ErrCorrupt is returned when a payload cannot be decoded.
	ErrCorrupt = errors.New("codec: corrupt payload")
)

// Codec compresses and decompresses byte payloads.
// Implementations must be safe for concurrent use.
type Codec interface {
	Name() string
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
}

// ByName returns a built-in codec by its stable name. The empty string
// selects None.
func ByName(name string) (Codec, error) {
	switch name {
	case "", "none":
		return None{}, nil
	case "zstd":
		return ZSTD{}, nil
	case "lz4":
		return LZ4{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// None passes payloads through unchanged.
type None struct{}

func (None) Name() string { return "none" }

func (None) Compress(src []byte) ([]byte, error) { return src, nil }

func (None) Decompress(src []byte) ([]byte, error) { return src, nil }

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

// ZSTD uses zstd frames. Encoders and decoders are pooled.
type ZSTD struct{}

func (ZSTD) Name() string { return "zstd" }

func (ZSTD) Compress(src []byte) ([]byte, error) {
	enc, err := getZstdEncoder()
	if err != nil {
		return nil, err
	}
	defer zstdEncoderPool.Put(enc)
	return enc.EncodeAll(src, nil), nil
}

func (ZSTD) Decompress(src []byte) ([]byte, error) {
	dec, err := getZstdDecoder()
	if err != nil {
		return nil, err
	}
	defer zstdDecoderPool.Put(dec)

	out, err := dec.DecodeAll(src, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return out, nil
}

// lz4HeaderSize is the block header length.
const lz4HeaderSize = 8

// LZ4 uses the LZ4 block format.
// Format: [UncompressedSize uint32][CompressedSize uint32][Data...]
// If CompressedSize == 0, the data is stored uncompressed.
type LZ4 struct{}

func (LZ4) Name() string { return "lz4" }

func (LZ4) Compress(src []byte) ([]byte, error) {
	out := make([]byte, lz4HeaderSize+lz4.CompressBlockBound(len(src)))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(src)))

	n, err := lz4.CompressBlock(src, out[lz4HeaderSize:], nil)
	if err != nil {
		return nil, err
	}
	if n == 0 || n >= len(src) {
		binary.LittleEndian.PutUint32(out[4:], 0)
		return append(out[:lz4HeaderSize], src...), nil
	}
	binary.LittleEndian.PutUint32(out[4:], uint32(n))
	return out[:lz4HeaderSize+n], nil
}

func (LZ4) Decompress(src []byte) ([]byte, error) {
	if len(src) < lz4HeaderSize {
		return nil, fmt.Errorf("%w: block too small for header", ErrCorrupt)
	}
	size := int(binary.LittleEndian.Uint32(src[0:]))
	compressed := int(binary.LittleEndian.Uint32(src[4:]))
	data := src[lz4HeaderSize:]

	if compressed == 0 {
		if len(data) < size {
			return nil, fmt.Errorf("%w: block data too small", ErrCorrupt)
		}
		return append([]byte(nil), data[:size]...), nil
	}
	if len(data) < compressed {
		return nil, fmt.Errorf("%w: compressed block data too small", ErrCorrupt)
	}

	out := make([]byte, size)
	n, err := lz4.UncompressBlock(data[:compressed], out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if n != size {
		return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
	}
	return out, nil
}
