// Package payload unwraps transport compression around compressed mesh
// files. Meshes are often shipped zstd or lz4 framed; the engine only
// understands the raw container.
package payload

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression is a transport compression format.
type Compression uint8

const (
	// CompressionNone is a raw payload.
	CompressionNone Compression = iota
	// CompressionZSTD is a zstd frame.
	CompressionZSTD
	// CompressionLZ4 is an lz4 frame.
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZSTD:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("Compression(%d)", uint8(c))
	}
}

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// MaxSize bounds the unwrapped size of a payload.
const MaxSize = 1 << 30

var zstdDecoderPool sync.Pool

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxSize))
}

func putZstdDecoder(dec *zstd.Decoder) {
	zstdDecoderPool.Put(dec)
}

// Detect identifies the compression of data by its frame magic.
func Detect(data []byte) Compression {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		return CompressionZSTD
	case bytes.HasPrefix(data, lz4Magic):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// ForPath identifies the compression implied by a file extension.
func ForPath(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst", ".zstd":
		return CompressionZSTD
	case ".lz4":
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// Unwrap removes the compression detected from the data itself and
// reports which one it was. Raw data is returned unchanged.
func Unwrap(data []byte) ([]byte, Compression, error) {
	c := Detect(data)
	out, err := Decompress(data, c)
	return out, c, err
}

// Decompress removes compression c from data.
func Decompress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionZSTD:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		defer putZstdDecoder(dec)
		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return out, nil
	case CompressionLZ4:
		out, err := io.ReadAll(io.LimitReader(lz4.NewReader(bytes.NewReader(data)), MaxSize+1))
		if err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		if len(out) > MaxSize {
			return nil, fmt.Errorf("lz4: payload exceeds %d bytes", MaxSize)
		}
		// A frame cut inside its header reads as empty without an error.
		// No mesh payload is empty, so treat it as truncation.
		if len(out) == 0 {
			return nil, fmt.Errorf("lz4: truncated frame (%d bytes, no content)", len(data))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown compression %s", c)
	}
}

// Compress applies compression c to data.
func Compress(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return data, nil
	case CompressionZSTD:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("zstd encoder: %w", err)
		}
		defer enc.Close()
		return enc.EncodeAll(data, nil), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("lz4: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown compression %s", c)
	}
}

// ReadFile reads path and unwraps it. The extension wins over the frame
// magic so a mislabelled file fails loudly instead of reaching the engine
// still compressed.
func ReadFile(path string) ([]byte, Compression, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, CompressionNone, err
	}
	c := ForPath(path)
	if c == CompressionNone {
		c = Detect(data)
	}
	out, err := Decompress(data, c)
	if err != nil {
		return nil, c, fmt.Errorf("%s: %w", path, err)
	}
	return out, c, nil
}
