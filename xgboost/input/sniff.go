package input

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	xerrors "github.com/YuminosukeSato/xgbport/pkg/errors"
)

// Format is the encoding of a model file.
type Format uint8

const (
	FormatBinary Format = iota
	FormatJSON
	FormatUBJSON
)

func (f Format) String() string {
	switch f {
	case FormatBinary:
		return "binary"
	case FormatJSON:
		return "json"
	case FormatUBJSON:
		return "ubjson"
	default:
		return "unknown"
	}
}

// Compression is the container compression of a model file.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionGzip
	CompressionZstd
	CompressionLZ4
	CompressionS2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	case CompressionS2:
		return "s2"
	default:
		return "unknown"
	}
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
	// Stream identifier chunk shared by the framed snappy and S2 formats.
	s2Magic = []byte{0xff, 0x06, 0x00, 0x00}
)

// maxDecompressed bounds the size of a decompressed model.
const maxDecompressed = 1 << 31

// zstdDecoderPool pools zstd decoders. DecodeAll is stateless, so a pooled
// decoder is safe to reuse after a failed call.
var zstdDecoderPool = sync.Pool{
	New: func() any {
		decoder, err := zstd.NewReader(nil,
			zstd.WithDecoderConcurrency(1),
			zstd.WithDecoderMaxMemory(maxDecompressed),
		)
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd decoder for pool: %v", err))
		}
		return decoder
	},
}

// DetectCompression reports the container compression from the leading bytes.
func DetectCompression(head []byte) Compression {
	switch {
	case bytes.HasPrefix(head, gzipMagic):
		return CompressionGzip
	case bytes.HasPrefix(head, zstdMagic):
		return CompressionZstd
	case bytes.HasPrefix(head, lz4Magic):
		return CompressionLZ4
	case bytes.HasPrefix(head, s2Magic):
		return CompressionS2
	default:
		return CompressionNone
	}
}

// Decompress sniffs the compression of data and returns the decompressed
// bytes. Uncompressed data is returned as is.
func Decompress(data []byte) ([]byte, Compression, error) {
	compression := DetectCompression(data)

	var (
		out []byte
		err error
	)
	switch compression {
	case CompressionNone:
		return data, compression, nil
	case CompressionZstd:
		decoder := zstdDecoderPool.Get().(*zstd.Decoder)
		defer zstdDecoderPool.Put(decoder)
		out, err = decoder.DecodeAll(data, nil)
	case CompressionGzip:
		var zr *gzip.Reader
		if zr, err = gzip.NewReader(bytes.NewReader(data)); err == nil {
			out, err = readAllLimited(zr)
			_ = zr.Close()
		}
	case CompressionLZ4:
		out, err = readAllLimited(lz4.NewReader(bytes.NewReader(data)))
	case CompressionS2:
		out, err = readAllLimited(s2.NewReader(bytes.NewReader(data)))
	}
	if err != nil {
		return nil, compression, xerrors.NewFormatError(compression.String(), 0, err)
	}
	return out, compression, nil
}

func readAllLimited(r io.Reader) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, maxDecompressed+1))
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > maxDecompressed {
		return nil, xerrors.Newf("decompressed size exceeds %d bytes", maxDecompressed)
	}
	return out, nil
}

// DetectFormat reports the model encoding from the leading bytes of the
// decompressed stream: '{' followed by optional whitespace and '"' is text JSON,
// any other '{' is UBJSON, and everything else is the binary layout.
func DetectFormat(head []byte) Format {
	if len(head) == 0 || head[0] != '{' {
		return FormatBinary
	}
	for _, b := range head[1:] {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '"', '}':
			return FormatJSON
		default:
			return FormatUBJSON
		}
	}
	return FormatJSON
}
