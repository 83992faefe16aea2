// Package input reads the three on-disk encodings of a boosted tree model.
//
// The legacy binary layout is read positionally through Reader. Text JSON and
// UBJSON documents are parsed into a Value tree whose accessors are keyed by
// field name, so a single decoder handles both text encodings.
package input

import (
	"bytes"
	"io"
	"math"
	"slices"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/YuminosukeSato/xgbport/internal/endian"
	"github.com/YuminosukeSato/xgbport/internal/options"
	xerrors "github.com/YuminosukeSato/xgbport/pkg/errors"
)

// maxLength bounds length prefixes so a corrupt prefix fails fast instead of
// allocating.
const maxLength = 1 << 31

// allocChunk bounds the memory a length prefix commits before the bytes
// backing it have been read. Larger containers grow as they are filled.
const allocChunk = 1 << 16

// readSized reads n bytes through read, at most allocChunk bytes at a time.
func readSized(n int, read func([]byte) error) ([]byte, error) {
	buf := make([]byte, 0, min(n, allocChunk))
	for len(buf) < n {
		chunk := min(n-len(buf), allocChunk)
		buf = slices.Grow(buf, chunk)
		if err := read(buf[len(buf) : len(buf)+chunk]); err != nil {
			return nil, err
		}
		buf = buf[:len(buf)+chunk]
	}
	return buf, nil
}

// Reader reads fixed-width primitives and length-prefixed containers from the
// legacy binary layout. It never reads ahead of the bytes a field needs.
type Reader struct {
	r       io.Reader
	engine  endian.EndianEngine
	charset encoding.Encoding
	offset  int64
	pending []byte
	scratch [8]byte
}

// ReaderOption configures a Reader.
type ReaderOption = options.Option[*Reader]

// WithByteOrder selects the byte order of integers and floats.
func WithByteOrder(engine endian.EndianEngine) ReaderOption {
	return options.NoError(func(r *Reader) {
		if engine != nil {
			r.engine = engine
		}
	})
}

// WithCharset selects the text encoding of strings.
func WithCharset(charset encoding.Encoding) ReaderOption {
	return options.NoError(func(r *Reader) {
		if charset != nil {
			r.charset = charset
		}
	})
}

// NewReader creates a Reader over r. The default byte order is the host order
// and the default charset is UTF-8.
func NewReader(r io.Reader, opts ...ReaderOption) (*Reader, error) {
	reader := &Reader{r: r, engine: endian.GetNativeEngine(), charset: unicode.UTF8}
	if err := options.Apply(reader, opts...); err != nil {
		return nil, err
	}
	return reader, nil
}

// LookupCharset resolves a charset name such as "UTF-8" or "ISO-8859-1".
// The empty string selects UTF-8.
func LookupCharset(name string) (encoding.Encoding, error) {
	if strings.TrimSpace(name) == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, xerrors.NewValidationError("charset", "unknown charset", name)
	}
	return enc, nil
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int64 {
	return r.offset
}

func (r *Reader) readFull(field string, buf []byte) error {
	start := r.offset
	n := copy(buf, r.pending)
	r.pending = r.pending[n:]
	if n < len(buf) {
		m, err := io.ReadFull(r.r, buf[n:])
		n += m
		if err != nil {
			r.offset += int64(n)
			return xerrors.NewFormatError(field, start, xerrors.ErrShortRead)
		}
	}
	r.offset += int64(n)
	return nil
}

// readBytes reads n bytes without committing memory ahead of the input.
func (r *Reader) readBytes(field string, n int) ([]byte, error) {
	return readSized(n, func(b []byte) error { return r.readFull(field, b) })
}

// unread pushes bytes back so the next read returns them first.
func (r *Reader) unread(b []byte) {
	r.pending = append(slices.Clone(b), r.pending...)
	r.offset -= int64(len(b))
}

// ReadInt reads a 32-bit signed integer.
func (r *Reader) ReadInt(field string) (int32, error) {
	if err := r.readFull(field, r.scratch[:4]); err != nil {
		return 0, err
	}
	return int32(r.engine.Uint32(r.scratch[:4])), nil
}

// ReadLong reads a 64-bit signed integer.
func (r *Reader) ReadLong(field string) (int64, error) {
	if err := r.readFull(field, r.scratch[:8]); err != nil {
		return 0, err
	}
	return int64(r.engine.Uint64(r.scratch[:8])), nil
}

// ReadFloat reads a 32-bit float. The bit pattern is kept exactly.
func (r *Reader) ReadFloat(field string) (float32, error) {
	if err := r.readFull(field, r.scratch[:4]); err != nil {
		return 0, err
	}
	return math.Float32frombits(r.engine.Uint32(r.scratch[:4])), nil
}

// ReadInts reads n consecutive 32-bit integers.
func (r *Reader) ReadInts(field string, n int) ([]int32, error) {
	result := make([]int32, 0, min(n, allocChunk))
	for i := 0; i < n; i++ {
		v, err := r.ReadInt(field)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}

// ReadFloats reads n consecutive 32-bit floats.
func (r *Reader) ReadFloats(field string, n int) ([]float32, error) {
	result := make([]float32, 0, min(n, allocChunk))
	for i := 0; i < n; i++ {
		v, err := r.ReadFloat(field)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}

// ReadReserved reads n 32-bit integers that must all be zero.
func (r *Reader) ReadReserved(field string, n int) error {
	start := r.offset
	values, err := r.ReadInts(field, n)
	if err != nil {
		return err
	}
	for i, v := range values {
		if v != 0 {
			return xerrors.NewFormatError(field, start+int64(4*i), xerrors.Wrapf(xerrors.ErrReservedNotZero, "slot %d holds %d", i, v))
		}
	}
	return nil
}

func (r *Reader) readLength(field string) (int, error) {
	start := r.offset
	n, err := r.ReadLong(field)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > maxLength {
		return 0, xerrors.NewFormatErrorf(field, start, "invalid length prefix %d", n)
	}
	return int(n), nil
}

// ReadString reads a string prefixed by its 64-bit byte length.
func (r *Reader) ReadString(field string) (string, error) {
	n, err := r.readLength(field)
	if err != nil {
		return "", err
	}
	start := r.offset
	buf, err := r.readBytes(field, n)
	if err != nil {
		return "", err
	}
	decoded, err := r.charset.NewDecoder().Bytes(buf)
	if err != nil {
		return "", xerrors.NewFormatError(field, start, err)
	}
	return string(decoded), nil
}

// ReadIntVector reads a 64-bit count followed by that many 32-bit integers.
func (r *Reader) ReadIntVector(field string) ([]int32, error) {
	n, err := r.readLength(field)
	if err != nil {
		return nil, err
	}
	return r.ReadInts(field, n)
}

// ReadFloatVector reads a 64-bit count followed by that many 32-bit floats.
func (r *Reader) ReadFloatVector(field string) ([]float32, error) {
	n, err := r.readLength(field)
	if err != nil {
		return nil, err
	}
	return r.ReadFloats(field, n)
}

// ReadBoolVector reads a 64-bit count followed by that many one-byte booleans.
func (r *Reader) ReadBoolVector(field string) ([]bool, error) {
	n, err := r.readLength(field)
	if err != nil {
		return nil, err
	}
	buf, err := r.readBytes(field, n)
	if err != nil {
		return nil, err
	}
	result := make([]bool, n)
	for i, b := range buf {
		result[i] = b != 0
	}
	return result, nil
}

// ReadStringVector reads a 64-bit count followed by that many strings.
func (r *Reader) ReadStringVector(field string) ([]string, error) {
	n, err := r.readLength(field)
	if err != nil {
		return nil, err
	}
	result := make([]string, 0, min(n, allocChunk))
	for i := 0; i < n; i++ {
		value, err := r.ReadString(field)
		if err != nil {
			return nil, err
		}
		result = append(result, value)
	}
	return result, nil
}

// ReadStringMap reads a 64-bit count followed by that many key/value string pairs.
func (r *Reader) ReadStringMap(field string) (map[string]string, error) {
	n, err := r.readLength(field)
	if err != nil {
		return nil, err
	}
	result := make(map[string]string, min(n, allocChunk))
	for i := 0; i < n; i++ {
		key, err := r.ReadString(field)
		if err != nil {
			return nil, err
		}
		value, err := r.ReadString(field)
		if err != nil {
			return nil, err
		}
		result[key] = value
	}
	return result, nil
}

// ConsumeHeader consumes header if the stream starts with it. Otherwise the
// peeked bytes are pushed back and false is returned. A stream shorter than the
// header is not an error.
func (r *Reader) ConsumeHeader(header string) (bool, error) {
	buf := make([]byte, len(header))
	n := copy(buf, r.pending)
	r.pending = r.pending[n:]
	if n < len(buf) {
		m, err := io.ReadFull(r.r, buf[n:])
		n += m
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return false, xerrors.NewFormatError("header", r.offset, err)
		}
	}
	r.offset += int64(n)
	if n == len(buf) && bytes.Equal(buf, []byte(header)) {
		return true, nil
	}
	r.unread(buf[:n])
	return false, nil
}

// ExpectEOF fails if any byte remains.
func (r *Reader) ExpectEOF() error {
	if len(r.pending) > 0 {
		return xerrors.NewFormatError("eof", r.offset, xerrors.ErrTrailingBytes)
	}
	var one [1]byte
	n, err := io.ReadFull(r.r, one[:])
	if n > 0 {
		return xerrors.NewFormatError("eof", r.offset, xerrors.ErrTrailingBytes)
	}
	if err != nil && err != io.EOF {
		return xerrors.NewFormatError("eof", r.offset, err)
	}
	return nil
}

// IsShortRead reports whether err was caused by the stream ending early.
func IsShortRead(err error) bool {
	return xerrors.Is(err, xerrors.ErrShortRead)
}
