package input

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	xerrors "github.com/YuminosukeSato/xgbport/pkg/errors"
)

// UBJSON type markers.
const (
	markerNull    = 'Z'
	markerNoop    = 'N'
	markerTrue    = 'T'
	markerFalse   = 'F'
	markerInt8    = 'i'
	markerUint8   = 'U'
	markerInt16   = 'I'
	markerInt32   = 'l'
	markerInt64   = 'L'
	markerFloat32 = 'd'
	markerFloat64 = 'D'
	markerHighP   = 'H'
	markerChar    = 'C'
	markerString  = 'S'
	markerArray   = '['
	markerArrEnd  = ']'
	markerObject  = '{'
	markerObjEnd  = '}'
	markerType    = '$'
	markerCount   = '#'
)

type ubjsonParser struct {
	r      *bufio.Reader
	offset int64
	buf    [8]byte
}

// ParseUBJSON parses a UBJSON document, including optimized containers with
// '$' element type and '#' count. Numbers are big-endian. Any byte after the
// root value is an error.
func ParseUBJSON(r io.Reader) (*Value, error) {
	p := &ubjsonParser{r: bufio.NewReader(r)}
	marker, err := p.nextMarker("$")
	if err != nil {
		return nil, err
	}
	root, err := p.parseValue(marker, "$")
	if err != nil {
		return nil, err
	}
	if _, err := p.r.ReadByte(); err != io.EOF {
		return nil, xerrors.NewFormatError("$", p.offset, xerrors.ErrTrailingBytes)
	}
	return root, nil
}

func (p *ubjsonParser) readByte(path string) (byte, error) {
	b, err := p.r.ReadByte()
	if err != nil {
		return 0, xerrors.NewFormatError(path, p.offset, xerrors.ErrShortRead)
	}
	p.offset++
	return b, nil
}

// nextMarker returns the next type marker, skipping no-op markers.
func (p *ubjsonParser) nextMarker(path string) (byte, error) {
	for {
		b, err := p.readByte(path)
		if err != nil {
			return 0, err
		}
		if b != markerNoop {
			return b, nil
		}
	}
}

func (p *ubjsonParser) readFull(path string, n int) ([]byte, error) {
	read := func(b []byte) error {
		if _, err := io.ReadFull(p.r, b); err != nil {
			return xerrors.NewFormatError(path, p.offset, xerrors.ErrShortRead)
		}
		return nil
	}
	var buf []byte
	var err error
	if n <= len(p.buf) {
		buf = p.buf[:n]
		err = read(buf)
	} else {
		buf, err = readSized(n, read)
	}
	if err != nil {
		return nil, err
	}
	p.offset += int64(n)
	return buf, nil
}

// readInt reads an integer whose type is given by marker.
func (p *ubjsonParser) readInt(marker byte, path string) (int64, error) {
	switch marker {
	case markerInt8:
		b, err := p.readFull(path, 1)
		if err != nil {
			return 0, err
		}
		return int64(int8(b[0])), nil
	case markerUint8:
		b, err := p.readFull(path, 1)
		if err != nil {
			return 0, err
		}
		return int64(b[0]), nil
	case markerInt16:
		b, err := p.readFull(path, 2)
		if err != nil {
			return 0, err
		}
		return int64(int16(binary.BigEndian.Uint16(b))), nil
	case markerInt32:
		b, err := p.readFull(path, 4)
		if err != nil {
			return 0, err
		}
		return int64(int32(binary.BigEndian.Uint32(b))), nil
	case markerInt64:
		b, err := p.readFull(path, 8)
		if err != nil {
			return 0, err
		}
		return int64(binary.BigEndian.Uint64(b)), nil
	default:
		return 0, xerrors.NewFormatErrorf(path, p.offset, "marker %q is not an integer type", rune(marker))
	}
}

// readLength reads a length or count: an integer with its own type marker.
func (p *ubjsonParser) readLength(path string) (int, error) {
	start := p.offset
	marker, err := p.readByte(path)
	if err != nil {
		return 0, err
	}
	n, err := p.readInt(marker, path)
	if err != nil {
		return 0, err
	}
	if n < 0 || n > maxLength {
		return 0, xerrors.NewFormatErrorf(path, start, "invalid length %d", n)
	}
	return int(n), nil
}

func (p *ubjsonParser) readString(path string) (string, error) {
	n, err := p.readLength(path)
	if err != nil {
		return "", err
	}
	b, err := p.readFull(path, n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (p *ubjsonParser) parseValue(marker byte, path string) (*Value, error) {
	switch marker {
	case markerNull:
		return newValue(KindNull, path), nil
	case markerTrue, markerFalse:
		v := newValue(KindBool, path)
		v.b = marker == markerTrue
		return v, nil
	case markerInt8, markerUint8, markerInt16, markerInt32, markerInt64:
		i, err := p.readInt(marker, path)
		if err != nil {
			return nil, err
		}
		v := newValue(KindInt, path)
		v.i = i
		return v, nil
	case markerFloat32:
		b, err := p.readFull(path, 4)
		if err != nil {
			return nil, err
		}
		v := newValue(KindFloat, path)
		v.f = float64(math.Float32frombits(binary.BigEndian.Uint32(b)))
		return v, nil
	case markerFloat64:
		b, err := p.readFull(path, 8)
		if err != nil {
			return nil, err
		}
		v := newValue(KindFloat, path)
		v.f = math.Float64frombits(binary.BigEndian.Uint64(b))
		return v, nil
	case markerHighP:
		s, err := p.readString(path)
		if err != nil {
			return nil, err
		}
		v := newValue(KindNumber, path)
		v.text = s
		return v, nil
	case markerChar:
		b, err := p.readFull(path, 1)
		if err != nil {
			return nil, err
		}
		v := newValue(KindString, path)
		v.text = string(rune(b[0]))
		return v, nil
	case markerString:
		s, err := p.readString(path)
		if err != nil {
			return nil, err
		}
		v := newValue(KindString, path)
		v.text = s
		return v, nil
	case markerArray:
		return p.parseArray(path)
	case markerObject:
		return p.parseObject(path)
	default:
		return nil, xerrors.NewFormatErrorf(path, p.offset-1, "unknown marker %q", rune(marker))
	}
}

// containerHeader reads the optional '$' element type and '#' count. When no
// count is present, first holds the marker of the first element (or the end marker).
func (p *ubjsonParser) containerHeader(path string) (elemType byte, count int, first byte, err error) {
	count = -1
	first, err = p.nextMarker(path)
	if err != nil {
		return 0, 0, 0, err
	}
	if first == markerType {
		if elemType, err = p.readByte(path); err != nil {
			return 0, 0, 0, err
		}
		if first, err = p.readByte(path); err != nil {
			return 0, 0, 0, err
		}
		if first != markerCount {
			return 0, 0, 0, xerrors.NewFormatErrorf(path, p.offset-1, "typed container without count")
		}
	}
	if first == markerCount {
		if count, err = p.readLength(path); err != nil {
			return 0, 0, 0, err
		}
		// Elements of these types carry no payload, so the count is not backed by input.
		switch elemType {
		case markerNull, markerNoop, markerTrue, markerFalse:
			if count > allocChunk {
				return 0, 0, 0, xerrors.NewFormatErrorf(path, p.offset, "payload-free container of %d elements", count)
			}
		}
	}
	return elemType, count, first, nil
}

func (p *ubjsonParser) parseArray(path string) (*Value, error) {
	arr := newValue(KindArray, path)
	elemType, count, marker, err := p.containerHeader(path)
	if err != nil {
		return nil, err
	}
	if count >= 0 {
		arr.items = make([]*Value, 0, min(count, allocChunk))
		for i := 0; i < count; i++ {
			m := elemType
			if m == 0 {
				if m, err = p.nextMarker(path); err != nil {
					return nil, err
				}
			}
			item, err := p.parseValue(m, indexPath(path, i))
			if err != nil {
				return nil, err
			}
			arr.items = append(arr.items, item)
		}
		return arr, nil
	}
	for i := 0; marker != markerArrEnd; i++ {
		item, err := p.parseValue(marker, indexPath(path, i))
		if err != nil {
			return nil, err
		}
		arr.items = append(arr.items, item)
		if marker, err = p.nextMarker(path); err != nil {
			return nil, err
		}
	}
	return arr, nil
}

func (p *ubjsonParser) parseObject(path string) (*Value, error) {
	obj := newValue(KindObject, path)
	obj.props = make(map[string]*Value)
	elemType, count, marker, err := p.containerHeader(path)
	if err != nil {
		return nil, err
	}

	member := func(key string) error {
		m := elemType
		if m == 0 {
			if m, err = p.nextMarker(path); err != nil {
				return err
			}
		}
		child, err := p.parseValue(m, childPath(path, key))
		if err != nil {
			return err
		}
		if _, dup := obj.props[key]; !dup {
			obj.keys = append(obj.keys, key)
		}
		obj.props[key] = child
		return nil
	}

	if count >= 0 {
		for i := 0; i < count; i++ {
			key, err := p.readString(path)
			if err != nil {
				return nil, err
			}
			if err := member(key); err != nil {
				return nil, err
			}
		}
		return obj, nil
	}
	for marker != markerObjEnd {
		// Without a count the marker just read is the key's length type.
		n, err := p.readInt(marker, path)
		if err != nil {
			return nil, err
		}
		if n < 0 || n > maxLength {
			return nil, xerrors.NewFormatErrorf(path, p.offset, "invalid key length %d", n)
		}
		b, err := p.readFull(path, int(n))
		if err != nil {
			return nil, err
		}
		if err := member(string(b)); err != nil {
			return nil, err
		}
		if marker, err = p.nextMarker(path); err != nil {
			return nil, err
		}
	}
	return obj, nil
}
