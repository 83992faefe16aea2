package input

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	xerrors "github.com/YuminosukeSato/xgbport/pkg/errors"
)

// Kind is the type of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindNumber // JSON number literal, converted on access
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is one node of a parsed JSON or UBJSON document. Every value remembers
// its path from the document root for error reporting.
type Value struct {
	kind Kind
	path string

	b    bool
	i    int64
	f    float64
	text string

	items []*Value
	keys  []string
	props map[string]*Value
}

func newValue(kind Kind, path string) *Value {
	return &Value{kind: kind, path: path}
}

// Kind returns the value type.
func (v *Value) Kind() Kind { return v.kind }

// Path returns the dotted path of the value from the document root.
func (v *Value) Path() string { return v.path }

func (v *Value) mismatch(want string) error {
	return xerrors.NewFormatError(v.path, -1, xerrors.Wrapf(xerrors.ErrTypeMismatch, "expected %s, got %s", want, v.kind))
}

func childPath(parent, key string) string {
	if parent == "" || parent == "$" {
		return key
	}
	return parent + "." + key
}

func indexPath(parent string, i int) string {
	return fmt.Sprintf("%s[%d]", parent, i)
}

// Keys returns the object keys in document order.
func (v *Value) Keys() []string { return v.keys }

// Get returns the member key of an object.
func (v *Value) Get(key string) (*Value, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	child, ok := v.props[key]
	return child, ok
}

// Has reports whether an object has member key.
func (v *Value) Has(key string) bool {
	_, ok := v.Get(key)
	return ok
}

// Field returns a required member of an object.
func (v *Value) Field(key string) (*Value, error) {
	if v.kind != KindObject {
		return nil, v.mismatch("object")
	}
	child, ok := v.props[key]
	if !ok {
		return nil, xerrors.NewFormatErrorf(childPath(v.path, key), -1, "missing field")
	}
	return child, nil
}

// numericText returns the text of a number-like string. XGBoost writes some
// parameters as strings and the base score as a bracketed vector ("[5E-1]").
func (v *Value) numericText() string {
	s := strings.TrimSpace(v.text)
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		s = strings.TrimSpace(s[1 : len(s)-1])
		if idx := strings.IndexByte(s, ','); idx >= 0 {
			s = strings.TrimSpace(s[:idx])
		}
	}
	return s
}

// AsInt returns an integral number. Numeric strings are accepted.
func (v *Value) AsInt() (int64, error) {
	switch v.kind {
	case KindInt:
		return v.i, nil
	case KindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case KindFloat:
		if v.f != math.Trunc(v.f) {
			return 0, v.mismatch("integer")
		}
		return int64(v.f), nil
	case KindNumber, KindString:
		s := v.numericText()
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || f != math.Trunc(f) {
			return 0, v.mismatch("integer")
		}
		return int64(f), nil
	default:
		return 0, v.mismatch("integer")
	}
}

// AsInt32 returns an integral number that fits in 32 bits.
func (v *Value) AsInt32() (int32, error) {
	i, err := v.AsInt()
	if err != nil {
		return 0, err
	}
	if i < math.MinInt32 || i > math.MaxInt32 {
		return 0, xerrors.NewFormatErrorf(v.path, -1, "value %d overflows int32", i)
	}
	return int32(i), nil
}

// AsFloat32 returns a number as float32. Literals are parsed directly at 32-bit
// precision so they never round through float64.
func (v *Value) AsFloat32() (float32, error) {
	switch v.kind {
	case KindFloat:
		return float32(v.f), nil
	case KindInt:
		return float32(v.i), nil
	case KindNumber, KindString:
		f, err := strconv.ParseFloat(v.numericText(), 32)
		if err != nil {
			return 0, v.mismatch("float")
		}
		return float32(f), nil
	default:
		return 0, v.mismatch("float")
	}
}

// AsBool returns a boolean. The integers 0 and 1 are accepted.
func (v *Value) AsBool() (bool, error) {
	switch v.kind {
	case KindBool:
		return v.b, nil
	case KindInt, KindNumber:
		i, err := v.AsInt()
		if err != nil || (i != 0 && i != 1) {
			return false, v.mismatch("bool")
		}
		return i == 1, nil
	default:
		return false, v.mismatch("bool")
	}
}

// AsString returns a string.
func (v *Value) AsString() (string, error) {
	if v.kind != KindString {
		return "", v.mismatch("string")
	}
	return v.text, nil
}

// AsArray returns the items of an array.
func (v *Value) AsArray() ([]*Value, error) {
	if v.kind != KindArray {
		return nil, v.mismatch("array")
	}
	return v.items, nil
}

// AsObject checks that the value is an object.
func (v *Value) AsObject() (*Value, error) {
	if v.kind != KindObject {
		return nil, v.mismatch("object")
	}
	return v, nil
}

// ===========================================================================
// Keyed accessors
// ===========================================================================

// Int returns member key as an integer.
func (v *Value) Int(key string) (int, error) {
	child, err := v.Field(key)
	if err != nil {
		return 0, err
	}
	i, err := child.AsInt32()
	return int(i), err
}

// Float32 returns member key as a float32.
func (v *Value) Float32(key string) (float32, error) {
	child, err := v.Field(key)
	if err != nil {
		return 0, err
	}
	return child.AsFloat32()
}

// Text returns member key as a string.
func (v *Value) Text(key string) (string, error) {
	child, err := v.Field(key)
	if err != nil {
		return "", err
	}
	return child.AsString()
}

// Object returns member key as an object.
func (v *Value) Object(key string) (*Value, error) {
	child, err := v.Field(key)
	if err != nil {
		return nil, err
	}
	return child.AsObject()
}

// Array returns member key as an array.
func (v *Value) Array(key string) ([]*Value, error) {
	child, err := v.Field(key)
	if err != nil {
		return nil, err
	}
	return child.AsArray()
}

// IntArray returns member key as 32-bit integers.
func (v *Value) IntArray(key string) ([]int32, error) {
	return mapArray(v, key, (*Value).AsInt32)
}

// Int64Array returns member key as 64-bit integers.
func (v *Value) Int64Array(key string) ([]int64, error) {
	return mapArray(v, key, (*Value).AsInt)
}

// Float32Array returns member key as float32 values.
func (v *Value) Float32Array(key string) ([]float32, error) {
	return mapArray(v, key, (*Value).AsFloat32)
}

// BoolArray returns member key as booleans. Integer 0/1 arrays are accepted.
func (v *Value) BoolArray(key string) ([]bool, error) {
	return mapArray(v, key, (*Value).AsBool)
}

// StringArray returns member key as strings.
func (v *Value) StringArray(key string) ([]string, error) {
	return mapArray(v, key, (*Value).AsString)
}

func mapArray[T any](v *Value, key string, conv func(*Value) (T, error)) ([]T, error) {
	items, err := v.Array(key)
	if err != nil {
		return nil, err
	}
	result := make([]T, len(items))
	for i, item := range items {
		if result[i], err = conv(item); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Lookup resolves a dotted path such as "$", "$.model" or "$.boosters.0".
func (v *Value) Lookup(path string) (*Value, error) {
	path = strings.TrimSpace(path)
	if path == "" || path == "$" {
		return v, nil
	}
	if !strings.HasPrefix(path, "$.") {
		return nil, xerrors.NewValidationError("json_path", "path must start with '$'", path)
	}
	current := v
	for _, part := range strings.Split(path[2:], ".") {
		switch current.kind {
		case KindObject:
			next, err := current.Field(part)
			if err != nil {
				return nil, err
			}
			current = next
		case KindArray:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= len(current.items) {
				return nil, xerrors.NewFormatErrorf(indexPath(current.path, idx), -1, "no array element %q", part)
			}
			current = current.items[idx]
		default:
			return nil, current.mismatch("object or array")
		}
	}
	return current, nil
}
