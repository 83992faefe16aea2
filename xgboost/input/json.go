package input

import (
	"encoding/json"
	"io"

	xerrors "github.com/YuminosukeSato/xgbport/pkg/errors"
)

// ParseJSON parses a text JSON document. Numbers keep their literal text so
// that float32 fields are converted exactly once. Anything other than
// whitespace after the root value is an error.
func ParseJSON(r io.Reader) (*Value, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	root, err := parseJSONValue(dec, "$")
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, xerrors.NewFormatError("$", dec.InputOffset(), xerrors.ErrTrailingBytes)
	}
	return root, nil
}

func parseJSONValue(dec *json.Decoder, path string) (*Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, jsonError(dec, path, err)
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := newValue(KindObject, path)
			obj.props = make(map[string]*Value)
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, jsonError(dec, path, err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, xerrors.NewFormatErrorf(path, dec.InputOffset(), "object key is not a string")
				}
				child, err := parseJSONValue(dec, childPath(path, key))
				if err != nil {
					return nil, err
				}
				if _, dup := obj.props[key]; !dup {
					obj.keys = append(obj.keys, key)
				}
				obj.props[key] = child
			}
			if _, err := dec.Token(); err != nil {
				return nil, jsonError(dec, path, err)
			}
			return obj, nil
		case '[':
			arr := newValue(KindArray, path)
			for i := 0; dec.More(); i++ {
				child, err := parseJSONValue(dec, indexPath(path, i))
				if err != nil {
					return nil, err
				}
				arr.items = append(arr.items, child)
			}
			if _, err := dec.Token(); err != nil {
				return nil, jsonError(dec, path, err)
			}
			return arr, nil
		default:
			return nil, xerrors.NewFormatErrorf(path, dec.InputOffset(), "unexpected delimiter %q", rune(t))
		}
	case json.Number:
		v := newValue(KindNumber, path)
		v.text = t.String()
		return v, nil
	case string:
		v := newValue(KindString, path)
		v.text = t
		return v, nil
	case bool:
		v := newValue(KindBool, path)
		v.b = t
		return v, nil
	case nil:
		return newValue(KindNull, path), nil
	default:
		return nil, xerrors.NewFormatErrorf(path, dec.InputOffset(), "unexpected token %v", tok)
	}
}

func jsonError(dec *json.Decoder, path string, err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return xerrors.NewFormatError(path, dec.InputOffset(), xerrors.ErrShortRead)
	}
	return xerrors.NewFormatError(path, dec.InputOffset(), err)
}
