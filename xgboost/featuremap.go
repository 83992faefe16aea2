package xgboost

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/xgbport/pkg/errors"
	"github.com/YuminosukeSato/xgbport/pmml"
)

// EntryType is the declared type of a feature map entry.
type EntryType int

const (
	// EntryIndicator is a one-hot indicator ("i"). Its name may carry a
	// "name=value" suffix.
	EntryIndicator EntryType = iota
	// EntryQuantitative is a float feature ("q").
	EntryQuantitative
	// EntryInteger is an integer feature ("int").
	EntryInteger
	// EntryFloat is a float feature ("float").
	EntryFloat
	// EntryCategorical is a category code feature ("c" or "categorical").
	EntryCategorical
)

// ParseEntryType resolves a feature map type code.
func ParseEntryType(code string) (EntryType, error) {
	switch code {
	case "i":
		return EntryIndicator, nil
	case "q":
		return EntryQuantitative, nil
	case "int":
		return EntryInteger, nil
	case "float":
		return EntryFloat, nil
	case "c", "categorical":
		return EntryCategorical, nil
	default:
		return 0, errors.Newf("unknown feature type %q", code)
	}
}

func (t EntryType) String() string {
	switch t {
	case EntryIndicator:
		return "i"
	case EntryQuantitative:
		return "q"
	case EntryInteger:
		return "int"
	case EntryFloat:
		return "float"
	case EntryCategorical:
		return "c"
	default:
		return fmt.Sprintf("EntryType(%d)", int(t))
	}
}

// Entry is one feature of a feature map. Its position in the map is the split
// index trees use to refer to it.
type Entry struct {
	Name string
	Type EntryType

	// Value is the indicated value of an indicator entry, when HasValue is set.
	Value    string
	HasValue bool

	// Values is the enumerated domain of a categorical entry. Nil means the
	// domain is the category index range.
	Values []string
}

// NewEntry creates an entry from a name and a type code.
func NewEntry(name, code string) (Entry, error) {
	entryType, err := ParseEntryType(code)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{Name: name, Type: entryType}
	if entryType == EntryIndicator {
		if before, after, found := strings.Cut(name, "="); found {
			entry.Name, entry.Value, entry.HasValue = before, after, true
		}
	}
	return entry, nil
}

// FeatureMap is an ordered list of feature declarations plus value lists that
// apply to every field.
type FeatureMap struct {
	entries []Entry

	validValues   []string
	invalidValues []string
	missingValues []string
}

// NewFeatureMap creates an empty feature map.
func NewFeatureMap() *FeatureMap {
	return &FeatureMap{}
}

// AddEntry appends an entry declared by name and type code.
func (m *FeatureMap) AddEntry(name, code string) error {
	entry, err := NewEntry(name, code)
	if err != nil {
		return err
	}
	m.entries = append(m.entries, entry)
	return nil
}

// Entries returns the entries in split index order.
func (m *FeatureMap) Entries() []Entry { return m.entries }

// Len returns the number of entries.
func (m *FeatureMap) Len() int { return len(m.entries) }

// EntriesByName returns the entries declared with name, in order.
func (m *FeatureMap) EntriesByName(name string) []Entry {
	var result []Entry
	for _, entry := range m.entries {
		if entry.Name == name {
			result = append(result, entry)
		}
	}
	return result
}

func (m *FeatureMap) AddValidValue(value string)   { m.validValues = append(m.validValues, value) }
func (m *FeatureMap) AddInvalidValue(value string) { m.invalidValues = append(m.invalidValues, value) }
func (m *FeatureMap) AddMissingValue(value string) { m.missingValues = append(m.missingValues, value) }

// Update completes the entries of m with the declarations of external. Every
// entry of m must be declared in external. A categorical entry takes its value
// domain from the indicator values external declares under the same name.
func (m *FeatureMap) Update(external *FeatureMap) error {
	for i := range m.entries {
		entry := &m.entries[i]
		updates := external.EntriesByName(entry.Name)
		if len(updates) == 0 {
			return errors.NewSchemaError(entry.Name, i, "not declared in the feature map")
		}
		if entry.Type != EntryCategorical {
			continue
		}
		values := make([]string, 0, len(updates))
		for _, update := range updates {
			if update.Type != EntryIndicator || !update.HasValue {
				return errors.NewSchemaError(entry.Name, i, "categorical feature must be declared as name=value indicators")
			}
			values = append(values, update.Value)
		}
		entry.Values = values
	}
	return nil
}

// ParseFeatureMap reads the text feature map format: one "id<TAB>name<TAB>type"
// line per feature, ids counting up from 0.
func ParseFeatureMap(r io.Reader) (*FeatureMap, error) {
	fmap := NewFeatureMap()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for i := 0; scanner.Scan(); i++ {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		field := fmt.Sprintf("fmap line %d", i+1)

		tokens := strings.FieldsFunc(line, func(r rune) bool { return r == '\t' })
		if len(tokens) != 3 {
			return nil, errors.NewFormatErrorf(field, -1, "expected 3 tab-separated tokens, got %d in %q", len(tokens), line)
		}
		id, err := strconv.Atoi(tokens[0])
		if err != nil || id != i {
			return nil, errors.NewFormatErrorf(field, -1, "expected id %d, got %q", i, tokens[0])
		}
		if err := fmap.AddEntry(tokens[1], tokens[2]); err != nil {
			return nil, errors.NewFormatError(field, -1, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read feature map")
	}
	return fmap, nil
}

// syntheticFeatureMap declares n float features named f0..f{n-1}.
func syntheticFeatureMap(n int) *FeatureMap {
	fmap := NewFeatureMap()
	for i := 0; i < n; i++ {
		fmap.entries = append(fmap.entries, Entry{Name: "f" + strconv.Itoa(i), Type: EntryQuantitative})
	}
	return fmap
}

// EncodeFeatures declares the fields of m in dict and returns one feature per
// entry. Entries sharing a name share a field. categoricalSize gives the
// index range size of a categorical entry without declared values. An
// indicator of a declared missing value becomes a missing flag of its field.
func (m *FeatureMap) EncodeFeatures(dict *pmml.DataDictionary, categoricalSize func(splitIndex int) int) ([]pmml.Feature, error) {
	features := make([]pmml.Feature, 0, len(m.entries))
	var fields []*pmml.DataField
	for i, entry := range m.entries {
		feature, err := entry.encodeFeature(dict, i, categoricalSize, m.missingValues)
		if err != nil {
			return nil, err
		}
		features = append(features, feature)
		if field := feature.Field(); !slices.Contains(fields, field) {
			fields = append(fields, field)
		}
	}
	for _, field := range fields {
		field.AddValues(pmml.ValuePropertyValid, m.validValues...)
		field.AddValues(pmml.ValuePropertyInvalid, m.invalidValues...)
		field.AddValues(pmml.ValuePropertyMissing, m.missingValues...)
	}
	return features, nil
}

func (e Entry) encodeFeature(dict *pmml.DataDictionary, index int, categoricalSize func(int) int, missingValues []string) (pmml.Feature, error) {
	field := dict.DataField(e.Name)
	switch e.Type {
	case EntryIndicator:
		// "age=NaN" flags a missing age when NaN is a declared missing value.
		if e.HasValue && slices.Contains(missingValues, e.Value) {
			if field == nil {
				field = dict.AddDataField(&pmml.DataField{Name: e.Name, OpType: pmml.OpTypeCategorical, DataType: pmml.DataTypeString})
			}
			return pmml.NewMissingValueFeature(field), nil
		}
		if field == nil {
			dataType := pmml.DataTypeBoolean
			if e.HasValue {
				dataType = pmml.DataTypeString
			}
			field = dict.AddDataField(&pmml.DataField{Name: e.Name, OpType: pmml.OpTypeCategorical, DataType: dataType})
		}
		if !e.HasValue {
			return pmml.NewBinaryFeature(field, "true"), nil
		}
		field.AddValues(pmml.ValuePropertyValid, e.Value)
		return pmml.NewBinaryFeature(field, e.Value), nil
	case EntryQuantitative, EntryInteger, EntryFloat:
		if field == nil {
			dataType := pmml.DataTypeFloat
			if e.Type == EntryInteger {
				dataType = pmml.DataTypeInteger
			}
			field = dict.AddDataField(&pmml.DataField{Name: e.Name, OpType: pmml.OpTypeContinuous, DataType: dataType})
		}
		return pmml.NewContinuousFeature(field), nil
	case EntryCategorical:
		if field == nil {
			field = dict.AddDataField(&pmml.DataField{Name: e.Name, OpType: pmml.OpTypeCategorical, DataType: pmml.DataTypeString})
			field.AddValues(pmml.ValuePropertyValid, e.Values...)
		}
		if e.Values != nil {
			return pmml.NewCategoricalFeature(field, e.Values), nil
		}
		size := 1
		if categoricalSize != nil {
			size = max(categoricalSize(index), 1)
		}
		return pmml.NewIndexRangeFeature(field, size), nil
	default:
		return nil, errors.NewSchemaError(e.Name, index, "unknown feature type "+e.Type.String())
	}
}
