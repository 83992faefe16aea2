package pmml

import (
	"fmt"
	"slices"
)

// Feature is a schema-resolved input usable by the tree encoder. Every feature
// is backed by exactly one DataField.
type Feature interface {
	// Name is the backing field name.
	Name() string
	// Field is the backing data field.
	Field() *DataField
}

// ContinuousFeature is split by numeric comparison.
type ContinuousFeature struct {
	field *DataField
}

// NewContinuousFeature wraps a continuous field.
func NewContinuousFeature(field *DataField) *ContinuousFeature {
	return &ContinuousFeature{field: field}
}

func (f *ContinuousFeature) Name() string       { return f.field.Name }
func (f *ContinuousFeature) Field() *DataField  { return f.field }
func (f *ContinuousFeature) DataType() DataType { return f.field.DataType }

// BinaryFeature is a one-hot indicator of a single field value.
type BinaryFeature struct {
	field *DataField
	value string
}

// NewBinaryFeature creates an indicator for value of field.
func NewBinaryFeature(field *DataField, value string) *BinaryFeature {
	return &BinaryFeature{field: field, value: value}
}

func (f *BinaryFeature) Name() string      { return f.field.Name }
func (f *BinaryFeature) Field() *DataField { return f.field }

// Value is the indicated field value.
func (f *BinaryFeature) Value() string { return f.value }

// CategoricalFeature has an enumerated value domain indexed by category code.
type CategoricalFeature struct {
	field  *DataField
	values []string
	// Synthesized marks a domain made of category indices rather than declared values.
	Synthesized bool
}

// NewCategoricalFeature creates a categorical feature over values.
func NewCategoricalFeature(field *DataField, values []string) *CategoricalFeature {
	return &CategoricalFeature{field: field, values: slices.Clone(values)}
}

// NewIndexRangeFeature creates a categorical feature whose domain is the
// category indices 0..size-1.
func NewIndexRangeFeature(field *DataField, size int) *CategoricalFeature {
	values := make([]string, size)
	for i := range values {
		values[i] = fmt.Sprint(i)
	}
	return &CategoricalFeature{field: field, values: values, Synthesized: true}
}

func (f *CategoricalFeature) Name() string      { return f.field.Name }
func (f *CategoricalFeature) Field() *DataField { return f.field }

// Values returns the value domain in category index order.
func (f *CategoricalFeature) Values() []string { return f.values }

// Size returns the domain size.
func (f *CategoricalFeature) Size() int { return len(f.values) }

// Value returns the value of category index i.
func (f *CategoricalFeature) Value(i int) (string, error) {
	if i < 0 || i >= len(f.values) {
		return "", fmt.Errorf("category index %d outside domain of size %d", i, len(f.values))
	}
	return f.values[i], nil
}

// MissingValueFeature flags whether its field is missing.
type MissingValueFeature struct {
	field *DataField
}

// NewMissingValueFeature creates a missing-flag feature.
func NewMissingValueFeature(field *DataField) *MissingValueFeature {
	return &MissingValueFeature{field: field}
}

func (f *MissingValueFeature) Name() string      { return f.field.Name }
func (f *MissingValueFeature) Field() *DataField { return f.field }

// ThresholdFeature exposes an ordered numeric domain that is split by
// comparison even though the field is not continuous.
type ThresholdFeature struct {
	field  *DataField
	values []float64
	// labels[i] is the field value standing for domain value i, when set.
	labels []string
	// MissingValue is the sentinel value treated as missing (NaN by default).
	MissingValue float64
}

// NewThresholdFeature creates a threshold feature over an ordered domain.
func NewThresholdFeature(field *DataField, values []float64, missingValue float64) *ThresholdFeature {
	return &ThresholdFeature{field: field, values: slices.Clone(values), MissingValue: missingValue}
}

// NewOrdinalFeature creates a threshold feature over the category indices
// 0..len(labels)-1 of a categorical field. Predicates match the labels.
func NewOrdinalFeature(field *DataField, labels []string, missingValue float64) *ThresholdFeature {
	values := make([]float64, len(labels))
	for i := range values {
		values[i] = float64(i)
	}
	return &ThresholdFeature{field: field, values: values, labels: slices.Clone(labels), MissingValue: missingValue}
}

func (f *ThresholdFeature) Name() string      { return f.field.Name }
func (f *ThresholdFeature) Field() *DataField { return f.field }

// Values returns the ordered domain.
func (f *ThresholdFeature) Values() []float64 { return f.values }

// Format returns the field value a predicate compares against for domain
// value v.
func (f *ThresholdFeature) Format(v float64) string {
	if i := int(v); f.labels != nil && float64(i) == v && i >= 0 && i < len(f.labels) {
		return f.labels[i]
	}
	return FormatFloat64(v)
}

// Label is the target of a schema.
type Label interface {
	Name() string
}

// ContinuousLabel is a regression target.
type ContinuousLabel struct {
	field *DataField
}

// NewContinuousLabel wraps a target field.
func NewContinuousLabel(field *DataField) *ContinuousLabel {
	return &ContinuousLabel{field: field}
}

func (l *ContinuousLabel) Name() string      { return l.field.Name }
func (l *ContinuousLabel) Field() *DataField { return l.field }

// CategoricalLabel is a classification target.
type CategoricalLabel struct {
	field  *DataField
	values []string
}

// NewCategoricalLabel wraps a target field with its class values.
func NewCategoricalLabel(field *DataField, values []string) *CategoricalLabel {
	return &CategoricalLabel{field: field, values: slices.Clone(values)}
}

func (l *CategoricalLabel) Name() string      { return l.field.Name }
func (l *CategoricalLabel) Field() *DataField { return l.field }
func (l *CategoricalLabel) Values() []string  { return l.values }
func (l *CategoricalLabel) Size() int         { return len(l.values) }

// MultiLabel groups the labels of a multi-target model.
type MultiLabel struct {
	Labels []Label
}

func (l *MultiLabel) Name() string { return "" }

// Schema is a label plus ordered features. Feature position i matches tree split index i.
type Schema struct {
	Label    Label
	Features []Feature
}

// NewSchema creates a schema.
func NewSchema(label Label, features []Feature) *Schema {
	return &Schema{Label: label, Features: features}
}

// Feature returns the feature at split index i.
func (s *Schema) Feature(i int) (Feature, error) {
	if i < 0 || i >= len(s.Features) {
		return nil, fmt.Errorf("split index %d outside schema of %d features", i, len(s.Features))
	}
	return s.Features[i], nil
}

// WithLabel returns a copy of the schema with a different label.
func (s *Schema) WithLabel(label Label) *Schema {
	return &Schema{Label: label, Features: s.Features}
}

// Anonymous returns a copy of the schema without a label, as used by
// segment regressors.
func (s *Schema) Anonymous() *Schema {
	return s.WithLabel(nil)
}

// ActiveFields returns the distinct backing field names of the features, in order.
func (s *Schema) ActiveFields() []string {
	var names []string
	for _, feature := range s.Features {
		if !slices.Contains(names, feature.Name()) {
			names = append(names, feature.Name())
		}
	}
	return names
}
