// Package pmml is the portable document model produced by the converter.
//
// It covers the subset of PMML 4.4 needed to describe tree ensembles: the
// data dictionary, tree models with branch/leaf predicate nodes, mining models
// that combine segments, and regression models used for the final link
// function. Documents are serialized with Write.
package pmml

import (
	"encoding/xml"
)

// Namespace is the PMML 4.4 XML namespace.
const Namespace = "http://www.dmg.org/PMML-4_4"

// Version is the PMML schema version written to documents.
const Version = "4.4"

// OpType is the operational type of a field.
type OpType string

const (
	OpTypeContinuous  OpType = "continuous"
	OpTypeCategorical OpType = "categorical"
	OpTypeOrdinal     OpType = "ordinal"
)

// DataType is the storage type of a field.
type DataType string

const (
	DataTypeString  DataType = "string"
	DataTypeInteger DataType = "integer"
	DataTypeFloat   DataType = "float"
	DataTypeDouble  DataType = "double"
	DataTypeBoolean DataType = "boolean"
)

// MiningFunction is the kind of prediction a model makes.
type MiningFunction string

const (
	MiningFunctionRegression     MiningFunction = "regression"
	MiningFunctionClassification MiningFunction = "classification"
)

// MathContext is the floating point precision a model is evaluated in.
type MathContext string

const (
	MathContextDouble MathContext = "double"
	MathContextFloat  MathContext = "float"
)

// PMML is the document root.
type PMML struct {
	XMLName        xml.Name       `xml:"PMML"`
	Xmlns          string         `xml:"xmlns,attr"`
	Version        string         `xml:"version,attr"`
	Header         Header         `xml:"Header"`
	DataDictionary DataDictionary `xml:"DataDictionary"`
	Model          Model
}

// NewPMML creates a document around a top-level model.
func NewPMML(header Header, dict DataDictionary, model Model) *PMML {
	return &PMML{
		Xmlns:          Namespace,
		Version:        Version,
		Header:         header,
		DataDictionary: dict,
		Model:          model,
	}
}

// Header describes the producing application.
type Header struct {
	Description string       `xml:"description,attr,omitempty"`
	Extensions  []Extension  `xml:"Extension"`
	Application *Application `xml:"Application"`
	Timestamp   string       `xml:"Timestamp,omitempty"`
}

// Application names the producer.
type Application struct {
	Name    string `xml:"name,attr"`
	Version string `xml:"version,attr,omitempty"`
}

// Extension is a name/value annotation.
type Extension struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// DataDictionary lists every field used by the document.
type DataDictionary struct {
	NumberOfFields int          `xml:"numberOfFields,attr"`
	DataFields     []*DataField `xml:"DataField"`
}

// AddDataField appends a field and keeps the field count in sync.
func (d *DataDictionary) AddDataField(field *DataField) *DataField {
	d.DataFields = append(d.DataFields, field)
	d.NumberOfFields = len(d.DataFields)
	return field
}

// DataField returns the field with the given name, or nil.
func (d *DataDictionary) DataField(name string) *DataField {
	for _, field := range d.DataFields {
		if field.Name == name {
			return field
		}
	}
	return nil
}

// ValueProperty classifies a declared field value.
type ValueProperty string

const (
	ValuePropertyValid   ValueProperty = "valid"
	ValuePropertyInvalid ValueProperty = "invalid"
	ValuePropertyMissing ValueProperty = "missing"
)

// Value is one declared value of a field.
type Value struct {
	Value    string        `xml:"value,attr"`
	Property ValueProperty `xml:"property,attr,omitempty"`
}

// DataField is one input or target field.
type DataField struct {
	Name     string   `xml:"name,attr"`
	OpType   OpType   `xml:"optype,attr"`
	DataType DataType `xml:"dataType,attr"`
	Values   []Value  `xml:"Value"`
}

// AddValues declares values with the given property. Duplicates are skipped.
func (f *DataField) AddValues(property ValueProperty, values ...string) {
	for _, v := range values {
		if f.hasValue(v, property) {
			continue
		}
		stored := property
		if property == ValuePropertyValid {
			stored = ""
		}
		f.Values = append(f.Values, Value{Value: v, Property: stored})
	}
}

// ValidValues returns the declared valid values in order.
func (f *DataField) ValidValues() []string {
	var result []string
	for _, v := range f.Values {
		if v.Property == "" || v.Property == ValuePropertyValid {
			result = append(result, v.Value)
		}
	}
	return result
}

// MissingValues returns the declared missing value markers.
func (f *DataField) MissingValues() []string {
	var result []string
	for _, v := range f.Values {
		if v.Property == ValuePropertyMissing {
			result = append(result, v.Value)
		}
	}
	return result
}

func (f *DataField) hasValue(value string, property ValueProperty) bool {
	for _, v := range f.Values {
		p := v.Property
		if p == "" {
			p = ValuePropertyValid
		}
		want := property
		if want == "" {
			want = ValuePropertyValid
		}
		if v.Value == value && p == want {
			return true
		}
	}
	return false
}

// UsageType is the role of a field in a model.
type UsageType string

const (
	UsageTypeActive UsageType = "active"
	UsageTypeTarget UsageType = "target"
)

// MiningSchema lists the fields a model consumes.
type MiningSchema struct {
	MiningFields []MiningField `xml:"MiningField"`
}

// MiningField references a DataField or an upstream output field.
type MiningField struct {
	Name      string    `xml:"name,attr"`
	UsageType UsageType `xml:"usageType,attr,omitempty"`
}

// ResultFeature is the kind of value an output field exposes.
type ResultFeature string

const (
	ResultFeaturePredictedValue   ResultFeature = "predictedValue"
	ResultFeatureProbability      ResultFeature = "probability"
	ResultFeatureTransformedValue ResultFeature = "transformedValue"
)

// Output lists the output fields of a model.
type Output struct {
	OutputFields []OutputField `xml:"OutputField"`
}

// OutputField is one model output.
type OutputField struct {
	Name          string        `xml:"name,attr"`
	OpType        OpType        `xml:"optype,attr"`
	DataType      DataType      `xml:"dataType,attr"`
	Feature       ResultFeature `xml:"feature,attr"`
	Value         string        `xml:"value,attr,omitempty"`
	IsFinalResult *bool         `xml:"isFinalResult,attr,omitempty"`
	Expression    Expression
}

// Targets holds per-target rescaling.
type Targets struct {
	Targets []Target `xml:"Target"`
}

// Target rescales the raw prediction of a regression model.
type Target struct {
	Field           string  `xml:"field,attr,omitempty"`
	RescaleFactor   float32 `xml:"rescaleFactor,attr,omitempty"`
	RescaleConstant float32 `xml:"rescaleConstant,attr,omitempty"`
}

// Expression is a derived value in an output field.
type Expression interface {
	isExpression()
}

// Apply invokes a built-in function.
type Apply struct {
	XMLName  xml.Name `xml:"Apply"`
	Function string   `xml:"function,attr"`
	Args     []Expression
}

// FieldRef references another field by name.
type FieldRef struct {
	XMLName xml.Name `xml:"FieldRef"`
	Field   string   `xml:"field,attr"`
}

// Constant is a literal value.
type Constant struct {
	XMLName  xml.Name `xml:"Constant"`
	DataType DataType `xml:"dataType,attr,omitempty"`
	Value    string   `xml:",chardata"`
}

func (*Apply) isExpression()    {}
func (*FieldRef) isExpression() {}
func (*Constant) isExpression() {}

// Model is any top-level or segment model.
type Model interface {
	GetMiningFunction() MiningFunction
	GetMiningSchema() *MiningSchema
	GetOutput() *Output
}
