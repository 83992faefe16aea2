package pmml

import (
	"encoding/xml"
	"strconv"
)

// MultipleModelMethod combines segment predictions.
type MultipleModelMethod string

const (
	MultipleModelMethodSum         MultipleModelMethod = "sum"
	MultipleModelMethodWeightedSum MultipleModelMethod = "weightedSum"
	MultipleModelMethodModelChain  MultipleModelMethod = "modelChain"
)

// MissingPredictionTreatment decides what happens when a segment yields no prediction.
type MissingPredictionTreatment string

const (
	MissingPredictionTreatmentReturnMissing MissingPredictionTreatment = "returnMissing"
	MissingPredictionTreatmentContinue      MissingPredictionTreatment = "continue"
)

// NormalizationMethod is the link applied by a regression model.
type NormalizationMethod string

const (
	NormalizationMethodNone    NormalizationMethod = "none"
	NormalizationMethodLogit   NormalizationMethod = "logit"
	NormalizationMethodExp     NormalizationMethod = "exp"
	NormalizationMethodSoftmax NormalizationMethod = "softmax"
)

// MiningModel is an ensemble of segment models.
type MiningModel struct {
	XMLName        xml.Name       `xml:"MiningModel"`
	ModelName      string         `xml:"modelName,attr,omitempty"`
	AlgorithmName  string         `xml:"algorithmName,attr,omitempty"`
	MiningFunction MiningFunction `xml:"functionName,attr"`
	MathContext    MathContext    `xml:"x-mathContext,attr,omitempty"`
	MiningSchema   MiningSchema   `xml:"MiningSchema"`
	Output         *Output        `xml:"Output"`
	Targets        *Targets       `xml:"Targets"`
	Segmentation   *Segmentation  `xml:"Segmentation"`
}

func (m *MiningModel) GetMiningFunction() MiningFunction { return m.MiningFunction }
func (m *MiningModel) GetMiningSchema() *MiningSchema    { return &m.MiningSchema }
func (m *MiningModel) GetOutput() *Output                { return m.Output }

// Segmentation holds the segments of a mining model.
type Segmentation struct {
	MultipleModelMethod        MultipleModelMethod        `xml:"multipleModelMethod,attr"`
	MissingPredictionTreatment MissingPredictionTreatment `xml:"missingPredictionTreatment,attr,omitempty"`
	Segments                   []*Segment                 `xml:"Segment"`
}

// Segment is one member model.
type Segment struct {
	ID        string   `xml:"id,attr,omitempty"`
	Weight    *float32 `xml:"weight,attr,omitempty"`
	Predicate Predicate
	Model     Model
}

// NewSegmentation creates a segmentation whose segments always apply.
// weights may be nil; otherwise it must be parallel to models.
func NewSegmentation(method MultipleModelMethod, models []Model, weights []float32) *Segmentation {
	segmentation := &Segmentation{MultipleModelMethod: method}
	for i, model := range models {
		segment := &Segment{
			ID:        strconv.Itoa(i + 1),
			Predicate: NewTrue(),
			Model:     model,
		}
		if weights != nil {
			w := weights[i]
			segment.Weight = &w
		}
		segmentation.Segments = append(segmentation.Segments, segment)
	}
	return segmentation
}

// RegressionModel applies a linear function and a normalization.
type RegressionModel struct {
	XMLName             xml.Name            `xml:"RegressionModel"`
	ModelName           string              `xml:"modelName,attr,omitempty"`
	MiningFunction      MiningFunction      `xml:"functionName,attr"`
	NormalizationMethod NormalizationMethod `xml:"normalizationMethod,attr,omitempty"`
	MathContext         MathContext         `xml:"x-mathContext,attr,omitempty"`
	MiningSchema        MiningSchema        `xml:"MiningSchema"`
	Output              *Output             `xml:"Output"`
	RegressionTables    []RegressionTable   `xml:"RegressionTable"`
}

func (m *RegressionModel) GetMiningFunction() MiningFunction { return m.MiningFunction }
func (m *RegressionModel) GetMiningSchema() *MiningSchema    { return &m.MiningSchema }
func (m *RegressionModel) GetOutput() *Output                { return m.Output }

// RegressionTable is one linear function, per target category for classification.
type RegressionTable struct {
	Intercept         float64            `xml:"intercept,attr"`
	TargetCategory    string             `xml:"targetCategory,attr,omitempty"`
	NumericPredictors []NumericPredictor `xml:"NumericPredictor"`
}

// NumericPredictor is one term of a regression table.
type NumericPredictor struct {
	Name        string  `xml:"name,attr"`
	Coefficient float64 `xml:"coefficient,attr"`
}
