package treeeval

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/xgbport/internal/parallel"
	"github.com/YuminosukeSato/xgbport/pmml"
)

// Corpus is a matrix of input rows over named fields. NaN cells are missing.
// Categorical cells hold an index into the valid values of their field.
type Corpus struct {
	Fields []string
	X      *mat.Dense
}

// NewCorpus samples rows that exercise the split points of doc. Continuous
// cells are drawn around the constants predicates compare against, and about
// one cell in ten is missing.
func NewCorpus(doc *pmml.PMML, rows int, seed uint64) *Corpus {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	constants := make(map[string][]float64)
	collectConstants(doc.Model, constants)

	var fields []*pmml.DataField
	for _, field := range doc.DataDictionary.DataFields {
		if !isTarget(doc.Model, field.Name) {
			fields = append(fields, field)
		}
	}

	corpus := &Corpus{Fields: make([]string, len(fields))}
	for j, field := range fields {
		corpus.Fields[j] = field.Name
	}
	if len(fields) == 0 {
		return corpus
	}
	corpus.X = mat.NewDense(rows, len(fields), nil)
	for i := 0; i < rows; i++ {
		for j, field := range fields {
			corpus.X.Set(i, j, sample(rng, field, constants[field.Name]))
		}
	}
	return corpus
}

func sample(rng *rand.Rand, field *pmml.DataField, constants []float64) float64 {
	if rng.IntN(10) == 0 {
		return math.NaN()
	}
	if field.OpType == pmml.OpTypeCategorical {
		n := len(field.ValidValues())
		if field.DataType == pmml.DataTypeBoolean {
			n = 2
		}
		if n > 0 {
			return float64(rng.IntN(n))
		}
		// index range: draw from the category codes predicates mention
		if len(constants) == 0 {
			return 0
		}
		return constants[rng.IntN(len(constants))]
	}
	if len(constants) == 0 {
		return rng.NormFloat64() * 10
	}
	c := constants[rng.IntN(len(constants))]
	var v float64
	switch rng.IntN(4) {
	case 0:
		v = c
	case 1:
		v = float64(math.Nextafter32(float32(c), float32(math.Inf(-1))))
	case 2:
		v = c - rng.Float64()
	default:
		v = c + rng.Float64()
	}
	if field.DataType == pmml.DataTypeInteger {
		v = math.Round(v)
	}
	return v
}

// Row returns row i in the shape Evaluate accepts.
func (c *Corpus) Row(doc *pmml.PMML, i int) Row {
	row := make(Row, len(c.Fields))
	for j, name := range c.Fields {
		v := c.X.At(i, j)
		if math.IsNaN(v) {
			continue
		}
		field := dataField(doc, name)
		switch {
		case field != nil && field.DataType == pmml.DataTypeBoolean:
			row[name] = strconv.FormatBool(v != 0)
		case field != nil && field.OpType == pmml.OpTypeCategorical && len(field.ValidValues()) > 0:
			row[name] = field.ValidValues()[int(v)]
		case field != nil && (field.DataType == pmml.DataTypeInteger || field.OpType == pmml.OpTypeCategorical):
			row[name] = strconv.FormatInt(int64(v), 10)
		default:
			row[name] = strconv.FormatFloat(v, 'g', -1, 64)
		}
	}
	return row
}

// Rows returns the number of rows.
func (c *Corpus) Rows() int {
	if c.X == nil {
		return 0
	}
	rows, _ := c.X.Dims()
	return rows
}

// EvaluateCorpus scores every row of c and returns the predicted values.
func (e *Evaluator) EvaluateCorpus(c *Corpus) (*mat.VecDense, error) {
	n := c.Rows()
	if n == 0 {
		return nil, nil
	}
	values := make([]float64, n)
	err := parallel.ForEach(n, 256, func(i int) error {
		result, err := e.Evaluate(c.Row(e.doc, i))
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		values[i] = result.Value
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mat.NewVecDense(n, values), nil
}

func dataField(doc *pmml.PMML, name string) *pmml.DataField {
	return doc.DataDictionary.DataField(name)
}

func isTarget(model pmml.Model, name string) bool {
	return slices.ContainsFunc(model.GetMiningSchema().MiningFields, func(f pmml.MiningField) bool {
		return f.Name == name && f.UsageType == pmml.UsageTypeTarget
	})
}

// collectConstants gathers the numeric constants each field is compared
// against anywhere in model.
func collectConstants(model pmml.Model, constants map[string][]float64) {
	switch m := model.(type) {
	case *pmml.TreeModel:
		collectNodeConstants(m.Node, constants)
	case *pmml.MiningModel:
		for _, segment := range m.Segmentation.Segments {
			collectConstants(segment.Model, constants)
		}
	}
}

func collectNodeConstants(node *pmml.Node, constants map[string][]float64) {
	collectPredicateConstants(node.Predicate, constants)
	for _, child := range node.Children {
		collectNodeConstants(child, constants)
	}
}

func collectPredicateConstants(p pmml.Predicate, constants map[string][]float64) {
	add := func(field, value string) {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || slices.Contains(constants[field], f) {
			return
		}
		constants[field] = append(constants[field], f)
	}
	switch x := p.(type) {
	case *pmml.SimplePredicate:
		add(x.Field, x.Value)
	case *pmml.SimpleSetPredicate:
		for _, value := range x.Values {
			add(x.Field, value)
		}
	case *pmml.CompoundPredicate:
		for _, arm := range x.Predicates {
			collectPredicateConstants(arm, constants)
		}
	}
}
