// Package treeeval scores documents produced by the converter. It exists to
// check that rewrites of the produced trees keep their prediction function
// and is not meant as a general purpose scoring engine.
package treeeval

import (
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/YuminosukeSato/xgbport/pmml"
)

// Row maps field names to values. Absent fields are missing.
type Row map[string]string

// Result is the outcome of scoring one row.
type Result struct {
	// Value is the predicted value. NaN when the model has no prediction.
	Value float64
	// Category is the predicted class of a classifier.
	Category string
	// Outputs holds every output field computed along the way.
	Outputs map[string]float64
}

// truth is a three-valued boolean.
type truth int8

const (
	unknown truth = iota
	isFalse
	isTrue
)

func truthOf(b bool) truth {
	if b {
		return isTrue
	}
	return isFalse
}

// Evaluator scores rows against one document.
type Evaluator struct {
	doc    *pmml.PMML
	fields map[string]*pmml.DataField
}

// New creates an evaluator for doc.
func New(doc *pmml.PMML) *Evaluator {
	fields := make(map[string]*pmml.DataField, len(doc.DataDictionary.DataFields))
	for _, field := range doc.DataDictionary.DataFields {
		fields[field.Name] = field
	}
	return &Evaluator{doc: doc, fields: fields}
}

// Evaluate scores one row.
func (e *Evaluator) Evaluate(row Row) (Result, error) {
	values := make(map[string]string, len(row))
	for name, value := range row {
		if !e.isMissing(name, value) {
			values[name] = value
		}
	}
	result := Result{Outputs: make(map[string]float64)}
	if err := e.evaluateModel(e.doc.Model, values, &result); err != nil {
		return Result{}, err
	}
	return result, nil
}

func (e *Evaluator) isMissing(name, value string) bool {
	if value == "" {
		return true
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil && math.IsNaN(f) {
		return true
	}
	field, ok := e.fields[name]
	return ok && slices.Contains(field.MissingValues(), value)
}

func (e *Evaluator) evaluateModel(model pmml.Model, values map[string]string, result *Result) error {
	switch m := model.(type) {
	case *pmml.TreeModel:
		score, ok, err := e.evaluateTree(m, values)
		if err != nil {
			return err
		}
		result.Value = math.NaN()
		if ok {
			result.Value = float64(score)
		}
	case *pmml.MiningModel:
		if err := e.evaluateMining(m, values, result); err != nil {
			return err
		}
	case *pmml.RegressionModel:
		if err := e.evaluateRegression(m, values, result); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unsupported model %T", model)
	}
	return e.evaluateOutput(model.GetOutput(), values, result)
}

func (e *Evaluator) evaluateTree(model *pmml.TreeModel, values map[string]string) (float32, bool, error) {
	node := model.Node
	match, err := e.predicate(node.Predicate, values)
	if err != nil || match != isTrue {
		return 0, false, err
	}
	var last *float32
	for {
		if node.Score != nil {
			last = node.Score
		}
		if node.IsLeaf() {
			if last == nil {
				return 0, false, nil
			}
			return *last, true, nil
		}
		var next *pmml.Node
		for _, child := range node.Children {
			match, err := e.predicate(child.Predicate, values)
			if err != nil {
				return 0, false, err
			}
			if match == unknown && model.MissingValueStrategy == pmml.MissingValueStrategyDefaultChild {
				if node.DefaultChild == nil {
					return 0, false, fmt.Errorf("node %q has no default child", node.ID)
				}
				next = node.DefaultChild
				break
			}
			if match == isTrue {
				next = child
				break
			}
		}
		if next == nil {
			if model.NoTrueChildStrategy == pmml.NoTrueChildStrategyReturnLast && last != nil {
				return *last, true, nil
			}
			return 0, false, nil
		}
		node = next
	}
}

func (e *Evaluator) evaluateMining(model *pmml.MiningModel, values map[string]string, result *Result) error {
	segmentation := model.Segmentation
	switch segmentation.MultipleModelMethod {
	case pmml.MultipleModelMethodSum, pmml.MultipleModelMethodWeightedSum:
		var sum float32
		for _, segment := range segmentation.Segments {
			var inner Result
			inner.Outputs = result.Outputs
			if err := e.evaluateModel(segment.Model, values, &inner); err != nil {
				return err
			}
			if math.IsNaN(inner.Value) {
				result.Value = math.NaN()
				return nil
			}
			weight := float32(1)
			if segment.Weight != nil {
				weight = *segment.Weight
			}
			sum += weight * float32(inner.Value)
		}
		if model.Targets != nil {
			for _, target := range model.Targets.Targets {
				factor := target.RescaleFactor
				if factor == 0 {
					factor = 1
				}
				sum = sum*factor + target.RescaleConstant
			}
		}
		result.Value = float64(sum)
	case pmml.MultipleModelMethodModelChain:
		result.Value = math.NaN()
		for _, segment := range segmentation.Segments {
			inner := Result{Outputs: result.Outputs}
			if err := e.evaluateModel(segment.Model, values, &inner); err != nil {
				return err
			}
			if math.IsNaN(inner.Value) && inner.Category == "" &&
				segmentation.MissingPredictionTreatment != pmml.MissingPredictionTreatmentContinue {
				result.Value = math.NaN()
				return nil
			}
			result.Value, result.Category = inner.Value, inner.Category
		}
	default:
		return fmt.Errorf("unsupported multiple model method %q", segmentation.MultipleModelMethod)
	}
	return nil
}

func (e *Evaluator) evaluateRegression(model *pmml.RegressionModel, values map[string]string, result *Result) error {
	scores := make([]float64, len(model.RegressionTables))
	for i, table := range model.RegressionTables {
		y := table.Intercept
		for _, predictor := range table.NumericPredictors {
			x, ok := e.number(predictor.Name, values)
			if !ok {
				result.Value = math.NaN()
				return nil
			}
			y += predictor.Coefficient * x
		}
		scores[i] = y
	}

	if model.MiningFunction == pmml.MiningFunctionRegression {
		if len(scores) != 1 {
			return fmt.Errorf("regression model with %d tables", len(scores))
		}
		result.Value = normalize(model.NormalizationMethod, scores[0])
		return nil
	}

	switch model.NormalizationMethod {
	case pmml.NormalizationMethodSoftmax:
		peak := slices.Max(scores)
		var total float64
		for i := range scores {
			scores[i] = math.Exp(scores[i] - peak)
			total += scores[i]
		}
		for i := range scores {
			scores[i] /= total
		}
	case pmml.NormalizationMethodNone:
	default:
		// The last category takes the remaining probability.
		var total float64
		for i := range scores[:len(scores)-1] {
			scores[i] = normalize(model.NormalizationMethod, scores[i])
			total += scores[i]
		}
		scores[len(scores)-1] = 1 - total
	}

	best := 0
	for i, table := range model.RegressionTables {
		result.Outputs["probability("+table.TargetCategory+")"] = scores[i]
		if scores[i] > scores[best] {
			best = i
		}
	}
	result.Category = model.RegressionTables[best].TargetCategory
	result.Value = scores[best]
	return nil
}

func normalize(method pmml.NormalizationMethod, y float64) float64 {
	switch method {
	case pmml.NormalizationMethodLogit:
		return 1 / (1 + math.Exp(-y))
	case pmml.NormalizationMethodExp:
		return math.Exp(y)
	default:
		return y
	}
}

// evaluateOutput computes the output fields of a model. Their values are
// visible to the models chained after it.
func (e *Evaluator) evaluateOutput(output *pmml.Output, values map[string]string, result *Result) error {
	if output == nil {
		return nil
	}
	for _, field := range output.OutputFields {
		var value float64
		switch field.Feature {
		case pmml.ResultFeaturePredictedValue:
			value = result.Value
		case pmml.ResultFeatureProbability:
			p, ok := result.Outputs["probability("+field.Value+")"]
			if !ok {
				return fmt.Errorf("no probability for %q", field.Value)
			}
			value = p
		case pmml.ResultFeatureTransformedValue:
			v, err := e.expression(field.Expression, values)
			if err != nil {
				return err
			}
			value = v
		default:
			return fmt.Errorf("unsupported result feature %q", field.Feature)
		}
		result.Outputs[field.Name] = value
		if !math.IsNaN(value) {
			values[field.Name] = strconv.FormatFloat(value, 'g', -1, 64)
		}
	}
	return nil
}

func (e *Evaluator) expression(expr pmml.Expression, values map[string]string) (float64, error) {
	switch x := expr.(type) {
	case *pmml.FieldRef:
		v, ok := e.number(x.Field, values)
		if !ok {
			return math.NaN(), nil
		}
		return v, nil
	case *pmml.Constant:
		return strconv.ParseFloat(x.Value, 64)
	case *pmml.Apply:
		args := make([]float64, len(x.Args))
		for i, arg := range x.Args {
			v, err := e.expression(arg, values)
			if err != nil {
				return 0, err
			}
			args[i] = v
		}
		switch {
		case x.Function == "threshold" && len(args) == 2:
			if math.IsNaN(args[0]) {
				return math.NaN(), nil
			}
			if args[0] > args[1] {
				return 1, nil
			}
			return 0, nil
		default:
			return 0, fmt.Errorf("unsupported function %q", x.Function)
		}
	default:
		return 0, fmt.Errorf("unsupported expression %T", expr)
	}
}

func (e *Evaluator) number(name string, values map[string]string) (float64, bool) {
	value, ok := values[name]
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(value, 64)
	return f, err == nil
}

func (e *Evaluator) predicate(p pmml.Predicate, values map[string]string) (truth, error) {
	switch x := p.(type) {
	case *pmml.True:
		return isTrue, nil
	case *pmml.False:
		return isFalse, nil
	case *pmml.SimplePredicate:
		value, present := values[x.Field]
		switch x.Operator {
		case pmml.OperatorIsMissing:
			return truthOf(!present), nil
		case pmml.OperatorIsNotMissing:
			return truthOf(present), nil
		}
		if !present {
			return unknown, nil
		}
		return e.compare(x.Field, x.Operator, value, x.Value)
	case *pmml.SimpleSetPredicate:
		value, present := values[x.Field]
		if !present {
			return unknown, nil
		}
		in := false
		for _, candidate := range x.Values {
			match, err := e.compare(x.Field, pmml.OperatorEqual, value, candidate)
			if err != nil {
				return unknown, err
			}
			if match == isTrue {
				in = true
				break
			}
		}
		return truthOf(in == (x.Operator == pmml.SetOperatorIsIn)), nil
	case *pmml.CompoundPredicate:
		return e.compound(x, values)
	default:
		return unknown, fmt.Errorf("unsupported predicate %T", p)
	}
}

func (e *Evaluator) compound(p *pmml.CompoundPredicate, values map[string]string) (truth, error) {
	arms := make([]truth, len(p.Predicates))
	for i, arm := range p.Predicates {
		t, err := e.predicate(arm, values)
		if err != nil {
			return unknown, err
		}
		arms[i] = t
	}
	switch p.Operator {
	case pmml.BooleanOperatorOr:
		if slices.Contains(arms, isTrue) {
			return isTrue, nil
		}
		if slices.Contains(arms, unknown) {
			return unknown, nil
		}
		return isFalse, nil
	case pmml.BooleanOperatorAnd:
		if slices.Contains(arms, isFalse) {
			return isFalse, nil
		}
		if slices.Contains(arms, unknown) {
			return unknown, nil
		}
		return isTrue, nil
	case pmml.BooleanOperatorSurrogate:
		for _, t := range arms {
			if t != unknown {
				return t, nil
			}
		}
		return unknown, nil
	default:
		return unknown, fmt.Errorf("unsupported boolean operator %q", p.Operator)
	}
}

// compare applies op to a field value and a constant. Numeric fields are
// compared in single precision.
func (e *Evaluator) compare(name string, op pmml.Operator, value, constant string) (truth, error) {
	if field, ok := e.fields[name]; ok && (field.DataType == pmml.DataTypeString || field.DataType == pmml.DataTypeBoolean) {
		switch op {
		case pmml.OperatorEqual:
			return truthOf(value == constant), nil
		case pmml.OperatorNotEqual:
			return truthOf(value != constant), nil
		default:
			return unknown, fmt.Errorf("operator %q on %s field %q", op, field.DataType, name)
		}
	}
	x, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return unknown, fmt.Errorf("field %q: %w", name, err)
	}
	c, err := strconv.ParseFloat(constant, 64)
	if err != nil {
		return unknown, fmt.Errorf("constant of %q: %w", name, err)
	}
	a, b := float32(x), float32(c)
	switch op {
	case pmml.OperatorEqual:
		return truthOf(a == b), nil
	case pmml.OperatorNotEqual:
		return truthOf(a != b), nil
	case pmml.OperatorLessThan:
		return truthOf(a < b), nil
	case pmml.OperatorLessOrEqual:
		return truthOf(a <= b), nil
	case pmml.OperatorGreaterThan:
		return truthOf(a > b), nil
	case pmml.OperatorGreaterOrEqual:
		return truthOf(a >= b), nil
	default:
		return unknown, fmt.Errorf("unsupported operator %q", op)
	}
}
