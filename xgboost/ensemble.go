package xgboost

import (
	"slices"
	"strings"

	"github.com/YuminosukeSato/xgbport/internal/parallel"
	"github.com/YuminosukeSato/xgbport/pkg/errors"
	"github.com/YuminosukeSato/xgbport/pkg/log"
	"github.com/YuminosukeSato/xgbport/pmml"
	"github.com/YuminosukeSato/xgbport/pmml/treeopt"
)

// Name of the intermediate output carrying the raw ensemble margin.
const marginFieldName = "xgbValue"

// Groups with more trees than this are encoded concurrently.
const parallelTreeThreshold = 64

// ensembleEncoder assembles the trees of one booster into a document model.
type ensembleEncoder struct {
	obj       *ObjFunction
	opts      *Options
	baseScore float32
	logger    log.Logger

	trees int // encoded trees
	nodes int // nodes of the encoded trees after optimization
}

// encode builds the top-level model for schema. Trees are spread over the
// scalar labels of the schema column-wise: tree i belongs to label i mod n.
func (e *ensembleEncoder) encode(booster Booster, schema *pmml.Schema) (*pmml.MiningModel, error) {
	trees := booster.Model().Trees
	weights := booster.TreeWeights()
	if weights != nil && len(weights) != len(trees) {
		return nil, errors.NewStructuralErrorf("encode", "%d trees but %d tree weights", len(trees), len(weights))
	}

	labels := scalarLabels(schema.Label)
	if len(trees)%len(labels) != 0 {
		return nil, errors.NewStructuralErrorf("encode", "%d trees cannot be divided into %d targets", len(trees), len(labels))
	}
	if len(labels) == 1 {
		return e.encodeTarget(-1, trees, weights, schema)
	}

	rows, columns := len(trees)/len(labels), len(labels)
	models := make([]pmml.Model, len(labels))
	for i, label := range labels {
		var columnWeights []float32
		if weights != nil {
			columnWeights = column(weights, rows, columns, i)
		}
		model, err := e.encodeTarget(i, column(trees, rows, columns, i), columnWeights, schema.WithLabel(label))
		if err != nil {
			return nil, errors.Wrapf(err, "target %s", label.Name())
		}
		models[i] = model
	}
	chain := modelChain(models, schema)
	chain.Segmentation.MissingPredictionTreatment = pmml.MissingPredictionTreatmentContinue
	return chain, nil
}

// column returns column i of a row-major matrix with the given shape.
func column[T any](values []T, rows, columns, i int) []T {
	result := make([]T, rows)
	for row := range result {
		result[row] = values[row*columns+i]
	}
	return result
}

// encodeTarget builds the model of one scalar label. targetIndex is -1 for
// single-target models.
func (e *ensembleEncoder) encodeTarget(targetIndex int, trees []*RegTree, weights []float32, schema *pmml.Schema) (*pmml.MiningModel, error) {
	marginName := marginFieldName
	if targetIndex >= 0 {
		marginName = outputName(marginFieldName, schema.Label.Name())
	}

	switch e.obj.Kind {
	case LogisticRegression:
		return e.encodeRegression(trees, weights, schema, marginName, pmml.NormalizationMethodLogit)
	case GeneralizedLinearRegression, PoissonRegression, SurvivalRegression:
		return e.encodeRegression(trees, weights, schema, marginName, pmml.NormalizationMethodExp)
	case BinomialLogisticRegression, HingeClassification:
		return e.encodeBinaryClassification(targetIndex, trees, weights, schema, marginName)
	case MultinomialLogisticRegression:
		return e.encodeMultinomialClassification(targetIndex, trees, weights, schema, marginName)
	default:
		return e.createMiningModel(trees, weights, schema)
	}
}

func (e *ensembleEncoder) encodeRegression(trees []*RegTree, weights []float32, schema *pmml.Schema, marginName string, normalization pmml.NormalizationMethod) (*pmml.MiningModel, error) {
	margin, err := e.createMiningModel(trees, weights, schema.Anonymous())
	if err != nil {
		return nil, err
	}
	margin.Output = predictedOutput(marginName)

	regression := &pmml.RegressionModel{
		MiningFunction:      pmml.MiningFunctionRegression,
		NormalizationMethod: normalization,
		MathContext:         pmml.MathContextFloat,
		MiningSchema:        miningSchema(schema.Label, []string{marginName}),
		RegressionTables: []pmml.RegressionTable{{
			NumericPredictors: []pmml.NumericPredictor{{Name: marginName, Coefficient: 1}},
		}},
	}
	return modelChain([]pmml.Model{margin, regression}, schema), nil
}

func (e *ensembleEncoder) encodeBinaryClassification(targetIndex int, trees []*RegTree, weights []float32, schema *pmml.Schema, marginName string) (*pmml.MiningModel, error) {
	label, ok := schema.Label.(*pmml.CategoricalLabel)
	if !ok || label.Size() != 2 {
		return nil, errors.NewStructuralError("encode", "binary classification requires a two-category label")
	}
	margin, err := e.createMiningModel(trees, weights, schema.Anonymous())
	if err != nil {
		return nil, err
	}
	margin.Output = predictedOutput(marginName)

	input := marginName
	normalization := pmml.NormalizationMethodLogit
	// The inactive category is scored 1 - p when there is no normalization.
	inactive := pmml.RegressionTable{TargetCategory: label.Values()[0]}
	if e.obj.Kind == HingeClassification {
		input = outputName("hinge", marginName)
		margin.Output.OutputFields = append(margin.Output.OutputFields, pmml.OutputField{
			Name:          input,
			OpType:        pmml.OpTypeContinuous,
			DataType:      pmml.DataTypeFloat,
			Feature:       pmml.ResultFeatureTransformedValue,
			IsFinalResult: boolPtr(false),
			Expression: &pmml.Apply{
				Function: "threshold",
				Args:     []pmml.Expression{&pmml.FieldRef{Field: marginName}, &pmml.Constant{Value: "0"}},
			},
		})
		normalization = pmml.NormalizationMethodNone
		inactive.Intercept = 1
		inactive.NumericPredictors = []pmml.NumericPredictor{{Name: input, Coefficient: -1}}
	}

	classifier := &pmml.RegressionModel{
		MiningFunction:      pmml.MiningFunctionClassification,
		NormalizationMethod: normalization,
		MathContext:         pmml.MathContextFloat,
		MiningSchema:        miningSchema(label, []string{input}),
		Output:              probabilityOutput(targetIndex, label),
		RegressionTables: []pmml.RegressionTable{
			{
				TargetCategory:    label.Values()[1],
				NumericPredictors: []pmml.NumericPredictor{{Name: input, Coefficient: 1}},
			},
			inactive,
		},
	}
	return modelChain([]pmml.Model{margin, classifier}, schema), nil
}

func (e *ensembleEncoder) encodeMultinomialClassification(targetIndex int, trees []*RegTree, weights []float32, schema *pmml.Schema, marginName string) (*pmml.MiningModel, error) {
	label, ok := schema.Label.(*pmml.CategoricalLabel)
	if !ok {
		return nil, errors.NewStructuralError("encode", "multi-class classification requires a categorical label")
	}
	columns := label.Size()
	if len(trees)%columns != 0 {
		return nil, errors.NewStructuralErrorf("encode", "%d trees cannot be divided into %d classes", len(trees), columns)
	}
	rows := len(trees) / columns

	models := make([]pmml.Model, 0, columns+1)
	inputs := make([]string, columns)
	tables := make([]pmml.RegressionTable, columns)
	for i, value := range label.Values() {
		var columnWeights []float32
		if weights != nil {
			columnWeights = column(weights, rows, columns, i)
		}
		margin, err := e.createMiningModel(column(trees, rows, columns, i), columnWeights, schema.Anonymous())
		if err != nil {
			return nil, errors.Wrapf(err, "class %s", value)
		}
		inputs[i] = outputName(marginName, value)
		margin.Output = predictedOutput(inputs[i])
		models = append(models, margin)
		tables[i] = pmml.RegressionTable{
			TargetCategory:    value,
			NumericPredictors: []pmml.NumericPredictor{{Name: inputs[i], Coefficient: 1}},
		}
	}

	models = append(models, &pmml.RegressionModel{
		MiningFunction:      pmml.MiningFunctionClassification,
		NormalizationMethod: pmml.NormalizationMethodSoftmax,
		MathContext:         pmml.MathContextFloat,
		MiningSchema:        miningSchema(label, inputs),
		Output:              probabilityOutput(targetIndex, label),
		RegressionTables:    tables,
	})
	return modelChain(models, schema), nil
}

// createMiningModel sums the trees of one output group. Trees whose root is a
// zero leaf are dropped. When every tree weighs 1 the remaining constant trees
// are folded into the intercept.
func (e *ensembleEncoder) createMiningModel(trees []*RegTree, weights []float32, schema *pmml.Schema) (*pmml.MiningModel, error) {
	if weights != nil && len(weights) != len(trees) {
		return nil, errors.NewStructuralErrorf("encode", "%d trees but %d tree weights", len(trees), len(weights))
	}
	if limit := e.opts.NTreeLimit; limit > 0 {
		if limit > len(trees) {
			return nil, errors.NewStructuralErrorf("encode", "tree limit %d is greater than the number of trees %d", limit, len(trees))
		}
		trees = trees[:limit]
		if weights != nil {
			weights = weights[:limit]
		}
	}

	type member struct {
		tree   *RegTree
		weight float32
	}
	members := make([]member, 0, len(trees))
	equalWeights := true
	for i, tree := range trees {
		if value, ok := tree.RootLeafValue(); ok && value == 0 {
			continue
		}
		m := member{tree: tree, weight: 1}
		if weights != nil {
			m.weight = weights[i]
		}
		equalWeights = equalWeights && m.weight == 1
		members = append(members, m)
	}

	intercept := e.baseScore
	if equalWeights {
		members = slices.DeleteFunc(members, func(m member) bool {
			value, ok := m.tree.RootLeafValue()
			if ok {
				intercept += value
			}
			return ok
		})
	}

	models := make([]pmml.Model, len(members))
	err := parallel.ForEach(len(members), parallelTreeThreshold, func(i int) error {
		model, err := e.encodeTree(members[i].tree, schema)
		if err != nil {
			return errors.Wrapf(err, "tree %d", i)
		}
		models[i] = model
		return nil
	})
	if err != nil {
		return nil, err
	}
	var segmentWeights []float32
	if !equalWeights {
		segmentWeights = make([]float32, len(members))
		for i, m := range members {
			segmentWeights[i] = m.weight
		}
	}
	e.trees += len(models)
	for _, model := range models {
		e.nodes += model.(*pmml.TreeModel).Node.Count()
	}

	method := pmml.MultipleModelMethodSum
	if !equalWeights {
		method = pmml.MultipleModelMethodWeightedSum
	}
	model := &pmml.MiningModel{
		MiningFunction: pmml.MiningFunctionRegression,
		MathContext:    pmml.MathContextFloat,
		MiningSchema:   miningSchema(schema.Label, usedFields(schema, models...)),
		Segmentation:   pmml.NewSegmentation(method, models, segmentWeights),
	}
	if intercept != 0 {
		target := pmml.Target{RescaleConstant: intercept}
		if schema.Label != nil {
			target.Field = schema.Label.Name()
		}
		model.Targets = &pmml.Targets{Targets: []pmml.Target{target}}
	}
	e.logger.Debug("group encoded",
		log.OperationKey, log.OperationEncode,
		log.TreesKey, len(models),
		log.InterceptKey, intercept,
	)
	return model, nil
}

// encodeTree encodes one tree and runs the configured optimization passes.
func (e *ensembleEncoder) encodeTree(tree *RegTree, schema *pmml.Schema) (*pmml.TreeModel, error) {
	model, err := encodeTree(tree, schema)
	if err != nil {
		return nil, err
	}
	if e.opts.Prune {
		if _, err := treeopt.Prune(model); err != nil {
			return nil, err
		}
	}
	if e.opts.Compact {
		if _, err := treeopt.Compact(model); err != nil {
			return nil, err
		}
	}
	if err := model.Node.Validate(); err != nil {
		return nil, errors.NewStructuralError("encode", err.Error())
	}
	model.MiningSchema = miningSchema(nil, orderedFields(schema, treeFields(model.Node)))
	return model, nil
}

// treeFields returns the fields read by the predicates of a subtree.
func treeFields(node *pmml.Node) []string {
	fields := pmml.Fields(node.Predicate)
	for _, child := range node.Children {
		for _, name := range treeFields(child) {
			if !slices.Contains(fields, name) {
				fields = append(fields, name)
			}
		}
	}
	return fields
}

// orderedFields returns the schema fields contained in used, in schema order.
func orderedFields(schema *pmml.Schema, used []string) []string {
	var result []string
	for _, name := range schema.ActiveFields() {
		if slices.Contains(used, name) {
			result = append(result, name)
		}
	}
	return result
}

// usedFields returns the schema fields that models consume.
func usedFields(schema *pmml.Schema, models ...pmml.Model) []string {
	var used []string
	for _, model := range models {
		for _, field := range model.GetMiningSchema().MiningFields {
			if field.UsageType != pmml.UsageTypeTarget {
				used = append(used, field.Name)
			}
		}
	}
	return orderedFields(schema, used)
}

func miningSchema(label pmml.Label, active []string) pmml.MiningSchema {
	var schema pmml.MiningSchema
	for _, l := range labelFields(label) {
		schema.MiningFields = append(schema.MiningFields, pmml.MiningField{Name: l, UsageType: pmml.UsageTypeTarget})
	}
	for _, name := range active {
		schema.MiningFields = append(schema.MiningFields, pmml.MiningField{Name: name})
	}
	return schema
}

func labelFields(label pmml.Label) []string {
	if label == nil {
		return nil
	}
	var names []string
	for _, l := range scalarLabels(label) {
		if l != nil && l.Name() != "" {
			names = append(names, l.Name())
		}
	}
	return names
}

// modelChain chains models so that each one can read the outputs of the
// models before it.
func modelChain(models []pmml.Model, schema *pmml.Schema) *pmml.MiningModel {
	fn := pmml.MiningFunctionRegression
	for _, model := range models {
		fn = model.GetMiningFunction()
	}
	if multi, ok := schema.Label.(*pmml.MultiLabel); ok {
		fn = pmml.MiningFunctionRegression
		for _, label := range multi.Labels {
			if _, ok := label.(*pmml.CategoricalLabel); ok {
				fn = pmml.MiningFunctionClassification
			}
		}
	}
	return &pmml.MiningModel{
		MiningFunction: fn,
		MathContext:    pmml.MathContextFloat,
		MiningSchema:   miningSchema(schema.Label, usedFields(schema, models...)),
		Segmentation:   pmml.NewSegmentation(pmml.MultipleModelMethodModelChain, models, nil),
	}
}

func predictedOutput(name string) *pmml.Output {
	return &pmml.Output{OutputFields: []pmml.OutputField{{
		Name:          name,
		OpType:        pmml.OpTypeContinuous,
		DataType:      pmml.DataTypeFloat,
		Feature:       pmml.ResultFeaturePredictedValue,
		IsFinalResult: boolPtr(false),
	}}}
}

// probabilityOutput declares one probability field per category. Fields of a
// multi-target model carry the label name.
func probabilityOutput(targetIndex int, label *pmml.CategoricalLabel) *pmml.Output {
	output := &pmml.Output{}
	for _, value := range label.Values() {
		name := outputName("probability", value)
		if targetIndex >= 0 {
			name = outputName("probability", label.Name(), value)
		}
		output.OutputFields = append(output.OutputFields, pmml.OutputField{
			Name:     name,
			OpType:   pmml.OpTypeContinuous,
			DataType: pmml.DataTypeFloat,
			Feature:  pmml.ResultFeatureProbability,
			Value:    value,
		})
	}
	return output
}

// outputName formats a derived field name such as "probability(_target, 1)".
func outputName(function string, args ...string) string {
	return function + "(" + strings.Join(args, ", ") + ")"
}

func boolPtr(v bool) *bool { return &v }
