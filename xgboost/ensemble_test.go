package xgboost

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/xgbport/internal/modeltest"
	"github.com/YuminosukeSato/xgbport/pkg/errors"
	"github.com/YuminosukeSato/xgbport/pmml"
)

func splitTree(feature int32, cond, left, right float32) modeltest.Tree {
	return modeltest.NewTree(
		modeltest.Split(feature, cond, 1, 2, true),
		modeltest.Leaf(left),
		modeltest.Leaf(right),
	)
}

func miningModel(t *testing.T, model pmml.Model) *pmml.MiningModel {
	t.Helper()
	mining, ok := model.(*pmml.MiningModel)
	require.True(t, ok, "expected a mining model, got %T", model)
	return mining
}

func regressionModel(t *testing.T, model pmml.Model) *pmml.RegressionModel {
	t.Helper()
	regression, ok := model.(*pmml.RegressionModel)
	require.True(t, ok, "expected a regression model, got %T", model)
	return regression
}

func TestEnsembleInterceptFold(t *testing.T) {
	m := modeltest.NewRegression(1,
		splitTree(0, 1, -1, 1),
		modeltest.Stump(0.3),
		modeltest.Stump(0),
		splitTree(0, 2, -2, 2),
	)
	doc := convert(t, decode(t, m.JSON()), nil)

	model := miningModel(t, doc.Model)
	assert.Equal(t, pmml.MultipleModelMethodSum, model.Segmentation.MultipleModelMethod)
	assert.Len(t, model.Segmentation.Segments, 2)

	base, stump := float32(0.5), float32(0.3)
	require.NotNil(t, model.Targets)
	assert.Equal(t, []pmml.Target{{Field: DefaultTargetName, RescaleConstant: base + stump}}, model.Targets.Targets)
	assert.Equal(t, []pmml.MiningField{
		{Name: DefaultTargetName, UsageType: pmml.UsageTypeTarget},
		{Name: "f0"},
	}, model.MiningSchema.MiningFields)

	t.Run("zero intercept", func(t *testing.T) {
		m := modeltest.NewRegression(1, splitTree(0, 1, -1, 1))
		m.BaseScore = 0
		model := miningModel(t, convert(t, decode(t, m.JSON()), nil).Model)
		assert.Nil(t, model.Targets)
	})
}

func TestEnsembleDart(t *testing.T) {
	trees := []modeltest.Tree{splitTree(0, 1, -1, 1), modeltest.Stump(0.2), splitTree(0, 2, -2, 2)}

	t.Run("weighted", func(t *testing.T) {
		m := modeltest.NewRegression(1, trees...)
		m.Booster = "dart"
		m.WeightDrop = []float32{0.5, 1, 0.25}
		model := miningModel(t, convert(t, decode(t, m.JSON()), nil).Model)

		segmentation := model.Segmentation
		assert.Equal(t, pmml.MultipleModelMethodWeightedSum, segmentation.MultipleModelMethod)
		// constant trees stay segments when weights differ
		require.Len(t, segmentation.Segments, 3)
		for i, want := range []float32{0.5, 1, 0.25} {
			require.NotNil(t, segmentation.Segments[i].Weight)
			assert.Equal(t, want, *segmentation.Segments[i].Weight)
		}
		assert.Equal(t, float32(0.5), model.Targets.Targets[0].RescaleConstant)
	})

	t.Run("unit weights", func(t *testing.T) {
		m := modeltest.NewRegression(1, trees...)
		m.Booster = "dart"
		m.WeightDrop = []float32{1, 1, 1}
		model := miningModel(t, convert(t, decode(t, m.JSON()), nil).Model)
		assert.Equal(t, pmml.MultipleModelMethodSum, model.Segmentation.MultipleModelMethod)
		require.Len(t, model.Segmentation.Segments, 2)
		assert.Nil(t, model.Segmentation.Segments[0].Weight)
	})
}

func TestEnsembleTreeLimit(t *testing.T) {
	m := modeltest.NewRegression(1, splitTree(0, 1, -1, 1), splitTree(0, 2, -2, 2), splitTree(0, 3, -3, 3))
	learner := decode(t, m.JSON())

	model := miningModel(t, convert(t, learner, nil, WithNTreeLimit(2)).Model)
	assert.Len(t, model.Segmentation.Segments, 2)

	_, err := Convert(learner, nil, WithNTreeLimit(4))
	var structuralErr *errors.StructuralError
	assert.ErrorAs(t, err, &structuralErr)
}

func TestEnsembleRegressionLinks(t *testing.T) {
	tests := []struct {
		objective     string
		normalization pmml.NormalizationMethod
		intercept     float32
	}{
		{"reg:logistic", pmml.NormalizationMethodLogit, 0},
		{"count:poisson", pmml.NormalizationMethodExp, float32(math.Log(0.5))},
		{"reg:gamma", pmml.NormalizationMethodExp, float32(math.Log(0.5))},
	}
	for _, tt := range tests {
		t.Run(tt.objective, func(t *testing.T) {
			m := modeltest.NewRegression(1, splitTree(0, 1, -1, 1))
			m.Objective = tt.objective
			chain := miningModel(t, convert(t, decode(t, m.JSON()), nil).Model)

			assert.Equal(t, pmml.MultipleModelMethodModelChain, chain.Segmentation.MultipleModelMethod)
			assert.Equal(t, pmml.MiningFunctionRegression, chain.MiningFunction)
			require.Len(t, chain.Segmentation.Segments, 2)

			margin := miningModel(t, chain.Segmentation.Segments[0].Model)
			assert.Equal(t, marginFieldName, margin.Output.OutputFields[0].Name)
			// the margin model has no label
			assert.Equal(t, []pmml.MiningField{{Name: "f0"}}, margin.MiningSchema.MiningFields)
			if tt.intercept == 0 {
				assert.Nil(t, margin.Targets)
			} else {
				assert.InDelta(t, tt.intercept, margin.Targets.Targets[0].RescaleConstant, 1e-6)
				assert.Empty(t, margin.Targets.Targets[0].Field)
			}

			link := regressionModel(t, chain.Segmentation.Segments[1].Model)
			assert.Equal(t, tt.normalization, link.NormalizationMethod)
			assert.Equal(t, []pmml.NumericPredictor{{Name: marginFieldName, Coefficient: 1}}, link.RegressionTables[0].NumericPredictors)
		})
	}
}

func TestEnsembleBinaryClassification(t *testing.T) {
	m := modeltest.NewRegression(1, splitTree(0, 1, -1, 1))
	m.Objective = "binary:logistic"
	learner := decode(t, m.JSON())

	doc := convert(t, learner, nil)
	chain := miningModel(t, doc.Model)
	assert.Equal(t, pmml.MiningFunctionClassification, chain.MiningFunction)
	require.Len(t, chain.Segmentation.Segments, 2)

	target := doc.DataDictionary.DataField(DefaultTargetName)
	assert.Equal(t, pmml.DataTypeInteger, target.DataType)
	assert.Equal(t, []string{"0", "1"}, target.ValidValues())

	classifier := regressionModel(t, chain.Segmentation.Segments[1].Model)
	assert.Equal(t, pmml.NormalizationMethodLogit, classifier.NormalizationMethod)
	assert.Equal(t, []pmml.RegressionTable{
		{TargetCategory: "1", NumericPredictors: []pmml.NumericPredictor{{Name: marginFieldName, Coefficient: 1}}},
		{TargetCategory: "0"},
	}, classifier.RegressionTables)
	var names []string
	for _, field := range classifier.Output.OutputFields {
		names = append(names, field.Name)
	}
	assert.Equal(t, []string{"probability(0)", "probability(1)"}, names)

	t.Run("target categories", func(t *testing.T) {
		doc := convert(t, learner, nil, WithTargetName("churn"), WithTargetCategories("stay", "leave"))
		target := doc.DataDictionary.DataField("churn")
		require.NotNil(t, target)
		assert.Equal(t, pmml.DataTypeString, target.DataType)
		classifier := regressionModel(t, miningModel(t, doc.Model).Segmentation.Segments[1].Model)
		assert.Equal(t, "leave", classifier.RegressionTables[0].TargetCategory)
		assert.Equal(t, "stay", classifier.RegressionTables[1].TargetCategory)
	})

	t.Run("wrong category count", func(t *testing.T) {
		_, err := Convert(learner, nil, WithTargetCategories("a", "b", "c"))
		var validationErr *errors.ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})

	t.Run("regression with categories", func(t *testing.T) {
		m := modeltest.NewRegression(1, splitTree(0, 1, -1, 1))
		_, err := Convert(decode(t, m.JSON()), nil, WithTargetCategories("a", "b"))
		var validationErr *errors.ValidationError
		assert.ErrorAs(t, err, &validationErr)
	})
}

func TestEnsembleHinge(t *testing.T) {
	m := modeltest.NewRegression(1, splitTree(0, 1, -1, 1))
	m.Objective = "binary:hinge"
	chain := miningModel(t, convert(t, decode(t, m.JSON()), nil).Model)

	margin := miningModel(t, chain.Segmentation.Segments[0].Model)
	require.Len(t, margin.Output.OutputFields, 2)
	hinge := margin.Output.OutputFields[1]
	assert.Equal(t, "hinge(xgbValue)", hinge.Name)
	assert.Equal(t, pmml.ResultFeatureTransformedValue, hinge.Feature)
	apply, ok := hinge.Expression.(*pmml.Apply)
	require.True(t, ok)
	assert.Equal(t, "threshold", apply.Function)

	classifier := regressionModel(t, chain.Segmentation.Segments[1].Model)
	assert.Equal(t, pmml.NormalizationMethodNone, classifier.NormalizationMethod)
	assert.Equal(t, pmml.RegressionTable{
		Intercept:         1,
		TargetCategory:    "0",
		NumericPredictors: []pmml.NumericPredictor{{Name: "hinge(xgbValue)", Coefficient: -1}},
	}, classifier.RegressionTables[1])
}

func TestEnsembleMultinomial(t *testing.T) {
	m := modeltest.NewRegression(2,
		splitTree(0, 1, -1, 1), splitTree(1, 1, -1, 1), splitTree(0, 2, -2, 2),
		splitTree(1, 2, -2, 2), splitTree(0, 3, -3, 3), modeltest.Stump(0.5),
	)
	m.Objective = "multi:softprob"
	m.NumClass = 3
	m.TreeInfo = []int32{0, 1, 2, 0, 1, 2}

	for name, data := range encodings(m) {
		t.Run(name, func(t *testing.T) {
			chain := miningModel(t, convert(t, decode(t, data), nil).Model)
			assert.Equal(t, pmml.MiningFunctionClassification, chain.MiningFunction)
			segments := chain.Segmentation.Segments
			require.Len(t, segments, 4)

			for k, class := range []string{"0", "1", "2"} {
				margin := miningModel(t, segments[k].Model)
				assert.Equal(t, "xgbValue("+class+")", margin.Output.OutputFields[0].Name)
			}
			// trees 0 and 3 belong to class 0
			class0 := miningModel(t, segments[0].Model)
			assert.Len(t, class0.Segmentation.Segments, 2)
			// the stump of class 2 is folded into its intercept
			class2 := miningModel(t, segments[2].Model)
			assert.Len(t, class2.Segmentation.Segments, 1)
			assert.Equal(t, float32(1), class2.Targets.Targets[0].RescaleConstant)

			softmax := regressionModel(t, segments[3].Model)
			assert.Equal(t, pmml.NormalizationMethodSoftmax, softmax.NormalizationMethod)
			require.Len(t, softmax.RegressionTables, 3)
			assert.Equal(t, "2", softmax.RegressionTables[2].TargetCategory)
			assert.Equal(t, "xgbValue(2)", softmax.RegressionTables[2].NumericPredictors[0].Name)
			assert.Len(t, softmax.Output.OutputFields, 3)
		})
	}
}

func TestEnsembleMultiTarget(t *testing.T) {
	m := modeltest.NewRegression(1,
		splitTree(0, 1, -1, 1), splitTree(0, 2, -2, 2),
		splitTree(0, 3, -3, 3), splitTree(0, 4, -4, 4),
	)
	m.NumTarget = 2
	m.TreeInfo = []int32{0, 1, 0, 1}

	doc := convert(t, decode(t, m.JSON()), nil, WithTargetName("y"))
	chain := miningModel(t, doc.Model)
	assert.Equal(t, pmml.MissingPredictionTreatmentContinue, chain.Segmentation.MissingPredictionTreatment)
	assert.Equal(t, []pmml.MiningField{
		{Name: "y1", UsageType: pmml.UsageTypeTarget},
		{Name: "y2", UsageType: pmml.UsageTypeTarget},
		{Name: "f0"},
	}, chain.MiningSchema.MiningFields)

	require.Len(t, chain.Segmentation.Segments, 2)
	for i, name := range []string{"y1", "y2"} {
		target := miningModel(t, chain.Segmentation.Segments[i].Model)
		assert.Len(t, target.Segmentation.Segments, 2)
		assert.Equal(t, name, target.Targets.Targets[0].Field)
	}

	t.Run("uneven trees", func(t *testing.T) {
		m := modeltest.NewRegression(1, splitTree(0, 1, -1, 1), splitTree(0, 2, -2, 2), splitTree(0, 3, -3, 3))
		m.NumTarget = 2
		m.TreeInfo = []int32{0, 1, 0}
		_, err := Convert(decode(t, m.JSON()), nil)
		var structuralErr *errors.StructuralError
		assert.ErrorAs(t, err, &structuralErr)
	})
}
