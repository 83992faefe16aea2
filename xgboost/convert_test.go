package xgboost

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/xgbport/internal/modeltest"
	"github.com/YuminosukeSato/xgbport/internal/treeeval"
	"github.com/YuminosukeSato/xgbport/pkg/errors"
	"github.com/YuminosukeSato/xgbport/pkg/log"
	"github.com/YuminosukeSato/xgbport/pmml"
)

const corpusRows = 400

type equivalenceCase struct {
	name  string
	model *modeltest.Model
	fmap  string
	// check compares one scored row against the reference margins.
	check func(t *testing.T, result treeeval.Result, margins []float32)
}

func checkValue(t *testing.T, result treeeval.Result, margins []float32) {
	assert.InDelta(t, float64(margins[0]), result.Value, 1e-5)
}

func checkBinomial(t *testing.T, result treeeval.Result, margins []float32) {
	assert.InDelta(t, sigmoid(margins[0]), result.Outputs["probability(1)"], 1e-5)
}

func checkMultinomial(t *testing.T, result treeeval.Result, margins []float32) {
	peak := float64(margins[0])
	for _, margin := range margins {
		peak = math.Max(peak, float64(margin))
	}
	var total float64
	expected := make([]float64, len(margins))
	for k, margin := range margins {
		expected[k] = math.Exp(float64(margin) - peak)
		total += expected[k]
	}
	for k := range expected {
		assert.InDelta(t, expected[k]/total, result.Outputs["probability("+strconv.Itoa(k)+")"], 1e-5)
	}
}

func equivalenceCases() []equivalenceCase {
	regression := modeltest.NewRegression(3, sampleTrees()...)

	logistic := modeltest.NewRegression(3, sampleTrees()...)
	logistic.Objective = "binary:logistic"

	multiclass := modeltest.NewRegression(3, append(sampleTrees(), sampleTrees()[:2]...)...)
	multiclass.Objective = "multi:softprob"
	multiclass.NumClass = 3
	multiclass.TreeInfo = []int32{0, 1, 2, 0, 1, 2}

	dart := modeltest.NewRegression(3, sampleTrees()...)
	dart.Booster = "dart"
	dart.WeightDrop = []float32{0.5, 1, 0.75, 0.25}

	categorical := modeltest.NewRegression(2,
		modeltest.NewTree(
			modeltest.CategoricalSplit(0, []int32{1, 3}, 1, 2, false),
			modeltest.Split(1, 0.5, 3, 4, true),
			modeltest.CategoricalSplit(0, []int32{3}, 5, 6, true),
			modeltest.Leaf(-1),
			modeltest.Leaf(1),
			modeltest.Leaf(0.25),
			modeltest.Leaf(0.5),
		),
		modeltest.NewTree(
			modeltest.CategoricalSplit(0, []int32{0, 4}, 1, 2, true),
			modeltest.Leaf(0.1),
			modeltest.Leaf(-0.1),
		),
	)

	return []equivalenceCase{
		{name: "regression", model: regression, check: checkValue},
		{name: "binary logistic", model: logistic, check: checkBinomial},
		{name: "multiclass", model: multiclass, check: checkMultinomial},
		{name: "dart", model: dart, check: checkValue},
		{name: "categorical", model: categorical, fmap: "0\tf0\tc\n1\tf1\tq\n", check: checkValue},
	}
}

func TestConvertEquivalence(t *testing.T) {
	for _, tc := range equivalenceCases() {
		learner := decode(t, tc.model.UBJSON())
		var fmap *FeatureMap
		if tc.fmap != "" {
			fmap = parseFeatureMap(t, tc.fmap)
		}
		for _, compact := range []bool{true, false} {
			t.Run(tc.name+"/compact="+strconv.FormatBool(compact), func(t *testing.T) {
				doc := convert(t, learner, fmap, WithCompact(compact))
				corpus := treeeval.NewCorpus(doc, corpusRows, 7)
				evaluator := treeeval.New(doc)
				for i := 0; i < corpus.Rows(); i++ {
					result, err := evaluator.Evaluate(corpus.Row(doc, i))
					require.NoError(t, err)
					tc.check(t, result, predictMargins(learner, inputs(corpus, i, learner.NumFeature)))
				}
			})
		}
	}
}

func TestConvertEquivalenceWithoutNumeric(t *testing.T) {
	indexRange := modeltest.NewRegression(1, modeltest.NewTree(
		modeltest.Split(0, 2.5, 1, 2, true),
		modeltest.Leaf(-1),
		modeltest.Leaf(1),
	))

	ordinal := modeltest.NewRegression(2, modeltest.NewTree(
		modeltest.Split(0, 2.5, 1, 2, true),
		modeltest.Split(1, 0.5, 3, 4, false),
		modeltest.Split(0, 0.5, 5, 6, false),
		modeltest.Leaf(-1),
		modeltest.Leaf(1),
		modeltest.Leaf(0.25),
		modeltest.Leaf(0.5),
	))
	ordinal.FeatureNames = []string{"f0", "f1"}
	ordinal.FeatureTypes = []string{"c", "q"}

	tests := []struct {
		name  string
		model *modeltest.Model
		fmap  string
	}{
		{name: "index range", model: indexRange, fmap: "0\tf0\tc\n"},
		{name: "declared categories", model: ordinal, fmap: "0\tf0=a\ti\n1\tf0=b\ti\n2\tf0=c\ti\n3\tf0=d\ti\n4\tf0=e\ti\n5\tf1\tq\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			learner := decode(t, tt.model.JSON())
			doc := convert(t, learner, parseFeatureMap(t, tt.fmap), WithNumeric(false), WithCompact(false))
			corpus := treeeval.NewCorpus(doc, corpusRows, 3)
			evaluator := treeeval.New(doc)
			for i := 0; i < corpus.Rows(); i++ {
				result, err := evaluator.Evaluate(corpus.Row(doc, i))
				require.NoError(t, err)
				checkValue(t, result, predictMargins(learner, inputs(corpus, i, learner.NumFeature)))
			}
		})
	}

	t.Run("codes above every split", func(t *testing.T) {
		learner := decode(t, indexRange.JSON())
		doc := convert(t, learner, parseFeatureMap(t, "0\tf0\tc\n"), WithNumeric(false), WithCompact(false))
		evaluator := treeeval.New(doc)
		for code, want := range map[string]float64{"0": -0.5, "2": -0.5, "3": 1.5, "4": 1.5, "40": 1.5} {
			result, err := evaluator.Evaluate(treeeval.Row{"f0": code})
			require.NoError(t, err)
			assert.Equal(t, want, result.Value, code)
		}
	})
}

func TestConvertPredictions(t *testing.T) {
	learner := decode(t, modeltest.NewRegression(3, sampleTrees()...).JSON())
	doc := convert(t, learner, nil)
	corpus := treeeval.NewCorpus(doc, corpusRows, 11)

	predictions, err := treeeval.New(doc).EvaluateCorpus(corpus)
	require.NoError(t, err)
	require.Equal(t, corpusRows, predictions.Len())
	for i := 0; i < corpusRows; i++ {
		want := predictMargins(learner, inputs(corpus, i, 3))[0]
		assert.InDelta(t, float64(want), predictions.AtVec(i), 1e-5)
	}
}

func TestConvertGolden(t *testing.T) {
	m := modeltest.NewRegression(2,
		modeltest.NewTree(
			modeltest.Split(0, 1.5, 1, 2, true),
			modeltest.Leaf(0.75),
			modeltest.Leaf(-0.5),
		),
		modeltest.NewTree(
			modeltest.Split(1, 0.5, 1, 2, false),
			modeltest.Leaf(0.25),
			modeltest.Leaf(-0.125),
		),
	)
	want, err := os.ReadFile(filepath.Join("testdata", "regression.pmml"))
	require.NoError(t, err)

	for format, data := range encodings(m) {
		t.Run(format, func(t *testing.T) {
			requireSameDocument(t, string(want), render(t, convert(t, decode(t, data), nil, binaryTrees...)))
		})
	}
}

func TestConvertFormatsAgree(t *testing.T) {
	regression := modeltest.NewRegression(3, sampleTrees()...)
	multiclass := modeltest.NewRegression(3, append(sampleTrees(), sampleTrees()[:2]...)...)
	multiclass.Objective = "multi:softprob"
	multiclass.NumClass = 3
	multiclass.TreeInfo = []int32{0, 1, 2, 0, 1, 2}

	for name, m := range map[string]*modeltest.Model{"regression": regression, "multiclass": multiclass} {
		want := render(t, convert(t, decode(t, m.JSON()), nil))
		for format, data := range encodings(m) {
			t.Run(name+"/"+format, func(t *testing.T) {
				requireSameDocument(t, want, render(t, convert(t, decode(t, data), nil)))
			})
		}
	}
}

func TestConvertHeader(t *testing.T) {
	m := modeltest.NewRegression(3, sampleTrees()...)
	learner := decode(t, m.JSON())
	doc := convert(t, learner, nil)

	assert.Equal(t, pmml.Namespace, doc.Xmlns)
	assert.Equal(t, pmml.Version, doc.Version)
	require.NotNil(t, doc.Header.Application)
	assert.Equal(t, ApplicationName, doc.Header.Application.Name)
	assert.Equal(t, []pmml.Extension{
		{Name: ExtensionObjective, Value: "reg:squarederror"},
		{Name: ExtensionVersion, Value: "1.7"},
		{Name: ExtensionFingerprint, Value: strconv.FormatUint(learner.Fingerprint, 16)},
	}, doc.Header.Extensions)
	assert.Equal(t, "XGBoost (GBTree)", miningModel(t, doc.Model).AlgorithmName)

	m.Booster = "dart"
	m.WeightDrop = []float32{1, 0.5, 1, 1}
	dart := convert(t, decode(t, m.JSON()), nil)
	assert.Equal(t, "XGBoost (DART)", miningModel(t, dart.Model).AlgorithmName)
}

func TestWritePMML(t *testing.T) {
	doc := convert(t, decode(t, modeltest.NewRegression(3, sampleTrees()...).JSON()), nil, WithCompact(false))

	var buf bytes.Buffer
	require.NoError(t, WritePMML(&buf, doc))
	_, err := time.Parse(time.RFC3339, doc.Header.Timestamp)
	assert.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `version="4.4"`)
	assert.Contains(t, out, `<Timestamp>`+doc.Header.Timestamp+`</Timestamp>`)
	assert.Contains(t, out, `algorithmName="XGBoost (GBTree)"`)
	assert.Contains(t, out, `<SimplePredicate field="f0" operator="lessThan" value="1.5">`)

	// an existing timestamp is kept
	doc.Header.Timestamp = "2020-01-02T03:04:05Z"
	buf.Reset()
	require.NoError(t, WritePMML(&buf, doc))
	assert.Contains(t, buf.String(), "2020-01-02T03:04:05Z")
}

func TestConvertUnusedFeatureWarning(t *testing.T) {
	var warnings []error
	errors.SetWarningHandler(func(w error) { warnings = append(warnings, w) })
	defer errors.SetWarningHandler(nil)

	m := modeltest.NewRegression(4, sampleTrees()...)
	convert(t, decode(t, m.JSON()), nil)

	require.Len(t, warnings, 1)
	var unused *errors.UnusedFeatureWarning
	require.ErrorAs(t, warnings[0], &unused)
	assert.Equal(t, "f3", unused.Feature)
	assert.Equal(t, 3, unused.Index)
}

func TestConvertLogging(t *testing.T) {
	provider, _ := log.NewTestLoggerProvider(log.LevelDebug)
	previous := log.CurrentProvider()
	log.SetProvider(provider)
	defer log.SetProvider(previous)

	convert(t, decode(t, modeltest.NewRegression(3, sampleTrees()...).JSON()), nil)

	logger := provider.Logger()
	assert.True(t, logger.ContainsMessage("document encoded"))
	assert.True(t, logger.ContainsMessage("group encoded"))
	assert.True(t, logger.ContainsField(log.ObjectiveKey, "reg:squarederror"))
	// the constant tree is folded into the intercept
	assert.True(t, logger.ContainsField(log.TreesKey, float64(3)))
}

func TestConvertInvalidOptions(t *testing.T) {
	learner := decode(t, modeltest.NewRegression(3, sampleTrees()...).JSON())
	_, err := Convert(learner, nil, WithNumeric(false))
	assert.True(t, errors.Is(err, errors.ErrConflictingOptions))
}
