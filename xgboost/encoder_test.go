package xgboost

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/xgbport/internal/modeltest"
	"github.com/YuminosukeSato/xgbport/internal/treeeval"
	"github.com/YuminosukeSato/xgbport/pkg/errors"
	"github.com/YuminosukeSato/xgbport/pmml"
)

func TestFormatBoundary(t *testing.T) {
	tests := []struct {
		value    float32
		dataType pmml.DataType
		want     string
	}{
		{1.5, pmml.DataTypeInteger, "2"},
		{1.5, pmml.DataTypeFloat, "1.5"},
		{2, pmml.DataTypeInteger, "2"},
		{-0.5, pmml.DataTypeInteger, "0"},
		{-1.5, pmml.DataTypeInteger, "-1"},
		{0.1, pmml.DataTypeFloat, "0.1"},
		{0.1, pmml.DataTypeDouble, "0.1"},
		{float32(math.Inf(1)), pmml.DataTypeInteger, "+Inf"},
		// beyond the int64 range
		{1e20, pmml.DataTypeInteger, "100000002004087734272"},
		{-1e20, pmml.DataTypeInteger, "-100000002004087734272"},
		{-1 << 63, pmml.DataTypeInteger, "-9223372036854775808"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatBoundary(tt.value, tt.dataType))
		})
	}
}

func parseFeatureMap(t *testing.T, text string) *FeatureMap {
	t.Helper()
	fmap, err := ParseFeatureMap(strings.NewReader(text))
	require.NoError(t, err)
	return fmap
}

// firstTree returns the first tree of a plain regression document.
func firstTree(t *testing.T, doc *pmml.PMML) *pmml.TreeModel {
	t.Helper()
	mining, ok := doc.Model.(*pmml.MiningModel)
	require.True(t, ok)
	require.NotEmpty(t, mining.Segmentation.Segments)
	tree, ok := mining.Segmentation.Segments[0].Model.(*pmml.TreeModel)
	require.True(t, ok)
	return tree
}

// binaryTrees keeps the encoded trees as they are lowered.
var binaryTrees = []Option{WithCompact(false), WithPrune(false)}

func TestEncodeNumericalSplit(t *testing.T) {
	m := modeltest.NewRegression(2, modeltest.NewTree(
		modeltest.Split(0, 1.5, 1, 2, true),
		modeltest.Leaf(-1),
		modeltest.Split(1, 0.25, 3, 4, false),
		modeltest.Leaf(2),
		modeltest.Leaf(3),
	))
	learner := decode(t, m.JSON())
	doc := convert(t, learner, parseFeatureMap(t, "0\tage\tint\n1\tincome\tfloat\n"), binaryTrees...)

	tree := firstTree(t, doc)
	assert.Equal(t, pmml.MissingValueStrategyDefaultChild, tree.MissingValueStrategy)
	assert.Equal(t, pmml.MathContextFloat, tree.MathContext)

	root := tree.Node
	require.Len(t, root.Children, 2)
	assert.Same(t, root.Children[0], root.DefaultChild)
	assert.Equal(t, pmml.NewSimplePredicate("age", pmml.OperatorLessThan, "2"), root.Children[0].Predicate)
	assert.Equal(t, pmml.NewSimplePredicate("age", pmml.OperatorGreaterOrEqual, "2"), root.Children[1].Predicate)

	right := root.Children[1]
	assert.Same(t, right.Children[1], right.DefaultChild)
	assert.Equal(t, pmml.NewSimplePredicate("income", pmml.OperatorLessThan, "0.25"), right.Children[0].Predicate)
	assert.Equal(t, float32(3), *right.Children[1].Score)

	assert.Equal(t, []pmml.MiningField{{Name: "age"}, {Name: "income"}}, tree.MiningSchema.MiningFields)

	// NaN is only declared missing on floating point fields
	assert.Empty(t, doc.DataDictionary.DataField("age").MissingValues())
	assert.Equal(t, []string{"NaN"}, doc.DataDictionary.DataField("income").MissingValues())
}

func TestEncodeMissingSentinel(t *testing.T) {
	m := modeltest.NewRegression(2, modeltest.NewTree(
		modeltest.Split(0, 1.5, 1, 2, true),
		modeltest.Leaf(-1),
		modeltest.Leaf(1),
	))
	doc := convert(t, decode(t, m.JSON()), parseFeatureMap(t, "0\tage\tint\n1\tincome\tq\n"), WithMissing(-999))
	assert.Equal(t, []string{"-999"}, doc.DataDictionary.DataField("age").MissingValues())
	// income is never split on
	assert.Empty(t, doc.DataDictionary.DataField("income").MissingValues())
}

func TestEncodeCategoricalSplit(t *testing.T) {
	external := "0\tregion=north\ti\n1\tregion=south\ti\n2\tregion=east\ti\n3\tx\tq\n"

	tests := []struct {
		name       string
		categories []int32
		left       pmml.Predicate
		right      pmml.Predicate
	}{
		{
			name:       "single category goes right",
			categories: []int32{1},
			left:       pmml.NewSimplePredicate("region", pmml.OperatorNotEqual, "south"),
			right:      pmml.NewSimplePredicate("region", pmml.OperatorEqual, "south"),
		},
		{
			name:       "category set goes right",
			categories: []int32{0, 2},
			left:       pmml.NewSimplePredicate("region", pmml.OperatorEqual, "south"),
			right:      pmml.NewSimpleSetPredicate("region", pmml.SetOperatorIsIn, "string", []string{"north", "east"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := modeltest.NewRegression(2, modeltest.NewTree(
				modeltest.CategoricalSplit(0, tt.categories, 1, 2, false),
				modeltest.Leaf(-1),
				modeltest.Leaf(1),
			))
			m.FeatureNames = []string{"region", "x"}
			m.FeatureTypes = []string{"c", "q"}

			doc := convert(t, decode(t, m.JSON()), parseFeatureMap(t, external), binaryTrees...)
			root := firstTree(t, doc).Node
			assert.Equal(t, tt.left, root.Children[0].Predicate)
			assert.Equal(t, tt.right, root.Children[1].Predicate)
			assert.Same(t, root.Children[1], root.DefaultChild)

			region := doc.DataDictionary.DataField("region")
			assert.Equal(t, []string{"north", "south", "east"}, region.ValidValues())
		})
	}
}

func TestEncodeCategoricalNarrowing(t *testing.T) {
	m := modeltest.NewRegression(1, modeltest.NewTree(
		modeltest.CategoricalSplit(0, []int32{0}, 1, 2, true),
		modeltest.CategoricalSplit(0, []int32{1}, 3, 4, true),
		modeltest.Leaf(1),
		modeltest.Leaf(2),
		modeltest.Leaf(3),
	))
	m.FeatureNames = []string{"region"}
	m.FeatureTypes = []string{"c"}
	external := "0\tregion=north\ti\n1\tregion=south\ti\n2\tregion=east\ti\n"

	doc := convert(t, decode(t, m.UBJSON()), parseFeatureMap(t, external), binaryTrees...)
	left := firstTree(t, doc).Node.Children[0]
	assert.Equal(t, pmml.NewSimplePredicate("region", pmml.OperatorNotEqual, "north"), left.Predicate)
	// north can no longer reach this split
	assert.Equal(t, pmml.NewSimplePredicate("region", pmml.OperatorEqual, "east"), left.Children[0].Predicate)
	assert.Equal(t, pmml.NewSimplePredicate("region", pmml.OperatorEqual, "south"), left.Children[1].Predicate)
}

func TestEncodeIndexRange(t *testing.T) {
	m := modeltest.NewRegression(1, modeltest.NewTree(
		modeltest.CategoricalSplit(0, []int32{0, 2, 5}, 1, 2, false),
		modeltest.Leaf(-1),
		modeltest.Leaf(1),
	))
	doc := convert(t, decode(t, m.JSON()), parseFeatureMap(t, "0\tcode\tc\n"), binaryTrees...)
	root := firstTree(t, doc).Node
	assert.Equal(t, pmml.NewSimpleSetPredicate("code", pmml.SetOperatorIsIn, "string", []string{"1", "3", "4"}), root.Children[0].Predicate)
	assert.Equal(t, pmml.NewSimpleSetPredicate("code", pmml.SetOperatorIsIn, "string", []string{"0", "2", "5"}), root.Children[1].Predicate)
}

func TestEncodeNumericalSplitOnCategorical(t *testing.T) {
	m := modeltest.NewRegression(1, modeltest.NewTree(
		modeltest.Split(0, 0.5, 1, 2, false),
		modeltest.Leaf(-1),
		modeltest.Leaf(1),
	))
	learner := decode(t, m.JSON())
	fmap := "0\tcode\tc\n"

	t.Run("numeric", func(t *testing.T) {
		doc := convert(t, learner, parseFeatureMap(t, fmap), binaryTrees...)
		field := doc.DataDictionary.DataField("code")
		assert.Equal(t, pmml.OpTypeContinuous, field.OpType)
		assert.Equal(t, pmml.DataTypeInteger, field.DataType)
		assert.Equal(t, pmml.NewSimplePredicate("code", pmml.OperatorLessThan, "1"), firstTree(t, doc).Node.Children[0].Predicate)
	})

	t.Run("index range stays an integer without numeric", func(t *testing.T) {
		doc := convert(t, learner, parseFeatureMap(t, fmap), WithNumeric(false), WithCompact(false), WithPrune(false))
		assert.Equal(t, pmml.DataTypeInteger, doc.DataDictionary.DataField("code").DataType)
		assert.Equal(t, pmml.NewSimplePredicate("code", pmml.OperatorGreaterOrEqual, "1"), firstTree(t, doc).Node.Children[1].Predicate)
	})
}

func TestEncodeOrdinalSplit(t *testing.T) {
	m := modeltest.NewRegression(1, modeltest.NewTree(
		modeltest.Split(0, 1.5, 1, 2, false),
		modeltest.Leaf(-1),
		modeltest.Leaf(1),
	))
	m.FeatureNames = []string{"size"}
	m.FeatureTypes = []string{"c"}
	learner := decode(t, m.JSON())
	external := "0\tsize=small\ti\n1\tsize=medium\ti\n2\tsize=large\ti\n"

	t.Run("values on both sides", func(t *testing.T) {
		doc := convert(t, learner, parseFeatureMap(t, external), WithNumeric(false), WithCompact(false), WithPrune(false))
		root := firstTree(t, doc).Node
		assert.Equal(t, pmml.NewSimpleSetPredicate("size", pmml.SetOperatorIsIn, "string", []string{"small", "medium"}), root.Children[0].Predicate)
		assert.Equal(t, pmml.NewSimplePredicate("size", pmml.OperatorEqual, "large"), root.Children[1].Predicate)
		assert.Equal(t, pmml.OpTypeCategorical, doc.DataDictionary.DataField("size").OpType)
	})

	t.Run("missing sentinel", func(t *testing.T) {
		doc := convert(t, learner, parseFeatureMap(t, external),
			WithNumeric(false), WithCompact(false), WithPrune(false), WithMissing(2))
		root := firstTree(t, doc).Node
		// the missing-safe side comes first
		assert.Equal(t, pmml.NewSimplePredicate("size", pmml.OperatorIsMissing, ""), root.Children[0].Predicate)
		assert.Equal(t, pmml.NewSimpleSetPredicate("size", pmml.SetOperatorIsIn, "string", []string{"small", "medium"}), root.Children[1].Predicate)
	})

	t.Run("numeric rejects declared values", func(t *testing.T) {
		_, err := Convert(learner, parseFeatureMap(t, external))
		var schemaErr *errors.SchemaError
		assert.ErrorAs(t, err, &schemaErr)
	})
}

func TestEncodeMissingFlag(t *testing.T) {
	m := modeltest.NewRegression(2, modeltest.NewTree(
		modeltest.Split(1, 0.5, 1, 2, true),
		modeltest.Split(0, 30, 3, 4, true),
		modeltest.Leaf(5),
		modeltest.Leaf(1),
		modeltest.Leaf(2),
	))
	m.BaseScore = 0
	fmap := parseFeatureMap(t, "0\tage\tq\n1\tage=NaN\ti\n")
	fmap.AddMissingValue("NaN")

	doc := convert(t, decode(t, m.JSON()), fmap, binaryTrees...)
	root := firstTree(t, doc).Node
	assert.Equal(t, pmml.NewSimplePredicate("age", pmml.OperatorIsNotMissing, ""), root.Children[0].Predicate)
	assert.Equal(t, pmml.NewSimplePredicate("age", pmml.OperatorIsMissing, ""), root.Children[1].Predicate)

	evaluator := treeeval.New(doc)
	tests := []struct {
		row  treeeval.Row
		want float64
	}{
		{treeeval.Row{}, 5},
		{treeeval.Row{"age": "NaN"}, 5},
		{treeeval.Row{"age": "20"}, 1},
		{treeeval.Row{"age": "40"}, 2},
	}
	for _, tt := range tests {
		result, err := evaluator.Evaluate(tt.row)
		require.NoError(t, err)
		assert.Equal(t, tt.want, result.Value, tt.row)
	}
}

func TestEncodeCategoryOutsideDomain(t *testing.T) {
	m := modeltest.NewRegression(1, modeltest.NewTree(
		modeltest.CategoricalSplit(0, []int32{1, 3}, 1, 2, false),
		modeltest.Leaf(-1),
		modeltest.Leaf(1),
	))
	m.FeatureNames = []string{"region"}
	m.FeatureTypes = []string{"c"}

	_, err := Convert(decode(t, m.JSON()), parseFeatureMap(t, "0\tregion=north\ti\n1\tregion=south\ti\n"))
	var schemaErr *errors.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Contains(t, err.Error(), "category index 3")
}

func TestEncodeBinaryFeature(t *testing.T) {
	m := modeltest.NewRegression(2, modeltest.NewTree(
		modeltest.Split(1, 0.5, 1, 2, false),
		modeltest.Leaf(-1),
		modeltest.Leaf(1),
	))
	doc := convert(t, decode(t, m.JSON()), parseFeatureMap(t, "0\tcolor=red\ti\n1\tcolor=blue\ti\n"), binaryTrees...)
	root := firstTree(t, doc).Node
	assert.Equal(t, pmml.NewSimplePredicate("color", pmml.OperatorNotEqual, "blue"), root.Children[0].Predicate)
	assert.Equal(t, pmml.NewSimplePredicate("color", pmml.OperatorEqual, "blue"), root.Children[1].Predicate)
	// indicators send missing values left
	assert.Same(t, root.Children[0], root.DefaultChild)
}

func TestEncodeSchemaErrors(t *testing.T) {
	numerical := modeltest.NewTree(
		modeltest.Split(2, 0.5, 1, 2, false),
		modeltest.Leaf(-1),
		modeltest.Leaf(1),
	)
	categorical := modeltest.NewTree(
		modeltest.CategoricalSplit(0, []int32{1}, 1, 2, false),
		modeltest.Leaf(-1),
		modeltest.Leaf(1),
	)
	mixed := modeltest.NewTree(
		modeltest.Split(0, 0.5, 1, 2, false),
		modeltest.Leaf(-1),
		modeltest.Leaf(1),
	)

	tests := []struct {
		name  string
		trees []modeltest.Tree
		fmap  string
		// embedded feature declarations
		names, types []string
	}{
		{name: "split index outside schema", trees: []modeltest.Tree{numerical}, fmap: "0\ta\tq\n1\tb\tq\n"},
		{name: "categorical split on continuous feature", trees: []modeltest.Tree{categorical}, fmap: "0\ta\tq\n"},
		{name: "feature split both ways", trees: []modeltest.Tree{categorical, mixed}, fmap: "0\ta\tc\n"},
		{
			name:  "declared categories split as continuous",
			trees: []modeltest.Tree{mixed},
			fmap:  "0\ta=x\ti\n1\ta=y\ti\n",
			names: []string{"a"},
			types: []string{"c"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := modeltest.NewRegression(1, tt.trees...)
			m.FeatureNames = tt.names
			m.FeatureTypes = tt.types
			_, err := Convert(decode(t, m.JSON()), parseFeatureMap(t, tt.fmap))
			var schemaErr *errors.SchemaError
			assert.ErrorAs(t, err, &schemaErr)
		})
	}
}
