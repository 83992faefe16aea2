package xgboost

import (
	"math"
	"slices"
	"strconv"

	"github.com/YuminosukeSato/xgbport/pkg/errors"
	"github.com/YuminosukeSato/xgbport/pmml"
)

// narrowing tracks the values of categorical and threshold features still
// reachable at a node. It is passed by value; each branch forks its own copy.
type narrowing struct {
	categories pmml.ValueDomain[string]
	thresholds pmml.ValueDomain[float64]
}

// encodeTree lowers a tree into a binary split tree model over schema.
func encodeTree(tree *RegTree, schema *pmml.Schema) (*pmml.TreeModel, error) {
	root, err := encodeNode(tree, 0, pmml.NewTrue(), narrowing{}, schema)
	if err != nil {
		return nil, err
	}
	model := pmml.NewTreeModel(pmml.MiningFunctionRegression, pmml.MiningSchema{}, root)
	model.MathContext = pmml.MathContextFloat
	return model, nil
}

func encodeNode(tree *RegTree, index int, predicate pmml.Predicate, domain narrowing, schema *pmml.Schema) (*pmml.Node, error) {
	id := strconv.Itoa(index)
	node := &tree.Nodes[index]
	if node.IsLeaf() {
		return pmml.NewLeaf(id, predicate, node.LeafValue()+0), nil
	}

	splitIndex := node.SplitIndex()
	feature, err := schema.Feature(splitIndex)
	if err != nil {
		return nil, errors.NewSchemaError("", splitIndex, err.Error())
	}
	_, categorical := feature.(*pmml.CategoricalFeature)
	switch {
	case categorical && node.SplitType() != SplitCategorical:
		return nil, errors.NewSchemaError(feature.Name(), splitIndex, "expected a categorical split on categorical feature, got "+node.SplitType().String())
	case !categorical && node.SplitType() != SplitNumerical:
		return nil, errors.NewSchemaError(feature.Name(), splitIndex, "expected a numerical split, got "+node.SplitType().String())
	}

	defaultLeft := node.DefaultLeft()
	swap := false
	left, right := domain, domain
	var leftPredicate, rightPredicate pmml.Predicate

	switch f := feature.(type) {
	case *pmml.CategoricalFeature:
		bitset := node.Categories()
		if bitset == nil {
			category, ok := legacyCategory(node)
			if !ok || category >= f.Size() {
				return nil, errors.NewSchemaError(f.Name(), splitIndex, "invalid category index "+pmml.FormatFloat32(node.SplitValue()))
			}
			bitset = BitsetOf(category)
		}
		if indices := bitset.Indices(); len(indices) > 0 && indices[len(indices)-1] >= f.Size() {
			return nil, errors.NewSchemaError(f.Name(), splitIndex,
				"category index "+strconv.Itoa(indices[len(indices)-1])+" outside domain of size "+strconv.Itoa(f.Size()))
		}
		reachable, narrowed := domain.categories.Values(f.Name())
		var leftValues, rightValues []string
		for i, value := range f.Values() {
			if narrowed && !slices.Contains(reachable, value) {
				continue
			}
			if bitset.Test(i) {
				rightValues = append(rightValues, value)
			} else {
				leftValues = append(leftValues, value)
			}
		}
		left.categories = domain.categories.Narrow(f.Name(), leftValues)
		right.categories = domain.categories.Narrow(f.Name(), rightValues)

		leftPredicate = valuesPredicate(f.Field(), leftValues)
		rightPredicate = valuesPredicate(f.Field(), rightValues)
		if bitset.Count() == 1 && len(rightValues) == 1 && len(leftValues) >= 2 {
			leftPredicate = pmml.NewSimplePredicate(f.Name(), pmml.OperatorNotEqual, rightValues[0])
		}

	case *pmml.BinaryFeature:
		leftPredicate = pmml.NewSimplePredicate(f.Name(), pmml.OperatorNotEqual, f.Value())
		rightPredicate = pmml.NewSimplePredicate(f.Name(), pmml.OperatorEqual, f.Value())
		defaultLeft = true

	case *pmml.MissingValueFeature:
		leftPredicate = pmml.NewSimplePredicate(f.Name(), pmml.OperatorIsNotMissing, "")
		rightPredicate = pmml.NewSimplePredicate(f.Name(), pmml.OperatorIsMissing, "")

	case *pmml.ThresholdFeature:
		split := node.SplitValue()
		keepNaN := math.IsNaN(f.MissingValue)
		var leftValues, rightValues []float64
		for _, value := range domain.thresholds.ValuesOr(f.Name(), f.Values()) {
			if math.IsNaN(value) && !keepNaN {
				continue
			}
			if float32(value) < split {
				leftValues = append(leftValues, value)
			} else if float32(value) >= split {
				rightValues = append(rightValues, value)
			}
		}
		left.thresholds = domain.thresholds.Narrow(f.Name(), leftValues)
		right.thresholds = domain.thresholds.Narrow(f.Name(), rightValues)

		leftPredicate = thresholdPredicate(f, leftValues)
		rightPredicate = thresholdPredicate(f, rightValues)
		swap = !isMissingValueSafe(leftPredicate) && isMissingValueSafe(rightPredicate)

	default:
		continuous, err := toContinuousFeature(feature, splitIndex)
		if err != nil {
			return nil, err
		}
		boundary := formatBoundary(node.SplitValue(), continuous.DataType())
		leftPredicate = pmml.NewSimplePredicate(continuous.Name(), pmml.OperatorLessThan, boundary)
		rightPredicate = pmml.NewSimplePredicate(continuous.Name(), pmml.OperatorGreaterOrEqual, boundary)
	}

	leftChild, err := encodeNode(tree, int(node.Left), leftPredicate, left, schema)
	if err != nil {
		return nil, err
	}
	rightChild, err := encodeNode(tree, int(node.Right), rightPredicate, right, schema)
	if err != nil {
		return nil, err
	}

	result := pmml.NewBranch(id, predicate, leftChild, rightChild)
	if defaultLeft {
		result.DefaultChild = leftChild
	} else {
		result.DefaultChild = rightChild
	}
	if swap {
		result.Children[0], result.Children[1] = result.Children[1], result.Children[0]
	}
	return result, nil
}

// legacyCategory reads the category index a one-hot categorical split stores
// in its split condition.
func legacyCategory(node *Node) (int, bool) {
	value := float64(node.SplitValue())
	if value < 0 || value >= maxNodes || value != math.Trunc(value) {
		return 0, false
	}
	return int(value), true
}

// formatBoundary renders a split condition for a field of the given type.
// Integer fields compare against the smallest integer not below the condition.
func formatBoundary(value float32, dataType pmml.DataType) string {
	if dataType != pmml.DataTypeInteger || math.IsNaN(float64(value)) || math.IsInf(float64(value), 0) {
		return pmml.FormatFloat32(value)
	}
	ceiled := math.Ceil(float64(value))
	if ceiled < math.MinInt64 || ceiled >= math.MaxInt64 {
		return strconv.FormatFloat(ceiled, 'f', -1, 64)
	}
	return strconv.FormatInt(int64(ceiled), 10)
}

func arrayType(field *pmml.DataField) string {
	switch field.DataType {
	case pmml.DataTypeInteger:
		return "int"
	case pmml.DataTypeFloat, pmml.DataTypeDouble:
		return "real"
	default:
		return "string"
	}
}

// valuesPredicate tests membership in values: False when empty, equality for
// a single value, a set test otherwise.
func valuesPredicate(field *pmml.DataField, values []string) pmml.Predicate {
	switch len(values) {
	case 0:
		return pmml.NewFalse()
	case 1:
		return pmml.NewSimplePredicate(field.Name, pmml.OperatorEqual, values[0])
	default:
		return pmml.NewSimpleSetPredicate(field.Name, pmml.SetOperatorIsIn, arrayType(field), values)
	}
}

// thresholdPredicate tests membership in values. The missing value sentinel is
// matched with isMissing instead of by value.
func thresholdPredicate(f *pmml.ThresholdFeature, values []float64) pmml.Predicate {
	hasMissing := false
	var formatted []string
	for _, value := range values {
		if value == f.MissingValue || (math.IsNaN(value) && math.IsNaN(f.MissingValue)) {
			hasMissing = true
			continue
		}
		formatted = append(formatted, f.Format(value))
	}
	base := valuesPredicate(f.Field(), formatted)
	if !hasMissing {
		return base
	}
	isMissing := pmml.NewSimplePredicate(f.Name(), pmml.OperatorIsMissing, "")
	if pmml.IsFalse(base) {
		return isMissing
	}
	return pmml.NewCompoundPredicate(pmml.BooleanOperatorOr, isMissing, base)
}

// isMissingValueSafe reports whether a predicate has a defined value when its
// field is missing.
func isMissingValueSafe(p pmml.Predicate) bool {
	switch x := p.(type) {
	case *pmml.True, *pmml.False:
		return true
	case *pmml.SimplePredicate:
		return x.Operator == pmml.OperatorIsMissing || x.Operator == pmml.OperatorIsNotMissing
	case *pmml.CompoundPredicate:
		if x.Operator != pmml.BooleanOperatorOr {
			return false
		}
		return slices.ContainsFunc(x.Predicates, isMissingValueSafe)
	default:
		return false
	}
}
