package xgboost

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/xgbport/internal/modeltest"
	"github.com/YuminosukeSato/xgbport/internal/treeeval"
	"github.com/YuminosukeSato/xgbport/pmml"
)

// decode loads model bytes written by modeltest, which uses little endian.
func decode(t *testing.T, data []byte, opts ...Option) *Learner {
	t.Helper()
	opts = append([]Option{WithByteOrder("little_endian")}, opts...)
	learner, err := LoadFromBytes(data, opts...)
	require.NoError(t, err)
	return learner
}

// encodings returns every encoding of m. Categorical splits cannot be
// written in the binary layout, so those models only get the text encodings.
func encodings(m *modeltest.Model) map[string][]byte {
	result := map[string][]byte{
		"json":   m.JSON(),
		"ubjson": m.UBJSON(),
	}
	for _, tree := range m.Trees {
		for _, node := range tree.Nodes {
			if node.Categorical {
				return result
			}
		}
	}
	result["binary"] = m.Binary()
	return result
}

func convert(t *testing.T, learner *Learner, fmap *FeatureMap, opts ...Option) *pmml.PMML {
	t.Helper()
	doc, err := Convert(learner, fmap, opts...)
	require.NoError(t, err)
	return doc
}

// render writes doc without its header, which differs between encodings.
func render(t *testing.T, doc *pmml.PMML) string {
	t.Helper()
	stripped := *doc
	stripped.Header = pmml.Header{}
	var buf bytes.Buffer
	require.NoError(t, pmml.Write(&buf, &stripped))
	return buf.String()
}

// requireSameDocument fails with a readable diff when two documents differ.
func requireSameDocument(t *testing.T, want, got string) {
	t.Helper()
	if want == got {
		return
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(want, got, false)
	t.Fatalf("documents differ:\n%s", dmp.DiffPrettyText(diffs))
}

// predictLeaf walks one tree the way the boosting library does.
func predictLeaf(tree *RegTree, x []float32) float32 {
	node := &tree.Nodes[0]
	for !node.IsLeaf() {
		v := x[node.SplitIndex()]
		var left bool
		switch {
		case math.IsNaN(float64(v)):
			left = node.DefaultLeft()
		case node.SplitType() == SplitCategorical:
			left = !node.Categories().Test(int(v))
		default:
			left = v < node.SplitValue()
		}
		if left {
			node = &tree.Nodes[node.Left]
		} else {
			node = &tree.Nodes[node.Right]
		}
	}
	return node.LeafValue()
}

// predictMargins returns the raw margin of every output group.
func predictMargins(learner *Learner, x []float32) []float32 {
	booster := learner.Booster.Model()
	groups := 1
	for _, group := range booster.TreeInfo {
		groups = max(groups, int(group)+1)
	}
	margins := make([]float32, groups)
	for i := range margins {
		margins[i] = learner.BaseScore
	}
	weights := learner.Booster.TreeWeights()
	for i, tree := range booster.Trees {
		weight := float32(1)
		if weights != nil {
			weight = weights[i]
		}
		margins[booster.TreeInfo[i]] += weight * predictLeaf(tree, x)
	}
	return margins
}

// inputs converts corpus row i into a feature vector over features named
// f0..f{n-1}. Missing cells are NaN.
func inputs(corpus *treeeval.Corpus, i, n int) []float32 {
	x := make([]float32, n)
	for j := range x {
		x[j] = float32(math.NaN())
	}
	for j, name := range corpus.Fields {
		index, err := strconv.Atoi(strings.TrimPrefix(name, "f"))
		if err != nil || index >= n {
			continue
		}
		x[index] = float32(corpus.X.At(i, j))
	}
	return x
}

func sigmoid(x float32) float64 {
	return 1 / (1 + math.Exp(-float64(x)))
}

// sampleTrees returns numerical trees over three features, with splits going
// both ways on missing values.
func sampleTrees() []modeltest.Tree {
	return []modeltest.Tree{
		modeltest.NewTree(
			modeltest.Split(0, 1.5, 1, 2, true),
			modeltest.Split(1, -0.25, 3, 4, false),
			modeltest.Leaf(0.75),
			modeltest.Leaf(-0.5),
			modeltest.Leaf(0.125),
		),
		modeltest.NewTree(
			modeltest.Split(2, 10, 1, 2, false),
			modeltest.Leaf(0.2),
			modeltest.Split(0, 3, 3, 4, true),
			modeltest.Leaf(-0.3),
			modeltest.Leaf(0.05),
		),
		modeltest.Stump(0.1),
		modeltest.NewTree(
			modeltest.Split(1, 0.5, 1, 2, true),
			modeltest.Split(1, -1, 3, 4, true),
			modeltest.Leaf(-0.0625),
			modeltest.Leaf(0.4),
			modeltest.Leaf(0.3),
		),
	}
}
