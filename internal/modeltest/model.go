// Package modeltest builds small boosted tree models in every on-disk
// encoding the decoder accepts, so tests can start from bytes instead of
// checked-in model files.
package modeltest

import "slices"

// Node is one node of a fixture tree. Leaves have Left == -1 and carry their
// score in Value.
type Node struct {
	Left, Right int32
	SplitIndex  int32
	Categorical bool
	DefaultLeft bool
	// Value is the split condition of a numerical split or the score of a leaf.
	Value float32
	// Categories are the category codes sent right by a categorical split.
	Categories []int32
}

// Leaf returns a leaf scoring value.
func Leaf(value float32) Node {
	return Node{Left: -1, Right: -1, Value: value}
}

// Split returns a numerical split sending values below cond left.
func Split(feature int32, cond float32, left, right int32, defaultLeft bool) Node {
	return Node{Left: left, Right: right, SplitIndex: feature, DefaultLeft: defaultLeft, Value: cond}
}

// CategoricalSplit returns a split sending the listed categories right.
func CategoricalSplit(feature int32, categories []int32, left, right int32, defaultLeft bool) Node {
	return Node{
		Left:        left,
		Right:       right,
		SplitIndex:  feature,
		Categorical: true,
		DefaultLeft: defaultLeft,
		Value:       float32(len(categories)),
		Categories:  slices.Clone(categories),
	}
}

// Tree is a fixture tree. Node 0 is the root.
type Tree struct {
	Nodes []Node
}

// NewTree creates a tree from its nodes in index order.
func NewTree(nodes ...Node) Tree {
	return Tree{Nodes: nodes}
}

// Stump returns a single-leaf tree.
func Stump(value float32) Tree {
	return NewTree(Leaf(value))
}

func (t Tree) parents() []int32 {
	parents := make([]int32, len(t.Nodes))
	parents[0] = -1
	for i, node := range t.Nodes {
		if node.Left < 0 {
			continue
		}
		parents[node.Left] = int32(i)
		parents[node.Right] = int32(i)
	}
	return parents
}

func (t Tree) hasCategories() bool {
	return slices.ContainsFunc(t.Nodes, func(n Node) bool { return n.Categorical })
}

// Model describes a learner. BaseScore is stored as given: in probability
// space for format versions 1.0 and later, in margin space before.
type Model struct {
	Objective  string
	Booster    string // "gbtree" or "dart"
	BaseScore  float32
	NumFeature int
	NumClass   int
	NumTarget  int
	Major      int
	Minor      int

	Trees      []Tree
	TreeInfo   []int32 // output group per tree; zeros when nil
	WeightDrop []float32

	Attributes   map[string]string
	EvalMetrics  []string // binary layout before 1.0 only
	FeatureNames []string
	FeatureTypes []string
}

// NewRegression returns a squared error regressor over numFeature features.
func NewRegression(numFeature int, trees ...Tree) *Model {
	return &Model{
		Objective:  "reg:squarederror",
		Booster:    "gbtree",
		BaseScore:  0.5,
		NumFeature: numFeature,
		Major:      1,
		Minor:      7,
		Trees:      trees,
	}
}

func (m *Model) booster() string {
	if m.Booster == "" {
		return "gbtree"
	}
	return m.Booster
}

func (m *Model) treeInfo() []int32 {
	if m.TreeInfo != nil {
		return m.TreeInfo
	}
	return make([]int32, len(m.Trees))
}

func (m *Model) numFeature(t Tree) int {
	n := m.NumFeature
	for _, node := range t.Nodes {
		if node.Left >= 0 {
			n = max(n, int(node.SplitIndex)+1)
		}
	}
	return n
}
