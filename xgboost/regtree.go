package xgboost

import (
	"fmt"
	"slices"

	"github.com/YuminosukeSato/xgbport/pkg/errors"
	"github.com/YuminosukeSato/xgbport/xgboost/input"
)

// maxNodes bounds the node count of a single tree read from the binary layout.
const maxNodes = 1 << 26

// preallocNodes bounds the slots reserved for a node or tree count read from
// the binary layout.
const preallocNodes = 1 << 12

// RegTree is one regression tree. Node 0 is the root.
type RegTree struct {
	NumRoots       int
	NumNodes       int
	NumDeleted     int
	MaxDepth       int
	NumFeature     int
	SizeLeafVector int

	Nodes []Node
	Stats []NodeStat // binary layout only
}

func (t *RegTree) loadBinary(r *input.Reader) error {
	header, err := r.ReadInts("tree_param", 6)
	if err != nil {
		return err
	}
	t.NumRoots = int(header[0])
	t.NumNodes = int(header[1])
	t.NumDeleted = int(header[2])
	t.MaxDepth = int(header[3])
	t.NumFeature = int(header[4])
	t.SizeLeafVector = int(header[5])
	if err := r.ReadReserved("tree_param.reserved", 31); err != nil {
		return err
	}
	if t.NumNodes < 0 || t.NumNodes > maxNodes {
		return errors.NewFormatErrorf("tree_param.num_nodes", r.Offset(), "invalid node count %d", t.NumNodes)
	}

	// The node count is untrusted until the records behind it have been read.
	t.Nodes = make([]Node, 0, min(t.NumNodes, preallocNodes))
	for i := 0; i < t.NumNodes; i++ {
		record, err := r.ReadInts("node", 5)
		if err != nil {
			return err
		}
		t.Nodes = append(t.Nodes, NewLegacyNode(record[0], record[1], record[2], uint32(record[3]), uint32(record[4])))
	}

	t.Stats = make([]NodeStat, t.NumNodes)
	for i := range t.Stats {
		values, err := r.ReadFloats("node_stat", 3)
		if err != nil {
			return err
		}
		count, err := r.ReadInt("node_stat.leaf_child_cnt")
		if err != nil {
			return err
		}
		t.Stats[i] = NodeStat{LossChg: values[0], SumHess: values[1], BaseWeight: values[2], LeafChildCnt: count}
	}
	return t.validate()
}

func (t *RegTree) loadValue(tree *input.Value) error {
	param, err := tree.Object("tree_param")
	if err != nil {
		return err
	}
	if t.NumNodes, err = param.Int("num_nodes"); err != nil {
		return err
	}
	if t.NumDeleted, err = param.Int("num_deleted"); err != nil {
		return err
	}
	if t.NumFeature, err = param.Int("num_feature"); err != nil {
		return err
	}
	if t.SizeLeafVector, err = param.Int("size_leaf_vector"); err != nil {
		return err
	}
	t.NumRoots = 1

	parents, err := tree.IntArray("parents")
	if err != nil {
		return err
	}
	left, err := tree.IntArray("left_children")
	if err != nil {
		return err
	}
	right, err := tree.IntArray("right_children")
	if err != nil {
		return err
	}
	defaultLeft, err := tree.BoolArray("default_left")
	if err != nil {
		return err
	}
	splitIndices, err := tree.IntArray("split_indices")
	if err != nil {
		return err
	}
	splitConditions, err := tree.Float32Array("split_conditions")
	if err != nil {
		return err
	}
	var splitTypes []int32
	if tree.Has("split_type") {
		if splitTypes, err = tree.IntArray("split_type"); err != nil {
			return err
		}
	} else {
		splitTypes = make([]int32, len(splitConditions))
	}

	columns := map[string]int{
		"parents":          len(parents),
		"left_children":    len(left),
		"right_children":   len(right),
		"default_left":     len(defaultLeft),
		"split_indices":    len(splitIndices),
		"split_type":       len(splitTypes),
		"split_conditions": len(splitConditions),
	}
	for name, n := range columns {
		if n != t.NumNodes {
			return errors.NewFormatErrorf(tree.Path()+"."+name, -1, "expected %d elements, got %d", t.NumNodes, n)
		}
	}

	t.Nodes = make([]Node, t.NumNodes)
	for i := range t.Nodes {
		splitType := SplitType(splitTypes[i])
		if splitType != SplitNumerical && splitType != SplitCategorical {
			return errors.NewFormatErrorf(fmt.Sprintf("%s.split_type[%d]", tree.Path(), i), -1, "invalid split type %d", splitTypes[i])
		}
		t.Nodes[i] = NewGenericNode(parents[i], left[i], right[i], defaultLeft[i], splitIndices[i], splitType, splitConditions[i])
	}

	if slices.Contains(splitTypes, int32(SplitCategorical)) {
		if err := t.loadCategories(tree); err != nil {
			return err
		}
	}
	return t.validate()
}

// loadCategories rebuilds the per-node category bitsets. Each categorical node,
// in tree order, owns a contiguous slice of the flat categories array.
func (t *RegTree) loadCategories(tree *input.Value) error {
	segments, err := tree.Int64Array("categories_segments")
	if err != nil {
		return err
	}
	sizes, err := tree.Int64Array("categories_sizes")
	if err != nil {
		return err
	}
	nodes, err := tree.IntArray("categories_nodes")
	if err != nil {
		return err
	}
	categories, err := tree.IntArray("categories")
	if err != nil {
		return err
	}
	if len(segments) != len(nodes) || len(sizes) != len(nodes) {
		return errors.NewFormatErrorf(tree.Path()+".categories_nodes", -1,
			"segment arrays disagree: %d nodes, %d segments, %d sizes", len(nodes), len(segments), len(sizes))
	}

	for k, nodeID := range nodes {
		field := fmt.Sprintf("%s.categories_nodes[%d]", tree.Path(), k)
		if nodeID < 0 || int(nodeID) >= t.NumNodes {
			return errors.NewFormatErrorf(field, -1, "node %d outside tree of %d nodes", nodeID, t.NumNodes)
		}
		begin, end := segments[k], segments[k]+sizes[k]
		if begin < 0 || sizes[k] < 0 || end > int64(len(categories)) {
			return errors.NewFormatErrorf(field, -1, "segment [%d, %d) outside %d categories", begin, end, len(categories))
		}
		slice := categories[begin:end]
		if len(slice) == 0 {
			return errors.NewFormatErrorf(field, -1, "node %d has an empty category set", nodeID)
		}
		indices := make([]int, len(slice))
		for j, c := range slice {
			if c < 0 {
				return errors.NewFormatErrorf(field, -1, "negative category %d", c)
			}
			indices[j] = int(c)
		}
		t.Nodes[nodeID].categories = BitsetOf(indices...)
	}
	return nil
}

// validate checks that the child links form a tree rooted at node 0.
func (t *RegTree) validate() error {
	if t.NumNodes == 0 {
		return errors.NewFormatErrorf("tree_param.num_nodes", -1, "tree has no nodes")
	}
	referenced := make([]bool, t.NumNodes)
	for i := range t.Nodes {
		node := &t.Nodes[i]
		if node.IsLeaf() {
			continue
		}
		for _, child := range []int32{node.Left, node.Right} {
			if child <= 0 || int(child) >= t.NumNodes || referenced[child] {
				return errors.NewFormatErrorf(fmt.Sprintf("node[%d]", i), -1, "invalid child reference %d", child)
			}
			referenced[child] = true
		}
	}
	return nil
}

// RootLeafValue returns the score of the tree when its root is a leaf.
func (t *RegTree) RootLeafValue() (float32, bool) {
	root := &t.Nodes[0]
	if !root.IsLeaf() {
		return 0, false
	}
	return root.LeafValue(), true
}

// HasCategoricalSplits reports whether any branch is a categorical split.
func (t *RegTree) HasCategoricalSplits() bool {
	for i := range t.Nodes {
		if !t.Nodes[i].IsLeaf() && t.Nodes[i].SplitType() == SplitCategorical {
			return true
		}
	}
	return false
}

// SplitTypes returns the distinct split types used on feature splitIndex.
func (t *RegTree) SplitTypes(splitIndex int) []SplitType {
	var result []SplitType
	for i := range t.Nodes {
		node := &t.Nodes[i]
		if node.IsLeaf() || node.SplitIndex() != splitIndex {
			continue
		}
		if !slices.Contains(result, node.SplitType()) {
			result = append(result, node.SplitType())
		}
	}
	return result
}

// SplitCategories returns the union of the category bitsets of all splits on
// feature splitIndex, or nil when there are none.
func (t *RegTree) SplitCategories(splitIndex int) *Bitset {
	var result *Bitset
	for i := range t.Nodes {
		node := &t.Nodes[i]
		if node.IsLeaf() || node.SplitIndex() != splitIndex || node.Categories() == nil {
			continue
		}
		result = result.Union(node.Categories())
	}
	return result
}
