package xgboost

import (
	"slices"

	"github.com/YuminosukeSato/xgbport/pkg/errors"
	"github.com/YuminosukeSato/xgbport/xgboost/input"
)

// Booster is the tree ensemble of a Learner.
type Booster interface {
	// Name is the booster name as stored in the model ("gbtree" or "dart").
	Name() string
	// AlgorithmName is the display name written to documents.
	AlgorithmName() string
	// Model returns the underlying tree ensemble.
	Model() *GBTree
	// TreeWeights returns one weight per tree, or nil when all trees weigh 1.
	TreeWeights() []float32

	loadBinary(r *input.Reader) error
	loadValue(v *input.Value) error
}

func newBooster(name string) (Booster, error) {
	switch name {
	case "gbtree":
		return &GBTree{}, nil
	case "dart":
		return &Dart{}, nil
	default:
		return nil, errors.Wrapf(errors.ErrUnknownBooster, "%q", name)
	}
}

// GBTree is a plain gradient boosted tree ensemble.
type GBTree struct {
	NumTrees       int
	NumRoots       int
	NumFeature     int
	NumOutputGroup int
	SizeLeafVector int

	Trees    []*RegTree
	TreeInfo []int32 // output group of each tree
}

func (g *GBTree) Name() string           { return "gbtree" }
func (g *GBTree) AlgorithmName() string  { return "GBTree" }
func (g *GBTree) Model() *GBTree         { return g }
func (g *GBTree) TreeWeights() []float32 { return nil }

func (g *GBTree) loadBinary(r *input.Reader) error {
	header, err := r.ReadInts("gbtree_model_param", 3)
	if err != nil {
		return err
	}
	g.NumTrees, g.NumRoots, g.NumFeature = int(header[0]), int(header[1]), int(header[2])
	if err := r.ReadReserved("gbtree_model_param.reserved", 3); err != nil {
		return err
	}
	groups, err := r.ReadInts("gbtree_model_param", 2)
	if err != nil {
		return err
	}
	g.NumOutputGroup, g.SizeLeafVector = int(groups[0]), int(groups[1])
	if err := r.ReadReserved("gbtree_model_param.reserved", 32); err != nil {
		return err
	}
	if g.NumTrees < 0 || g.NumTrees > maxNodes {
		return errors.NewFormatErrorf("gbtree_model_param.num_trees", r.Offset(), "invalid tree count %d", g.NumTrees)
	}

	g.Trees = make([]*RegTree, 0, min(g.NumTrees, preallocNodes))
	for i := 0; i < g.NumTrees; i++ {
		tree := &RegTree{}
		if err := tree.loadBinary(r); err != nil {
			return errors.Wrapf(err, "tree %d", i)
		}
		g.Trees = append(g.Trees, tree)
	}
	g.TreeInfo, err = r.ReadInts("tree_info", g.NumTrees)
	return err
}

func (g *GBTree) loadValue(booster *input.Value) error {
	model, err := booster.Object("model")
	if err != nil {
		return err
	}
	param, err := model.Object("gbtree_model_param")
	if err != nil {
		return err
	}
	if g.NumTrees, err = param.Int("num_trees"); err != nil {
		return err
	}
	if param.Has("size_leaf_vector") {
		if g.SizeLeafVector, err = param.Int("size_leaf_vector"); err != nil {
			return err
		}
	}

	trees, err := model.Array("trees")
	if err != nil {
		return err
	}
	if g.NumTrees < 0 || g.NumTrees > len(trees) {
		return errors.NewFormatErrorf(model.Path()+".trees", -1, "expected %d trees, got %d", g.NumTrees, len(trees))
	}
	g.Trees = make([]*RegTree, g.NumTrees)
	for i := range g.Trees {
		obj, err := trees[i].AsObject()
		if err != nil {
			return err
		}
		tree := &RegTree{}
		if err := tree.loadValue(obj); err != nil {
			return errors.Wrapf(err, "tree %d", i)
		}
		g.Trees[i] = tree
	}
	if g.TreeInfo, err = model.IntArray("tree_info"); err != nil {
		return err
	}
	g.NumRoots = 1
	g.NumFeature = 0
	for _, tree := range g.Trees {
		g.NumFeature = max(g.NumFeature, tree.NumFeature)
	}
	g.NumOutputGroup = 1
	for _, group := range g.TreeInfo {
		g.NumOutputGroup = max(g.NumOutputGroup, int(group)+1)
	}
	return nil
}

// HasCategoricalSplits reports whether any tree has a categorical split.
func (g *GBTree) HasCategoricalSplits() bool {
	return slices.ContainsFunc(g.Trees, (*RegTree).HasCategoricalSplits)
}

// SplitTypes returns the distinct split types used on feature splitIndex
// across the ensemble.
func (g *GBTree) SplitTypes(splitIndex int) []SplitType {
	var result []SplitType
	for _, tree := range g.Trees {
		for _, splitType := range tree.SplitTypes(splitIndex) {
			if !slices.Contains(result, splitType) {
				result = append(result, splitType)
			}
		}
	}
	return result
}

// SplitCategories returns the union of category bitsets used on feature
// splitIndex across the ensemble, or nil.
func (g *GBTree) SplitCategories(splitIndex int) *Bitset {
	var result *Bitset
	for _, tree := range g.Trees {
		if categories := tree.SplitCategories(splitIndex); categories != nil {
			result = result.Union(categories)
		}
	}
	return result
}

// Dart is a tree ensemble trained with dropout. Each tree carries a weight.
type Dart struct {
	GBTree
	WeightDrop []float32
}

func (d *Dart) Name() string           { return "dart" }
func (d *Dart) AlgorithmName() string  { return "DART" }
func (d *Dart) TreeWeights() []float32 { return d.WeightDrop }

func (d *Dart) loadBinary(r *input.Reader) error {
	if err := d.GBTree.loadBinary(r); err != nil {
		return err
	}
	if d.NumTrees == 0 {
		return nil
	}
	var err error
	d.WeightDrop, err = r.ReadFloatVector("weight_drop")
	return err
}

func (d *Dart) loadValue(booster *input.Value) error {
	gbtree, err := booster.Object("gbtree")
	if err != nil {
		return err
	}
	if err := d.GBTree.loadValue(gbtree); err != nil {
		return err
	}
	d.WeightDrop, err = booster.Float32Array("weight_drop")
	return err
}

// CategoryCount returns the number of categories feature splitIndex must
// declare to cover every categorical split on it: the widest bitset, at least
// 2 when the feature is split categorically at all, and 1 when it is not.
func (g *GBTree) CategoryCount(splitIndex int) int {
	count := 1
	for _, tree := range g.Trees {
		for i := range tree.Nodes {
			node := &tree.Nodes[i]
			if node.IsLeaf() || node.SplitIndex() != splitIndex || node.SplitType() != SplitCategorical {
				continue
			}
			count = max(count, 2)
			if categories := node.Categories(); categories != nil {
				count = max(count, categories.Len())
			} else if index, ok := legacyCategory(node); ok {
				count = max(count, index+1)
			}
		}
	}
	return count
}
