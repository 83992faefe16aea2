// Package treeopt rewrites encoded tree models without changing their
// prediction function.
//
// Prune removes branches that can never be taken and collapses redundant
// single-child nodes. It runs on binary trees that still carry default child
// pointers. Compact then turns each binary split into an ordered multi-way
// split whose last child is a catch-all, so the tree no longer needs a
// missing value strategy.
package treeopt

import (
	"slices"

	"github.com/YuminosukeSato/xgbport/pkg/errors"
	"github.com/YuminosukeSato/xgbport/pmml"
)

// Stats counts the nodes a pass removed.
type Stats struct {
	Before int
	After  int
}

// Removed returns the number of removed nodes.
func (s Stats) Removed() int { return s.Before - s.After }

// Prune removes unreachable children and collapses nodes whose only child
// repeats their own predicate.
func Prune(model *pmml.TreeModel) (Stats, error) {
	stats := Stats{Before: model.Node.Count()}
	if err := pruneNode(model.Node); err != nil {
		return stats, err
	}
	stats.After = model.Node.Count()
	return stats, nil
}

func pruneNode(node *pmml.Node) error {
	node.Children = slices.DeleteFunc(node.Children, func(child *pmml.Node) bool {
		return child != node.DefaultChild && pmml.IsFalse(child.Predicate)
	})

	for _, child := range node.Children {
		if err := pruneNode(child); err != nil {
			return err
		}
	}

	if len(node.Children) != 1 {
		return nil
	}
	child := node.Children[0]
	if !pmml.Equal(node.Predicate, child.Predicate) {
		return nil
	}
	if child.HasScore() {
		if node.HasScore() {
			return errors.NewStructuralErrorf("prune", "node %q already has a score", node.ID)
		}
		node.SetScore(child.Score)
	}
	node.DefaultChild = child.DefaultChild
	node.Children = child.Children
	return nil
}

// Compact converts the binary default child tree into a multi-way tree: the
// default child of each split moves last and becomes a catch-all, and
// catch-all nodes are merged into their parents.
func Compact(model *pmml.TreeModel) (Stats, error) {
	stats := Stats{Before: model.Node.Count()}
	model.SplitCharacteristic = pmml.SplitCharacteristicMulti
	model.MissingValueStrategy = pmml.MissingValueStrategyNone
	model.NoTrueChildStrategy = pmml.NoTrueChildStrategyReturnLast
	if err := compactNode(model.Node, nil); err != nil {
		return stats, err
	}
	stats.After = model.Node.Count()
	return stats, nil
}

func compactNode(node, parent *pmml.Node) error {
	node.ID = ""
	if defaultChild := node.DefaultChild; defaultChild != nil {
		children := node.Children
		switch {
		case len(children) == 2 && children[0] == defaultChild:
			children[0], children[1] = children[1], children[0]
		case len(children) == 2 && children[1] == defaultChild:
		case len(children) == 1 && children[0] == defaultChild:
		default:
			return errors.NewStructuralError("compact", "default child is not one of two children")
		}
		defaultChild.Predicate = pmml.NewTrue()
		node.DefaultChild = nil
	}

	for _, child := range slices.Clone(node.Children) {
		if err := compactNode(child, node); err != nil {
			return err
		}
	}

	if parent == nil || !pmml.IsTrue(node.Predicate) {
		return nil
	}
	if parent.HasScore() {
		return errors.NewStructuralError("compact", "parent of a catch-all node already has a score")
	}
	parent.SetScore(node.Score)
	parent.RemoveChild(node)
	parent.Children = append(parent.Children, node.Children...)
	return nil
}
