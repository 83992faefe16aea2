package pmml

import (
	"encoding/xml"
	"fmt"
	"slices"
)

// SplitCharacteristic describes how many children a branch may have.
type SplitCharacteristic string

const (
	SplitCharacteristicBinary SplitCharacteristic = "binarySplit"
	SplitCharacteristicMulti  SplitCharacteristic = "multiSplit"
)

// MissingValueStrategy decides what happens when a predicate cannot be evaluated.
type MissingValueStrategy string

const (
	MissingValueStrategyNone         MissingValueStrategy = "none"
	MissingValueStrategyDefaultChild MissingValueStrategy = "defaultChild"
)

// NoTrueChildStrategy decides the result when no child predicate matches.
type NoTrueChildStrategy string

const (
	NoTrueChildStrategyReturnNull NoTrueChildStrategy = "returnNullPrediction"
	NoTrueChildStrategyReturnLast NoTrueChildStrategy = "returnLastPrediction"
)

// Node is a branch or leaf of a tree model. A node without children is a leaf
// and must carry a score.
type Node struct {
	// ID identifies the node for DefaultChild references. Empty after compaction.
	ID        string
	Predicate Predicate
	Score     *float32
	Children  []*Node
	// DefaultChild, when set, is one of Children and receives missing values.
	DefaultChild *Node
}

// NewLeaf creates a scored leaf.
func NewLeaf(id string, predicate Predicate, score float32) *Node {
	return &Node{ID: id, Predicate: predicate, Score: &score}
}

// NewBranch creates a branch with the given children.
func NewBranch(id string, predicate Predicate, children ...*Node) *Node {
	return &Node{ID: id, Predicate: predicate, Children: children}
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// HasScore reports whether the node carries a score.
func (n *Node) HasScore() bool {
	return n.Score != nil
}

// SetScore sets or clears (nil) the score.
func (n *Node) SetScore(score *float32) {
	if score == nil {
		n.Score = nil
		return
	}
	v := *score
	n.Score = &v
}

// RemoveChild removes child from the node, returning its former position or -1.
func (n *Node) RemoveChild(child *Node) int {
	idx := slices.Index(n.Children, child)
	if idx >= 0 {
		n.Children = slices.Delete(n.Children, idx, idx+1)
	}
	return idx
}

// Count returns the number of nodes in the subtree rooted at n.
func (n *Node) Count() int {
	total := 1
	for _, child := range n.Children {
		total += child.Count()
	}
	return total
}

// Depth returns the length of the longest root-to-leaf path, counting nodes.
func (n *Node) Depth() int {
	deepest := 0
	for _, child := range n.Children {
		deepest = max(deepest, child.Depth())
	}
	return deepest + 1
}

// Validate checks the structural invariants of the subtree: every branch has at
// least one child, every leaf has a score, the default child is one of the
// node's own children, and no node is reachable twice.
func (n *Node) Validate() error {
	seen := make(map[*Node]bool)
	var visit func(node *Node, path string) error
	visit = func(node *Node, path string) error {
		if seen[node] {
			return fmt.Errorf("node %s has more than one parent", path)
		}
		seen[node] = true
		if node.Predicate == nil {
			return fmt.Errorf("node %s has no predicate", path)
		}
		if node.IsLeaf() {
			if !node.HasScore() {
				return fmt.Errorf("leaf %s has no score", path)
			}
			if node.DefaultChild != nil {
				return fmt.Errorf("leaf %s has a default child", path)
			}
			return nil
		}
		if node.DefaultChild != nil && !slices.Contains(node.Children, node.DefaultChild) {
			return fmt.Errorf("default child of %s is not one of its children", path)
		}
		for i, child := range node.Children {
			if err := visit(child, fmt.Sprintf("%s/%d", path, i)); err != nil {
				return err
			}
		}
		return nil
	}
	return visit(n, "0")
}

// MarshalXML writes the node with its defaultChild reference resolved to an id.
func (n *Node) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	type node struct {
		ID           string   `xml:"id,attr,omitempty"`
		Score        *float32 `xml:"score,attr,omitempty"`
		DefaultChild string   `xml:"defaultChild,attr,omitempty"`
		Predicate    Predicate
		Children     []*Node `xml:"Node"`
	}
	out := node{ID: n.ID, Score: n.Score, Predicate: n.Predicate, Children: n.Children}
	if n.DefaultChild != nil {
		if n.DefaultChild.ID == "" {
			return fmt.Errorf("node %q: default child has no id", n.ID)
		}
		out.DefaultChild = n.DefaultChild.ID
	}
	start.Name = xml.Name{Local: "Node"}
	return e.EncodeElement(out, start)
}

// TreeModel is a single decision tree.
type TreeModel struct {
	XMLName              xml.Name             `xml:"TreeModel"`
	ModelName            string               `xml:"modelName,attr,omitempty"`
	MiningFunction       MiningFunction       `xml:"functionName,attr"`
	MissingValueStrategy MissingValueStrategy `xml:"missingValueStrategy,attr,omitempty"`
	NoTrueChildStrategy  NoTrueChildStrategy  `xml:"noTrueChildStrategy,attr,omitempty"`
	SplitCharacteristic  SplitCharacteristic  `xml:"splitCharacteristic,attr,omitempty"`
	MathContext          MathContext          `xml:"x-mathContext,attr,omitempty"`
	MiningSchema         MiningSchema         `xml:"MiningSchema"`
	Output               *Output              `xml:"Output"`
	Node                 *Node                `xml:"Node"`
}

// NewTreeModel creates a regression tree around root.
func NewTreeModel(fn MiningFunction, schema MiningSchema, root *Node) *TreeModel {
	return &TreeModel{
		MiningFunction:       fn,
		MiningSchema:         schema,
		Node:                 root,
		SplitCharacteristic:  SplitCharacteristicBinary,
		MissingValueStrategy: MissingValueStrategyDefaultChild,
		NoTrueChildStrategy:  NoTrueChildStrategyReturnNull,
	}
}

func (m *TreeModel) GetMiningFunction() MiningFunction { return m.MiningFunction }
func (m *TreeModel) GetMiningSchema() *MiningSchema    { return &m.MiningSchema }
func (m *TreeModel) GetOutput() *Output                { return m.Output }
