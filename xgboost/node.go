package xgboost

import "math"

// SplitType is the kind of test a branch node performs.
type SplitType int32

const (
	// SplitNumerical compares the feature value against the split condition.
	SplitNumerical SplitType = 0
	// SplitCategorical tests membership of the category in a bitset.
	SplitCategorical SplitType = 1
)

func (t SplitType) String() string {
	switch t {
	case SplitNumerical:
		return "numerical"
	case SplitCategorical:
		return "categorical"
	default:
		return "unknown"
	}
}

// NodeKind tags the on-disk layout a Node was decoded from.
type NodeKind uint8

const (
	// LegacyNumericNode is the fixed five-field record of the binary layout.
	// Every legacy node is a numerical split or a leaf.
	LegacyNumericNode NodeKind = iota + 1
	// GenericNode is one row of the columnar JSON/UBJSON node arrays.
	GenericNode
)

const defaultLeftMask = 1 << 31

// Node is one node of a RegTree. The accessors switch on Kind, so each variant
// only carries the fields its layout actually stores.
type Node struct {
	Kind   NodeKind
	Parent int32
	Left   int32 // -1 for a leaf
	Right  int32

	// LegacyNumericNode
	sindex uint32 // split index, default-left flag in bit 31
	info   uint32 // split condition or leaf value bits

	// GenericNode
	defaultLeft bool
	splitIndex  int32
	splitType   SplitType
	condition   float32
	categories  *Bitset
}

// NewLegacyNode creates a node from a binary record.
func NewLegacyNode(parent, left, right int32, sindex, info uint32) Node {
	return Node{Kind: LegacyNumericNode, Parent: parent, Left: left, Right: right, sindex: sindex, info: info}
}

// NewGenericNode creates a node from one row of the columnar arrays.
func NewGenericNode(parent, left, right int32, defaultLeft bool, splitIndex int32, splitType SplitType, condition float32) Node {
	return Node{
		Kind:        GenericNode,
		Parent:      parent,
		Left:        left,
		Right:       right,
		defaultLeft: defaultLeft,
		splitIndex:  splitIndex,
		splitType:   splitType,
		condition:   condition,
	}
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return n.Left == -1
}

// DefaultLeft reports whether missing values go to the left child.
func (n *Node) DefaultLeft() bool {
	switch n.Kind {
	case LegacyNumericNode:
		return n.sindex&defaultLeftMask != 0
	default:
		return n.defaultLeft
	}
}

// SplitIndex returns the position of the tested feature.
func (n *Node) SplitIndex() int {
	switch n.Kind {
	case LegacyNumericNode:
		return int(n.sindex &^ defaultLeftMask)
	default:
		return int(n.splitIndex)
	}
}

// SplitType returns the kind of test.
func (n *Node) SplitType() SplitType {
	switch n.Kind {
	case LegacyNumericNode:
		return SplitNumerical
	default:
		return n.splitType
	}
}

// SplitCond returns the raw 32-bit pattern of the split condition.
func (n *Node) SplitCond() uint32 {
	switch n.Kind {
	case LegacyNumericNode:
		return n.info
	default:
		return math.Float32bits(n.condition)
	}
}

// SplitValue reinterprets the split condition as a float32.
func (n *Node) SplitValue() float32 {
	return math.Float32frombits(n.SplitCond())
}

// LeafValue returns the score of a leaf. Leaves store it in the split condition slot.
func (n *Node) LeafValue() float32 {
	return n.SplitValue()
}

// Categories returns the category bitset of a categorical split, or nil.
func (n *Node) Categories() *Bitset {
	switch n.Kind {
	case GenericNode:
		return n.categories
	default:
		return nil
	}
}

// NodeStat holds the training statistics stored next to each binary node.
type NodeStat struct {
	LossChg      float32
	SumHess      float32
	BaseWeight   float32
	LeafChildCnt int32
}
