package pmml

import (
	"encoding/xml"
	"slices"
)

// Predicate is the boolean guard of a tree node.
type Predicate interface {
	isPredicate()
}

// Operator is a SimplePredicate comparison.
type Operator string

const (
	OperatorEqual          Operator = "equal"
	OperatorNotEqual       Operator = "notEqual"
	OperatorLessThan       Operator = "lessThan"
	OperatorLessOrEqual    Operator = "lessOrEqual"
	OperatorGreaterThan    Operator = "greaterThan"
	OperatorGreaterOrEqual Operator = "greaterOrEqual"
	OperatorIsMissing      Operator = "isMissing"
	OperatorIsNotMissing   Operator = "isNotMissing"
)

// SetOperator is a SimpleSetPredicate membership test.
type SetOperator string

const (
	SetOperatorIsIn    SetOperator = "isIn"
	SetOperatorIsNotIn SetOperator = "isNotIn"
)

// BooleanOperator combines the arms of a CompoundPredicate.
type BooleanOperator string

const (
	BooleanOperatorAnd       BooleanOperator = "and"
	BooleanOperatorOr        BooleanOperator = "or"
	BooleanOperatorXor       BooleanOperator = "xor"
	BooleanOperatorSurrogate BooleanOperator = "surrogate"
)

// True always matches.
type True struct {
	XMLName xml.Name `xml:"True"`
}

// False never matches.
type False struct {
	XMLName xml.Name `xml:"False"`
}

// SimplePredicate compares one field against a constant.
type SimplePredicate struct {
	XMLName  xml.Name `xml:"SimplePredicate"`
	Field    string   `xml:"field,attr"`
	Operator Operator `xml:"operator,attr"`
	Value    string   `xml:"value,attr,omitempty"`
}

// SimpleSetPredicate tests membership of one field in a value set.
type SimpleSetPredicate struct {
	Field    string
	Operator SetOperator
	Values   []string
	// ArrayType is "int", "real" or "string".
	ArrayType string
}

// CompoundPredicate combines other predicates.
type CompoundPredicate struct {
	XMLName    xml.Name        `xml:"CompoundPredicate"`
	Operator   BooleanOperator `xml:"booleanOperator,attr"`
	Predicates []Predicate
}

func (*True) isPredicate()               {}
func (*False) isPredicate()              {}
func (*SimplePredicate) isPredicate()    {}
func (*SimpleSetPredicate) isPredicate() {}
func (*CompoundPredicate) isPredicate()  {}

// NewTrue returns a catch-all predicate.
func NewTrue() Predicate { return &True{} }

// NewFalse returns a never-matching predicate.
func NewFalse() Predicate { return &False{} }

// NewSimplePredicate creates a comparison predicate.
func NewSimplePredicate(field string, op Operator, value string) *SimplePredicate {
	return &SimplePredicate{Field: field, Operator: op, Value: value}
}

// NewSimpleSetPredicate creates a membership predicate.
func NewSimpleSetPredicate(field string, op SetOperator, arrayType string, values []string) *SimpleSetPredicate {
	return &SimpleSetPredicate{Field: field, Operator: op, ArrayType: arrayType, Values: slices.Clone(values)}
}

// NewCompoundPredicate creates a predicate combining arms.
func NewCompoundPredicate(op BooleanOperator, arms ...Predicate) *CompoundPredicate {
	return &CompoundPredicate{Operator: op, Predicates: arms}
}

// IsTrue reports whether p is the catch-all predicate.
func IsTrue(p Predicate) bool {
	_, ok := p.(*True)
	return ok
}

// IsFalse reports whether p can never match.
func IsFalse(p Predicate) bool {
	_, ok := p.(*False)
	return ok
}

// Equal reports whether two predicates have the same boolean structure.
// The arms of AND and OR compound predicates are compared as multisets.
func Equal(a, b Predicate) bool {
	switch x := a.(type) {
	case nil:
		return b == nil
	case *True:
		_, ok := b.(*True)
		return ok
	case *False:
		_, ok := b.(*False)
		return ok
	case *SimplePredicate:
		y, ok := b.(*SimplePredicate)
		return ok && x.Field == y.Field && x.Operator == y.Operator && x.Value == y.Value
	case *SimpleSetPredicate:
		y, ok := b.(*SimpleSetPredicate)
		return ok && x.Field == y.Field && x.Operator == y.Operator && slices.Equal(x.Values, y.Values)
	case *CompoundPredicate:
		y, ok := b.(*CompoundPredicate)
		if !ok || x.Operator != y.Operator || len(x.Predicates) != len(y.Predicates) {
			return false
		}
		switch x.Operator {
		case BooleanOperatorAnd, BooleanOperatorOr:
			return equalUnordered(x.Predicates, y.Predicates)
		default:
			for i := range x.Predicates {
				if !Equal(x.Predicates[i], y.Predicates[i]) {
					return false
				}
			}
			return true
		}
	default:
		return false
	}
}

func equalUnordered(left, right []Predicate) bool {
	used := make([]bool, len(right))
outer:
	for _, l := range left {
		for j, r := range right {
			if !used[j] && Equal(l, r) {
				used[j] = true
				continue outer
			}
		}
		return false
	}
	return true
}

// Fields returns the names of the fields a predicate reads, in first-seen order.
func Fields(p Predicate) []string {
	var names []string
	var visit func(Predicate)
	visit = func(p Predicate) {
		var name string
		switch x := p.(type) {
		case *SimplePredicate:
			name = x.Field
		case *SimpleSetPredicate:
			name = x.Field
		case *CompoundPredicate:
			for _, arm := range x.Predicates {
				visit(arm)
			}
			return
		default:
			return
		}
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	visit(p)
	return names
}
