package pmml

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEqual(t *testing.T) {
	a := NewSimplePredicate("x", OperatorLessThan, "2")
	b := NewSimplePredicate("y", OperatorIsMissing, "")
	set := NewSimpleSetPredicate("c", SetOperatorIsIn, "string", []string{"a", "b"})

	testCases := []struct {
		name  string
		left  Predicate
		right Predicate
		want  bool
	}{
		{name: "true", left: NewTrue(), right: NewTrue(), want: true},
		{name: "true vs false", left: NewTrue(), right: NewFalse(), want: false},
		{name: "same simple", left: a, right: NewSimplePredicate("x", OperatorLessThan, "2"), want: true},
		{name: "different value", left: a, right: NewSimplePredicate("x", OperatorLessThan, "3"), want: false},
		{name: "different operator", left: a, right: NewSimplePredicate("x", OperatorGreaterOrEqual, "2"), want: false},
		{name: "same set", left: set, right: NewSimpleSetPredicate("c", SetOperatorIsIn, "string", []string{"a", "b"}), want: true},
		{name: "set vs simple", left: set, right: a, want: false},
		{
			name:  "and is order insensitive",
			left:  NewCompoundPredicate(BooleanOperatorAnd, a, b),
			right: NewCompoundPredicate(BooleanOperatorAnd, b, a),
			want:  true,
		},
		{
			name:  "or is order insensitive",
			left:  NewCompoundPredicate(BooleanOperatorOr, a, b, set),
			right: NewCompoundPredicate(BooleanOperatorOr, set, a, b),
			want:  true,
		},
		{
			name:  "compound compares every arm",
			left:  NewCompoundPredicate(BooleanOperatorAnd, a, b),
			right: NewCompoundPredicate(BooleanOperatorAnd, a, a),
			want:  false,
		},
		{
			name:  "surrogate is ordered",
			left:  NewCompoundPredicate(BooleanOperatorSurrogate, a, b),
			right: NewCompoundPredicate(BooleanOperatorSurrogate, b, a),
			want:  false,
		},
		{
			name:  "operator differs",
			left:  NewCompoundPredicate(BooleanOperatorAnd, a, b),
			right: NewCompoundPredicate(BooleanOperatorOr, a, b),
			want:  false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Equal(tc.left, tc.right))
			assert.Equal(t, tc.want, Equal(tc.right, tc.left))
		})
	}
}

func TestFields(t *testing.T) {
	p := NewCompoundPredicate(BooleanOperatorOr,
		NewSimplePredicate("x", OperatorIsMissing, ""),
		NewSimpleSetPredicate("x", SetOperatorIsIn, "real", []string{"1", "2"}),
		NewSimplePredicate("y", OperatorEqual, "3"),
	)
	assert.Equal(t, []string{"x", "y"}, Fields(p))
	assert.Empty(t, Fields(NewTrue()))
}
