package pmml

import (
	"slices"

	"github.com/google/btree"
)

// ValueDomain is a persistent map from field name to the subset of values still
// reachable at a point in a tree. Narrow returns a new domain sharing structure
// with the receiver; the receiver is never modified, so a domain can be passed by
// value down each branch of a recursive walk.
type ValueDomain[V any] struct {
	tree *btree.BTreeG[domainEntry[V]]
}

type domainEntry[V any] struct {
	name   string
	values []V
}

func lessEntry[V any](a, b domainEntry[V]) bool {
	return a.name < b.name
}

// Values returns the narrowed values of a field and whether the field was narrowed.
func (d ValueDomain[V]) Values(name string) ([]V, bool) {
	if d.tree == nil {
		return nil, false
	}
	entry, ok := d.tree.Get(domainEntry[V]{name: name})
	if !ok {
		return nil, false
	}
	return entry.values, true
}

// ValuesOr returns the narrowed values of a field, or all when it was never narrowed.
func (d ValueDomain[V]) ValuesOr(name string, all []V) []V {
	if values, ok := d.Values(name); ok {
		return values
	}
	return all
}

// Narrow returns a domain in which name is restricted to values.
func (d ValueDomain[V]) Narrow(name string, values []V) ValueDomain[V] {
	var tree *btree.BTreeG[domainEntry[V]]
	if d.tree == nil {
		tree = btree.NewG(8, lessEntry[V])
	} else {
		tree = d.tree.Clone()
	}
	tree.ReplaceOrInsert(domainEntry[V]{name: name, values: slices.Clone(values)})
	return ValueDomain[V]{tree: tree}
}

// Len returns the number of narrowed fields.
func (d ValueDomain[V]) Len() int {
	if d.tree == nil {
		return 0
	}
	return d.tree.Len()
}
