package modeltest

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"slices"
	"strconv"
)

// member is one key of an ordered object.
type member struct {
	key   string
	value any
}

// object keeps its keys in insertion order so encodings are reproducible.
type object []member

func (o *object) set(key string, value any) {
	*o = append(*o, member{key, value})
}

// document builds the JSON/UBJSON object tree of the model.
func (m *Model) document() object {
	param := object{}
	param.set("base_score", formatFloat(m.BaseScore))
	param.set("boost_from_average", "1")
	param.set("num_class", strconv.Itoa(m.NumClass))
	param.set("num_feature", strconv.Itoa(m.NumFeature))
	param.set("num_target", strconv.Itoa(max(m.NumTarget, 1)))

	objective := object{}
	objective.set("name", m.Objective)

	learner := object{}
	if m.Attributes != nil {
		attributes := object{}
		keys := make([]string, 0, len(m.Attributes))
		for key := range m.Attributes {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		for _, key := range keys {
			attributes.set(key, m.Attributes[key])
		}
		learner.set("attributes", attributes)
	}
	if m.FeatureNames != nil {
		learner.set("feature_names", m.FeatureNames)
	}
	if m.FeatureTypes != nil {
		learner.set("feature_types", m.FeatureTypes)
	}
	learner.set("gradient_booster", m.boosterDocument())
	learner.set("learner_model_param", param)
	learner.set("objective", objective)

	root := object{}
	root.set("learner", learner)
	root.set("version", []int32{int32(m.Major), int32(m.Minor), 0})
	return root
}

func (m *Model) boosterDocument() object {
	param := object{}
	param.set("num_parallel_tree", "1")
	param.set("num_trees", strconv.Itoa(len(m.Trees)))

	trees := make([]any, len(m.Trees))
	for i, tree := range m.Trees {
		trees[i] = m.treeDocument(i, tree)
	}
	model := object{}
	model.set("gbtree_model_param", param)
	model.set("tree_info", m.treeInfo())
	model.set("trees", trees)

	gbtree := object{}
	gbtree.set("model", model)
	if m.booster() != "dart" {
		gbtree.set("name", m.booster())
		return gbtree
	}
	gbtree.set("name", "gbtree")
	dart := object{}
	dart.set("gbtree", gbtree)
	dart.set("name", "dart")
	dart.set("weight_drop", m.WeightDrop)
	return dart
}

func (m *Model) treeDocument(id int, t Tree) object {
	n := len(t.Nodes)
	var (
		left, right, indices, types = make([]int32, n), make([]int32, n), make([]int32, n), make([]int32, n)
		defaultLeft                 = make([]bool, n)
		conditions                  = make([]float32, n)
		categories, nodes           []int32
		segments, sizes             []int64
	)
	for i, node := range t.Nodes {
		left[i], right[i], indices[i] = node.Left, node.Right, node.SplitIndex
		defaultLeft[i] = node.DefaultLeft
		conditions[i] = node.Value
		if node.Categorical {
			types[i] = 1
			nodes = append(nodes, int32(i))
			segments = append(segments, int64(len(categories)))
			sizes = append(sizes, int64(len(node.Categories)))
			categories = append(categories, node.Categories...)
		}
	}

	param := object{}
	param.set("num_deleted", "0")
	param.set("num_feature", strconv.Itoa(m.numFeature(t)))
	param.set("num_nodes", strconv.Itoa(n))
	param.set("size_leaf_vector", "1")

	tree := object{}
	tree.set("base_weights", make([]float32, n))
	if t.hasCategories() {
		tree.set("categories", categories)
		tree.set("categories_nodes", nodes)
		tree.set("categories_segments", segments)
		tree.set("categories_sizes", sizes)
	}
	tree.set("default_left", defaultLeft)
	tree.set("id", int32(id))
	tree.set("left_children", left)
	tree.set("loss_changes", make([]float32, n))
	tree.set("parents", t.parents())
	tree.set("right_children", right)
	tree.set("split_conditions", conditions)
	tree.set("split_indices", indices)
	tree.set("split_type", types)
	tree.set("sum_hessian", make([]float32, n))
	tree.set("tree_param", param)
	return tree
}

// formatFloat writes a float32 the way text encodings store parameters.
func formatFloat(v float32) string {
	return strconv.FormatFloat(float64(v), 'E', -1, 32)
}

// JSON encodes the model as a text JSON document.
func (m *Model) JSON() []byte {
	var buf bytes.Buffer
	writeJSON(&buf, m.document())
	return buf.Bytes()
}

// WrapJSON encodes the model as the single member key of an enclosing
// document, so it is found at the path "$.<key>".
func (m *Model) WrapJSON(key string) []byte {
	var buf bytes.Buffer
	writeJSON(&buf, object{{key, m.document()}})
	return buf.Bytes()
}

func writeJSON(buf *bytes.Buffer, value any) {
	switch v := value.(type) {
	case object:
		buf.WriteByte('{')
		for i, member := range v {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONString(buf, member.key)
			buf.WriteByte(':')
			writeJSON(buf, member.value)
		}
		buf.WriteByte('}')
	case string:
		writeJSONString(buf, v)
	case int32:
		buf.WriteString(strconv.FormatInt(int64(v), 10))
	case []any:
		writeJSONArray(buf, len(v), func(i int) { writeJSON(buf, v[i]) })
	case []int32:
		writeJSONArray(buf, len(v), func(i int) { writeJSON(buf, v[i]) })
	case []int64:
		writeJSONArray(buf, len(v), func(i int) { buf.WriteString(strconv.FormatInt(v[i], 10)) })
	case []float32:
		writeJSONArray(buf, len(v), func(i int) { buf.WriteString(strconv.FormatFloat(float64(v[i]), 'g', -1, 32)) })
	case []bool:
		writeJSONArray(buf, len(v), func(i int) { buf.WriteString(strconv.Itoa(int(flag(v[i])))) })
	case []string:
		writeJSONArray(buf, len(v), func(i int) { writeJSONString(buf, v[i]) })
	default:
		panic("modeltest: unsupported JSON value")
	}
}

func writeJSONArray(buf *bytes.Buffer, n int, item func(int)) {
	buf.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		item(i)
	}
	buf.WriteByte(']')
}

func writeJSONString(buf *bytes.Buffer, s string) {
	b, _ := json.Marshal(s)
	buf.Write(b)
}

// UBJSON encodes the model as a UBJSON document. Numeric arrays are written
// as typed containers the way the boosting library writes them.
func (m *Model) UBJSON() []byte {
	var buf bytes.Buffer
	writeUBJSON(&buf, m.document())
	return buf.Bytes()
}

func writeUBJSON(buf *bytes.Buffer, value any) {
	switch v := value.(type) {
	case object:
		buf.WriteByte('{')
		for _, member := range v {
			writeUBJSONLength(buf, len(member.key))
			buf.WriteString(member.key)
			writeUBJSON(buf, member.value)
		}
		buf.WriteByte('}')
	case string:
		buf.WriteByte('S')
		writeUBJSONLength(buf, len(v))
		buf.WriteString(v)
	case int32:
		buf.WriteByte('l')
		buf.Write(binary.BigEndian.AppendUint32(nil, uint32(v)))
	case []any:
		buf.WriteByte('[')
		for _, item := range v {
			writeUBJSON(buf, item)
		}
		buf.WriteByte(']')
	case []int32:
		writeUBJSONTyped(buf, 'l', len(v))
		for _, item := range v {
			buf.Write(binary.BigEndian.AppendUint32(nil, uint32(item)))
		}
	case []int64:
		writeUBJSONTyped(buf, 'L', len(v))
		for _, item := range v {
			buf.Write(binary.BigEndian.AppendUint64(nil, uint64(item)))
		}
	case []float32:
		writeUBJSONTyped(buf, 'd', len(v))
		for _, item := range v {
			buf.Write(binary.BigEndian.AppendUint32(nil, math.Float32bits(item)))
		}
	case []bool:
		writeUBJSONTyped(buf, 'U', len(v))
		for _, item := range v {
			buf.WriteByte(byte(flag(item)))
		}
	case []string:
		buf.WriteByte('[')
		buf.WriteByte('#')
		writeUBJSONLength(buf, len(v))
		for _, item := range v {
			writeUBJSON(buf, item)
		}
	default:
		panic("modeltest: unsupported UBJSON value")
	}
}

func writeUBJSONTyped(buf *bytes.Buffer, marker byte, n int) {
	buf.WriteByte('[')
	buf.WriteByte('$')
	buf.WriteByte(marker)
	buf.WriteByte('#')
	writeUBJSONLength(buf, n)
}

func writeUBJSONLength(buf *bytes.Buffer, n int) {
	buf.WriteByte('L')
	buf.Write(binary.BigEndian.AppendUint64(nil, uint64(n)))
}
