package modeltest

import (
	"bytes"
	"math"
	"slices"

	"github.com/YuminosukeSato/xgbport/internal/endian"
)

// BinaryOption configures the binary layout writer.
type BinaryOption func(*binaryWriter)

// WithBinf writes the "binf" header.
func WithBinf() BinaryOption {
	return func(w *binaryWriter) { w.binf = true }
}

// WithConfigHeader writes the serialization header with the given offset and
// appends trailer after the model.
func WithConfigHeader(offset int64, trailer []byte) BinaryOption {
	return func(w *binaryWriter) {
		w.config = true
		w.configOffset = offset
		w.trailer = trailer
	}
}

// WithEngine selects the byte order. Little endian by default.
func WithEngine(engine endian.EndianEngine) BinaryOption {
	return func(w *binaryWriter) { w.engine = engine }
}

type binaryWriter struct {
	buf    bytes.Buffer
	engine endian.EndianEngine

	binf         bool
	config       bool
	configOffset int64
	trailer      []byte
}

// Binary encodes the model in the legacy binary layout. Categorical splits
// cannot be represented and are written as numerical splits.
func (m *Model) Binary(opts ...BinaryOption) []byte {
	w := &binaryWriter{engine: endian.GetLittleEndianEngine()}
	for _, opt := range opts {
		opt(w)
	}

	if w.config {
		w.buf.WriteString("CONFIG-offset:")
		w.long(w.configOffset)
	}
	if w.binf {
		w.buf.WriteString("binf")
	}

	w.float(m.BaseScore)
	evalMetrics := m.Major < 1 && len(m.EvalMetrics) > 0
	w.ints(int32(m.NumFeature), int32(m.NumClass), flag(len(m.Attributes) > 0), flag(evalMetrics), int32(m.Major), int32(m.Minor))
	w.ints(int32(m.NumTarget), 0)
	w.zeros(25)
	w.str(m.Objective)
	w.str(m.booster())

	w.ints(int32(len(m.Trees)), 1, int32(m.NumFeature))
	w.zeros(3)
	groups := int32(1)
	for _, group := range m.treeInfo() {
		groups = max(groups, group+1)
	}
	w.ints(groups, 0)
	w.zeros(32)
	for _, tree := range m.Trees {
		w.tree(m, tree)
	}
	w.ints(m.treeInfo()...)
	if m.booster() == "dart" && len(m.Trees) > 0 {
		w.long(int64(len(m.WeightDrop)))
		for _, weight := range m.WeightDrop {
			w.float(weight)
		}
	}

	if len(m.Attributes) > 0 {
		keys := make([]string, 0, len(m.Attributes))
		for key := range m.Attributes {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		w.long(int64(len(keys)))
		for _, key := range keys {
			w.str(key)
			w.str(m.Attributes[key])
		}
	}
	if m.Major < 1 {
		if m.Objective == "count:poisson" {
			w.str("0.7")
		}
		if evalMetrics {
			w.long(int64(len(m.EvalMetrics)))
			for _, metric := range m.EvalMetrics {
				w.str(metric)
			}
		}
	}
	w.buf.Write(w.trailer)
	return w.buf.Bytes()
}

func (w *binaryWriter) tree(m *Model, t Tree) {
	w.ints(1, int32(len(t.Nodes)), 0, 0, int32(m.numFeature(t)), 0)
	w.zeros(31)
	parents := t.parents()
	for i, node := range t.Nodes {
		sindex := uint32(node.SplitIndex)
		if node.DefaultLeft {
			sindex |= 1 << 31
		}
		w.ints(parents[i], node.Left, node.Right)
		w.u32(sindex)
		w.u32(math.Float32bits(node.Value))
	}
	for range t.Nodes {
		w.float(0)
		w.float(0)
		w.float(0)
		w.ints(0)
	}
}

func (w *binaryWriter) ints(values ...int32) {
	for _, v := range values {
		w.u32(uint32(v))
	}
}

func (w *binaryWriter) zeros(n int) {
	w.ints(make([]int32, n)...)
}

func (w *binaryWriter) u32(v uint32) {
	w.buf.Write(w.engine.AppendUint32(nil, v))
}

func (w *binaryWriter) float(v float32) {
	w.u32(math.Float32bits(v))
}

func (w *binaryWriter) long(v int64) {
	w.buf.Write(w.engine.AppendUint64(nil, uint64(v)))
}

func (w *binaryWriter) str(s string) {
	w.long(int64(len(s)))
	w.buf.WriteString(s)
}

func flag(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
