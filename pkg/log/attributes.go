// Standard attribute keys for conversion logging.
//
// Keys follow a hierarchical naming convention ("model.format", "ensemble.trees")
// so log pipelines can filter by prefix.

package log

// Model and Operation Context
const (
	// ModelNameKey identifies the converted artifact, usually the input file name.
	ModelNameKey = "model.name"

	// ModelFormatKey is the sniffed on-disk encoding: "binary", "json" or "ubjson".
	ModelFormatKey = "model.format"

	// CompressionKey is the sniffed compression wrapper, if any.
	CompressionKey = "model.compression"

	// ObjectiveKey is the objective function name stored in the learner.
	ObjectiveKey = "model.objective"

	// BoosterKey is the booster name ("gbtree" or "dart").
	BoosterKey = "model.booster"

	// VersionKey is the major.minor format version.
	VersionKey = "model.version"

	// FingerprintKey is the xxhash64 digest of the decompressed model bytes.
	FingerprintKey = "model.fingerprint"

	// OperationKey specifies the conversion step being performed.
	OperationKey = "ml.operation"

	// ComponentKey identifies which package is performing the operation.
	ComponentKey = "ml.component"
)

// Ensemble Shape
const (
	// TreesKey is the number of trees in the ensemble or group.
	TreesKey = "ensemble.trees"

	// GroupsKey is the number of output groups (classes or targets).
	GroupsKey = "ensemble.groups"

	// NodesKey is the number of nodes in a tree.
	NodesKey = "tree.nodes"

	// FeaturesKey is the number of schema features.
	FeaturesKey = "data.features"

	// InterceptKey is the folded ensemble intercept.
	InterceptKey = "ensemble.intercept"
)

// Performance and Error Context
const (
	// DurationMsKey records the execution time of an operation in milliseconds.
	DurationMsKey = "perf.duration_ms"

	// ErrorTypeKey categorizes the type of error encountered.
	ErrorTypeKey = "error.type"

	// StacktraceKey contains stack trace information for debugging.
	StacktraceKey = "error.stacktrace"
)

// Standard attribute values.
const (
	OperationDecode  = "decode"
	OperationSchema  = "schema"
	OperationEncode  = "encode"
	OperationPrune   = "prune"
	OperationCompact = "compact"
	OperationConvert = "convert"
	OperationWrite   = "write"
)
