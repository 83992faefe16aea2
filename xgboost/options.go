package xgboost

import (
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/xgbport/internal/endian"
	"github.com/YuminosukeSato/xgbport/internal/options"
	"github.com/YuminosukeSato/xgbport/pkg/errors"
	"github.com/YuminosukeSato/xgbport/xgboost/input"
)

// Option keys accepted by OptionsFromMap and the YAML file.
const (
	OptionMissing          = "missing"
	OptionCompact          = "compact"
	OptionNumeric          = "numeric"
	OptionPrune            = "prune"
	OptionNTreeLimit       = "ntree_limit"
	OptionByteOrder        = "byte_order"
	OptionCharset          = "charset"
	OptionJSONPath         = "json_path"
	OptionTargetName       = "target_name"
	OptionTargetCategories = "target_categories"
)

// DefaultTargetName is the label name used when none is configured.
const DefaultTargetName = "_target"

// Options control decoding and conversion.
type Options struct {
	// Missing is the value that stands for a missing input. NaN by default.
	Missing float32 `yaml:"missing"`
	// Compact rewrites binary trees into multi-way trees.
	Compact bool `yaml:"compact"`
	// Numeric encodes numerical splits on categorical features as
	// continuous integer comparisons.
	Numeric bool `yaml:"numeric"`
	// Prune removes unreachable branches.
	Prune bool `yaml:"prune"`
	// NTreeLimit keeps only the first n trees; 0 keeps all of them.
	NTreeLimit int `yaml:"ntree_limit"`

	ByteOrder string `yaml:"byte_order"` // binary layout only
	Charset   string `yaml:"charset"`    // binary layout only
	JSONPath  string `yaml:"json_path"`  // text encodings only

	TargetName       string   `yaml:"target_name"`
	TargetCategories []string `yaml:"target_categories"`
}

// Option configures Options.
type Option = options.Option[*Options]

// DefaultOptions returns the default conversion options.
func DefaultOptions() Options {
	return Options{
		Missing:    float32(math.NaN()),
		Compact:    true,
		Numeric:    true,
		Prune:      true,
		NTreeLimit: 0,
		JSONPath:   "$",
		TargetName: DefaultTargetName,
	}
}

// NewOptions returns the default options with opts applied and validated.
func NewOptions(opts ...Option) (*Options, error) {
	o := DefaultOptions()
	if err := options.Apply(&o, opts...); err != nil {
		return nil, err
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return &o, nil
}

// WithMissing sets the missing value sentinel.
func WithMissing(missing float32) Option {
	return options.NoError(func(o *Options) { o.Missing = missing })
}

// WithCompact toggles the compaction pass.
func WithCompact(compact bool) Option {
	return options.NoError(func(o *Options) { o.Compact = compact })
}

// WithNumeric toggles numeric encoding of categorical features.
func WithNumeric(numeric bool) Option {
	return options.NoError(func(o *Options) { o.Numeric = numeric })
}

// WithPrune toggles the pruning pass.
func WithPrune(prune bool) Option {
	return options.NoError(func(o *Options) { o.Prune = prune })
}

// WithNTreeLimit keeps the first n trees.
func WithNTreeLimit(n int) Option {
	return options.NoError(func(o *Options) { o.NTreeLimit = n })
}

// WithByteOrder selects the byte order of the binary layout.
func WithByteOrder(name string) Option {
	return options.NoError(func(o *Options) { o.ByteOrder = name })
}

// WithCharset selects the charset of strings in the binary layout.
func WithCharset(name string) Option {
	return options.NoError(func(o *Options) { o.Charset = name })
}

// WithJSONPath selects the learner object inside a larger document.
func WithJSONPath(path string) Option {
	return options.NoError(func(o *Options) { o.JSONPath = path })
}

// WithTargetName sets the label name.
func WithTargetName(name string) Option {
	return options.NoError(func(o *Options) { o.TargetName = name })
}

// WithTargetCategories overrides the class labels of a classifier.
func WithTargetCategories(categories ...string) Option {
	return options.NoError(func(o *Options) { o.TargetCategories = categories })
}

// WithOptions replaces all options.
func WithOptions(src Options) Option {
	return options.NoError(func(o *Options) { *o = src })
}

// Validate checks option values and combinations.
func (o *Options) Validate() error {
	if o.Compact && !o.Numeric {
		return errors.Wrapf(errors.ErrConflictingOptions, "%s=true requires %s=true", OptionCompact, OptionNumeric)
	}
	if o.NTreeLimit < 0 {
		return errors.NewValidationError(OptionNTreeLimit, "must be non-negative", o.NTreeLimit)
	}
	if _, err := endian.Parse(o.ByteOrder); err != nil {
		return errors.NewValidationError(OptionByteOrder, "unknown byte order", o.ByteOrder)
	}
	if _, err := input.LookupCharset(o.Charset); err != nil {
		return err
	}
	if path := strings.TrimSpace(o.JSONPath); path != "" && path != "$" && !strings.HasPrefix(path, "$.") {
		return errors.NewValidationError(OptionJSONPath, "path must start with '$'", o.JSONPath)
	}
	return nil
}

// readerOptions translates the binary layout options.
func (o *Options) readerOptions() ([]input.ReaderOption, error) {
	engine, err := endian.Parse(o.ByteOrder)
	if err != nil {
		return nil, errors.NewValidationError(OptionByteOrder, "unknown byte order", o.ByteOrder)
	}
	charset, err := input.LookupCharset(o.Charset)
	if err != nil {
		return nil, err
	}
	return []input.ReaderOption{input.WithByteOrder(engine), input.WithCharset(charset)}, nil
}

func (o *Options) targetName() string {
	if o.TargetName == "" {
		return DefaultTargetName
	}
	return o.TargetName
}

// OptionsFromMap builds options from loosely typed key/value pairs.
// Keys not listed in the map keep their defaults.
func OptionsFromMap(values map[string]any) (*Options, error) {
	o := DefaultOptions()
	for key, value := range values {
		var err error
		switch key {
		case OptionMissing:
			o.Missing, err = toFloat32(key, value)
		case OptionCompact:
			o.Compact, err = toBool(key, value)
		case OptionNumeric:
			o.Numeric, err = toBool(key, value)
		case OptionPrune:
			o.Prune, err = toBool(key, value)
		case OptionNTreeLimit:
			o.NTreeLimit, err = toInt(key, value)
		case OptionByteOrder:
			o.ByteOrder, err = toString(key, value)
		case OptionCharset:
			o.Charset, err = toString(key, value)
		case OptionJSONPath:
			o.JSONPath, err = toString(key, value)
		case OptionTargetName:
			o.TargetName, err = toString(key, value)
		case OptionTargetCategories:
			o.TargetCategories, err = toStrings(key, value)
		default:
			err = errors.NewValidationError(key, "unknown option", value)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return &o, nil
}

// LoadOptionsYAML reads options from a YAML document. Keys not present keep
// their defaults and unknown keys are rejected.
func LoadOptionsYAML(r io.Reader) (*Options, error) {
	o := DefaultOptions()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&o); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "decode options")
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return &o, nil
}

// LoadOptionsFile reads options from a YAML file.
func LoadOptionsFile(path string) (*Options, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open options file %s", path)
	}
	defer f.Close()
	return LoadOptionsYAML(f)
}

func toFloat32(key string, value any) (float32, error) {
	switch v := value.(type) {
	case float32:
		return v, nil
	case float64:
		return float32(v), nil
	case int:
		return float32(v), nil
	case int64:
		return float32(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 32)
		if err != nil {
			return 0, errors.NewValidationError(key, "not a number", value)
		}
		return float32(f), nil
	}
	return 0, errors.NewValidationError(key, "not a number", value)
}

func toBool(key string, value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, errors.NewValidationError(key, "not a boolean", value)
		}
		return b, nil
	}
	return false, errors.NewValidationError(key, "not a boolean", value)
}

func toInt(key string, value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, errors.NewValidationError(key, "not an integer", value)
		}
		return int(v), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, errors.NewValidationError(key, "not an integer", value)
		}
		return i, nil
	}
	return 0, errors.NewValidationError(key, "not an integer", value)
}

func toString(key string, value any) (string, error) {
	if s, ok := value.(string); ok {
		return s, nil
	}
	return "", errors.NewValidationError(key, "not a string", value)
}

func toStrings(key string, value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case string:
		var result []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				result = append(result, part)
			}
		}
		return result, nil
	case []any:
		result := make([]string, len(v))
		for i, item := range v {
			switch s := item.(type) {
			case string:
				result[i] = s
			case int:
				result[i] = strconv.Itoa(s)
			default:
				return nil, errors.NewValidationError(key, "not a list of strings", value)
			}
		}
		return result, nil
	}
	return nil, errors.NewValidationError(key, "not a list of strings", value)
}
