package xgboost

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/go-version"

	"github.com/YuminosukeSato/xgbport/pkg/errors"
	"github.com/YuminosukeSato/xgbport/xgboost/input"
)

// Headers of the binary layout.
const (
	SerializationHeader = "CONFIG-offset:"
	BinfHeader          = "binf"
)

// Supported format versions per encoding. Text encodings start at 1.0.
var (
	binaryVersions = version.MustConstraints(version.NewConstraint(">= 0, < 3"))
	textVersions   = version.MustConstraints(version.NewConstraint(">= 1, < 3"))
)

// Version is the (major, minor) format version stored in a model.
type Version struct {
	Major int
	Minor int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

func (v Version) check(constraints version.Constraints) error {
	parsed, err := version.NewVersion(fmt.Sprintf("%d.%d.0", v.Major, v.Minor))
	if err != nil || !constraints.Check(parsed) {
		return errors.Wrapf(errors.ErrUnsupportedVersion, "%s (supported: %s)", v, constraints)
	}
	return nil
}

// Learner is a decoded model.
type Learner struct {
	BaseScore          float32 // margin space
	NumFeature         int
	NumClass           int
	NumTarget          int
	BaseScoreEstimated bool
	Version            Version
	Obj                *ObjFunction
	Booster            Booster

	// Attributes holds the user attributes; text encodings keep only
	// best_iteration and best_score.
	Attributes map[string]string
	// EvalMetrics is only present in legacy binary models.
	EvalMetrics []string

	FeatureNames []string
	FeatureTypes []string

	Format      input.Format
	Compression input.Compression
	Fingerprint uint64 // xxhash64 of the decompressed model bytes

	containExtraAttrs   bool
	containEvalMetrics  bool
	hasSerializedConfig bool
}

func (l *Learner) loadBinary(r *input.Reader) error {
	config, err := r.ConsumeHeader(SerializationHeader)
	if err != nil {
		return err
	}
	if config {
		offset, err := r.ReadLong("config_offset")
		if err != nil {
			return err
		}
		if offset < 0 {
			return errors.NewFormatErrorf("config_offset", r.Offset()-8, "negative offset %d", offset)
		}
	}
	l.hasSerializedConfig = config
	if _, err := r.ConsumeHeader(BinfHeader); err != nil {
		return err
	}

	if l.BaseScore, err = r.ReadFloat("base_score"); err != nil {
		return err
	}
	header, err := r.ReadInts("learner_model_param", 6)
	if err != nil {
		return err
	}
	l.NumFeature = int(header[0])
	l.NumClass = int(header[1])
	l.containExtraAttrs = header[2] != 0
	l.containEvalMetrics = header[3] != 0
	l.Version = Version{Major: int(header[4]), Minor: int(header[5])}
	if err := l.Version.check(binaryVersions); err != nil {
		return errors.NewFormatError("major_version", r.Offset()-8, err)
	}

	numTarget, err := r.ReadInt("num_target")
	if err != nil {
		return err
	}
	l.NumTarget = max(int(numTarget), 1)
	estimated, err := r.ReadInt("base_score_estimated")
	if err != nil {
		return err
	}
	l.BaseScoreEstimated = estimated != 0
	if err := r.ReadReserved("learner_model_param.reserved", 25); err != nil {
		return err
	}

	objOffset := r.Offset()
	objName, err := r.ReadString("name_obj")
	if err != nil {
		return err
	}
	if l.Obj, err = ParseObjective(objName, l.NumClass); err != nil {
		return errors.NewFormatError("name_obj", objOffset, err)
	}
	// Since 1.0 the base score is stored in probability space.
	if l.Version.Major >= 1 {
		l.BaseScore = l.Obj.ProbToMargin(l.BaseScore) + 0
	}

	gbmOffset := r.Offset()
	gbmName, err := r.ReadString("name_gbm")
	if err != nil {
		return err
	}
	if l.Booster, err = newBooster(gbmName); err != nil {
		return errors.NewFormatError("name_gbm", gbmOffset, err)
	}
	if err := l.Booster.loadBinary(r); err != nil {
		return err
	}

	if l.containExtraAttrs {
		if l.Attributes, err = r.ReadStringMap("attributes"); err != nil {
			return err
		}
	}
	if l.Version.Major >= 1 {
		return nil
	}

	if l.Obj.Kind == PoissonRegression {
		// Older writers may omit max_delta_step.
		if _, err := r.ReadString("max_delta_step"); err != nil && !input.IsShortRead(err) {
			return err
		}
	}
	if l.containEvalMetrics {
		if l.EvalMetrics, err = r.ReadStringVector("eval_metrics"); err != nil {
			return err
		}
	}
	return nil
}

func (l *Learner) loadValue(root *input.Value) error {
	versions, err := root.IntArray("version")
	if err != nil {
		return err
	}
	if len(versions) < 2 {
		return errors.NewFormatErrorf(root.Path()+".version", -1, "expected at least 2 elements, got %d", len(versions))
	}
	l.Version = Version{Major: int(versions[0]), Minor: int(versions[1])}
	if err := l.Version.check(textVersions); err != nil {
		return errors.NewFormatError(root.Path()+".version", -1, err)
	}

	learner, err := root.Object("learner")
	if err != nil {
		return err
	}
	param, err := learner.Object("learner_model_param")
	if err != nil {
		return err
	}
	if l.BaseScore, err = param.Float32("base_score"); err != nil {
		return err
	}
	if l.NumFeature, err = param.Int("num_feature"); err != nil {
		return err
	}
	if l.NumClass, err = param.Int("num_class"); err != nil {
		return err
	}
	l.NumTarget = 1
	if param.Has("num_target") {
		if l.NumTarget, err = param.Int("num_target"); err != nil {
			return err
		}
		l.NumTarget = max(l.NumTarget, 1)
	}
	if param.Has("boost_from_average") {
		if v, err := param.Int("boost_from_average"); err == nil {
			l.BaseScoreEstimated = v != 0
		}
	}

	objective, err := learner.Object("objective")
	if err != nil {
		return err
	}
	objName, err := objective.Text("name")
	if err != nil {
		return err
	}
	if l.Obj, err = ParseObjective(objName, l.NumClass); err != nil {
		return errors.NewFormatError(objective.Path()+".name", -1, err)
	}
	l.BaseScore = l.Obj.ProbToMargin(l.BaseScore) + 0

	booster, err := learner.Object("gradient_booster")
	if err != nil {
		return err
	}
	gbmName, err := booster.Text("name")
	if err != nil {
		return err
	}
	if l.Booster, err = newBooster(gbmName); err != nil {
		return errors.NewFormatError(booster.Path()+".name", -1, err)
	}
	if err := l.Booster.loadValue(booster); err != nil {
		return err
	}

	if attributes, ok := learner.Get("attributes"); ok {
		if _, err := attributes.AsObject(); err != nil {
			return err
		}
		l.Attributes = make(map[string]string)
		for _, key := range []string{"best_iteration", "best_score"} {
			if attributes.Has(key) {
				if l.Attributes[key], err = attributes.Text(key); err != nil {
					return err
				}
			}
		}
	}
	if learner.Has("feature_names") {
		if l.FeatureNames, err = learner.StringArray("feature_names"); err != nil {
			return err
		}
	}
	if learner.Has("feature_types") {
		if l.FeatureTypes, err = learner.StringArray("feature_types"); err != nil {
			return err
		}
	}
	return nil
}

// Attribute returns a user attribute.
func (l *Learner) Attribute(key string) (string, bool) {
	value, ok := l.Attributes[key]
	return value, ok
}

// BestIteration returns the best_iteration attribute, if present.
func (l *Learner) BestIteration() (int, bool) {
	value, ok := l.Attribute("best_iteration")
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(value)
	return i, err == nil
}

// BestScore returns the best_score attribute, if present.
func (l *Learner) BestScore() (float64, bool) {
	value, ok := l.Attribute("best_score")
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(value, 64)
	return f, err == nil
}

// EmbeddedFeatureMap returns the feature map stored in the model, or nil
// when the model carries no feature names and types.
func (l *Learner) EmbeddedFeatureMap() (*FeatureMap, error) {
	if l.FeatureNames == nil || l.FeatureTypes == nil {
		return nil, nil
	}
	if len(l.FeatureNames) != len(l.FeatureTypes) {
		return nil, errors.NewFormatErrorf("feature_types", -1, "%d names but %d types", len(l.FeatureNames), len(l.FeatureTypes))
	}
	fmap := NewFeatureMap()
	for i, name := range l.FeatureNames {
		if err := fmap.AddEntry(name, l.FeatureTypes[i]); err != nil {
			return nil, err
		}
	}
	return fmap, nil
}

// Summary returns a short description of the learner.
func (l *Learner) Summary() string {
	return fmt.Sprintf("%s %s, %d trees, version %s, format %s",
		l.Obj.Name, l.Booster.Name(), l.Booster.Model().NumTrees, l.Version, l.Format)
}
