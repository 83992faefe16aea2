package xgboost

import (
	"math"
	"strconv"

	"github.com/YuminosukeSato/xgbport/pkg/errors"
	"github.com/YuminosukeSato/xgbport/pmml"
)

// encodeLabel declares the target field(s) of the learner in dict.
func (l *Learner) encodeLabel(targetName string, categories []string, dict *pmml.DataDictionary) (pmml.Label, error) {
	if l.NumTarget <= 1 {
		return encodeScalarLabel(l.Obj, targetName, categories, dict)
	}
	labels := make([]pmml.Label, l.NumTarget)
	for i := range labels {
		label, err := encodeScalarLabel(l.Obj, targetName+strconv.Itoa(i+1), categories, dict)
		if err != nil {
			return nil, err
		}
		labels[i] = label
	}
	return &pmml.MultiLabel{Labels: labels}, nil
}

func encodeScalarLabel(obj *ObjFunction, name string, categories []string, dict *pmml.DataDictionary) (pmml.Label, error) {
	if !obj.IsClassification() {
		if len(categories) != 0 {
			return nil, errors.NewValidationError(OptionTargetCategories, "regression requires zero target categories", categories)
		}
		field := dict.AddDataField(&pmml.DataField{Name: name, OpType: pmml.OpTypeContinuous, DataType: pmml.DataTypeFloat})
		return pmml.NewContinuousLabel(field), nil
	}

	dataType := pmml.DataTypeString
	if len(categories) == 0 {
		categories = make([]string, obj.NumClass)
		for i := range categories {
			categories[i] = strconv.Itoa(i)
		}
		dataType = pmml.DataTypeInteger
	} else if len(categories) != obj.NumClass {
		return nil, errors.NewValidationError(OptionTargetCategories,
			"expected "+strconv.Itoa(obj.NumClass)+" target categories", categories)
	}
	field := dict.AddDataField(&pmml.DataField{Name: name, OpType: pmml.OpTypeCategorical, DataType: dataType})
	field.AddValues(pmml.ValuePropertyValid, categories...)
	return pmml.NewCategoricalLabel(field, categories), nil
}

// scalarLabels flattens a label into one label per target.
func scalarLabels(label pmml.Label) []pmml.Label {
	if multi, ok := label.(*pmml.MultiLabel); ok {
		return multi.Labels
	}
	return []pmml.Label{label}
}

// splitType returns the single split type trees use on feature i, or false
// when no tree splits on it.
func splitType(booster *GBTree, i int, feature pmml.Feature) (SplitType, bool, error) {
	types := booster.SplitTypes(i)
	switch len(types) {
	case 0:
		return 0, false, nil
	case 1:
		return types[0], true, nil
	default:
		return 0, false, errors.NewSchemaError(feature.Name(), i, "feature is split both numerically and categorically")
	}
}

// toBoosterSchema adapts the features to the way the ensemble splits them.
// Numerically split categorical index ranges become continuous integers. With
// numeric false, a numerically split categorical feature with declared values
// becomes an ordinal threshold feature over its category indices. Categorical
// splits require a categorical feature.
func toBoosterSchema(booster *GBTree, numeric bool, missing float32, schema *pmml.Schema) (*pmml.Schema, error) {
	features := make([]pmml.Feature, len(schema.Features))
	for i, feature := range schema.Features {
		features[i] = feature
		st, used, err := splitType(booster, i, feature)
		if err != nil {
			return nil, err
		}
		if !used {
			continue
		}
		if st == SplitCategorical {
			if _, ok := feature.(*pmml.CategoricalFeature); !ok {
				return nil, errors.NewSchemaError(feature.Name(), i, "categorical split on a non-categorical feature")
			}
			continue
		}
		if features[i], err = toNumericalFeature(feature, i, numeric, missing); err != nil {
			return nil, err
		}
	}
	return pmml.NewSchema(schema.Label, features), nil
}

func toNumericalFeature(feature pmml.Feature, i int, numeric bool, missing float32) (pmml.Feature, error) {
	switch f := feature.(type) {
	case *pmml.BinaryFeature, *pmml.MissingValueFeature:
		return f, nil
	case *pmml.ThresholdFeature:
		if !numeric {
			return f, nil
		}
	case *pmml.CategoricalFeature:
		field := f.Field()
		if !f.Synthesized {
			if !numeric {
				return pmml.NewOrdinalFeature(field, f.Values(), float64(missing)), nil
			}
			break
		}
		// The size of an index range only covers categorical splits, so a
		// numerically split one has no upper bound and is compared as an integer.
		field.OpType = pmml.OpTypeContinuous
		field.DataType = pmml.DataTypeInteger
		return pmml.NewContinuousFeature(field), nil
	}
	return toContinuousFeature(feature, i)
}

func toContinuousFeature(feature pmml.Feature, i int) (*pmml.ContinuousFeature, error) {
	field := feature.Field()
	switch field.DataType {
	case pmml.DataTypeInteger, pmml.DataTypeFloat, pmml.DataTypeDouble:
	default:
		return nil, errors.NewSchemaError(feature.Name(), i,
			"expected integer, float or double data type for continuous feature, got "+string(field.DataType))
	}
	if continuous, ok := feature.(*pmml.ContinuousFeature); ok {
		return continuous, nil
	}
	return pmml.NewContinuousFeature(field), nil
}

// toValueFilteredSchema declares the missing value sentinel on the fields of
// numerically split continuous features. A NaN sentinel is only declared on
// floating point fields.
func toValueFilteredSchema(booster *GBTree, missing float32, schema *pmml.Schema) (*pmml.Schema, error) {
	for i, feature := range schema.Features {
		st, used, err := splitType(booster, i, feature)
		if err != nil {
			return nil, err
		}
		if !used || st != SplitNumerical {
			continue
		}
		continuous, ok := feature.(*pmml.ContinuousFeature)
		if !ok {
			continue
		}
		field := continuous.Field()
		if field.DataType == pmml.DataTypeDouble {
			errors.Warn(errors.NewDataConversionWarning(field.Name, string(pmml.DataTypeDouble), string(pmml.DataTypeFloat), "split thresholds are float32"))
		}
		if math.IsNaN(float64(missing)) {
			if field.DataType != pmml.DataTypeFloat && field.DataType != pmml.DataTypeDouble {
				continue
			}
			field.AddValues(pmml.ValuePropertyMissing, "NaN")
			continue
		}
		field.AddValues(pmml.ValuePropertyMissing, pmml.FormatFloat32(missing))
	}
	return schema, nil
}

// EncodeSchema resolves the feature map against the learner and declares the
// label and feature fields in dict. fmap may be nil, in which case the feature
// names embedded in the model are used, or f0..fN when there are none.
func (l *Learner) EncodeSchema(fmap *FeatureMap, opts *Options, dict *pmml.DataDictionary) (*pmml.Schema, error) {
	embedded, err := l.EmbeddedFeatureMap()
	if err != nil {
		return nil, err
	}
	switch {
	case embedded != nil && fmap != nil:
		if err := embedded.Update(fmap); err != nil {
			return nil, err
		}
		fmap = embedded
	case embedded != nil:
		fmap = embedded
	case fmap == nil:
		fmap = syntheticFeatureMap(l.NumFeature)
	}

	label, err := l.encodeLabel(opts.targetName(), opts.TargetCategories, dict)
	if err != nil {
		return nil, err
	}
	booster := l.Booster.Model()
	features, err := fmap.EncodeFeatures(dict, booster.CategoryCount)
	if err != nil {
		return nil, err
	}
	schema := pmml.NewSchema(label, features)
	if schema, err = toBoosterSchema(booster, opts.Numeric, opts.Missing, schema); err != nil {
		return nil, err
	}
	return toValueFilteredSchema(booster, opts.Missing, schema)
}
