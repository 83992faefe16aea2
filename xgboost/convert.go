package xgboost

import (
	"io"
	"strconv"
	"time"

	"github.com/YuminosukeSato/xgbport/pkg/errors"
	"github.com/YuminosukeSato/xgbport/pkg/log"
	"github.com/YuminosukeSato/xgbport/pmml"
)

// ApplicationName is written to the header of produced documents.
const ApplicationName = "xgbport"

// Header extension names.
const (
	ExtensionFingerprint = "fingerprint"
	ExtensionObjective   = "objective"
	ExtensionVersion     = "version"
)

// Convert encodes the learner as a document. fmap may be nil.
func Convert(learner *Learner, fmap *FeatureMap, opts ...Option) (doc *pmml.PMML, err error) {
	defer errors.Recover(&err, "Convert")

	o, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}
	return learner.EncodePMML(fmap, o)
}

// EncodePMML encodes the learner with resolved options.
func (l *Learner) EncodePMML(fmap *FeatureMap, opts *Options) (*pmml.PMML, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	logger := log.GetLoggerWithName("xgboost.encoder").With(
		log.ObjectiveKey, l.Obj.Name,
		log.BoosterKey, l.Booster.Name(),
	)

	var dict pmml.DataDictionary
	schema, err := l.EncodeSchema(fmap, opts, &dict)
	if err != nil {
		logger.Error("schema failed", err, log.OperationKey, log.OperationSchema)
		return nil, err
	}
	warnUnusedFeatures(l.Booster.Model(), schema)
	logger.Debug("schema resolved",
		log.OperationKey, log.OperationSchema,
		log.FeaturesKey, len(schema.Features),
	)

	encoder := &ensembleEncoder{
		obj:       l.Obj,
		opts:      opts,
		baseScore: l.BaseScore,
		logger:    logger,
	}
	model, err := encoder.encode(l.Booster, schema)
	if err != nil {
		logger.Error("encode failed", err, log.OperationKey, log.OperationEncode)
		return nil, err
	}
	model.AlgorithmName = "XGBoost (" + l.Booster.AlgorithmName() + ")"

	header := pmml.Header{
		Application: &pmml.Application{Name: ApplicationName},
		Extensions: []pmml.Extension{
			{Name: ExtensionObjective, Value: l.Obj.Name},
			{Name: ExtensionVersion, Value: l.Version.String()},
			{Name: ExtensionFingerprint, Value: strconv.FormatUint(l.Fingerprint, 16)},
		},
	}

	logger.Info("document encoded",
		log.OperationKey, log.OperationConvert,
		log.TreesKey, encoder.trees,
		log.NodesKey, encoder.nodes,
		log.GroupsKey, len(scalarLabels(schema.Label)),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return pmml.NewPMML(header, dict, model), nil
}

// warnUnusedFeatures reports features no tree splits on.
func warnUnusedFeatures(booster *GBTree, schema *pmml.Schema) {
	for i, feature := range schema.Features {
		if len(booster.SplitTypes(i)) == 0 {
			errors.Warn(errors.NewUnusedFeatureWarning(feature.Name(), i))
		}
	}
}

// WritePMML serializes doc as XML, stamping the header with the current time.
func WritePMML(w io.Writer, doc *pmml.PMML) error {
	if doc.Header.Timestamp == "" {
		doc.Header.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	if err := pmml.Write(w, doc); err != nil {
		return errors.Wrap(err, "write document")
	}
	return nil
}
