package xgboost

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/YuminosukeSato/xgbport/pkg/errors"
	"github.com/YuminosukeSato/xgbport/pkg/log"
	"github.com/YuminosukeSato/xgbport/xgboost/input"
)

// LoadFromFile decodes a model file. The encoding and compression are
// detected from the content.
func LoadFromFile(path string, opts ...Option) (*Learner, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open model file %s", path)
	}
	defer f.Close()
	return LoadFromReader(f, opts...)
}

// LoadFromReader decodes a model read from r until EOF.
func LoadFromReader(r io.Reader, opts ...Option) (*Learner, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read model")
	}
	return LoadFromBytes(data, opts...)
}

// LoadFromBytes decodes a model held in memory.
func LoadFromBytes(data []byte, opts ...Option) (learner *Learner, err error) {
	defer errors.Recover(&err, "LoadFromBytes")

	o, err := NewOptions(opts...)
	if err != nil {
		return nil, err
	}
	return load(data, o)
}

func load(data []byte, opts *Options) (*Learner, error) {
	start := time.Now()
	logger := log.GetLoggerWithName("xgboost.decoder")

	data, compression, err := input.Decompress(data)
	if err != nil {
		return nil, err
	}
	learner := &Learner{
		Format:      input.DetectFormat(data),
		Compression: compression,
		Fingerprint: xxhash.Sum64(data),
	}
	logger = logger.With(
		log.ModelFormatKey, learner.Format.String(),
		log.CompressionKey, compression.String(),
	)

	switch learner.Format {
	case input.FormatBinary:
		err = loadBinaryLearner(learner, data, opts)
	default:
		err = loadValueLearner(learner, data, opts)
	}
	if err != nil {
		logger.Error("decode failed", err, log.OperationKey, log.OperationDecode)
		return nil, err
	}

	logger.Info("learner decoded",
		log.OperationKey, log.OperationDecode,
		log.ObjectiveKey, learner.Obj.Name,
		log.BoosterKey, learner.Booster.Name(),
		log.VersionKey, learner.Version.String(),
		log.TreesKey, len(learner.Booster.Model().Trees),
		log.FingerprintKey, strconv.FormatUint(learner.Fingerprint, 16),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return learner, nil
}

func loadBinaryLearner(learner *Learner, data []byte, opts *Options) error {
	readerOpts, err := opts.readerOptions()
	if err != nil {
		return err
	}
	r, err := input.NewReader(bytes.NewReader(data), readerOpts...)
	if err != nil {
		return err
	}
	if err := learner.loadBinary(r); err != nil {
		return err
	}
	// A serialized training configuration may follow the model.
	if learner.hasSerializedConfig {
		return nil
	}
	return r.ExpectEOF()
}

func loadValueLearner(learner *Learner, data []byte, opts *Options) error {
	var (
		root *input.Value
		err  error
	)
	if learner.Format == input.FormatJSON {
		root, err = input.ParseJSON(bytes.NewReader(data))
	} else {
		root, err = input.ParseUBJSON(bytes.NewReader(data))
	}
	if err != nil {
		return err
	}
	if root, err = root.Lookup(opts.JSONPath); err != nil {
		return err
	}
	return learner.loadValue(root)
}
