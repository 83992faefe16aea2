package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/xgbport/xgboost"
)

type convertCmdConfig struct {
	modelInput string
	fmapInput  string
	pmmlOutput string
	configFile string

	// flag values, applied over the config file when set
	opts xgboost.Options
}

func convertCmd() *cobra.Command {
	config := &convertCmdConfig{opts: xgboost.DefaultOptions()}
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a model into a PMML document",
		Long:  `Decode a model, resolve its features against an optional feature map and write the equivalent PMML document`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Validate(); err != nil {
				return err
			}
			opts, err := config.options(cmd)
			if err != nil {
				return err
			}
			return convert(config, opts)
		},
	}
	defaults := xgboost.DefaultOptions()
	flags := cmd.Flags()
	flags.StringVarP(&(config.modelInput), "model-input", "m", "", "path to the model file (required)")
	flags.StringVarP(&(config.fmapInput), "fmap-input", "f", "", "path to the feature map file")
	flags.StringVarP(&(config.pmmlOutput), "pmml-output", "o", "", "path of the PMML file to write (required)")
	flags.StringVarP(&(config.configFile), "config", "c", "", "path to a YAML file with conversion options")
	flags.StringVar(&(config.opts.ByteOrder), "byte-order", defaults.ByteOrder, "byte order of the binary layout (LITTLE_ENDIAN or BIG_ENDIAN)")
	flags.StringVar(&(config.opts.Charset), "charset", defaults.Charset, "charset of strings in the binary layout")
	flags.Float32Var(&(config.opts.Missing), "missing-value", defaults.Missing, "value that stands for a missing input")
	flags.StringVar(&(config.opts.TargetName), "target-name", defaults.TargetName, "name of the target field")
	flags.StringSliceVar(&(config.opts.TargetCategories), "target-categories", nil, "class labels of a classifier, comma separated")
	flags.IntVar(&(config.opts.NTreeLimit), "ntree-limit", defaults.NTreeLimit, "number of trees to keep per output group, 0 keeps all")
	flags.BoolVar(&(config.opts.Compact), "compact", defaults.Compact, "rewrite binary splits into multi-way splits")
	flags.BoolVar(&(config.opts.Numeric), "numeric", defaults.Numeric, "encode numerical splits on categorical features as integer comparisons")
	flags.BoolVar(&(config.opts.Prune), "prune", defaults.Prune, "remove unreachable branches")
	flags.StringVar(&(config.opts.JSONPath), "json-path", defaults.JSONPath, "path of the learner object in a JSON or UBJSON document")
	return cmd
}

func (c *convertCmdConfig) Validate() error {
	if c.modelInput == "" {
		return fmt.Errorf("required model-input flag was not set")
	}
	if c.pmmlOutput == "" {
		return fmt.Errorf("required pmml-output flag was not set")
	}
	return nil
}

// options layers the flags that were set explicitly over the config file.
func (c *convertCmdConfig) options(cmd *cobra.Command) (*xgboost.Options, error) {
	opts := xgboost.DefaultOptions()
	if c.configFile != "" {
		loaded, err := xgboost.LoadOptionsFile(c.configFile)
		if err != nil {
			return nil, err
		}
		opts = *loaded
	}
	flags := cmd.Flags()
	overrides := []struct {
		flag  string
		apply func()
	}{
		{"byte-order", func() { opts.ByteOrder = c.opts.ByteOrder }},
		{"charset", func() { opts.Charset = c.opts.Charset }},
		{"missing-value", func() { opts.Missing = c.opts.Missing }},
		{"target-name", func() { opts.TargetName = c.opts.TargetName }},
		{"target-categories", func() { opts.TargetCategories = c.opts.TargetCategories }},
		{"ntree-limit", func() { opts.NTreeLimit = c.opts.NTreeLimit }},
		{"compact", func() { opts.Compact = c.opts.Compact }},
		{"numeric", func() { opts.Numeric = c.opts.Numeric }},
		{"prune", func() { opts.Prune = c.opts.Prune }},
		{"json-path", func() { opts.JSONPath = c.opts.JSONPath }},
	}
	for _, o := range overrides {
		if flags.Changed(o.flag) {
			o.apply()
		}
	}
	return xgboost.NewOptions(xgboost.WithOptions(opts))
}

func convert(c *convertCmdConfig, opts *xgboost.Options) error {
	learner, err := xgboost.LoadFromFile(c.modelInput, xgboost.WithOptions(*opts))
	if err != nil {
		return err
	}

	var fmap *xgboost.FeatureMap
	if c.fmapInput != "" {
		f, err := os.Open(c.fmapInput)
		if err != nil {
			return err
		}
		fmap, err = xgboost.ParseFeatureMap(f)
		f.Close()
		if err != nil {
			return err
		}
	}

	doc, err := xgboost.Convert(learner, fmap, xgboost.WithOptions(*opts))
	if err != nil {
		return err
	}

	out, err := os.Create(c.pmmlOutput)
	if err != nil {
		return err
	}
	if err := xgboost.WritePMML(out, doc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
