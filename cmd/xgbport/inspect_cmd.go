package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/xgbport/xgboost"
)

type inspectCmdConfig struct {
	modelInput string
	byteOrder  string
	charset    string
	jsonPath   string
}

func inspectCmd() *cobra.Command {
	config := &inspectCmdConfig{}
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print a summary of a model",
		Long:  `Decode a model and print its objective, booster, tree count, format version and fingerprint`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.modelInput == "" {
				return fmt.Errorf("required model-input flag was not set")
			}
			learner, err := xgboost.LoadFromFile(config.modelInput,
				xgboost.WithByteOrder(config.byteOrder),
				xgboost.WithCharset(config.charset),
				xgboost.WithJSONPath(config.jsonPath),
			)
			if err != nil {
				return err
			}
			return printSummary(cmd, learner)
		},
	}
	cmd.Flags().StringVarP(&(config.modelInput), "model-input", "m", "", "path to the model file (required)")
	cmd.Flags().StringVar(&(config.byteOrder), "byte-order", "", "byte order of the binary layout (LITTLE_ENDIAN or BIG_ENDIAN)")
	cmd.Flags().StringVar(&(config.charset), "charset", "", "charset of strings in the binary layout")
	cmd.Flags().StringVar(&(config.jsonPath), "json-path", "$", "path of the learner object in a JSON or UBJSON document")
	return cmd
}

func printSummary(cmd *cobra.Command, learner *xgboost.Learner) error {
	out := cmd.OutOrStdout()
	booster := learner.Booster.Model()
	rows := [][2]string{
		{"objective", learner.Obj.Name},
		{"booster", learner.Booster.Name()},
		{"trees", strconv.Itoa(len(booster.Trees))},
		{"features", strconv.Itoa(learner.NumFeature)},
		{"classes", strconv.Itoa(learner.NumClass)},
		{"targets", strconv.Itoa(learner.NumTarget)},
		{"base score", strconv.FormatFloat(float64(learner.BaseScore), 'g', -1, 32)},
		{"version", learner.Version.String()},
		{"format", learner.Format.String()},
		{"compression", learner.Compression.String()},
		{"categorical", strconv.FormatBool(booster.HasCategoricalSplits())},
		{"fingerprint", strconv.FormatUint(learner.Fingerprint, 16)},
	}
	if iteration, ok := learner.BestIteration(); ok {
		rows = append(rows, [2]string{"best iteration", strconv.Itoa(iteration)})
	}
	for _, row := range rows {
		if _, err := fmt.Fprintf(out, "%-15s%s\n", row[0]+":", row[1]); err != nil {
			return err
		}
	}
	return nil
}
