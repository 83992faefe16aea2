// Package xgboost converts trained XGBoost tree ensembles into portable
// PMML-shaped documents.
//
// Models are accepted in the legacy binary layout, text JSON and UBJSON, plain
// or wrapped in gzip, zstd, lz4 or s2 compression. The encoding is sniffed
// from the content.
//
// # Basic Usage
//
//	learner, err := xgboost.LoadFromFile("model.ubj")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	doc, err := xgboost.Convert(learner, nil,
//	    xgboost.WithTargetName("y"),
//	    xgboost.WithNTreeLimit(100),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := xgboost.WritePMML(os.Stdout, doc); err != nil {
//	    log.Fatal(err)
//	}
//
// # Feature Maps
//
// A feature map names the features trees split on and declares their types.
// It is read from the text format XGBoost writes next to a model:
//
//	0	age	int
//	1	income	q
//	2	color=red	i
//
// When the model embeds feature names and types the feature map only needs to
// supply the values of categorical features, declared as name=value
// indicators. Without either, features are named f0..fN and treated as floats.
//
// # Options
//
// Options may be given as functional options, a map (OptionsFromMap) or a
// YAML file (LoadOptionsFile). Compacted output requires numeric encoding of
// categorical index ranges.
package xgboost
