package xgboost

import (
	"math"

	"github.com/YuminosukeSato/xgbport/pkg/errors"
)

// ObjectiveKind is the family an objective function belongs to. It decides the
// link applied to the base score and the shape of the encoded ensemble.
type ObjectiveKind int

const (
	LinearRegression ObjectiveKind = iota + 1
	LogisticRegression
	GeneralizedLinearRegression
	PoissonRegression
	SurvivalRegression
	LambdaMART
	BinomialLogisticRegression
	HingeClassification
	MultinomialLogisticRegression
)

var objectiveKindNames = map[ObjectiveKind]string{
	LinearRegression:              "LinearRegression",
	LogisticRegression:            "LogisticRegression",
	GeneralizedLinearRegression:   "GeneralizedLinearRegression",
	PoissonRegression:             "PoissonRegression",
	SurvivalRegression:            "SurvivalRegression",
	LambdaMART:                    "LambdaMART",
	BinomialLogisticRegression:    "BinomialLogisticRegression",
	HingeClassification:           "HingeClassification",
	MultinomialLogisticRegression: "MultinomialLogisticRegression",
}

func (k ObjectiveKind) String() string {
	if name, ok := objectiveKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// objectives maps objective names to their family.
var objectives = map[string]ObjectiveKind{
	"reg:linear":           LinearRegression,
	"reg:squarederror":     LinearRegression,
	"reg:squaredlogerror":  LinearRegression,
	"reg:pseudohubererror": LinearRegression,
	"reg:absoluteerror":    LinearRegression,
	"reg:quantileerror":    LinearRegression,
	"reg:logistic":         LogisticRegression,
	"reg:gamma":            GeneralizedLinearRegression,
	"reg:tweedie":          GeneralizedLinearRegression,
	"count:poisson":        PoissonRegression,
	"survival:aft":         SurvivalRegression,
	"survival:cox":         SurvivalRegression,
	"rank:pairwise":        LambdaMART,
	"rank:ndcg":            LambdaMART,
	"rank:map":             LambdaMART,
	"binary:logistic":      BinomialLogisticRegression,
	"binary:logitraw":      BinomialLogisticRegression,
	"binary:hinge":         HingeClassification,
	"multi:softmax":        MultinomialLogisticRegression,
	"multi:softprob":       MultinomialLogisticRegression,
}

// ObjFunction is the objective a model was trained with.
type ObjFunction struct {
	Name     string
	Kind     ObjectiveKind
	NumClass int // classification only
}

// ParseObjective resolves an objective name. numClass is the class count
// stored in the learner header.
func ParseObjective(name string, numClass int) (*ObjFunction, error) {
	kind, ok := objectives[name]
	if !ok {
		return nil, errors.Wrapf(errors.ErrUnknownObjective, "%q", name)
	}
	obj := &ObjFunction{Name: name, Kind: kind}
	switch kind {
	case BinomialLogisticRegression, HingeClassification:
		obj.NumClass = 2
	case MultinomialLogisticRegression:
		if numClass < 2 {
			return nil, errors.NewValidationError("num_class", "multi-class classification requires two or more target categories", numClass)
		}
		obj.NumClass = numClass
	}
	return obj, nil
}

// IsClassification reports whether the objective predicts class labels.
func (o *ObjFunction) IsClassification() bool {
	return o.NumClass > 0
}

// ProbToMargin maps a base score from probability space to margin space with
// the inverse of the objective's link function.
func (o *ObjFunction) ProbToMargin(value float32) float32 {
	switch o.Kind {
	case LogisticRegression, BinomialLogisticRegression:
		return inverseLogit(value)
	case GeneralizedLinearRegression, PoissonRegression, SurvivalRegression:
		return inverseExp(value)
	default:
		return value
	}
}

func inverseLogit(value float32) float32 {
	return float32(-math.Log(float64(1/value - 1)))
}

func inverseExp(value float32) float32 {
	return float32(math.Log(float64(value)))
}
