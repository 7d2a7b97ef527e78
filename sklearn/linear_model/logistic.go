package linear_model

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/YuminosukeSato/churn/core/model"
	"github.com/YuminosukeSato/churn/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LogisticRegression implements binary logistic regression fitted by
// full-batch gradient descent. Labels must be 0 and 1.
type LogisticRegression struct {
	state *model.StateManager // State management (composition)

	// Hyperparameters
	penalty      string  // Regularization: "l2", "none"
	C            float64 // Inverse regularization strength (1/alpha)
	fitIntercept bool    // Whether to fit intercept
	classWeight  string  // Class weight: "balanced", "none"
	randomState  int64   // Random seed for weight initialisation
	maxIter      int     // Maximum iterations
	tol          float64 // Tolerance on the largest gradient component

	// Model parameters
	coef_      []float64
	intercept_ float64
	classes_   []int
	nIter_     int
}

// LogisticRegressionOption is a functional option for LogisticRegression
type LogisticRegressionOption func(*LogisticRegression)

// NewLogisticRegression creates a new LogisticRegression classifier
func NewLogisticRegression(opts ...LogisticRegressionOption) *LogisticRegression {
	lr := &LogisticRegression{
		state:        model.NewStateManager(),
		penalty:      "l2",
		C:            1.0,
		fitIntercept: true,
		classWeight:  "none",
		randomState:  0,
		maxIter:      100,
		tol:          1e-4,
	}
	for _, opt := range opts {
		opt(lr)
	}
	return lr
}

// WithLRPenalty sets the regularization type
func WithLRPenalty(penalty string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.penalty = penalty
	}
}

// WithLRC sets the inverse regularization strength
func WithLRC(c float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.C = c
	}
}

// WithLogisticFitIntercept sets whether to fit intercept
func WithLogisticFitIntercept(fit bool) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.fitIntercept = fit
	}
}

// WithLRClassWeight sets the class weighting: "none" or "balanced".
// "balanced" weights each class by n_samples / (2 * n_class).
func WithLRClassWeight(weight string) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.classWeight = weight
	}
}

// WithLRMaxIter sets the maximum number of iterations
func WithLRMaxIter(maxIter int) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.maxIter = maxIter
	}
}

// WithLRTol sets the tolerance for stopping criteria
func WithLRTol(tol float64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.tol = tol
	}
}

// WithLRRandomState sets the random seed
func WithLRRandomState(seed int64) LogisticRegressionOption {
	return func(lr *LogisticRegression) {
		lr.randomState = seed
	}
}

func (lr *LogisticRegression) validateParams() error {
	switch {
	case lr.penalty != "l2" && lr.penalty != "none":
		return errors.NewValueError("LogisticRegression", fmt.Sprintf("penalty must be l2 or none, got %q", lr.penalty))
	case lr.penalty == "l2" && lr.C <= 0:
		return errors.NewValueError("LogisticRegression", fmt.Sprintf("C must be positive, got %v", lr.C))
	case lr.classWeight != "none" && lr.classWeight != "balanced":
		return errors.NewValueError("LogisticRegression", fmt.Sprintf("class_weight must be none or balanced, got %q", lr.classWeight))
	case lr.maxIter <= 0:
		return errors.NewValueError("LogisticRegression", fmt.Sprintf("max_iter must be positive, got %d", lr.maxIter))
	}
	return nil
}

// IsFitted returns whether the model has been fitted.
func (lr *LogisticRegression) IsFitted() bool {
	return lr.state.IsFitted()
}

// Fit trains the logistic regression model
func (lr *LogisticRegression) Fit(X, y mat.Matrix) error {
	return lr.FitContext(context.Background(), X, y)
}

// FitContext trains the model, checking ctx between iterations. Hitting
// max_iter without meeting tol emits a ConvergenceWarning, not an error.
func (lr *LogisticRegression) FitContext(ctx context.Context, X, y mat.Matrix) (err error) {
	defer errors.Recover(&err, "LogisticRegression.Fit")

	if err := lr.validateParams(); err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 {
		return errors.Wrap(errors.ErrEmptyData, "LogisticRegression.Fit")
	}
	if nSamples != yRows {
		return errors.NewDimensionError("LogisticRegression.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return errors.NewDimensionError("LogisticRegression.Fit", 1, yCols, 1)
	}

	labels, pos, err := model.BinaryLabels("LogisticRegression.Fit", y)
	if err != nil {
		return err
	}
	nPos := float64(pos)
	lr.classes_ = []int{0, 1}

	// Per-sample weights.
	weights := make([]float64, nSamples)
	floats.AddConst(1, weights)
	if lr.classWeight == "balanced" && nPos > 0 && nPos < float64(nSamples) {
		wPos := float64(nSamples) / (2 * nPos)
		wNeg := float64(nSamples) / (2 * (float64(nSamples) - nPos))
		for i, v := range labels {
			if v == 1 {
				weights[i] = wPos
			} else {
				weights[i] = wNeg
			}
		}
	}
	totalWeight := floats.Sum(weights)

	r := rand.New(rand.NewPCG(uint64(lr.randomState), uint64(lr.randomState)))
	lr.coef_ = make([]float64, nFeatures)
	for j := range lr.coef_ {
		lr.coef_[j] = r.NormFloat64() * 0.01
	}
	lr.intercept_ = 0

	coef := mat.NewVecDense(nFeatures, lr.coef_)
	z := mat.NewVecDense(nSamples, nil)
	residual := mat.NewVecDense(nSamples, nil)
	grad := mat.NewVecDense(nFeatures, nil)
	baseLearningRate := 1.0

	converged := false
	for iter := 0; iter < lr.maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "LogisticRegression.Fit")
		}

		z.MulVec(X, coef)
		gradIntercept := 0.0
		for i := 0; i < nSamples; i++ {
			e := (sigmoid(z.AtVec(i)+lr.intercept_) - labels[i]) * weights[i]
			residual.SetVec(i, e)
			gradIntercept += e
		}
		grad.MulVec(X.T(), residual)
		grad.ScaleVec(1/totalWeight, grad)
		gradIntercept /= totalWeight

		if lr.penalty == "l2" {
			grad.AddScaledVec(grad, 1/(lr.C*totalWeight), coef)
		}
		if err := errors.CheckNumericalStability("LogisticRegression.Fit", grad.RawVector().Data, iter); err != nil {
			return err
		}

		learningRate := baseLearningRate / (1.0 + 0.1*float64(iter))
		coef.AddScaledVec(coef, -learningRate, grad)
		if lr.fitIntercept {
			lr.intercept_ -= learningRate * gradIntercept
		}
		lr.nIter_ = iter + 1

		maxGrad := math.Max(math.Abs(gradIntercept), mat.Norm(grad, math.Inf(1)))
		if maxGrad < lr.tol {
			converged = true
			break
		}
	}
	if !converged {
		errors.Warn(errors.NewConvergenceWarning("LogisticRegression", lr.nIter_,
			"gradient descent did not reach tol; increase max_iter or scale the features"))
	}

	lr.state.SetDimensions(nFeatures, nSamples)
	lr.state.SetFitted()
	return nil
}

// decision returns X·coef + intercept.
func (lr *LogisticRegression) decision(op string, X mat.Matrix) (*mat.VecDense, error) {
	if err := lr.state.RequireFitted("LogisticRegression", op); err != nil {
		return nil, err
	}
	nSamples, nFeatures := X.Dims()
	if err := lr.state.CheckFeatures("LogisticRegression."+op, nFeatures); err != nil {
		return nil, err
	}
	z := mat.NewVecDense(nSamples, nil)
	z.MulVec(X, mat.NewVecDense(len(lr.coef_), lr.coef_))
	for i := 0; i < nSamples; i++ {
		z.SetVec(i, z.AtVec(i)+lr.intercept_)
	}
	return z, nil
}

// Predict returns the class with probability >= 0.5 for each row.
func (lr *LogisticRegression) Predict(X mat.Matrix) (mat.Matrix, error) {
	z, err := lr.decision("Predict", X)
	if err != nil {
		return nil, err
	}
	n := z.Len()
	predictions := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		if sigmoid(z.AtVec(i)) >= 0.5 {
			predictions.Set(i, 0, 1)
		}
	}
	return predictions, nil
}

// PredictProba returns an n×2 matrix of P(0), P(1).
func (lr *LogisticRegression) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	z, err := lr.decision("PredictProba", X)
	if err != nil {
		return nil, err
	}
	n := z.Len()
	probas := mat.NewDense(n, 2, nil)
	for i := 0; i < n; i++ {
		p := sigmoid(z.AtVec(i))
		probas.Set(i, 0, 1.0-p)
		probas.Set(i, 1, p)
	}
	return probas, nil
}

// Score returns the mean accuracy on the given test data and labels
func (lr *LogisticRegression) Score(X, y mat.Matrix) (float64, error) {
	predictions, err := lr.Predict(X)
	if err != nil {
		return 0, err
	}
	return model.MeanAccuracy(y, predictions)
}

// Classes returns the class labels, always [0 1] once fitted.
func (lr *LogisticRegression) Classes() []int {
	return lr.classes_
}

// Coef returns a copy of the fitted coefficients.
func (lr *LogisticRegression) Coef() []float64 {
	return append([]float64(nil), lr.coef_...)
}

// Intercept returns the fitted intercept.
func (lr *LogisticRegression) Intercept() float64 {
	return lr.intercept_
}

// NIter returns the number of gradient steps taken by the last fit.
func (lr *LogisticRegression) NIter() int {
	return lr.nIter_
}

// GetParams returns the model hyperparameters
func (lr *LogisticRegression) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"penalty":       lr.penalty,
		"C":             lr.C,
		"fit_intercept": lr.fitIntercept,
		"class_weight":  lr.classWeight,
		"random_state":  lr.randomState,
		"max_iter":      lr.maxIter,
		"tol":           lr.tol,
	}
}

// SetParams sets the model hyperparameters
func (lr *LogisticRegression) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		var ok bool
		switch key {
		case "penalty":
			lr.penalty, ok = value.(string)
		case "C":
			lr.C, ok = value.(float64)
		case "fit_intercept":
			lr.fitIntercept, ok = value.(bool)
		case "class_weight":
			lr.classWeight, ok = value.(string)
		case "random_state":
			lr.randomState, ok = value.(int64)
		case "max_iter":
			lr.maxIter, ok = value.(int)
		case "tol":
			lr.tol, ok = value.(float64)
		default:
			return errors.NewValueError("LogisticRegression.SetParams", fmt.Sprintf("unknown parameter: %s", key))
		}
		if !ok {
			return errors.NewValueError("LogisticRegression.SetParams", fmt.Sprintf("parameter %s has wrong type %T", key, value))
		}
	}
	return nil
}

// sigmoid computes the sigmoid function
func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + errors.StabilizeExp(-z))
}
