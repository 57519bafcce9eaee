package analyzer

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
)

// LogisticRegression is a multinomial (softmax) linear classifier. Fit
// minimises the mean cross-entropy plus an L2 penalty on the weights with
// L-BFGS.
type LogisticRegression struct {
	C       float64 // inverse regularisation strength
	MaxIter int
	Tol     float64 // gradient infinity-norm at which the solver stops

	classes []string
	weights [][]float64 // [class][feature]
	bias    []float64
	iters   int
}

// NewLogisticRegression returns a classifier with C=1 and at most 200
// solver iterations.
func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{C: 1.0, MaxIter: 200, Tol: 1e-4}
}

// softmaxObjective is the regularised training loss over parameters laid out
// as k rows of dim weights followed by k biases.
type softmaxObjective struct {
	X      []SparseVector
	target []int
	k, dim int
	lambda float64
	scores []float64
}

func (o *softmaxObjective) unpack(params []float64) ([][]float64, []float64) {
	W := make([][]float64, o.k)
	for c := range W {
		W[c] = params[c*o.dim : (c+1)*o.dim]
	}
	return W, params[o.k*o.dim:]
}

// eval returns the loss at params and, when grad is non-nil, writes the
// gradient into it.
func (o *softmaxObjective) eval(params, grad []float64) float64 {
	W, b := o.unpack(params)
	weights := params[:o.k*o.dim]
	loss := o.lambda / 2 * floats.Dot(weights, weights)

	var gW [][]float64
	var gb []float64
	if grad != nil {
		floats.ScaleTo(grad, o.lambda, params)
		gW, gb = o.unpack(grad)
		floats.Scale(0, gb)
	}

	n := float64(len(o.X))
	for i, x := range o.X {
		lse := logits(W, b, x, o.scores)
		t := o.target[i]
		loss += (lse - o.scores[t]) / n
		if grad == nil {
			continue
		}
		for c := 0; c < o.k; c++ {
			g := math.Exp(o.scores[c] - lse)
			if c == t {
				g--
			}
			g /= n
			gb[c] += g
			for s, j := range x.Indices {
				gW[c][j] += g * x.Values[s]
			}
		}
	}
	return loss
}

// Fit trains on rows X of dimension dim with labels y.
func (m *LogisticRegression) Fit(X []SparseVector, y []string, dim int) error {
	if len(X) == 0 {
		return errors.New("no training rows")
	}
	if len(X) != len(y) {
		return fmt.Errorf("rows and labels differ in length: %d != %d", len(X), len(y))
	}

	classIdx := make(map[string]int)
	for _, label := range y {
		classIdx[label] = 0
	}
	classes := make([]string, 0, len(classIdx))
	for c := range classIdx {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	for i, c := range classes {
		classIdx[c] = i
	}

	k := len(classes)
	params := make([]float64, k*dim+k)
	iters := 0

	if k > 1 {
		target := make([]int, len(y))
		for i, label := range y {
			target[i] = classIdx[label]
		}
		obj := &softmaxObjective{
			X:      X,
			target: target,
			k:      k,
			dim:    dim,
			lambda: 1.0 / (m.C * float64(len(X))),
			scores: make([]float64, k),
		}
		problem := optimize.Problem{
			Func: func(p []float64) float64 { return obj.eval(p, nil) },
			Grad: func(grad, p []float64) { obj.eval(p, grad) },
		}
		settings := &optimize.Settings{
			GradientThreshold: m.Tol,
			MajorIterations:   m.MaxIter,
		}
		res, err := optimize.Minimize(problem, params, settings, &optimize.LBFGS{})
		if res == nil || math.IsNaN(res.F) {
			return fmt.Errorf("minimize softmax loss: %w", err)
		}
		// A line search that stalls at the optimum still leaves a usable X.
		params = res.X
		iters = res.MajorIterations
	}

	W, b := (&softmaxObjective{k: k, dim: dim}).unpack(params)
	m.classes = classes
	m.weights = W
	m.bias = b
	m.iters = iters
	return nil
}

// logits writes the class scores for x into out and returns their
// log-sum-exp.
func logits(W [][]float64, b []float64, x SparseVector, out []float64) float64 {
	for c := range W {
		z := b[c]
		for s, j := range x.Indices {
			z += W[c][j] * x.Values[s]
		}
		out[c] = z
	}
	return floats.LogSumExp(out)
}

// PredictProba returns one probability per class, in Classes order.
func (m *LogisticRegression) PredictProba(x SparseVector) []float64 {
	out := make([]float64, len(m.classes))
	if len(out) == 1 {
		out[0] = 1
		return out
	}
	lse := logits(m.weights, m.bias, x, out)
	floats.AddConst(-lse, out)
	for c := range out {
		out[c] = math.Exp(out[c])
	}
	return out
}

// Predict returns the most probable class. Ties go to the first class.
func (m *LogisticRegression) Predict(x SparseVector) string {
	return m.classes[floats.MaxIdx(m.PredictProba(x))]
}

// Classes returns the sorted label set seen during Fit.
func (m *LogisticRegression) Classes() []string {
	out := make([]string, len(m.classes))
	copy(out, m.classes)
	return out
}

// Iterations reports how many solver iterations the last Fit took.
func (m *LogisticRegression) Iterations() int { return m.iters }
