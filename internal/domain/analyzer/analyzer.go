package analyzer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/medtransfer/dss/internal/domain/synthetic"
)

var (
	// ErrNotFitted is returned by Predict before Fit has succeeded.
	ErrNotFitted = errors.New("analyzer not ready: call Fit first")

	// ErrEmptyTrainingSet is returned by Fit when given no cases.
	ErrEmptyTrainingSet = errors.New("training set is empty")
)

// Analyzer predicts a required specialty and a severity from report text.
// It owns one shared vectorizer and two independent classifiers.
//
// Fit must not run concurrently with Predict. After Fit returns, Predict is
// safe for concurrent use.
type Analyzer struct {
	vec       *Vectorizer
	specialty *LogisticRegression
	severity  *LogisticRegression
	fitted    bool
}

// New returns an unfitted analyzer.
func New() *Analyzer {
	return &Analyzer{}
}

// Fit trains on the report texts and their labels. A second call replaces all
// previously learned state.
func (a *Analyzer) Fit(cases []synthetic.TransferCase) error {
	if len(cases) == 0 {
		return ErrEmptyTrainingSet
	}

	docs := make([]string, len(cases))
	ySpec := make([]string, len(cases))
	ySev := make([]string, len(cases))
	for i, c := range cases {
		docs[i] = c.ReportText
		ySpec[i] = c.TrueSpecialty
		ySev[i] = c.TrueSeverity
	}

	vec := NewVectorizer()
	X := vec.FitTransform(docs)

	spec := NewLogisticRegression()
	if err := spec.Fit(X, ySpec, vec.Dim()); err != nil {
		return fmt.Errorf("fit specialty classifier: %w", err)
	}
	sev := NewLogisticRegression()
	if err := sev.Fit(X, ySev, vec.Dim()); err != nil {
		return fmt.Errorf("fit severity classifier: %w", err)
	}

	a.vec, a.specialty, a.severity = vec, spec, sev
	a.fitted = true
	return nil
}

// Fitted reports whether Fit has succeeded at least once.
func (a *Analyzer) Fitted() bool { return a.fitted }

// Predict classifies a single report. No confidence threshold is applied.
func (a *Analyzer) Predict(report string) (*Prediction, error) {
	if !a.fitted {
		return nil, ErrNotFitted
	}
	x := a.vec.Transform(report)

	p := &Prediction{
		Specialty:      a.specialty.Predict(x),
		Severity:       a.severity.Predict(x),
		SpecialtyProbs: probMap(a.specialty.Classes(), a.specialty.PredictProba(x)),
		SeverityProbs:  probMap(a.severity.Classes(), a.severity.PredictProba(x)),
	}
	return p, nil
}

// SolverIterations reports how many iterations each classifier's last fit
// took; zeros before Fit.
func (a *Analyzer) SolverIterations() (specialty, severity int) {
	if !a.fitted {
		return 0, 0
	}
	return a.specialty.Iterations(), a.severity.Iterations()
}

// Vocabulary exposes the fitted vectorizer terms; nil before Fit.
func (a *Analyzer) Vocabulary() []string {
	if !a.fitted {
		return nil
	}
	return a.vec.Vocabulary()
}

func probMap(classes []string, probs []float64) map[string]float64 {
	m := make(map[string]float64, len(classes))
	for i, c := range classes {
		m[c] = probs[i]
	}
	return m
}

// Prediction is the outcome of one Predict call.
type Prediction struct {
	Specialty      string             `json:"specialty"`
	Severity       string             `json:"severity"`
	SpecialtyProbs map[string]float64 `json:"specialty_probabilities"`
	SeverityProbs  map[string]float64 `json:"severity_probabilities"`
}

// LabelProbability is one row of an explainability table.
type LabelProbability struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// TopSpecialties returns up to n specialty probabilities, highest first.
// n <= 0 returns all of them.
func (p *Prediction) TopSpecialties(n int) []LabelProbability {
	return topN(p.SpecialtyProbs, n)
}

// TopSeverities returns up to n severity probabilities, highest first.
func (p *Prediction) TopSeverities(n int) []LabelProbability {
	return topN(p.SeverityProbs, n)
}

func topN(m map[string]float64, n int) []LabelProbability {
	out := make([]LabelProbability, 0, len(m))
	for label, prob := range m {
		out = append(out, LabelProbability{Label: label, Probability: prob})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Probability != out[j].Probability {
			return out[i].Probability > out[j].Probability
		}
		return out[i].Label < out[j].Label
	})
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}
