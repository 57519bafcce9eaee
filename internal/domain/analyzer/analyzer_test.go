package analyzer

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medtransfer/dss/internal/domain/synthetic"
)

func fittedAnalyzer(t *testing.T, n int, seed uint64) (*Analyzer, []synthetic.TransferCase) {
	t.Helper()
	cases := synthetic.GenerateTransfers(n, seed)
	a := New()
	require.NoError(t, a.Fit(cases))
	return a, cases
}

func labelSet(cases []synthetic.TransferCase, pick func(synthetic.TransferCase) string) []string {
	seen := map[string]bool{}
	for _, c := range cases {
		seen[pick(c)] = true
	}
	out := make([]string, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func keys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestAnalyzer_PredictBeforeFit(t *testing.T) {
	a := New()
	assert.False(t, a.Fitted())
	p, err := a.Predict("chest pain")
	assert.Nil(t, p)
	require.ErrorIs(t, err, ErrNotFitted)
	assert.Equal(t, "analyzer not ready: call Fit first", err.Error())
	assert.Nil(t, a.Vocabulary())
	spec, sev := a.SolverIterations()
	assert.Zero(t, spec)
	assert.Zero(t, sev)
}

func TestAnalyzer_FitEmpty(t *testing.T) {
	a := New()
	require.ErrorIs(t, a.Fit(nil), ErrEmptyTrainingSet)
	assert.False(t, a.Fitted())
}

func TestAnalyzer_LabelClosure(t *testing.T) {
	a, cases := fittedAnalyzer(t, 120, 13)
	p, err := a.Predict("Severe seizure, vomiting. Possible stroke. Transfer to Neurology.")
	require.NoError(t, err)

	assert.Equal(t, labelSet(cases, func(c synthetic.TransferCase) string { return c.TrueSpecialty }), keys(p.SpecialtyProbs))
	assert.Equal(t, labelSet(cases, func(c synthetic.TransferCase) string { return c.TrueSeverity }), keys(p.SeverityProbs))
	assert.Contains(t, p.SpecialtyProbs, p.Specialty)
	assert.Contains(t, p.SeverityProbs, p.Severity)
}

func TestAnalyzer_ProbabilityValidity(t *testing.T) {
	a, _ := fittedAnalyzer(t, 200, 5)
	reports := []string{
		"Patient has chest pain and shortness of breath. Suspected myocardial infarction. Needs Cardiology.",
		"Report indicates fracture with head trauma. Risk is low. Suggested Orthopedics.",
		"completely unrelated words",
		"",
	}
	for _, r := range reports {
		p, err := a.Predict(r)
		require.NoError(t, err)
		for _, probs := range []map[string]float64{p.SpecialtyProbs, p.SeverityProbs} {
			var sum float64
			for _, v := range probs {
				assert.GreaterOrEqual(t, v, 0.0)
				assert.LessOrEqual(t, v, 1.0)
				sum += v
			}
			assert.InDelta(t, 1.0, sum, 1e-6)
		}
	}
}

func TestAnalyzer_PredictsObviousReports(t *testing.T) {
	a, _ := fittedAnalyzer(t, 120, 13)

	p, err := a.Predict("Patient has chest pain and shortness of breath. Suspected myocardial infarction. Needs Cardiology.")
	require.NoError(t, err)
	assert.Equal(t, "Cardiology", p.Specialty)
	assert.Equal(t, "critical", p.Severity)

	p, err = a.Predict("Report indicates fracture with bleeding. Risk is moderate. Suggested Orthopedics.")
	require.NoError(t, err)
	assert.Equal(t, "Orthopedics", p.Specialty)
	assert.Equal(t, "urgent", p.Severity)
}

func TestAnalyzer_TrainingAccuracy(t *testing.T) {
	a, cases := fittedAnalyzer(t, 150, 42)
	var specOK, sevOK int
	for _, c := range cases {
		p, err := a.Predict(c.ReportText)
		require.NoError(t, err)
		if p.Specialty == c.TrueSpecialty {
			specOK++
		}
		if p.Severity == c.TrueSeverity {
			sevOK++
		}
	}
	assert.GreaterOrEqual(t, float64(specOK)/float64(len(cases)), 0.9)
	assert.GreaterOrEqual(t, float64(sevOK)/float64(len(cases)), 0.9)
}

func TestAnalyzer_RefitReplacesState(t *testing.T) {
	a := New()
	require.NoError(t, a.Fit(synthetic.GenerateTransfers(100, 1)))

	only := []synthetic.TransferCase{
		{CaseID: "C0001", ReportText: "Severe seizure. Possible stroke. Transfer to Neurology.", TrueSpecialty: "Neurology", TrueSeverity: "critical"},
		{CaseID: "C0002", ReportText: "Patient has vomiting. Suspected fracture. Needs Orthopedics.", TrueSpecialty: "Orthopedics", TrueSeverity: "urgent"},
	}
	require.NoError(t, a.Fit(only))

	p, err := a.Predict("stroke")
	require.NoError(t, err)
	assert.Equal(t, []string{"Neurology", "Orthopedics"}, keys(p.SpecialtyProbs))
	assert.Equal(t, []string{"critical", "urgent"}, keys(p.SeverityProbs))
	assert.Equal(t, "Neurology", p.Specialty)
}

func TestAnalyzer_SingleClass(t *testing.T) {
	a := New()
	require.NoError(t, a.Fit([]synthetic.TransferCase{
		{ReportText: "Possible sepsis", TrueSpecialty: "ICU", TrueSeverity: "critical"},
	}))
	p, err := a.Predict("anything")
	require.NoError(t, err)
	assert.Equal(t, "ICU", p.Specialty)
	assert.Equal(t, map[string]float64{"ICU": 1}, p.SpecialtyProbs)
}

func TestAnalyzer_SolverIterations(t *testing.T) {
	a, _ := fittedAnalyzer(t, 120, 13)
	spec, sev := a.SolverIterations()
	assert.Greater(t, spec, 0)
	assert.Greater(t, sev, 0)
	assert.LessOrEqual(t, spec, NewLogisticRegression().MaxIter)
	assert.LessOrEqual(t, sev, NewLogisticRegression().MaxIter)
}

func TestAnalyzer_Deterministic(t *testing.T) {
	a, _ := fittedAnalyzer(t, 80, 9)
	b, _ := fittedAnalyzer(t, 80, 9)
	report := "Severe high fever, low BP. Possible sepsis. Transfer to ICU."
	pa, err := a.Predict(report)
	require.NoError(t, err)
	pb, err := b.Predict(report)
	require.NoError(t, err)
	assert.Equal(t, pa, pb)
}

func TestPrediction_TopN(t *testing.T) {
	p := &Prediction{
		SpecialtyProbs: map[string]float64{"ICU": 0.2, "Surgery": 0.5, "Cardiology": 0.2, "Neurology": 0.1},
		SeverityProbs:  map[string]float64{"urgent": 0.3, "critical": 0.7},
	}
	top := p.TopSpecialties(3)
	require.Len(t, top, 3)
	assert.Equal(t, "Surgery", top[0].Label)
	assert.Equal(t, "Cardiology", top[1].Label)
	assert.Equal(t, "ICU", top[2].Label)

	assert.Len(t, p.TopSpecialties(0), 4)
	assert.Len(t, p.TopSpecialties(10), 4)
	assert.Equal(t, "critical", p.TopSeverities(1)[0].Label)
}
