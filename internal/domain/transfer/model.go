package transfer

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/medtransfer/dss/internal/domain/analyzer"
	"github.com/medtransfer/dss/internal/domain/ranking"
	"github.com/medtransfer/dss/internal/domain/synthetic"
)

// Parameter bounds for a request.
const (
	MinHospitals = 5
	MaxHospitals = 15
	MinTransfers = 50
	MaxTransfers = 400
	MinSeed      = 1
	MaxSeed      = 9999
	MinTopK      = 1
	MaxTopK      = MaxHospitals

	// explainTopN is how many specialty probabilities a recommendation lists.
	explainTopN = 5
)

// Params selects the synthetic world a request runs against.
type Params struct {
	NHospitals int    `json:"n_hospitals"`
	NTransfers int    `json:"n_transfers"`
	SeedH      uint64 `json:"seed_h"`
	SeedT      uint64 `json:"seed_t"`
	TopK       int    `json:"top_k"`
}

// DefaultParams are the values a request falls back to.
func DefaultParams() Params {
	return Params{NHospitals: 8, NTransfers: 120, SeedH: 7, SeedT: 13, TopK: 5}
}

// WithDefaults fills zero fields from d.
func (p Params) WithDefaults(d Params) Params {
	if p.NHospitals == 0 {
		p.NHospitals = d.NHospitals
	}
	if p.NTransfers == 0 {
		p.NTransfers = d.NTransfers
	}
	if p.SeedH == 0 {
		p.SeedH = d.SeedH
	}
	if p.SeedT == 0 {
		p.SeedT = d.SeedT
	}
	if p.TopK == 0 {
		p.TopK = d.TopK
	}
	return p
}

// Validate checks every field against its allowed range.
func (p Params) Validate() error {
	if p.NHospitals < MinHospitals || p.NHospitals > MaxHospitals {
		return fmt.Errorf("n_hospitals must be between %d and %d, got %d", MinHospitals, MaxHospitals, p.NHospitals)
	}
	if p.NTransfers < MinTransfers || p.NTransfers > MaxTransfers {
		return fmt.Errorf("n_transfers must be between %d and %d, got %d", MinTransfers, MaxTransfers, p.NTransfers)
	}
	if p.SeedH < MinSeed || p.SeedH > MaxSeed {
		return fmt.Errorf("seed_h must be between %d and %d, got %d", MinSeed, MaxSeed, p.SeedH)
	}
	if p.SeedT < MinSeed || p.SeedT > MaxSeed {
		return fmt.Errorf("seed_t must be between %d and %d, got %d", MinSeed, MaxSeed, p.SeedT)
	}
	if p.TopK < MinTopK || p.TopK > MaxTopK {
		return fmt.Errorf("top_k must be between %d and %d, got %d", MinTopK, MaxTopK, p.TopK)
	}
	return nil
}

// Recommendation is the full answer to one transfer request.
type Recommendation struct {
	ID             uuid.UUID                   `json:"id"`
	Params         Params                      `json:"params"`
	Prediction     *analyzer.Prediction        `json:"prediction"`
	TopSpecialties []analyzer.LabelProbability `json:"top_specialties"`
	TopSeverities  []analyzer.LabelProbability `json:"top_severities"`
	Best           ranking.RankedResult        `json:"recommended"`
	Reasons        []string                    `json:"reasons"`
	Ranked         []ranking.RankedResult      `json:"ranked"`
	NoMatch        bool                        `json:"no_match"`
}

// Vocabulary lists the closed label sets and the fixed scoring weights.
type Vocabulary struct {
	Specialties []string        `json:"specialties"`
	Severities  []string        `json:"severities"`
	Weights     ranking.Weights `json:"weights"`
}

// CurrentVocabulary returns the generator vocabularies and scoring weights.
func CurrentVocabulary() Vocabulary {
	return Vocabulary{
		Specialties: append([]string(nil), synthetic.Specialties...),
		Severities:  append([]string(nil), synthetic.SeverityLevels...),
		Weights:     ranking.DefaultWeights,
	}
}
