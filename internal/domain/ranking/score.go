package ranking

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/medtransfer/dss/internal/domain/synthetic"
)

// Weights are the fixed factor weights of the decision score. They sum to 1.
type Weights struct {
	Specialty float64 `json:"specialty"`
	Capacity  float64 `json:"capacity"`
	Distance  float64 `json:"distance"`
	Load      float64 `json:"load"`
}

// DefaultWeights is the only weighting used for scoring. The values are
// illustrative, not fitted.
var DefaultWeights = Weights{
	Specialty: 0.45,
	Capacity:  0.25,
	Distance:  0.15,
	Load:      0.15,
}

const (
	// SentinelScore is returned for hospitals lacking the required specialty.
	SentinelScore = -1e9
	NoMatchReason = "No specialty match"

	// distanceScaleKm halves the distance sub-score at 10 km.
	distanceScaleKm = 10.0
)

// RankedResult is a hospital row with its decision score and explanation.
type RankedResult struct {
	synthetic.Hospital
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

// SpecialtyMatch returns 1 when required is one of specialties, else 0.
func SpecialtyMatch(specialties []string, required string) float64 {
	for _, s := range specialties {
		if s == required {
			return 1
		}
	}
	return 0
}

// ComputeScore scores one hospital for the required specialty and severity.
// Critical cases are judged on free ICU capacity, all others on free beds.
func ComputeScore(h synthetic.Hospital, required, severity string) (float64, string) {
	w := DefaultWeights

	match := SpecialtyMatch(h.Specialties, required)
	if match == 0 {
		return SentinelScore, NoMatchReason
	}

	var capacity float64
	var capReason string
	if severity == synthetic.SeverityCritical {
		capacity = math.Min(1, float64(h.ICUFree)/float64(max(1, h.ICUTotal)))
		capReason = fmt.Sprintf("ICU free %d/%d", h.ICUFree, h.ICUTotal)
	} else {
		capacity = math.Min(1, float64(h.BedsFree)/float64(max(1, h.BedsTotal)))
		capReason = fmt.Sprintf("Beds free %d/%d", h.BedsFree, h.BedsTotal)
	}

	distance := 1 / (1 + float64(h.DistanceKm)/distanceScaleKm)
	load := 1 - h.Load

	score := w.Specialty*match + w.Capacity*capacity + w.Distance*distance + w.Load*load

	reason := strings.Join([]string{
		"Match=" + required,
		capReason,
		fmt.Sprintf("Distance=%dkm", h.DistanceKm),
		"Load=" + strconv.FormatFloat(h.Load, 'f', -1, 64),
	}, ", ")
	return score, reason
}

// RankHospitals scores every hospital and returns the topK best, highest
// score first. Equal scores keep their input order. topK larger than the
// table returns every row; topK <= 0 returns none.
func RankHospitals(hospitals []synthetic.Hospital, required, severity string, topK int) []RankedResult {
	out := make([]RankedResult, len(hospitals))
	for i, h := range hospitals {
		score, reason := ComputeScore(h, required, severity)
		out[i] = RankedResult{Hospital: h, Score: score, Reason: reason}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if topK < 0 {
		topK = 0
	}
	if topK < len(out) {
		out = out[:topK]
	}
	return out
}

// ReasonItems splits a reason string into its individual statements.
func ReasonItems(reason string) []string {
	parts := strings.Split(reason, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Matched reports whether the result passed the specialty gate.
func (r RankedResult) Matched() bool {
	return r.Score > SentinelScore
}
