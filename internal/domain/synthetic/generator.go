package synthetic

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
)

// Stream salts keep hospital and transfer generation on separate PCG streams
// even when both are given the same seed.
const (
	hospitalStream = 0x9e3779b97f4a7c15
	transferStream = 0xc2b2ae3d27d4eb4f
)

func newRNG(seed, stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^stream))
}

// intRange draws uniformly from [lo, hi).
func intRange(rng *rand.Rand, lo, hi int) int {
	return lo + rng.IntN(hi-lo)
}

// sample picks k distinct items from pool, preserving draw order.
func sample(rng *rand.Rand, pool []string, k int) []string {
	buf := make([]string, len(pool))
	copy(buf, pool)
	for i := 0; i < k; i++ {
		j := i + rng.IntN(len(buf)-i)
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf[:k]
}

// GenerateHospitals returns count synthetic hospitals. The same (count, seed)
// always produces the same table.
func GenerateHospitals(count int, seed uint64) []Hospital {
	if count < 0 {
		count = 0
	}
	rng := newRNG(seed, hospitalStream)
	out := make([]Hospital, 0, count)
	for i := 0; i < count; i++ {
		specs := sample(rng, Specialties, intRange(rng, 2, 5))

		bedsTotal := intRange(rng, 40, 220)
		bedsFree := rng.IntN(max(1, bedsTotal/4))
		icuTotal := intRange(rng, 4, 25)
		icuFree := rng.IntN(max(1, icuTotal/3))

		bedsFree = min(bedsFree, bedsTotal)
		icuFree = min(icuFree, icuTotal)

		load := 1 - float64(bedsFree)/float64(max(1, bedsTotal))
		load = math.Max(0, math.Min(1, load))

		out = append(out, Hospital{
			Name:        fmt.Sprintf("Hospital_%d", i+1),
			Specialties: specs,
			BedsTotal:   bedsTotal,
			BedsFree:    bedsFree,
			ICUTotal:    icuTotal,
			ICUFree:     icuFree,
			Load:        math.Round(load*1000) / 1000,
			DistanceKm:  intRange(rng, 2, 60),
		})
	}
	return out
}

// GenerateTransfers returns count labeled transfer reports rendered from the
// fixed templates. The same (count, seed) always produces the same table.
func GenerateTransfers(count int, seed uint64) []TransferCase {
	if count < 0 {
		count = 0
	}
	rng := newRNG(seed, transferStream)
	out := make([]TransferCase, 0, count)
	for i := 0; i < count; i++ {
		symptoms := sample(rng, Symptoms, 2)
		cond := Conditions[rng.IntN(len(Conditions))]
		risk := RiskWords[rng.IntN(len(RiskWords))]
		tmpl := Templates[rng.IntN(len(Templates))]

		report := strings.NewReplacer(
			"{symptom1}", symptoms[0],
			"{symptom2}", symptoms[1],
			"{cond}", cond.Name,
			"{risk}", risk,
			"{spec}", cond.Specialty,
		).Replace(tmpl)

		out = append(out, TransferCase{
			CaseID:        fmt.Sprintf("C%04d", i+1),
			ReportText:    report,
			TrueSpecialty: cond.Specialty,
			TrueSeverity:  cond.Severity,
		})
	}
	return out
}
