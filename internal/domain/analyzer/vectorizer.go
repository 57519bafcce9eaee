package analyzer

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gonum.org/v1/gonum/floats"
)

// DefaultMaxFeatures caps the vocabulary size.
const DefaultMaxFeatures = 5000

// SparseVector is a row of the document-term matrix. Indices are ascending.
type SparseVector struct {
	Indices []int
	Values  []float64
}

// Vectorizer turns report text into L2-normalised TF-IDF vectors over word
// 1-grams and 2-grams.
type Vectorizer struct {
	MinN, MaxN  int
	MaxFeatures int

	vocab map[string]int
	terms []string
	idf   []float64
}

// NewVectorizer returns a 1–2 gram vectorizer capped at DefaultMaxFeatures.
func NewVectorizer() *Vectorizer {
	return &Vectorizer{MinN: 1, MaxN: 2, MaxFeatures: DefaultMaxFeatures}
}

// normalize applies NFKC and Unicode case folding.
func normalize(text string) string {
	return cases.Fold().String(norm.NFKC.String(text))
}

// tokenize splits on anything that is not a letter, digit or underscore and
// drops single-character tokens.
func tokenize(text string) []string {
	words := strings.FieldsFunc(normalize(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
	out := words[:0]
	for _, w := range words {
		if len([]rune(w)) >= 2 {
			out = append(out, w)
		}
	}
	return out
}

func (v *Vectorizer) analyze(text string) []string {
	tokens := tokenize(text)
	var grams []string
	for n := v.MinN; n <= v.MaxN; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			grams = append(grams, strings.Join(tokens[i:i+n], " "))
		}
	}
	return grams
}

// Fit learns the vocabulary and IDF weights from docs.
func (v *Vectorizer) Fit(docs []string) {
	if v.MinN <= 0 {
		v.MinN = 1
	}
	if v.MaxN < v.MinN {
		v.MaxN = v.MinN
	}

	freq := make(map[string]int)
	df := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for _, g := range v.analyze(doc) {
			freq[g]++
			if _, ok := seen[g]; !ok {
				seen[g] = struct{}{}
				df[g]++
			}
		}
	}

	terms := make([]string, 0, len(freq))
	for t := range freq {
		terms = append(terms, t)
	}
	if v.MaxFeatures > 0 && len(terms) > v.MaxFeatures {
		sort.Slice(terms, func(i, j int) bool {
			if freq[terms[i]] != freq[terms[j]] {
				return freq[terms[i]] > freq[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:v.MaxFeatures]
	}
	sort.Strings(terms)

	n := float64(len(docs))
	v.terms = terms
	v.vocab = make(map[string]int, len(terms))
	v.idf = make([]float64, len(terms))
	for i, t := range terms {
		v.vocab[t] = i
		v.idf[i] = math.Log((1+n)/(1+float64(df[t]))) + 1
	}
}

// Transform vectorizes text with the fitted vocabulary. Unknown terms are
// ignored; a text with no known terms yields an empty vector.
func (v *Vectorizer) Transform(text string) SparseVector {
	counts := make(map[int]float64)
	for _, g := range v.analyze(text) {
		if idx, ok := v.vocab[g]; ok {
			counts[idx]++
		}
	}

	vec := SparseVector{
		Indices: make([]int, 0, len(counts)),
		Values:  make([]float64, 0, len(counts)),
	}
	for idx := range counts {
		vec.Indices = append(vec.Indices, idx)
	}
	sort.Ints(vec.Indices)

	for _, idx := range vec.Indices {
		vec.Values = append(vec.Values, counts[idx]*v.idf[idx])
	}
	if l := floats.Norm(vec.Values, 2); l > 0 {
		floats.Scale(1/l, vec.Values)
	}
	return vec
}

// FitTransform fits on docs and returns their vectors.
func (v *Vectorizer) FitTransform(docs []string) []SparseVector {
	v.Fit(docs)
	out := make([]SparseVector, len(docs))
	for i, d := range docs {
		out[i] = v.Transform(d)
	}
	return out
}

// Vocabulary returns the fitted terms in index order.
func (v *Vectorizer) Vocabulary() []string {
	out := make([]string, len(v.terms))
	copy(out, v.terms)
	return out
}

// Dim is the number of features.
func (v *Vectorizer) Dim() int { return len(v.terms) }
