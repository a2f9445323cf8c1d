package search

import "math"

// Jaccard returns |A ∩ B| / |A ∪ B| over the distinct tokens of a and b.
// It is 0 when both inputs are empty.
func Jaccard(a, b []string) float64 {
	return JaccardSets(Set(a), Set(b))
}

// JaccardSets is Jaccard over pre-built sets.
func JaccardSets(a, b map[string]struct{}) float64 {
	inter := overlap(a, b)
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// IDF returns ln((n+1)/(df+1)).
func IDF(n, df int64) float64 {
	return math.Log(float64(n+1) / float64(df+1))
}

// TFIDFCosine computes the cosine similarity between two term-frequency
// vectors after weighting each term by IDF(n, df[term]). Terms missing from
// df are treated as df = 1. It returns 0 when either weighted vector has a
// zero norm, and is always within [0,1].
func TFIDFCosine(query map[string]int, doc map[string]int64, df map[string]int64, n int64) float64 {
	if len(query) == 0 || len(doc) == 0 {
		return 0
	}
	idf := func(tok string) float64 {
		d, ok := df[tok]
		if !ok || d <= 0 {
			d = 1
		}
		return IDF(n, d)
	}

	var normDoc float64
	for tok, tf := range doc {
		w := float64(tf) * idf(tok)
		normDoc += w * w
	}

	var dot, normQuery float64
	for tok, tf := range query {
		i := idf(tok)
		wq := float64(tf) * i
		normQuery += wq * wq
		if dtf, ok := doc[tok]; ok {
			dot += float64(dtf) * i * wq
		}
	}
	if dot == 0 || normDoc == 0 || normQuery == 0 {
		return 0
	}
	return clamp01(dot / (math.Sqrt(normDoc) * math.Sqrt(normQuery)))
}

// Blend returns the equal-weight mix of a set-overlap and a vector score.
func Blend(jaccard, cosine float64) float64 {
	return clamp01(0.5*jaccard + 0.5*cosine)
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
