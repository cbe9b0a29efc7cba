package memory

import (
	"math"
	"sort"
)

// Match is one similarity search hit.
type Match struct {
	// Index is the record's position in the searched slice.
	Index int

	// Similarity is the cosine similarity between the query and the record.
	Similarity float64

	// Record is the matched record.
	Record *Record
}

// Search ranks records against a query embedding by cosine similarity.
//
// Records with similarity >= threshold are kept, sorted descending by
// similarity with ties preserving original record order, and at most k
// matches are returned. An empty result means no records cleared the
// threshold.
//
// Similarity is computed in full precision: stored vectors are promoted to
// float64 for the dot product and both norms, never multiplied in their
// compact half-precision form. Search never mutates its inputs.
func Search(query []float64, records []*Record, k int, threshold float64) []Match {
	matches := make([]Match, 0)
	for i, rec := range records {
		similarity := cosineSimilarity(query, rec.Vector)
		if similarity >= threshold {
			matches = append(matches, Match{Index: i, Similarity: similarity, Record: rec})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// cosineSimilarity computes the cosine similarity between a full-precision
// query and a stored vector, promoting the stored values to float64.
func cosineSimilarity(a []float64, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		bv := float64(b[i])
		dot += a[i] * bv
		normA += a[i] * a[i]
		normB += bv * bv
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
