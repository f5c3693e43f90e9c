package smartreply

import (
	"fmt"
	"math"
)

// Algorithm selects how message embeddings are compared.
type Algorithm int

const (
	DotProduct Algorithm = iota
	Cosine
	Euclidean
)

func (a Algorithm) String() string {
	switch a {
	case Cosine:
		return "cosine"
	case Euclidean:
		return "euclidean"
	default:
		return "dot-product"
	}
}

// ParseAlgorithm maps a configuration value onto an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "", "dot-product":
		return DotProduct, nil
	case "cosine":
		return Cosine, nil
	case "euclidean":
		return Euclidean, nil
	default:
		return 0, fmt.Errorf("unknown similarity algorithm %q", name)
	}
}

// Scorer rates how related b is to a; higher is more similar. A score <= 0
// means unrelated or invalid input.
type Scorer func(a, b []float64) float64

// NewScorer returns the scorer for alg. Euclidean distance is inverted to
// 1/(1+d) so that all scorers agree on direction.
func NewScorer(alg Algorithm) Scorer {
	switch alg {
	case Cosine:
		return CosineSimilarity
	case Euclidean:
		return func(a, b []float64) float64 {
			d := EuclideanDistance(a, b)
			if d == math.MaxFloat64 {
				return -1
			}
			return 1 / (1 + d)
		}
	default:
		return DotProductSimilarity
	}
}

// DotProductSimilarity returns the dot product of a and b, or -1 when the
// lengths differ or either vector is empty.
func DotProductSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return -1
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// CosineSimilarity returns a value in [-1, 1], -1 for mismatched input and 0
// when either vector has zero magnitude.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return -1
	}
	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// EuclideanDistance returns the L2 distance, or math.MaxFloat64 for
// mismatched input.
func EuclideanDistance(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return math.MaxFloat64
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
