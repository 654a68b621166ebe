package facematch

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrDimensionMismatch is returned when embeddings of different sizes meet,
// typically after the face model was swapped without re-enrolling.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// normEpsilon keeps normalisation finite for zero vectors.
const normEpsilon = 1e-9

// Gallery holds the enrolled embeddings of one class. Row i of Vectors
// belongs to Names[i]; a student may own several rows.
// A Gallery is read-only after NewGallery and safe for concurrent use.
type Gallery struct {
	names   []string
	vectors [][]float32
	dim     int
}

// NewGallery validates and L2-normalises the rows. The input slices are copied.
func NewGallery(names []string, vectors [][]float32) (*Gallery, error) {
	if len(names) != len(vectors) {
		return nil, fmt.Errorf("gallery has %d names but %d vectors", len(names), len(vectors))
	}

	g := &Gallery{
		names:   make([]string, len(names)),
		vectors: make([][]float32, len(vectors)),
	}
	copy(g.names, names)

	for i, v := range vectors {
		if i == 0 {
			g.dim = len(v)
		} else if len(v) != g.dim {
			return nil, fmt.Errorf("%w: gallery row %d has dimension %d, expected %d", ErrDimensionMismatch, i, len(v), g.dim)
		}
		g.vectors[i] = Normalize(v)
	}
	return g, nil
}

// Len returns the number of embedding rows.
func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	return len(g.names)
}

// Dim returns the embedding dimension, 0 for an empty gallery.
func (g *Gallery) Dim() int {
	if g == nil {
		return 0
	}
	return g.dim
}

// CheckDim returns ErrDimensionMismatch when embedding cannot be compared
// with the gallery rows. Any query fits an empty gallery.
func (g *Gallery) CheckDim(embedding []float32) error {
	if g.Len() == 0 || len(embedding) == g.Dim() {
		return nil
	}
	return fmt.Errorf("%w: got %d, gallery has %d", ErrDimensionMismatch, len(embedding), g.Dim())
}

// DistinctNames returns the sorted set of student names in the gallery.
func (g *Gallery) DistinctNames() []string {
	if g == nil {
		return []string{}
	}
	seen := make(map[string]struct{}, len(g.names))
	out := make([]string, 0, len(g.names))
	for _, n := range g.names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Normalize returns v scaled to unit L2 norm as v / (||v|| + 1e-9).
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum) + normEpsilon

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// MeanEmbedding averages the embeddings and L2-normalises the result.
// All embeddings must share a dimension; returns nil for no input.
func MeanEmbedding(embeddings [][]float32) ([]float32, error) {
	if len(embeddings) == 0 {
		return nil, nil
	}
	dim := len(embeddings[0])
	sum := make([]float64, dim)
	for i, e := range embeddings {
		if len(e) != dim {
			return nil, fmt.Errorf("%w: embedding %d has dimension %d, expected %d", ErrDimensionMismatch, i, len(e), dim)
		}
		for j, x := range e {
			sum[j] += float64(x)
		}
	}
	mean := make([]float32, dim)
	for j := range sum {
		mean[j] = float32(sum[j] / float64(len(embeddings)))
	}
	return Normalize(mean), nil
}
