package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

// HNSWIndexMetadata stores metadata for validating cached HNSW indexes.
type HNSWIndexMetadata struct {
	ClassID   string    `json:"class_id"`
	Count     int       `json:"count"`
	MaxID     int64     `json:"max_id"`
	BuildTime time.Time `json:"build_time"`
	Version   int       `json:"version"`
}

const hnswMetadataVersion = 1

// EnrollmentIndex wraps an HNSW graph over the enrollment embeddings of one
// class. It is used to spot a new enrollment that looks like a different,
// already enrolled student.
type EnrollmentIndex struct {
	graph *hnsw.Graph[int64]
	byID  map[int64]*StudentEmbedding
	mu    sync.RWMutex
}

// NewEnrollmentIndex creates a new empty index.
func NewEnrollmentIndex() *EnrollmentIndex {
	return &EnrollmentIndex{
		byID: make(map[int64]*StudentEmbedding),
	}
}

func newGraph() *hnsw.Graph[int64] {
	g := hnsw.NewGraph[int64]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// Build replaces the index content with embs.
func (h *EnrollmentIndex) Build(embs []StudentEmbedding) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.byID = make(map[int64]*StudentEmbedding, len(embs))
	if len(embs) == 0 {
		h.graph = nil
		return
	}

	g := newGraph()
	for i := range embs {
		e := &embs[i]
		if len(e.Embedding) == 0 {
			continue
		}
		g.Add(hnsw.MakeNode(e.ID, e.Embedding))
		h.byID[e.ID] = e
	}
	h.graph = g
}

// Add adds a single embedding to the index.
func (h *EnrollmentIndex) Add(e *StudentEmbedding) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(e.Embedding) == 0 {
		return
	}
	if h.graph == nil {
		h.graph = newGraph()
	}
	h.graph.Add(hnsw.MakeNode(e.ID, e.Embedding))
	h.byID[e.ID] = e
}

// Search finds the k nearest neighbors to the query embedding.
// Returns embedding IDs and their cosine distances.
func (h *EnrollmentIndex) Search(query []float32, k int) ([]int64, []float64, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		return nil, nil, errors.New("index not initialized")
	}

	neighbors := h.graph.Search(query, k)
	ids := make([]int64, 0, len(neighbors))
	distances := make([]float64, 0, len(neighbors))
	for _, n := range neighbors {
		if _, ok := h.byID[n.Key]; !ok {
			continue
		}
		ids = append(ids, n.Key)
		distances = append(distances, CosineDistance(query, n.Value))
	}
	return ids, distances, nil
}

// NearestOtherStudent returns the closest embedding that belongs to a student
// other than studentID, with its cosine distance. It returns nil when the
// index holds no other student.
func (h *EnrollmentIndex) NearestOtherStudent(query []float32, studentID string) (*StudentEmbedding, float64) {
	k := min(h.Count(), HNSWEfSearch*HNSWSearchMultiplier)
	if k == 0 {
		return nil, 0
	}
	ids, distances, err := h.Search(query, k)
	if err != nil {
		return nil, 0
	}

	var best *StudentEmbedding
	bestDist := 0.0
	for i, id := range ids {
		e := h.Get(id)
		if e == nil || e.StudentID == studentID {
			continue
		}
		if best == nil || distances[i] < bestDist {
			best, bestDist = e, distances[i]
		}
	}
	return best, bestDist
}

// Get returns the embedding for a given ID.
func (h *EnrollmentIndex) Get(id int64) *StudentEmbedding {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byID[id]
}

// Count returns the number of indexed embeddings.
func (h *EnrollmentIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byID)
}

func metadataFor(classID string, byID map[int64]*StudentEmbedding) HNSWIndexMetadata {
	var maxID int64
	for id := range byID {
		maxID = max(maxID, id)
	}
	return HNSWIndexMetadata{ClassID: classID, Count: len(byID), MaxID: maxID, Version: hnswMetadataVersion}
}

// Save persists the graph to path and its metadata to path.meta.
func (h *EnrollmentIndex) Save(path, classID string) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.graph == nil {
		// Remove existing files if index is empty (best-effort cleanup).
		_ = os.Remove(path)
		_ = os.Remove(path + ".meta")
		return nil
	}

	f, err := os.Create(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return fmt.Errorf("failed to create HNSW index file: %w", err)
	}
	defer f.Close()

	if err := h.graph.Export(f); err != nil {
		return fmt.Errorf("failed to export HNSW graph: %w", err)
	}

	metadata := metadataFor(classID, h.byID)
	metadata.BuildTime = time.Now()
	metaData, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(path+".meta", metaData, 0600); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}

// LoadHNSWMetadata loads metadata from a separate .meta file.
func LoadHNSWMetadata(path string) (HNSWIndexMetadata, error) {
	var metadata HNSWIndexMetadata

	data, err := os.ReadFile(path + ".meta") //nolint:gosec // path is from trusted config
	if err != nil {
		return metadata, fmt.Errorf("failed to read metadata file: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return metadata, nil
}

// LoadEnrollmentIndex loads a saved graph and attaches embs as its entries.
// It fails when the saved metadata does not describe exactly embs, in which
// case the caller should rebuild the index.
func LoadEnrollmentIndex(path, classID string, embs []StudentEmbedding) (*EnrollmentIndex, error) {
	metadata, err := LoadHNSWMetadata(path)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]*StudentEmbedding, len(embs))
	for i := range embs {
		byID[embs[i].ID] = &embs[i]
	}
	want := metadataFor(classID, byID)
	if metadata.Version != want.Version || metadata.ClassID != want.ClassID ||
		metadata.Count != want.Count || metadata.MaxID != want.MaxID {
		return nil, fmt.Errorf("HNSW index %s is stale", path)
	}

	saved, err := hnsw.LoadSavedGraph[int64](path)
	if err != nil {
		return nil, fmt.Errorf("failed to load HNSW index: %w", err)
	}
	saved.Distance = hnsw.CosineDistance

	return &EnrollmentIndex{graph: saved.Graph, byID: byID}, nil
}
