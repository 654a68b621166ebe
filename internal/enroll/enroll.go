// Package enroll builds the reference embedding of a student from a handful
// of portrait photos.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/kozaktomas/class-attendance/internal/attendance"
	"github.com/kozaktomas/class-attendance/internal/database"
	"github.com/kozaktomas/class-attendance/internal/facematch"
	"github.com/kozaktomas/class-attendance/internal/quality"
)

var (
	// ErrNoImages is returned when the request carries no images.
	ErrNoImages = errors.New("no images")

	// ErrNoValidFace is returned when none of the images produced an embedding.
	ErrNoValidFace = errors.New("no valid face found in uploaded images")

	// ErrInvalidRequest is returned when a required field is missing.
	ErrInvalidRequest = errors.New("class_id, student_id and student_name are required")
)

// DefaultDuplicateDistance is the cosine distance below which a new
// enrollment is reported as looking like another student.
const DefaultDuplicateDistance = 0.25

// Request enrolls one student.
type Request struct {
	ClassID     string
	StudentID   string
	StudentName string
	Images      [][]byte
	Replace     bool // drop the student's previous embeddings first
}

// Duplicate names the enrolled student closest to a new enrollment.
type Duplicate struct {
	StudentID   string  `json:"student_id"`
	StudentName string  `json:"student_name"`
	Distance    float64 `json:"distance"`
}

// Result is the outcome of an enrollment.
type Result struct {
	OK                  bool       `json:"ok"`
	StudentID           string     `json:"student_id"`
	StudentName         string     `json:"student_name"`
	ImagesUsed          int        `json:"images_used"`
	ImagesReceived      int        `json:"images_received"`
	PossibleDuplicateOf *Duplicate `json:"possible_duplicate_of,omitempty"`
}

// Options tunes a Service.
type Options struct {
	Quality           quality.Thresholds
	DuplicateDistance float64
	// IndexDir stores one HNSW index per class. Empty keeps indexes in memory
	// for the duration of a single enrollment only.
	IndexDir string
}

// Service enrolls students.
type Service struct {
	decoder    attendance.Decoder
	detector   attendance.Detector
	embedder   attendance.Embedder
	classes    database.ClassStore
	students   database.StudentStore
	embeddings database.EmbeddingWriter
	opts       Options

	mu sync.Mutex // serialises index file updates
}

// NewService creates an enrollment service.
func NewService(
	decoder attendance.Decoder,
	detector attendance.Detector,
	embedder attendance.Embedder,
	classes database.ClassStore,
	students database.StudentStore,
	embeddings database.EmbeddingWriter,
	opts Options,
) *Service {
	if opts.DuplicateDistance <= 0 {
		opts.DuplicateDistance = DefaultDuplicateDistance
	}
	return &Service{
		decoder:    decoder,
		detector:   detector,
		embedder:   embedder,
		classes:    classes,
		students:   students,
		embeddings: embeddings,
		opts:       opts,
	}
}

// Enroll computes the mean embedding of the best face in every usable image
// and stores it for the student. Images that cannot be decoded, contain no
// face or whose face is rejected by the quality gate are skipped.
func (s *Service) Enroll(ctx context.Context, req Request) (*Result, error) {
	if req.ClassID == "" || req.StudentID == "" || req.StudentName == "" {
		return nil, ErrInvalidRequest
	}
	if len(req.Images) == 0 {
		return nil, ErrNoImages
	}

	var embs [][]float32
	for i, data := range req.Images {
		emb, err := s.embedImage(ctx, data)
		if err != nil {
			if errors.Is(err, attendance.ErrUnrecoverable) || ctx.Err() != nil {
				return nil, fmt.Errorf("image %d: %w", i, err)
			}
			log.Printf("Enroll %s: image %d: skipping: %v", req.StudentID, i, err)
			continue
		}
		if emb != nil {
			embs = append(embs, emb)
		}
	}
	if len(embs) == 0 {
		return nil, ErrNoValidFace
	}

	mean, err := facematch.MeanEmbedding(embs)
	if err != nil {
		return nil, fmt.Errorf("failed to average embeddings: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Checked before any write so a model change leaves no half-enrolled student.
	stored, err := s.embeddings.ClassEmbeddings(ctx, req.ClassID)
	if err != nil {
		return nil, fmt.Errorf("failed to load class embeddings: %w", err)
	}
	others := stored
	if req.Replace {
		others = withoutStudent(stored, req.StudentID)
	}
	if err := checkDim(others, len(mean)); err != nil {
		return nil, fmt.Errorf("class %s: %w", req.ClassID, err)
	}

	if err := s.ensureClass(ctx, req.ClassID); err != nil {
		return nil, err
	}
	if err := s.students.UpsertStudent(ctx, req.StudentID, req.ClassID, req.StudentName); err != nil {
		return nil, fmt.Errorf("failed to save student: %w", err)
	}

	var index *database.EnrollmentIndex
	if req.Replace {
		// The student's old rows may have another dimension; they are
		// excluded from the duplicate check anyway.
		index = database.NewEnrollmentIndex()
		index.Build(others)
	} else {
		index = s.loadIndex(req.ClassID, stored)
	}

	result := &Result{
		OK:             true,
		StudentID:      req.StudentID,
		StudentName:    req.StudentName,
		ImagesUsed:     len(embs),
		ImagesReceived: len(req.Images),
	}
	if nearest, dist := index.NearestOtherStudent(mean, req.StudentID); nearest != nil && dist < s.opts.DuplicateDistance {
		result.PossibleDuplicateOf = &Duplicate{
			StudentID:   nearest.StudentID,
			StudentName: nearest.StudentName,
			Distance:    dist,
		}
		log.Printf("Enroll %s: looks like %s (distance %.3f)", req.StudentID, nearest.StudentID, dist)
	}

	var id int64
	if req.Replace {
		id, err = s.embeddings.ReplaceStudentEmbeddings(ctx, req.StudentID, mean, database.SourceEnroll)
	} else {
		id, err = s.embeddings.AddEmbedding(ctx, req.StudentID, mean, database.SourceEnroll)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save embedding: %w", err)
	}

	index.Add(&database.StudentEmbedding{
		ID:          id,
		StudentID:   req.StudentID,
		StudentName: req.StudentName,
		ClassID:     req.ClassID,
		Embedding:   mean,
		Dim:         len(mean),
		Source:      database.SourceEnroll,
	})
	s.saveIndex(index, req.ClassID)

	return result, nil
}

// checkDim returns facematch.ErrDimensionMismatch when a stored embedding
// has a different size than the new one.
func checkDim(stored []database.StudentEmbedding, dim int) error {
	for _, e := range stored {
		if len(e.Embedding) != dim {
			return fmt.Errorf("%w: student %s has %d-dim embeddings, new embedding has %d",
				facematch.ErrDimensionMismatch, e.StudentID, len(e.Embedding), dim)
		}
	}
	return nil
}

func withoutStudent(embs []database.StudentEmbedding, studentID string) []database.StudentEmbedding {
	out := make([]database.StudentEmbedding, 0, len(embs))
	for _, e := range embs {
		if e.StudentID != studentID {
			out = append(out, e)
		}
	}
	return out
}

// embedImage returns the embedding of the most confident face in data, or
// nil when the image has no usable face.
func (s *Service) embedImage(ctx context.Context, data []byte) ([]float32, error) {
	img, ok := s.decoder.Decode(data)
	if !ok {
		return nil, nil
	}

	faces, err := s.detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	face, ok := mostConfident(faces)
	if !ok {
		return nil, nil
	}

	if verdict := quality.Evaluate(img.Pixels, face, s.opts.Quality); !verdict.Accepted {
		return nil, nil
	}

	emb, err := s.embedder.Embed(ctx, img, face.Landmarks)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return emb, nil
}

// mostConfident picks the face with the highest detector score. Faces
// without a score rank below every scored face.
func mostConfident(faces []facematch.DetectedFace) (facematch.DetectedFace, bool) {
	if len(faces) == 0 {
		return facematch.DetectedFace{}, false
	}
	best := 0
	for i := 1; i < len(faces); i++ {
		if confidence(faces[i]) > confidence(faces[best]) {
			best = i
		}
	}
	return faces[best], true
}

func confidence(f facematch.DetectedFace) float64 {
	if f.Confidence == nil {
		return -1
	}
	return *f.Confidence
}

// ensureClass creates the class named after its ID when it does not exist.
// Existing classes keep their name.
func (s *Service) ensureClass(ctx context.Context, classID string) error {
	_, err := s.classes.GetClass(ctx, classID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("failed to get class: %w", err)
	}
	if err := s.classes.UpsertClass(ctx, classID, classID); err != nil {
		return fmt.Errorf("failed to create class: %w", err)
	}
	return nil
}

func (s *Service) indexPath(classID string) string {
	if s.opts.IndexDir == "" {
		return ""
	}
	return filepath.Join(s.opts.IndexDir, "class_"+filepath.Base(classID)+".hnsw")
}

// loadIndex returns the class index, reading it from disk when a saved copy
// matches the stored embeddings and rebuilding it otherwise.
func (s *Service) loadIndex(classID string, embs []database.StudentEmbedding) *database.EnrollmentIndex {
	if path := s.indexPath(classID); path != "" && len(embs) > 0 {
		index, err := database.LoadEnrollmentIndex(path, classID, embs)
		if err == nil {
			return index
		}
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("Rebuilding HNSW index for class %s: %v", classID, err)
		}
	}

	index := database.NewEnrollmentIndex()
	index.Build(embs)
	return index
}

func (s *Service) saveIndex(index *database.EnrollmentIndex, classID string) {
	path := s.indexPath(classID)
	if path == "" {
		return
	}
	if err := os.MkdirAll(s.opts.IndexDir, 0750); err != nil {
		log.Printf("Warning: failed to create HNSW index dir: %v", err)
		return
	}
	if err := index.Save(path, classID); err != nil {
		log.Printf("Warning: failed to save HNSW index for class %s: %v", classID, err)
	}
}
