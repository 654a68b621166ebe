package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/class-attendance/internal/facematch"
	"github.com/kozaktomas/class-attendance/internal/imageutil"
	"github.com/kozaktomas/class-attendance/internal/quality"
)

var (
	// ErrEmptyGallery is returned when the class has no enrolled embeddings.
	ErrEmptyGallery = errors.New("no gallery embeddings for class, enroll students first")

	// ErrUnrecoverable marks detector or embedder failures that abort the
	// whole request, such as an unreachable model server.
	ErrUnrecoverable = errors.New("face service unavailable")
)

// Decoder turns uploaded bytes into an image. It returns false for corrupt
// or unsupported input.
type Decoder interface {
	Decode(data []byte) (*imageutil.Image, bool)
}

// Detector finds faces in an image.
type Detector interface {
	Detect(ctx context.Context, img *imageutil.Image) ([]facematch.DetectedFace, error)
}

// Embedder computes the embedding of one face.
type Embedder interface {
	Embed(ctx context.Context, img *imageutil.Image, landmarks json.RawMessage) ([]float32, error)
}

// GalleryLoader loads the enrolled embeddings of a class. Row i of vectors
// belongs to names[i].
type GalleryLoader interface {
	LoadGallery(ctx context.Context, classID string) (names []string, vectors [][]float32, err error)
}

// SessionPersister stores a finished session.
type SessionPersister interface {
	SaveSession(ctx context.Context, sessionID, classID string, imagesCount int, threshold float64, result *SessionResult) error
}

// Request is one attendance run.
type Request struct {
	ClassID   string
	Threshold float64
	Images    [][]byte
}

// Options tunes a Pipeline.
type Options struct {
	Quality quality.Thresholds
	Workers int // parallel images, defaults to 1
}

// Pipeline runs decoding, detection, quality gating, embedding and matching
// over a batch of images.
type Pipeline struct {
	decoder   Decoder
	detector  Detector
	embedder  Embedder
	galleries GalleryLoader
	persister SessionPersister
	quality   quality.Thresholds
	workers   int
	newID     func() string
}

// NewPipeline creates a pipeline. persister may be nil, in which case
// sessions are not stored.
func NewPipeline(decoder Decoder, detector Detector, embedder Embedder, galleries GalleryLoader, persister SessionPersister, opts Options) *Pipeline {
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Pipeline{
		decoder:   decoder,
		detector:  detector,
		embedder:  embedder,
		galleries: galleries,
		persister: persister,
		quality:   opts.Quality,
		workers:   workers,
		newID:     uuid.NewString,
	}
}

// Run processes the request and returns the session result.
//
// The gallery is loaded once; an empty gallery fails with ErrEmptyGallery
// before any image is touched. Images that fail to decode are skipped.
// Detector or embedder errors skip the image unless they wrap
// ErrUnrecoverable, which aborts the run without storing anything. An
// embedding whose dimension differs from the gallery aborts the run the same
// way with facematch.ErrDimensionMismatch.
// A failure to store the finished session is logged and otherwise ignored.
func (p *Pipeline) Run(ctx context.Context, req Request) (*SessionResult, error) {
	names, vectors, err := p.galleries.LoadGallery(ctx, req.ClassID)
	if err != nil {
		return nil, fmt.Errorf("failed to load gallery for class %s: %w", req.ClassID, err)
	}
	gallery, err := facematch.NewGallery(names, vectors)
	if err != nil {
		return nil, fmt.Errorf("invalid gallery for class %s: %w", req.ClassID, err)
	}
	if gallery.Len() == 0 {
		return nil, fmt.Errorf("%w: class_id=%s", ErrEmptyGallery, req.ClassID)
	}

	agg := NewAggregator(len(req.Images))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, data := range req.Images {
		g.Go(func() error {
			return p.processImage(gctx, i, data, gallery, req.Threshold, agg)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := agg.Result(req.ClassID, gallery.DistinctNames(), req.Threshold, p.quality)
	result.SessionID = p.newID()

	if p.persister != nil {
		if err := p.persister.SaveSession(ctx, result.SessionID, req.ClassID, len(req.Images), req.Threshold, result); err != nil {
			log.Printf("Warning: failed to save attendance session %s: %v", result.SessionID, err)
		}
	}

	return result, nil
}

// processImage handles one upload. The image's faces are collected in a local
// aggregator and merged only when the whole image succeeded.
func (p *Pipeline) processImage(ctx context.Context, idx int, data []byte, gallery *facematch.Gallery, threshold float64, agg *Aggregator) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	img, ok := p.decoder.Decode(data)
	if !ok {
		log.Printf("Image %d: cannot decode, skipping", idx)
		return nil
	}
	agg.ImageDecoded()

	local := NewAggregator(0)
	if err := p.processFaces(ctx, img, gallery, threshold, local); err != nil {
		if errors.Is(err, ErrUnrecoverable) || errors.Is(err, facematch.ErrDimensionMismatch) || ctx.Err() != nil {
			return fmt.Errorf("image %d: %w", idx, err)
		}
		log.Printf("Image %d: skipping: %v", idx, err)
		agg.ImageFailed()
		return nil
	}

	agg.Merge(local)
	return nil
}

func (p *Pipeline) processFaces(ctx context.Context, img *imageutil.Image, gallery *facematch.Gallery, threshold float64, agg *Aggregator) error {
	faces, err := p.detector.Detect(ctx, img)
	if err != nil {
		return fmt.Errorf("detect: %w", err)
	}
	agg.FacesDetected(len(faces))

	for _, face := range faces {
		verdict := quality.Evaluate(img.Pixels, face, p.quality)
		agg.RecordVerdict(verdict)
		if !verdict.Accepted {
			continue
		}

		embedding, err := p.embedder.Embed(ctx, img, face.Landmarks)
		if err != nil {
			return fmt.Errorf("embed: %w", err)
		}
		if err := gallery.CheckDim(embedding); err != nil {
			return fmt.Errorf("embed: %w", err)
		}

		agg.RecordMatch(facematch.BestMatch(embedding, gallery, threshold))
	}
	return nil
}
