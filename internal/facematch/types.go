// Package facematch provides face matching utilities shared between the attendance
// pipeline, enrollment and the web handlers.
package facematch

import "encoding/json"

// DetectedFace is one face reported by the external detector.
// BBox and Confidence are optional: some detectors omit them.
type DetectedFace struct {
	BBox       *BBox           `json:"bbox,omitempty"`
	Confidence *float64        `json:"det_score,omitempty"`
	Landmarks  json.RawMessage `json:"landmarks,omitempty"` // passed through to the embedder untouched
}

// MatchResult is the outcome of matching one embedding against a gallery.
type MatchResult struct {
	Name    string  // empty when not matched
	Matched bool    // Score >= threshold
	Score   float64 // best cosine similarity, reported even when not matched

	// EmptyGallery marks the "nothing enrolled" case so callers can tell it
	// apart from "searched and found nothing".
	EmptyGallery bool
}
