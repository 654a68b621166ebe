// Package attendance turns a batch of classroom photos into a per-student
// attendance verdict.
package attendance

import (
	"sort"

	"github.com/kozaktomas/class-attendance/internal/quality"
)

// Debug holds the counters reported with every session result. They let an
// operator tell "nobody was there" apart from "everything was filtered out".
type Debug struct {
	ImagesReceived    int `json:"images_received"`
	ImagesDecoded     int `json:"images_decoded"`
	ImagesFailed      int `json:"images_failed"`
	FacesDetected     int `json:"faces_detected"`
	AcceptedNoBBox    int `json:"accepted_nobbox"`
	FilteredLowConf   int `json:"filtered_lowconf"`
	FilteredSmall     int `json:"filtered_small"`
	FilteredEmptyCrop int `json:"filtered_empty_crop"`
	FilteredBlur      int `json:"filtered_blur"`
	FacesEmbedded     int `json:"faces_embedded"`
	FacesMatched      int `json:"faces_matched"`
}

// Add adds every counter of other to d.
func (d *Debug) Add(other Debug) {
	d.ImagesReceived += other.ImagesReceived
	d.ImagesDecoded += other.ImagesDecoded
	d.ImagesFailed += other.ImagesFailed
	d.FacesDetected += other.FacesDetected
	d.AcceptedNoBBox += other.AcceptedNoBBox
	d.FilteredLowConf += other.FilteredLowConf
	d.FilteredSmall += other.FilteredSmall
	d.FilteredEmptyCrop += other.FilteredEmptyCrop
	d.FilteredBlur += other.FilteredBlur
	d.FacesEmbedded += other.FacesEmbedded
	d.FacesMatched += other.FacesMatched
}

// PresentStudent is a student seen in the session with their best score.
type PresentStudent struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

// SessionResult is the outcome of one attendance run. Its JSON form is the
// public contract of the service and is stored verbatim.
type SessionResult struct {
	ClassID           string             `json:"class_id"`
	CountTotal        int                `json:"count_total"`
	CountPresent      int                `json:"count_present"`
	Present           []PresentStudent   `json:"present"`
	Absent            []string           `json:"absent"`
	UnknownFacesCount int                `json:"unknown_faces_count"`
	Threshold         float64            `json:"threshold"`
	Debug             Debug              `json:"debug"`
	QualityThresholds quality.Thresholds `json:"quality_thresholds"`
	SessionID         string             `json:"session_id"`
}

// BuildResult derives the final result from the aggregated state.
// Present is sorted by name; absent is the sorted set of distinct names
// without an entry in best. Present and Absent are never nil.
func BuildResult(classID string, allDistinctNames []string, best PresentBest, unknown int, threshold float64, debug Debug, q quality.Thresholds) *SessionResult {
	present := make([]PresentStudent, 0, len(best))
	for name, score := range best {
		present = append(present, PresentStudent{Name: name, Score: score})
	}
	sort.Slice(present, func(i, j int) bool {
		return present[i].Name < present[j].Name
	})

	seen := make(map[string]struct{}, len(allDistinctNames))
	absent := make([]string, 0, len(allDistinctNames))
	for _, name := range allDistinctNames {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if _, ok := best[name]; !ok {
			absent = append(absent, name)
		}
	}
	sort.Strings(absent)

	return &SessionResult{
		ClassID:           classID,
		CountTotal:        len(seen),
		CountPresent:      len(present),
		Present:           present,
		Absent:            absent,
		UnknownFacesCount: unknown,
		Threshold:         threshold,
		Debug:             debug,
		QualityThresholds: q,
	}
}
