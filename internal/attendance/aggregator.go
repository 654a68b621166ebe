package attendance

import (
	"sync"

	"github.com/kozaktomas/class-attendance/internal/facematch"
	"github.com/kozaktomas/class-attendance/internal/quality"
)

// PresentBest maps a student name to the best match score seen in a session.
type PresentBest map[string]float64

// UpdatePresentBest stores score for name if name is not present yet or score
// is strictly greater than the stored one. Stored scores never decrease.
func UpdatePresentBest(m PresentBest, name string, score float64) {
	if prev, ok := m[name]; !ok || score > prev {
		m[name] = score
	}
}

// Aggregator collects match results and debug counters for one request.
// All methods are safe for concurrent use.
type Aggregator struct {
	mu      sync.Mutex
	best    PresentBest
	unknown int
	debug   Debug
}

// NewAggregator creates an aggregator for a batch of imagesReceived images.
func NewAggregator(imagesReceived int) *Aggregator {
	return &Aggregator{
		best:  make(PresentBest),
		debug: Debug{ImagesReceived: imagesReceived},
	}
}

// UpdatePresentBest records a match for name.
func (a *Aggregator) UpdatePresentBest(name string, score float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	UpdatePresentBest(a.best, name, score)
}

// RecordUnknown counts a face that matched nobody.
func (a *Aggregator) RecordUnknown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unknown++
}

// ImageDecoded counts an image that decoded successfully.
func (a *Aggregator) ImageDecoded() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.debug.ImagesDecoded++
}

// ImageFailed counts a decoded image dropped after a detector or embedder error.
func (a *Aggregator) ImageFailed() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.debug.ImagesFailed++
}

// FacesDetected adds n to the detected faces counter.
func (a *Aggregator) FacesDetected(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.debug.FacesDetected += n
}

// RecordVerdict counts a quality gate decision. Plain "ok" acceptances are
// not counted separately; they show up in faces_embedded.
func (a *Aggregator) RecordVerdict(v quality.Verdict) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch v.Reason {
	case quality.ReasonNoBBox:
		a.debug.AcceptedNoBBox++
	case quality.ReasonLowConf:
		a.debug.FilteredLowConf++
	case quality.ReasonSmall:
		a.debug.FilteredSmall++
	case quality.ReasonEmptyCrop:
		a.debug.FilteredEmptyCrop++
	case quality.ReasonBlur:
		a.debug.FilteredBlur++
	}
}

// RecordMatch routes a match result: matched faces update the present-best
// map, unmatched faces count as unknown.
func (a *Aggregator) RecordMatch(r facematch.MatchResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.debug.FacesEmbedded++
	if !r.Matched {
		a.unknown++
		return
	}
	a.debug.FacesMatched++
	UpdatePresentBest(a.best, r.Name, r.Score)
}

// Merge folds the state of other into a. other must not be used concurrently.
func (a *Aggregator) Merge(other *Aggregator) {
	other.mu.Lock()
	defer other.mu.Unlock()
	a.mu.Lock()
	defer a.mu.Unlock()

	for name, score := range other.best {
		UpdatePresentBest(a.best, name, score)
	}
	a.unknown += other.unknown
	a.debug.Add(other.debug)
}

// Debug returns a snapshot of the counters.
func (a *Aggregator) Debug() Debug {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.debug
}

// Result builds the session result. Call it once all images are processed.
func (a *Aggregator) Result(classID string, allDistinctNames []string, threshold float64, q quality.Thresholds) *SessionResult {
	a.mu.Lock()
	defer a.mu.Unlock()

	best := make(PresentBest, len(a.best))
	for name, score := range a.best {
		best[name] = score
	}
	return BuildResult(classID, allDistinctNames, best, a.unknown, threshold, a.debug, q)
}
