package attendance

import (
	"encoding/json"
	"math/rand"
	"sync"
	"testing"

	"github.com/kozaktomas/class-attendance/internal/facematch"
	"github.com/kozaktomas/class-attendance/internal/quality"
)

func TestUpdatePresentBest(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   float64
	}{
		{"single", []float64{0.7}, 0.7},
		{"increasing", []float64{0.7, 0.95}, 0.95},
		{"decreasing keeps first", []float64{0.95, 0.7}, 0.95},
		{"equal keeps value", []float64{0.8, 0.8}, 0.8},
		{"mixed", []float64{0.61, 0.99, 0.62, 0.75}, 0.99},
		{"negative first score is stored", []float64{-0.2}, -0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := PresentBest{}
			for _, s := range tt.scores {
				UpdatePresentBest(m, "alice", s)
			}
			if m["alice"] != tt.want {
				t.Errorf("expected %v, got %v", tt.want, m["alice"])
			}
		})
	}
}

func TestUpdatePresentBest_Monotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	m := PresentBest{}
	maxSeen := -1.0

	for range 1000 {
		s := rng.Float64()
		UpdatePresentBest(m, "bob", s)
		maxSeen = max(maxSeen, s)
		if m["bob"] != maxSeen {
			t.Fatalf("stored %v, max so far %v", m["bob"], maxSeen)
		}
	}
}

func TestAggregator_RecordVerdict(t *testing.T) {
	agg := NewAggregator(3)
	for _, r := range []quality.Reason{
		quality.ReasonOK, quality.ReasonNoBBox, quality.ReasonNoBBox,
		quality.ReasonLowConf, quality.ReasonSmall, quality.ReasonSmall, quality.ReasonSmall,
		quality.ReasonEmptyCrop, quality.ReasonBlur,
	} {
		agg.RecordVerdict(quality.Verdict{Reason: r})
	}

	got := agg.Debug()
	want := Debug{
		ImagesReceived:    3,
		AcceptedNoBBox:    2,
		FilteredLowConf:   1,
		FilteredSmall:     3,
		FilteredEmptyCrop: 1,
		FilteredBlur:      1,
	}
	if got != want {
		t.Errorf("Debug() = %+v, want %+v", got, want)
	}
}

func TestAggregator_RecordMatch(t *testing.T) {
	agg := NewAggregator(1)
	agg.RecordMatch(facematch.MatchResult{Name: "alice", Matched: true, Score: 0.7})
	agg.RecordMatch(facematch.MatchResult{Name: "alice", Matched: true, Score: 0.9})
	agg.RecordMatch(facematch.MatchResult{Score: 0.4})

	result := agg.Result("10A1", []string{"alice", "bob"}, 0.6, quality.DefaultThresholds())

	if result.UnknownFacesCount != 1 {
		t.Errorf("expected 1 unknown, got %d", result.UnknownFacesCount)
	}
	if result.Debug.FacesEmbedded != 3 || result.Debug.FacesMatched != 2 {
		t.Errorf("expected 3 embedded and 2 matched, got %+v", result.Debug)
	}
	if len(result.Present) != 1 || result.Present[0].Score != 0.9 {
		t.Errorf("expected alice with 0.9, got %+v", result.Present)
	}
}

func TestAggregator_Merge(t *testing.T) {
	agg := NewAggregator(2)
	agg.UpdatePresentBest("alice", 0.8)

	local := NewAggregator(0)
	local.UpdatePresentBest("alice", 0.7)
	local.UpdatePresentBest("bob", 0.65)
	local.RecordUnknown()
	local.FacesDetected(3)

	agg.Merge(local)

	result := agg.Result("c", []string{"alice", "bob", "carol"}, 0.6, quality.Thresholds{})
	if result.Present[0].Score != 0.8 {
		t.Errorf("expected merge to keep the higher alice score, got %v", result.Present[0].Score)
	}
	if result.CountPresent != 2 || result.UnknownFacesCount != 1 {
		t.Errorf("unexpected result %+v", result)
	}
	if result.Debug.FacesDetected != 3 || result.Debug.ImagesReceived != 2 {
		t.Errorf("unexpected debug %+v", result.Debug)
	}
}

func TestAggregator_Concurrent(t *testing.T) {
	agg := NewAggregator(0)
	var wg sync.WaitGroup

	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			agg.ImageDecoded()
			agg.FacesDetected(2)
			agg.RecordMatch(facematch.MatchResult{Name: "alice", Matched: true, Score: float64(i) / 100})
			agg.RecordUnknown()
		}()
	}
	wg.Wait()

	d := agg.Debug()
	if d.ImagesDecoded != 50 || d.FacesDetected != 100 || d.FacesMatched != 50 {
		t.Errorf("unexpected counters %+v", d)
	}
	result := agg.Result("c", []string{"alice"}, 0, quality.Thresholds{})
	if result.Present[0].Score != 0.49 {
		t.Errorf("expected best score 0.49, got %v", result.Present[0].Score)
	}
	if result.UnknownFacesCount != 50 {
		t.Errorf("expected 50 unknown, got %d", result.UnknownFacesCount)
	}
}

func TestBuildResult(t *testing.T) {
	best := PresentBest{"carol": 0.8, "alice": 0.91}
	q := quality.DefaultThresholds()

	result := BuildResult("10A1", []string{"bob", "alice", "dave", "carol"}, best, 2, 0.6, Debug{ImagesReceived: 1}, q)

	if result.ClassID != "10A1" || result.Threshold != 0.6 || result.UnknownFacesCount != 2 {
		t.Errorf("unexpected header fields %+v", result)
	}
	if result.CountTotal != 4 || result.CountPresent != 2 {
		t.Errorf("expected 4 total and 2 present, got %d/%d", result.CountTotal, result.CountPresent)
	}
	if result.Present[0].Name != "alice" || result.Present[1].Name != "carol" {
		t.Errorf("expected present sorted by name, got %+v", result.Present)
	}
	if len(result.Absent) != 2 || result.Absent[0] != "bob" || result.Absent[1] != "dave" {
		t.Errorf("expected absent [bob dave], got %v", result.Absent)
	}
	if result.QualityThresholds != q {
		t.Errorf("expected quality thresholds %+v, got %+v", q, result.QualityThresholds)
	}
}

func TestBuildResult_PartitionsNames(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e", "f"}
	rng := rand.New(rand.NewSource(7))

	for range 100 {
		best := PresentBest{}
		for _, n := range names {
			if rng.Intn(2) == 0 {
				best[n] = rng.Float64()
			}
		}

		result := BuildResult("c", names, best, 0, 0.6, Debug{}, quality.Thresholds{})

		seen := map[string]int{}
		for _, p := range result.Present {
			seen[p.Name]++
		}
		for _, a := range result.Absent {
			seen[a]++
		}
		if len(seen) != len(names) {
			t.Fatalf("present and absent cover %d names, want %d", len(seen), len(names))
		}
		for n, c := range seen {
			if c != 1 {
				t.Fatalf("name %q appears %d times", n, c)
			}
		}
		if result.CountPresent+len(result.Absent) != result.CountTotal {
			t.Fatalf("count_present + |absent| != count_total: %+v", result)
		}
	}
}

func TestBuildResult_EmptyListsSerializeAsArrays(t *testing.T) {
	result := BuildResult("c", nil, PresentBest{}, 0, 0.6, Debug{}, quality.Thresholds{})

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(raw["present"]) != "[]" || string(raw["absent"]) != "[]" {
		t.Errorf("expected empty arrays, got present=%s absent=%s", raw["present"], raw["absent"])
	}
}

func TestSessionResult_JSONKeys(t *testing.T) {
	result := BuildResult("c", []string{"alice"}, PresentBest{"alice": 0.9}, 0, 0.6, Debug{}, quality.DefaultThresholds())
	result.SessionID = "s1"

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{
		"class_id", "count_total", "count_present", "present", "absent",
		"unknown_faces_count", "threshold", "debug", "quality_thresholds", "session_id",
	} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %q", key)
		}
	}
	if len(raw) != 10 {
		t.Errorf("expected exactly 10 top-level keys, got %d", len(raw))
	}

	var debug map[string]int
	if err := json.Unmarshal(raw["debug"], &debug); err != nil {
		t.Fatalf("unmarshal debug: %v", err)
	}
	for _, key := range []string{
		"images_received", "images_decoded", "images_failed", "faces_detected", "accepted_nobbox",
		"filtered_lowconf", "filtered_small", "filtered_empty_crop", "filtered_blur",
		"faces_embedded", "faces_matched",
	} {
		if _, ok := debug[key]; !ok {
			t.Errorf("missing debug key %q", key)
		}
	}

	var q map[string]float64
	if err := json.Unmarshal(raw["quality_thresholds"], &q); err != nil {
		t.Fatalf("unmarshal quality_thresholds: %v", err)
	}
	if q["min_conf"] != 0.6 || q["min_face"] != 40 || q["min_blur"] != 60 {
		t.Errorf("unexpected quality_thresholds %v", q)
	}
}
