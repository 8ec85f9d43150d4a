package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/features"
)

// rgbOnly builds a descriptor whose only term is the rgb mean, so its score
// against grey(0) is 1 - v/128.
func rgbOnly(v float64) *features.Descriptor {
	return &features.Descriptor{MeanRGB: []float64{v, v, v}}
}

func TestMatch_Decisions(t *testing.T) {
	query := rgbOnly(0)

	tests := []struct {
		name       string
		candidates []Candidate
		want       Decision
		wantID     string
		wantScore  float64
	}{
		{"no candidates", nil, NoCandidates, "", 0},
		{"only empty candidates", []Candidate{{ID: "a", Descriptor: &features.Descriptor{}}}, NoCandidates, "", 0},
		{
			"accept above threshold",
			[]Candidate{{ID: "far", Descriptor: rgbOnly(120)}, {ID: "near", Descriptor: rgbOnly(32)}},
			Accept, "near", 0.75,
		},
		{"accept at threshold", []Candidate{{ID: "edge", Descriptor: rgbOnly(64)}}, Accept, "edge", 0.5},
		{"low similarity", []Candidate{{ID: "u1", Descriptor: rgbOnly(76.8)}}, LowSimilarity, "u1", 0.4},
		{"not registered", []Candidate{{ID: "u1", Descriptor: rgbOnly(115.2)}}, NotRegistered, "u1", 0.1},
		{"zero score", []Candidate{{ID: "u1", Descriptor: rgbOnly(200)}}, NotRegistered, "u1", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := DefaultMatcher().Match(context.Background(), query, tt.candidates)
			if err != nil {
				t.Fatalf("Match failed: %v", err)
			}
			if res.Decision != tt.want {
				t.Errorf("decision = %v, want %v", res.Decision, tt.want)
			}
			if res.BestID != tt.wantID {
				t.Errorf("best = %q, want %q", res.BestID, tt.wantID)
			}
			if diff := res.BestScore - tt.wantScore; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("score = %f, want %f", res.BestScore, tt.wantScore)
			}
		})
	}
}

func TestMatch_TieKeepsFirst(t *testing.T) {
	cands := []Candidate{
		{ID: "first", Descriptor: rgbOnly(10)},
		{ID: "second", Descriptor: rgbOnly(10)},
	}
	res, err := NewMatcher(0.5, 0.3, 2).Match(context.Background(), rgbOnly(0), cands)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if res.BestID != "first" || res.BestIndex != 0 {
		t.Errorf("expected first candidate, got %s (%d)", res.BestID, res.BestIndex)
	}
}

func TestMatch_SkipsEmpty(t *testing.T) {
	cands := []Candidate{
		{ID: "legacy", Descriptor: nil},
		{ID: "good", Descriptor: rgbOnly(0)},
	}
	res, err := DefaultMatcher().Match(context.Background(), rgbOnly(0), cands)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if res.Skipped != 1 || res.Compared != 1 {
		t.Errorf("expected 1 skipped and 1 compared, got %d/%d", res.Skipped, res.Compared)
	}
	if res.Decision != Accept || res.BestID != "good" {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestMatch_ManyCandidatesParallel(t *testing.T) {
	cands := make([]Candidate, 200)
	for i := range cands {
		cands[i] = Candidate{ID: string(rune('A' + i%26)), Descriptor: rgbOnly(float64(100 + i%20))}
	}
	cands[137] = Candidate{ID: "target", Descriptor: rgbOnly(1)}

	res, err := NewMatcher(0.5, 0.3, 8).Match(context.Background(), rgbOnly(0), cands)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if res.BestID != "target" || res.BestIndex != 137 {
		t.Errorf("expected target at 137, got %s at %d", res.BestID, res.BestIndex)
	}
	if res.Compared != 200 {
		t.Errorf("expected 200 compared, got %d", res.Compared)
	}
}

func TestMatch_MonotonicThreshold(t *testing.T) {
	cands := []Candidate{{ID: "u", Descriptor: rgbOnly(50)}}
	query := rgbOnly(0)

	accepted := true
	for _, threshold := range []float64{0.1, 0.3, 0.5, 0.6, 0.7, 0.9} {
		res, err := NewMatcher(threshold, 0, 1).Match(context.Background(), query, cands)
		if err != nil {
			t.Fatalf("Match failed: %v", err)
		}
		got := res.Decision == Accept
		if got && !accepted {
			t.Fatalf("raising the threshold to %f turned a reject into an accept", threshold)
		}
		accepted = got
	}
}

func TestMatch_ZeroValueMatcher(t *testing.T) {
	tests := []struct {
		name string
		m    *Matcher
	}{
		{"zero parallelism", &Matcher{Scorer: NewScorer(), DecisionThreshold: 0.5}},
		{"negative parallelism", &Matcher{Scorer: NewScorer(), DecisionThreshold: 0.5, Parallelism: -3}},
		{"nil scorer", &Matcher{DecisionThreshold: 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done := make(chan *Result, 1)
			go func() {
				res, err := tt.m.Match(context.Background(), rgbOnly(0), []Candidate{{ID: "u", Descriptor: rgbOnly(0)}})
				if err != nil {
					t.Errorf("Match failed: %v", err)
				}
				done <- res
			}()

			select {
			case res := <-done:
				if res == nil || res.Decision != Accept || res.BestID != "u" {
					t.Errorf("unexpected result %+v", res)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("Match did not return")
			}
		})
	}
}

func TestMatch_EmptyQuery(t *testing.T) {
	_, err := DefaultMatcher().Match(context.Background(), &features.Descriptor{}, []Candidate{{ID: "u", Descriptor: rgbOnly(0)}})
	if err == nil {
		t.Error("expected error for empty query")
	}
}

func TestMatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DefaultMatcher().Match(ctx, rgbOnly(0), []Candidate{{ID: "u", Descriptor: rgbOnly(0)}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestResult_Gap(t *testing.T) {
	r := &Result{BestScore: 0.42, Threshold: 0.5}
	if g := r.Gap(); g < 0.0799 || g > 0.0801 {
		t.Errorf("expected gap 0.08, got %f", g)
	}
	r.BestScore = 0.6
	if r.Gap() != 0 {
		t.Error("gap should be 0 above threshold")
	}
}

func TestDecision_String(t *testing.T) {
	if Accept.String() != "accept" || NoCandidates.String() != "no_candidates" {
		t.Error("unexpected decision names")
	}
}
