package matching

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/features"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/logging"
)

// Default decision thresholds.
const (
	DefaultDecisionThreshold  = 0.5
	DefaultMinAcceptableScore = 0.3
)

// Decision is the outcome of matching a query against the gallery.
type Decision int

const (
	// NoCandidates means there was nothing usable to compare against.
	NoCandidates Decision = iota
	// Accept means the best score reached the decision threshold.
	Accept
	// LowSimilarity means the best score is between the minimum and the decision threshold.
	LowSimilarity
	// NotRegistered means the best score is below the minimum acceptable score.
	NotRegistered
)

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case LowSimilarity:
		return "low_similarity"
	case NotRegistered:
		return "not_registered"
	default:
		return "no_candidates"
	}
}

// Candidate is one registered face.
type Candidate struct {
	ID         string
	Descriptor *features.Descriptor
}

// Result describes a completed scan.
type Result struct {
	Decision  Decision
	BestID    string
	BestIndex int
	BestScore float64
	Threshold float64
	Compared  int
	Skipped   int
}

// Gap is how far the best score fell short of the decision threshold.
func (r *Result) Gap() float64 {
	if r.BestScore >= r.Threshold {
		return 0
	}
	return r.Threshold - r.BestScore
}

// Matcher scans the gallery for the best matching candidate.
type Matcher struct {
	Scorer             *Scorer
	DecisionThreshold  float64
	MinAcceptableScore float64
	Parallelism        int
}

// NewMatcher creates a Matcher with default weights.
func NewMatcher(decisionThreshold, minAcceptable float64, parallelism int) *Matcher {
	if parallelism <= 0 {
		parallelism = 1
	}
	return &Matcher{
		Scorer:             NewScorer(),
		DecisionThreshold:  decisionThreshold,
		MinAcceptableScore: minAcceptable,
		Parallelism:        parallelism,
	}
}

// DefaultMatcher uses the default thresholds and four workers.
func DefaultMatcher() *Matcher {
	return NewMatcher(DefaultDecisionThreshold, DefaultMinAcceptableScore, 4)
}

// Match scores query against every candidate and applies the decision policy.
// The best score is the maximum over all usable candidates; on equal scores
// the earlier candidate wins. Candidates with an empty descriptor are skipped.
// A zero Parallelism scans sequentially and a nil Scorer uses DefaultWeights.
func (m *Matcher) Match(ctx context.Context, query *features.Descriptor, candidates []Candidate) (*Result, error) {
	res := &Result{
		Decision:  NoCandidates,
		BestIndex: -1,
		Threshold: m.DecisionThreshold,
	}
	if query.Empty() {
		return nil, fmt.Errorf("query descriptor has no usable features")
	}

	scorer := m.Scorer
	if scorer == nil {
		scorer = NewScorer()
	}
	workers := m.Parallelism
	if workers <= 0 {
		workers = 1
	}

	scores := make([]float64, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range candidates {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if candidates[i].Descriptor.Empty() {
				scores[i] = -1
				return nil
			}
			scores[i] = scorer.Score(query, candidates[i].Descriptor)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("matching interrupted: %w", err)
	}

	for i, score := range scores {
		if score < 0 {
			res.Skipped++
			continue
		}
		res.Compared++
		logging.WithFields(logging.Fields{
			"candidate": candidates[i].ID,
			"score":     fmt.Sprintf("%.3f", score),
		}).Debug("Scored candidate")
		if res.BestIndex < 0 || score > res.BestScore {
			res.BestIndex = i
			res.BestScore = score
			res.BestID = candidates[i].ID
		}
	}

	res.Decision = m.decide(res)
	return res, nil
}

func (m *Matcher) decide(res *Result) Decision {
	switch {
	case res.Compared == 0:
		return NoCandidates
	case res.BestScore >= m.DecisionThreshold:
		return Accept
	case res.BestScore >= m.MinAcceptableScore:
		return LowSimilarity
	default:
		return NotRegistered
	}
}
