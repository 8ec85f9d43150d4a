// Package matching scores face descriptors against each other and decides
// whether a query face belongs to one of the registered users.
package matching

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/features"
)

// Similarity term names, in scoring order.
const (
	TermRGB                = "rgb"
	TermHistogram          = "histogram"
	TermChannels           = "channels"
	TermBrightnessContrast = "brightness_contrast"
	TermEdges              = "edges"
	TermEntropy            = "entropy"
)

// Weights are the relative weights of the similarity terms.
type Weights struct {
	RGB                float64
	Histogram          float64
	Channels           float64
	BrightnessContrast float64
	Edges              float64
	Entropy            float64
}

// DefaultWeights sum to 1.
var DefaultWeights = Weights{
	RGB:                0.25,
	Histogram:          0.30,
	Channels:           0.20,
	BrightnessContrast: 0.10,
	Edges:              0.10,
	Entropy:            0.05,
}

// Term is one computed similarity component.
type Term struct {
	Name       string  `json:"name"`
	Similarity float64 `json:"similarity"`
	Weight     float64 `json:"weight"`
}

// Breakdown is the result of comparing two descriptors.
type Breakdown struct {
	Terms []Term  `json:"terms"`
	Score float64 `json:"score"`
}

// Scorer computes weighted similarity scores.
type Scorer struct {
	Weights Weights
}

// NewScorer returns a Scorer using DefaultWeights.
func NewScorer() *Scorer {
	return &Scorer{Weights: DefaultWeights}
}

// Score returns the similarity of a and b in [0,1] using DefaultWeights.
func Score(a, b *features.Descriptor) float64 {
	return NewScorer().Compare(a, b).Score
}

// Score returns the similarity of a and b in [0,1].
func (s *Scorer) Score(a, b *features.Descriptor) float64 {
	return s.Compare(a, b).Score
}

// Compare computes every similarity term both descriptors support and
// combines them as a weighted mean. Terms that cannot be computed are left
// out and the remaining weights renormalised; with no terms the score is 0.
func (s *Scorer) Compare(a, b *features.Descriptor) Breakdown {
	var bd Breakdown
	if a == nil || b == nil {
		return bd
	}
	add := func(name string, sim, weight float64) {
		bd.Terms = append(bd.Terms, Term{Name: name, Similarity: clamp01(sim), Weight: weight})
	}

	if len(a.MeanRGB) > 0 && len(a.MeanRGB) == len(b.MeanRGB) {
		diff := meanAbsDiff(a.MeanRGB, b.MeanRGB)
		add(TermRGB, 1-diff/128, s.Weights.RGB)
	}

	if len(a.Histogram) > 0 && len(b.Histogram) > 0 {
		c, ok := correlation(a.Histogram, b.Histogram)
		if !ok {
			c = 0
		}
		add(TermHistogram, c, s.Weights.Histogram)
	}

	var channelSims []float64
	for _, pair := range [][2]features.Histogram{
		{a.RedHistogram, b.RedHistogram},
		{a.GreenHistogram, b.GreenHistogram},
		{a.BlueHistogram, b.BlueHistogram},
	} {
		if len(pair[0]) == 0 || len(pair[1]) == 0 {
			continue
		}
		if c, ok := correlation(pair[0], pair[1]); ok {
			channelSims = append(channelSims, clamp01(c))
		}
	}
	if len(channelSims) > 0 {
		add(TermChannels, stat.Mean(channelSims, nil), s.Weights.Channels)
	}

	if a.Brightness != nil && b.Brightness != nil && a.Contrast != nil && b.Contrast != nil {
		bs := clamp01(1 - math.Abs(*a.Brightness-*b.Brightness)/150)
		cs := clamp01(1 - math.Abs(*a.Contrast-*b.Contrast)/80)
		add(TermBrightnessContrast, (bs+cs)/2, s.Weights.BrightnessContrast)
	}

	if a.Edges != nil && b.Edges != nil {
		add(TermEdges, edgeSimilarity(a.Edges, b.Edges), s.Weights.Edges)
	}

	if a.Entropy != nil && b.Entropy != nil {
		add(TermEntropy, 1-math.Abs(*a.Entropy-*b.Entropy)/8, s.Weights.Entropy)
	}

	var weighted, total float64
	for _, t := range bd.Terms {
		weighted += t.Similarity * t.Weight
		total += t.Weight
	}
	if total > 0 {
		bd.Score = clamp01(weighted / total)
	}
	return bd
}

func edgeSimilarity(a, b *features.EdgeFeatures) float64 {
	var sims []float64
	for _, pair := range [][2]*float64{{a.Mean, b.Mean}, {a.Std, b.Std}, {a.Max, b.Max}} {
		if pair[0] != nil && pair[1] != nil {
			sims = append(sims, clamp01(1-math.Abs(*pair[0]-*pair[1])/100))
		}
	}
	if len(a.Histogram) > 0 && len(b.Histogram) > 0 {
		if c, ok := correlation(a.Histogram, b.Histogram); ok {
			sims = append(sims, clamp01(c))
		}
	}
	if len(sims) == 0 {
		return 0
	}
	return stat.Mean(sims, nil)
}

// correlation returns the Pearson correlation of two histograms. ok is false
// when it is undefined: different lengths, or a zero-variance histogram
// compared with a different one. Two identical histograms correlate to 1.
func correlation(a, b features.Histogram) (float64, bool) {
	if len(a) != len(b) || len(a) < 2 {
		return 0, false
	}
	if floats.Equal(a, b) {
		return 1, true
	}
	c := stat.Correlation(a, b, nil)
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0, false
	}
	return c, true
}

func meanAbsDiff(a, b []float64) float64 {
	d := make([]float64, len(a))
	floats.SubTo(d, a, b)
	for i := range d {
		d[i] = math.Abs(d[i])
	}
	return stat.Mean(d, nil)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
