package features

import (
	"image"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/imaging"
)

// Histogram bin counts of the stored descriptor.
const (
	FaceHistogramBins    = 32
	ChannelHistogramBins = 16
	EdgeHistogramBins    = 20
	entropyBins          = 256
)

// Extractor turns a face crop into a Descriptor.
type Extractor struct {
	FaceSize       int
	ContrastFactor float64
}

// NewExtractor returns an Extractor that normalises faces to size×size and
// enhances contrast by factor before measuring them.
func NewExtractor(size int, factor float64) *Extractor {
	return &Extractor{FaceSize: size, ContrastFactor: factor}
}

// DefaultExtractor uses a 128×128 face and a contrast factor of 1.3.
func DefaultExtractor() *Extractor {
	return NewExtractor(128, 1.3)
}

// Extract computes the descriptor of face. The result is a pure function of
// the pixel values: the same input always yields the same descriptor.
func (e *Extractor) Extract(face image.Image) *Descriptor {
	img := imaging.Resize(face, e.FaceSize, e.FaceSize)
	img = imaging.EnhanceContrast(img, e.ContrastFactor)
	return Measure(img)
}

// Measure computes the descriptor of img as is, without resizing or enhancement.
func Measure(img *image.NRGBA) *Descriptor {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	n := w * h

	var channels [3][]float64
	for c := range channels {
		channels[c] = make([]float64, 0, n)
	}
	all := make([]float64, 0, 3*n)
	gray := make([]float64, 0, n)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			i := img.PixOffset(x, y)
			var sum float64
			for c := 0; c < 3; c++ {
				v := float64(img.Pix[i+c])
				channels[c] = append(channels[c], v)
				all = append(all, v)
				sum += v
			}
			gray = append(gray, sum/3)
		}
	}

	d := &Descriptor{
		Width:  w,
		Height: h,
	}
	if n == 0 {
		return d
	}

	d.MeanRGB = make([]float64, 3)
	d.StdRGB = make([]float64, 3)
	for c := range channels {
		d.MeanRGB[c], d.StdRGB[c] = stat.PopMeanStdDev(channels[c], nil)
	}
	d.RedMean, d.GreenMean, d.BlueMean = d.MeanRGB[0], d.MeanRGB[1], d.MeanRGB[2]
	d.RedStd, d.GreenStd, d.BlueStd = d.StdRGB[0], d.StdRGB[1], d.StdRGB[2]

	d.Histogram = AutoHistogram(all, FaceHistogramBins)
	d.RedHistogram = AutoHistogram(channels[0], ChannelHistogramBins)
	d.GreenHistogram = AutoHistogram(channels[1], ChannelHistogramBins)
	d.BlueHistogram = AutoHistogram(channels[2], ChannelHistogramBins)

	mean, std := stat.PopMeanStdDev(all, nil)
	d.Brightness = f64(mean)
	d.Contrast = f64(std)
	d.Variance = stat.PopVariance(all, nil)

	d.Entropy = f64(GrayEntropy(gray))

	mag := GradientMagnitude(gray, w, h)
	magMean, magStd := stat.PopMeanStdDev(mag, nil)
	magMax := floats.Max(mag)

	d.Edges = &EdgeFeatures{
		Mean:      f64(magMean),
		Std:       f64(magStd),
		Max:       f64(magMax),
		Histogram: AutoHistogram(mag, EdgeHistogramBins),
	}
	d.Gradient = &GradientFeatures{
		Mean: magMean,
		Std:  magStd,
		Max:  magMax,
	}

	return d
}

// AutoHistogram counts x into bins equal-width bins spanning [min(x), max(x)].
// The last bin is closed. A constant input uses the range [v-0.5, v+0.5].
func AutoHistogram(x []float64, bins int) Histogram {
	counts := make(Histogram, bins)
	if len(x) == 0 || bins <= 0 {
		return counts
	}

	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		lo -= 0.5
		hi += 0.5
	}

	dividers := floats.Span(make([]float64, bins+1), lo, hi)
	// close the last bin
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	return stat.Histogram(counts, dividers, sorted, nil)
}

// GrayEntropy returns the Shannon entropy in bits of the 256-bin histogram of
// gray, with each value truncated to an 8-bit level.
func GrayEntropy(gray []float64) float64 {
	if len(gray) == 0 {
		return 0
	}
	p := make([]float64, entropyBins)
	for _, v := range gray {
		level := int(v)
		if level < 0 {
			level = 0
		} else if level >= entropyBins {
			level = entropyBins - 1
		}
		p[level]++
	}
	floats.Scale(1/float64(len(gray)), p)
	return stat.Entropy(p) / math.Ln2
}

// GradientMagnitude returns sqrt(gx²+gy²) for the w×h row-major field f.
// Derivatives are central differences in the interior and one-sided at the borders.
func GradientMagnitude(f []float64, w, h int) []float64 {
	mag := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			gx := derivative(f, y*w, 1, x, w)
			gy := derivative(f, x, w, y, h)
			mag[y*w+x] = math.Hypot(gx, gy)
		}
	}
	return mag
}

// derivative differentiates f along one axis at position i of an axis of
// length n, where element k on that axis lives at f[base+k*stride].
func derivative(f []float64, base, stride, i, n int) float64 {
	if n < 2 {
		return 0
	}
	at := func(k int) float64 { return f[base+k*stride] }
	switch i {
	case 0:
		return at(1) - at(0)
	case n - 1:
		return at(n-1) - at(n-2)
	default:
		return (at(i+1) - at(i-1)) / 2
	}
}
