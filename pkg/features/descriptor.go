// Package features computes the handcrafted face descriptor used for matching:
// colour statistics, intensity histograms, texture entropy and gradient summaries.
package features

// Version tags descriptors produced from the face region only.
const Version = "face_only_v2"

// Histogram holds bin counts. Counts are stored as floats so documents
// written with either integer or double counts decode alike.
type Histogram []float64

// EdgeFeatures summarises the gradient magnitude field used as an edge map.
type EdgeFeatures struct {
	Mean      *float64  `bson:"edge_mean,omitempty" json:"edge_mean,omitempty"`
	Std       *float64  `bson:"edge_std,omitempty" json:"edge_std,omitempty"`
	Max       *float64  `bson:"edge_max,omitempty" json:"edge_max,omitempty"`
	Histogram Histogram `bson:"edge_histogram,omitempty" json:"edge_histogram,omitempty"`
}

// GradientFeatures summarises the gradient magnitude field.
type GradientFeatures struct {
	Mean float64 `bson:"mean_magnitude" json:"mean_magnitude"`
	Std  float64 `bson:"std_magnitude" json:"std_magnitude"`
	Max  float64 `bson:"max_magnitude" json:"max_magnitude"`
}

// Descriptor is the feature record of one face image.
// Optional fields are pointers or nil slices; a missing field drops its
// similarity term instead of failing the comparison.
type Descriptor struct {
	MeanRGB []float64 `bson:"face_mean_rgb,omitempty" json:"face_mean_rgb,omitempty"`
	StdRGB  []float64 `bson:"face_std_rgb,omitempty" json:"face_std_rgb,omitempty"`

	Histogram      Histogram `bson:"face_histogram,omitempty" json:"face_histogram,omitempty"`
	RedHistogram   Histogram `bson:"red_histogram,omitempty" json:"red_histogram,omitempty"`
	GreenHistogram Histogram `bson:"green_histogram,omitempty" json:"green_histogram,omitempty"`
	BlueHistogram  Histogram `bson:"blue_histogram,omitempty" json:"blue_histogram,omitempty"`

	Brightness *float64 `bson:"face_brightness,omitempty" json:"face_brightness,omitempty"`
	Contrast   *float64 `bson:"face_contrast,omitempty" json:"face_contrast,omitempty"`

	Width  int `bson:"face_width,omitempty" json:"face_width,omitempty"`
	Height int `bson:"face_height,omitempty" json:"face_height,omitempty"`

	Edges *EdgeFeatures `bson:"face_edges,omitempty" json:"face_edges,omitempty"`

	RedMean   float64 `bson:"red_channel_mean,omitempty" json:"red_channel_mean,omitempty"`
	GreenMean float64 `bson:"green_channel_mean,omitempty" json:"green_channel_mean,omitempty"`
	BlueMean  float64 `bson:"blue_channel_mean,omitempty" json:"blue_channel_mean,omitempty"`
	RedStd    float64 `bson:"red_channel_std,omitempty" json:"red_channel_std,omitempty"`
	GreenStd  float64 `bson:"green_channel_std,omitempty" json:"green_channel_std,omitempty"`
	BlueStd   float64 `bson:"blue_channel_std,omitempty" json:"blue_channel_std,omitempty"`

	Variance float64  `bson:"face_variance,omitempty" json:"face_variance,omitempty"`
	Entropy  *float64 `bson:"face_entropy,omitempty" json:"face_entropy,omitempty"`

	Gradient *GradientFeatures `bson:"gradient_magnitude,omitempty" json:"gradient_magnitude,omitempty"`
}

// Empty reports whether d carries none of the fields the similarity score uses.
func (d *Descriptor) Empty() bool {
	if d == nil {
		return true
	}
	return len(d.MeanRGB) == 0 &&
		len(d.Histogram) == 0 &&
		len(d.RedHistogram) == 0 && len(d.GreenHistogram) == 0 && len(d.BlueHistogram) == 0 &&
		(d.Brightness == nil || d.Contrast == nil) &&
		d.Edges == nil &&
		d.Entropy == nil
}

// Count returns the number of populated top-level fields, for diagnostics.
func (d *Descriptor) Count() int {
	if d == nil {
		return 0
	}
	n := 0
	for _, present := range []bool{
		len(d.MeanRGB) > 0, len(d.StdRGB) > 0,
		len(d.Histogram) > 0, len(d.RedHistogram) > 0, len(d.GreenHistogram) > 0, len(d.BlueHistogram) > 0,
		d.Brightness != nil, d.Contrast != nil,
		d.Width > 0, d.Height > 0,
		d.Edges != nil,
		d.Variance != 0, d.Entropy != nil,
		d.Gradient != nil,
	} {
		if present {
			n++
		}
	}
	return n
}

func f64(v float64) *float64 {
	return &v
}
