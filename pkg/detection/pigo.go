package detection

import (
	"fmt"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/logging"
)

// PigoDetector implements Detector with the pure Go pigo cascade classifier.
// It needs no native libraries, only the facefinder cascade file.
type PigoDetector struct {
	classifier   *pigo.Pigo
	minSize      int
	shiftFactor  float64
	scaleFactor  float64
	iouThreshold float64
	minQuality   float32
}

// NewPigoDetector loads the cascade at cascadePath.
func NewPigoDetector(cascadePath string, minSize int) (*PigoDetector, error) {
	data, err := os.ReadFile(cascadePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read cascade file: %w", err)
	}

	classifier, err := pigo.NewPigo().Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack cascade: %w", err)
	}

	if minSize <= 0 {
		minSize = 30
	}

	logging.Infof("Loaded pigo cascade from: %s", cascadePath)

	return &PigoDetector{
		classifier:   classifier,
		minSize:      minSize,
		shiftFactor:  0.1,
		scaleFactor:  1.1,
		iouThreshold: 0.2,
		minQuality:   5.0,
	}, nil
}

// Detect returns the bounding boxes of all faces in img above the quality cutoff.
func (p *PigoDetector) Detect(img image.Image) ([]image.Rectangle, error) {
	src := pigo.ImgToNRGBA(img)
	pixels := pigo.RgbToGrayscale(src)
	cols, rows := src.Bounds().Dx(), src.Bounds().Dy()

	maxSize := cols
	if rows > maxSize {
		maxSize = rows
	}

	params := pigo.CascadeParams{
		MinSize:     p.minSize,
		MaxSize:     maxSize,
		ShiftFactor: p.shiftFactor,
		ScaleFactor: p.scaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	dets := p.classifier.RunCascade(params, 0.0)
	dets = p.classifier.ClusterDetections(dets, p.iouThreshold)

	offset := img.Bounds().Min
	boxes := make([]image.Rectangle, 0, len(dets))
	for _, det := range dets {
		if det.Q < p.minQuality {
			continue
		}
		half := det.Scale / 2
		box := image.Rect(det.Col-half, det.Row-half, det.Col+half, det.Row+half)
		boxes = append(boxes, box.Add(offset))
	}

	logging.Debugf("pigo detected %d face(s)", len(boxes))
	return boxes, nil
}

// Close is a no-op; the classifier holds no native resources.
func (p *PigoDetector) Close() error {
	return nil
}
