// Package detection locates faces in uploaded images and cuts out the
// padded face region the feature extractor works on.
package detection

import (
	"errors"
	"image"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/imaging"
)

// ErrNoFaceDetected is returned when no face is found in the image.
var ErrNoFaceDetected = errors.New("no face detected")

// ErrModelNotLoaded is returned when the detector has no model loaded.
var ErrModelNotLoaded = errors.New("detection model not loaded")

// DefaultPadding is the fraction of the smaller box side added on every side.
const DefaultPadding = 0.1

// Detector finds face bounding boxes in an image.
// An image without faces yields an empty slice and a nil error.
type Detector interface {
	Detect(img image.Image) ([]image.Rectangle, error)
	Close() error
}

// Region is a padded face crop together with the box it was cut from.
type Region struct {
	Box   image.Rectangle
	Image *image.NRGBA
}

// LargestFace returns the box with the largest area.
// ok is false when boxes is empty.
func LargestFace(boxes []image.Rectangle) (box image.Rectangle, ok bool) {
	best := -1
	for _, b := range boxes {
		if area := b.Dx() * b.Dy(); area > best {
			best = area
			box = b
			ok = true
		}
	}
	return box, ok
}

// PadRect grows r by int(ratio*min(w,h)) on every side and clamps it to bounds.
func PadRect(r, bounds image.Rectangle, ratio float64) image.Rectangle {
	side := r.Dx()
	if r.Dy() < side {
		side = r.Dy()
	}
	pad := int(ratio * float64(side))
	return image.Rect(r.Min.X-pad, r.Min.Y-pad, r.Max.X+pad, r.Max.Y+pad).Intersect(bounds)
}

// ExtractFaceRegion detects faces in img, keeps the largest one and returns
// its padded crop. It returns (nil, nil) when no face is present.
func ExtractFaceRegion(d Detector, img image.Image, padding float64) (*Region, error) {
	boxes, err := d.Detect(img)
	if err != nil {
		return nil, err
	}

	box, ok := LargestFace(boxes)
	if !ok {
		return nil, nil
	}

	padded := PadRect(box, img.Bounds(), padding)
	if padded.Empty() {
		return nil, nil
	}

	return &Region{
		Box:   padded,
		Image: imaging.Crop(img, padded),
	}, nil
}
