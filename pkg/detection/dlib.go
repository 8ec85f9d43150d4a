package detection

import (
	"fmt"
	"image"
	"sync"

	"github.com/Kagami/go-face"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/imaging"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/logging"
)

// FaceEngine is the subset of the go-face recognizer used for detection.
type FaceEngine interface {
	Recognize(imgData []byte) ([]face.Face, error)
	Close()
}

func newFaceEngine(modelPath string) (FaceEngine, error) {
	rec, err := face.NewRecognizer(modelPath)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// DlibDetector implements Detector using dlib via go-face.
type DlibDetector struct {
	engine    FaceEngine
	factory   func(modelPath string) (FaceEngine, error)
	modelPath string
	loaded    bool
	quality   int
	mu        sync.RWMutex
}

// NewDlibDetector creates a new DlibDetector instance. Call LoadModels before Detect.
func NewDlibDetector() *DlibDetector {
	return &DlibDetector{
		factory: newFaceEngine,
		quality: 95,
	}
}

// LoadModels loads the dlib models from the specified directory.
// The directory should contain:
// - shape_predictor_5_face_landmarks.dat
// - dlib_face_recognition_resnet_model_v1.dat
func (d *DlibDetector) LoadModels(modelPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.loaded {
		return nil
	}

	logging.Infof("Loading face detection models from: %s", modelPath)

	engine, err := d.factory(modelPath)
	if err != nil {
		return fmt.Errorf("failed to load models: %w", err)
	}

	d.engine = engine
	d.modelPath = modelPath
	d.loaded = true

	logging.Info("Face detection models loaded successfully")
	return nil
}

// IsLoaded returns true if models are loaded.
func (d *DlibDetector) IsLoaded() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded
}

// Close releases the engine resources.
func (d *DlibDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.engine != nil {
		d.engine.Close()
		d.engine = nil
	}
	d.loaded = false
	return nil
}

// Detect returns the bounding boxes of all faces in img.
// go-face only accepts JPEG input, so the image is re-encoded first.
func (d *DlibDetector) Detect(img image.Image) ([]image.Rectangle, error) {
	data, err := imaging.EncodeJPEG(img, d.quality)
	if err != nil {
		return nil, err
	}
	boxes, err := d.DetectBytes(data)
	if err != nil {
		return nil, err
	}

	// boxes are relative to the encoded image, which starts at the origin
	offset := img.Bounds().Min
	for i := range boxes {
		boxes[i] = boxes[i].Add(offset)
	}
	return boxes, nil
}

// DetectBytes runs detection on JPEG bytes.
func (d *DlibDetector) DetectBytes(jpegData []byte) ([]image.Rectangle, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.loaded {
		return nil, ErrModelNotLoaded
	}

	faces, err := d.engine.Recognize(jpegData)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	boxes := make([]image.Rectangle, len(faces))
	for i, f := range faces {
		boxes[i] = f.Rectangle
	}

	logging.Debugf("Detected %d face(s) in image", len(boxes))
	return boxes, nil
}
