package detection

import (
	"image"

	"github.com/Kagami/go-face"
)

type MockFaceEngine struct {
	RecognizeFunc func(data []byte) ([]face.Face, error)
	CloseFunc     func()
}

func (m *MockFaceEngine) Recognize(data []byte) ([]face.Face, error) {
	if m.RecognizeFunc != nil {
		return m.RecognizeFunc(data)
	}
	return nil, nil
}

func (m *MockFaceEngine) Close() {
	if m.CloseFunc != nil {
		m.CloseFunc()
	}
}

type MockDetector struct {
	DetectFunc func(img image.Image) ([]image.Rectangle, error)
}

func (m *MockDetector) Detect(img image.Image) ([]image.Rectangle, error) {
	if m.DetectFunc != nil {
		return m.DetectFunc(img)
	}
	return nil, nil
}

func (m *MockDetector) Close() error { return nil }
