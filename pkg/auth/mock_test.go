package auth

import (
	"context"
	"image"
	"time"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/otp"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/storage"
)

// MockStorage implements Storage for testing
type MockStorage struct {
	CreateUserFunc     func(ctx context.Context, user *storage.User, account *storage.BankAccount, vehicle *storage.Vehicle) error
	FindByMobileFunc   func(ctx context.Context, mobile string) (*storage.User, error)
	FindByDLFunc       func(ctx context.Context, dl string) (*storage.User, error)
	ListWithFacesFunc  func(ctx context.Context) ([]storage.User, error)
	CountWithFacesFunc func(ctx context.Context) (int64, error)
	UpdateFaceFunc     func(ctx context.Context, userID string, face *storage.FaceRecord) error

	Touched []string
	Updated map[string]*storage.FaceRecord
}

func (m *MockStorage) CreateUser(ctx context.Context, user *storage.User, account *storage.BankAccount, vehicle *storage.Vehicle) error {
	if m.CreateUserFunc != nil {
		return m.CreateUserFunc(ctx, user, account, vehicle)
	}
	return nil
}

func (m *MockStorage) FindByMobile(ctx context.Context, mobile string) (*storage.User, error) {
	if m.FindByMobileFunc != nil {
		return m.FindByMobileFunc(ctx, mobile)
	}
	return nil, storage.ErrUserNotFound
}

func (m *MockStorage) FindByDL(ctx context.Context, dl string) (*storage.User, error) {
	if m.FindByDLFunc != nil {
		return m.FindByDLFunc(ctx, dl)
	}
	return nil, storage.ErrUserNotFound
}

func (m *MockStorage) ListWithFaces(ctx context.Context) ([]storage.User, error) {
	if m.ListWithFacesFunc != nil {
		return m.ListWithFacesFunc(ctx)
	}
	return nil, nil
}

func (m *MockStorage) CountWithFaces(ctx context.Context) (int64, error) {
	if m.CountWithFacesFunc != nil {
		return m.CountWithFacesFunc(ctx)
	}
	return 0, nil
}

func (m *MockStorage) UpdateFace(ctx context.Context, userID string, face *storage.FaceRecord) error {
	if m.UpdateFaceFunc != nil {
		if err := m.UpdateFaceFunc(ctx, userID, face); err != nil {
			return err
		}
	}
	if m.Updated == nil {
		m.Updated = make(map[string]*storage.FaceRecord)
	}
	m.Updated[userID] = face
	return nil
}

func (m *MockStorage) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	m.Touched = append(m.Touched, userID)
	return nil
}

// MockDetector reports one face covering the middle half of any image
type MockDetector struct {
	DetectFunc func(img image.Image) ([]image.Rectangle, error)
}

func (m *MockDetector) Detect(img image.Image) ([]image.Rectangle, error) {
	if m.DetectFunc != nil {
		return m.DetectFunc(img)
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	return []image.Rectangle{image.Rect(b.Min.X+w/4, b.Min.Y+h/4, b.Min.X+3*w/4, b.Min.Y+3*h/4)}, nil
}

func (m *MockDetector) Close() error {
	return nil
}

// MockOTP implements OTPStore for testing
type MockOTP struct {
	IssueFunc  func(ctx context.Context, mobile string) (*otp.Issued, error)
	VerifyFunc func(mobile, code string) error

	Cleared []string
}

func (m *MockOTP) Issue(ctx context.Context, mobile string) (*otp.Issued, error) {
	if m.IssueFunc != nil {
		return m.IssueFunc(ctx, mobile)
	}
	return &otp.Issued{Code: "123456", ExpiresIn: 5 * time.Minute}, nil
}

func (m *MockOTP) Verify(mobile, code string) error {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(mobile, code)
	}
	return nil
}

func (m *MockOTP) Clear(mobile string) {
	m.Cleared = append(m.Cleared, mobile)
}
