// Package auth implements face login, registration and the maintenance
// operations around stored face data.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/detection"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/features"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/imaging"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/logging"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/matching"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/otp"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/storage"
)

// Storage defines the user storage the service needs.
type Storage interface {
	CreateUser(ctx context.Context, user *storage.User, account *storage.BankAccount, vehicle *storage.Vehicle) error
	FindByMobile(ctx context.Context, mobile string) (*storage.User, error)
	FindByDL(ctx context.Context, dl string) (*storage.User, error)
	ListWithFaces(ctx context.Context) ([]storage.User, error)
	CountWithFaces(ctx context.Context) (int64, error)
	UpdateFace(ctx context.Context, userID string, face *storage.FaceRecord) error
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
}

// OTPStore defines the one-time password operations the service needs.
type OTPStore interface {
	Issue(ctx context.Context, mobile string) (*otp.Issued, error)
	Verify(mobile, code string) error
	Clear(mobile string)
}

// QualityLimits bound acceptable brightness and contrast of a face crop.
type QualityLimits struct {
	MinBrightness float64
	MaxBrightness float64
	MinContrast   float64
}

// DefaultQualityLimits returns the standard limits.
func DefaultQualityLimits() QualityLimits {
	return QualityLimits{MinBrightness: 50, MaxBrightness: 200, MinContrast: 20}
}

// Options tune the service.
type Options struct {
	Padding float64
	Quality QualityLimits

	// MaxPixels bounds decoded uploads; 0 uses imaging.DefaultMaxPixels.
	MaxPixels int
}

// Service runs the face authentication flows.
type Service struct {
	store     Storage
	detector  detection.Detector
	extractor *features.Extractor
	matcher   *matching.Matcher
	otp       OTPStore
	opts      Options
	now       func() time.Time
}

// NewService creates a Service.
func NewService(store Storage, detector detection.Detector, extractor *features.Extractor, matcher *matching.Matcher, otps OTPStore, opts Options) *Service {
	return &Service{
		store:     store,
		detector:  detector,
		extractor: extractor,
		matcher:   matcher,
		otp:       otps,
		opts:      opts,
		now:       time.Now,
	}
}

// Threshold returns the decision threshold in use.
func (s *Service) Threshold() float64 {
	return s.matcher.DecisionThreshold
}

// Encoding is a processed face image.
type Encoding struct {
	Region     *detection.Region
	Descriptor *features.Descriptor
	Thumbnail  string
}

// Record converts the encoding into a storable face record.
func (e *Encoding) Record(at time.Time) *storage.FaceRecord {
	return storage.NewFaceRecord(e.Descriptor, e.Thumbnail, at)
}

// Encode decodes an image, locates the largest face and computes its
// descriptor and thumbnail. It returns detection.ErrNoFaceDetected when the
// image holds no usable face.
func (s *Service) Encode(data []byte) (*Encoding, error) {
	img, err := imaging.DecodeLimited(data, s.opts.MaxPixels)
	if err != nil {
		return nil, err
	}

	region, err := detection.ExtractFaceRegion(s.detector, img, s.opts.Padding)
	if err != nil {
		return nil, err
	}
	if region == nil {
		return nil, detection.ErrNoFaceDetected
	}

	desc := s.extractor.Extract(region.Image)
	if desc.Empty() {
		return nil, detection.ErrNoFaceDetected
	}

	thumb, err := imaging.EncodeBase64JPEG(region.Image)
	if err != nil {
		return nil, err
	}

	return &Encoding{Region: region, Descriptor: desc, Thumbnail: thumb}, nil
}

// encodeThumbnail re-encodes a stored base64 face crop.
func (s *Service) encodeThumbnail(thumb string) (*Encoding, error) {
	data, err := imaging.DecodeDataURL(thumb)
	if err != nil {
		return nil, err
	}
	return s.Encode(data)
}

// LoginResult is a successful face login.
type LoginResult struct {
	User       *storage.User
	Score      float64
	Confidence string
	Match      *matching.Result
}

// Login identifies the user whose registered face best matches the image.
// Failures are returned as *AuthError.
func (s *Service) Login(ctx context.Context, image []byte) (*LoginResult, error) {
	users, err := s.store.ListWithFaces(ctx)
	if err != nil {
		logging.WithError(err).Error("Failed to load registered faces")
		return nil, systemError(err)
	}
	if len(users) == 0 {
		logging.Warn("No users found with face authentication enabled")
		return nil, NewAuthError(ErrCodeNoRegisteredFaces, false)
	}

	query, err := s.Encode(image)
	if err != nil {
		logging.WithError(err).Info("Failed to encode login image")
		e := NewAuthError(ErrCodeNoFace, true)
		e.Suggestions = noFaceSuggestions
		return nil, e
	}

	logging.Infof("Checking face against %d registered faces", len(users))
	candidates := s.candidates(users)

	res, err := s.matcher.Match(ctx, query.Descriptor, candidates)
	if err != nil {
		return nil, systemError(err)
	}

	logging.WithFields(logging.Fields{
		"decision": res.Decision.String(),
		"best":     res.BestID,
		"score":    fmt.Sprintf("%.3f", res.BestScore),
		"compared": res.Compared,
		"skipped":  res.Skipped,
	}).Info("Face match completed")

	switch res.Decision {
	case matching.Accept:
		user := &users[res.BestIndex]
		if err := s.store.TouchLastLogin(ctx, user.UserID, s.now()); err != nil {
			logging.Warnf("Failed to update last login for %s: %v", user.UserID, err)
		}
		return &LoginResult{
			User:       user,
			Score:      res.BestScore,
			Confidence: Percent(res.BestScore),
			Match:      res,
		}, nil

	case matching.LowSimilarity:
		e := NewAuthError(ErrCodeLowSimilarity, true)
		e.Message = fmt.Sprintf("Face similarity too low. Got %s, need %s. Try better lighting or angle.",
			Percent(res.BestScore), Percent(res.Threshold))
		e.Details["similarity"] = Percent(res.BestScore)
		e.Details["required"] = Percent(res.Threshold)
		e.Details["gap"] = Percent(res.Gap())
		e.Suggestions = lowSimilaritySuggestions
		return nil, e

	default:
		e := NewAuthError(ErrCodeNotRegistered, false)
		e.Details["similarity"] = Percent(res.BestScore)
		return nil, e
	}
}

// candidates builds the gallery. Records holding only a thumbnail are
// re-extracted; legacy string records and unreadable thumbnails yield an
// empty descriptor, which the matcher skips.
func (s *Service) candidates(users []storage.User) []matching.Candidate {
	out := make([]matching.Candidate, len(users))
	for i := range users {
		u := &users[i]
		out[i] = matching.Candidate{ID: u.UserID, Descriptor: s.storedDescriptor(u)}
	}
	return out
}

func (s *Service) storedDescriptor(u *storage.User) *features.Descriptor {
	switch u.Face.Format() {
	case storage.FormatCurrent, storage.FormatFeatures:
		return u.Face.Features
	case storage.FormatThumbnail:
		enc, err := s.encodeThumbnail(u.Face.Thumbnail)
		if err != nil {
			logging.Warnf("Failed to re-extract features for %s: %v", u.UserID, err)
			return nil
		}
		return enc.Descriptor
	default:
		logging.Debugf("Skipping %s: face data format %s not supported", u.UserID, u.Face.Format())
		return nil
	}
}

// Registration is the input of Register.
type Registration struct {
	Name         string
	MobileNumber string
	Email        string
	DLNumber     string
	Image        []byte
}

// Register creates a user with face data, a bank account and a vehicle record.
func (s *Service) Register(ctx context.Context, r Registration) (*storage.User, *storage.Vehicle, error) {
	r.Name = strings.TrimSpace(r.Name)
	r.MobileNumber = strings.TrimSpace(r.MobileNumber)
	r.DLNumber = strings.TrimSpace(r.DLNumber)
	r.Email = strings.TrimSpace(r.Email)

	if r.Name == "" || r.MobileNumber == "" || r.DLNumber == "" || len(r.Image) == 0 {
		return nil, nil, invalidInput("Name, mobile number, DL number, and face image are required")
	}

	if err := s.ensureUnique(ctx, r); err != nil {
		return nil, nil, err
	}

	enc, err := s.Encode(r.Image)
	if err != nil {
		logging.WithError(err).Info("Registration image rejected")
		e := NewAuthError(ErrCodeFaceUnusable, true)
		e.Suggestions = captureSuggestions
		return nil, nil, e
	}

	now := s.now()
	user := &storage.User{
		UserID:            newID("USR", now),
		Name:              r.Name,
		MobileNumber:      r.MobileNumber,
		Email:             r.Email,
		DLNumber:          r.DLNumber,
		BankAccountNumber: newID("BANK", now),
		Face:              enc.Record(now),
		CreatedAt:         now,
		LastLogin:         now,
		IsActive:          true,
	}
	account := &storage.BankAccount{
		UserID:        user.UserID,
		AccountNumber: user.BankAccountNumber,
		AccountType:   "savings",
		CreatedAt:     now,
		IsActive:      true,
	}
	vehicle := &storage.Vehicle{
		UserID:    user.UserID,
		VehicleID: newID("VEH", now),
		DLNumber:  r.DLNumber,
		CreatedAt: now,
		IsActive:  true,
	}
	user.VehicleID = vehicle.VehicleID

	if err := s.store.CreateUser(ctx, user, account, vehicle); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			return nil, nil, NewAuthError(ErrCodeMobileExists, false)
		}
		logging.WithError(err).Error("Failed to create user")
		return nil, nil, systemError(err)
	}

	if s.otp != nil {
		s.otp.Clear(r.MobileNumber)
	}

	logging.WithFields(logging.Fields{"user_id": user.UserID, "vehicle_id": vehicle.VehicleID}).Info("User registered")
	return user, vehicle, nil
}

func (s *Service) ensureUnique(ctx context.Context, r Registration) error {
	if _, err := s.store.FindByMobile(ctx, r.MobileNumber); err == nil {
		return NewAuthError(ErrCodeMobileExists, false)
	} else if !errors.Is(err, storage.ErrUserNotFound) {
		return systemError(err)
	}

	if _, err := s.store.FindByDL(ctx, r.DLNumber); err == nil {
		return NewAuthError(ErrCodeDLExists, false)
	} else if !errors.Is(err, storage.ErrUserNotFound) {
		return systemError(err)
	}
	return nil
}

func newID(prefix string, at time.Time) string {
	return prefix + ulid.MustNew(ulid.Timestamp(at), ulid.DefaultEntropy()).String()
}
