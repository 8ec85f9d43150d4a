package auth

import (
	"context"
	"errors"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/detection"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/imaging"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/logging"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/otp"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/storage"
)

// QualityReport describes a face crop's lighting.
type QualityReport struct {
	Brightness float64
	Contrast   float64
	Issues     []string
}

// Good reports whether no quality issue was found.
func (q *QualityReport) Good() bool {
	return len(q.Issues) == 0
}

// ValidateQuality checks that a face is present and reasonably lit.
func (s *Service) ValidateQuality(ctx context.Context, image []byte) (*QualityReport, error) {
	img, err := imaging.DecodeLimited(image, s.opts.MaxPixels)
	if err != nil {
		return nil, invalidInput(err.Error())
	}

	region, err := detection.ExtractFaceRegion(s.detector, img, s.opts.Padding)
	if err != nil {
		return nil, systemError(err)
	}
	if region == nil {
		e := NewAuthError(ErrCodeNoFace, true)
		e.Message = "No face detected. Please ensure your face is clearly visible."
		e.Suggestions = captureSuggestions
		return nil, e
	}

	stats := imaging.RGBStats(region.Image)
	report := &QualityReport{Brightness: stats.Brightness, Contrast: stats.Contrast}
	limits := s.opts.Quality

	if stats.Brightness < limits.MinBrightness {
		report.Issues = append(report.Issues, "Image too dark - improve lighting")
	} else if stats.Brightness > limits.MaxBrightness {
		report.Issues = append(report.Issues, "Image too bright - reduce lighting")
	}
	if stats.Contrast < limits.MinContrast {
		report.Issues = append(report.Issues, "Image too blurry - hold camera steady")
	}
	return report, nil
}

// LoginInfo summarises the face login setup.
type LoginInfo struct {
	RegisteredFaces int64
	Threshold       float64
}

// FaceLoginInfo reports how many faces are registered and the threshold in use.
func (s *Service) FaceLoginInfo(ctx context.Context) (*LoginInfo, error) {
	n, err := s.store.CountWithFaces(ctx)
	if err != nil {
		return nil, systemError(err)
	}
	return &LoginInfo{RegisteredFaces: n, Threshold: s.Threshold()}, nil
}

// MigrationStatus counts stored face records by whether they need migrating.
type MigrationStatus struct {
	TotalWithFaces int
	OldFormat      int
}

// Needed reports whether any record is in an older format.
func (m *MigrationStatus) Needed() bool {
	return m.OldFormat > 0
}

// MigrationStatus inspects stored face data.
func (s *Service) MigrationStatus(ctx context.Context) (*MigrationStatus, error) {
	users, err := s.store.ListWithFaces(ctx)
	if err != nil {
		return nil, systemError(err)
	}
	st := &MigrationStatus{TotalWithFaces: len(users)}
	for i := range users {
		if users[i].Face.Format() != storage.FormatCurrent {
			st.OldFormat++
		}
	}
	return st, nil
}

// MigrationReport is the outcome of Migrate.
type MigrationReport struct {
	AlreadyMigrated int `json:"already_migrated"`
	Migrated        int `json:"successfully_migrated"`
	Failed          int `json:"failed_migrations"`
	Total           int `json:"total_processed"`
}

// Migrate rewrites older face records in the current format. Records with a
// stored thumbnail are re-encoded from it. Bare string records cannot be
// recovered; their face data is removed so the user registers again.
func (s *Service) Migrate(ctx context.Context) (*MigrationReport, error) {
	users, err := s.store.ListWithFaces(ctx)
	if err != nil {
		return nil, systemError(err)
	}

	report := &MigrationReport{Total: len(users)}
	for i := range users {
		if err := ctx.Err(); err != nil {
			return report, systemError(err)
		}

		u := &users[i]
		log := logging.WithFields(logging.Fields{"user_id": u.UserID, "format": u.Face.Format()})

		switch {
		case u.Face.Format() == storage.FormatCurrent:
			report.AlreadyMigrated++

		case u.Face.Thumbnail != "":
			enc, err := s.encodeThumbnail(u.Face.Thumbnail)
			if err != nil {
				log.WithError(err).Warn("Failed to re-encode stored face")
				report.Failed++
				continue
			}
			if err := s.store.UpdateFace(ctx, u.UserID, enc.Record(s.now())); err != nil {
				log.WithError(err).Error("Failed to store migrated face")
				report.Failed++
				continue
			}
			log.Info("Face data migrated")
			report.Migrated++

		case u.Face.Format() == storage.FormatLegacy:
			if err := s.store.UpdateFace(ctx, u.UserID, nil); err != nil {
				log.WithError(err).Error("Failed to remove legacy face data")
			} else {
				log.Warn("Removed legacy face data, user must register again")
			}
			report.Failed++

		default:
			log.Warn("Unknown face data format")
			report.Failed++
		}
	}

	logging.WithFields(logging.Fields{
		"already_migrated": report.AlreadyMigrated,
		"migrated":         report.Migrated,
		"failed":           report.Failed,
	}).Info("Face data migration completed")
	return report, nil
}

// FaceDebug describes one user's stored face data.
type FaceDebug struct {
	Name         string   `json:"name"`
	UserID       string   `json:"user_id"`
	DataType     string   `json:"face_data_type"`
	Format       string   `json:"format"`
	HasFeatures  bool     `json:"has_features"`
	HasThumbnail bool     `json:"has_face_data"`
	Version      string   `json:"version"`
	Keys         []string `json:"keys,omitempty"`
}

// Debug lists the face data format of every user that has some.
func (s *Service) Debug(ctx context.Context) ([]FaceDebug, error) {
	users, err := s.store.ListWithFaces(ctx)
	if err != nil {
		return nil, systemError(err)
	}

	out := make([]FaceDebug, 0, len(users))
	for i := range users {
		u := &users[i]
		d := FaceDebug{
			Name:    u.Name,
			UserID:  u.UserID,
			Format:  u.Face.Format(),
			Version: "unknown",
		}
		if d.Format == storage.FormatLegacy {
			d.DataType = "string"
		} else {
			d.DataType = "document"
			d.Keys = u.Face.Keys()
			d.HasFeatures = u.Face.Features != nil
			d.HasThumbnail = u.Face.Thumbnail != ""
			d.Version = u.Face.Version
			if d.Version == "" {
				d.Version = "old"
			}
		}
		out = append(out, d)
	}
	return out, nil
}

// SendOTP issues a login code for mobile.
func (s *Service) SendOTP(ctx context.Context, mobile string) (*otp.Issued, error) {
	return s.otp.Issue(ctx, mobile)
}

// OTPLogin is the outcome of a verified code.
type OTPLogin struct {
	UserExists bool
	User       *storage.User
}

// VerifyOTP checks the code and, when it matches, looks up the user owning
// the mobile number. Code errors from the otp package are returned unchanged.
func (s *Service) VerifyOTP(ctx context.Context, mobile, code string) (*OTPLogin, error) {
	if err := s.otp.Verify(mobile, code); err != nil {
		return nil, err
	}

	user, err := s.store.FindByMobile(ctx, mobile)
	if errors.Is(err, storage.ErrUserNotFound) {
		return &OTPLogin{}, nil
	}
	if err != nil {
		return nil, systemError(err)
	}

	if err := s.store.TouchLastLogin(ctx, user.UserID, s.now()); err != nil {
		logging.Warnf("Failed to update last login for %s: %v", user.UserID, err)
	}
	return &OTPLogin{UserExists: true, User: user}, nil
}
