package auth

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/features"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/imaging"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/matching"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/otp"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/storage"
)

// portrait draws a 96x96 image with a textured oval on a plain background.
func portrait(t *testing.T, skin, background color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 96, 96))
	for y := 0; y < 96; y++ {
		for x := 0; x < 96; x++ {
			c := background
			dx, dy := float64(x-48)/26, float64(y-48)/32
			if dx*dx+dy*dy <= 1 {
				c = skin
				shade := uint8((x*7 + y*3) % 40)
				c.R = clampAdd(c.R, shade)
				c.G = clampAdd(c.G, shade/2)
				if (y > 38 && y < 44) && (x > 34 && x < 42 || x > 54 && x < 62) {
					c = color.NRGBA{30, 30, 30, 255}
				}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func clampAdd(v, d uint8) uint8 {
	if int(v)+int(d) > 255 {
		return 255
	}
	return v + d
}

var (
	warmFace = color.NRGBA{200, 150, 120, 255}
	lightBg  = color.NRGBA{220, 220, 230, 255}
	coolFace = color.NRGBA{20, 40, 160, 255}
	darkBg   = color.NRGBA{10, 10, 10, 255}
)

func newTestService(store Storage, m *matching.Matcher, otps OTPStore) *Service {
	s := NewService(store, &MockDetector{}, features.DefaultExtractor(), m, otps, Options{
		Padding: 0.1,
		Quality: DefaultQualityLimits(),
	})
	s.now = func() time.Time { return time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC) }
	return s
}

func registeredUser(t *testing.T, s *Service, id string, img []byte) storage.User {
	t.Helper()
	enc, err := s.Encode(img)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return storage.User{UserID: id, Name: id, MobileNumber: "m-" + id, Face: enc.Record(s.now())}
}

func asAuthError(t *testing.T, err error) *AuthError {
	t.Helper()
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %T (%v)", err, err)
	}
	return authErr
}

func TestEncode(t *testing.T) {
	s := newTestService(&MockStorage{}, matching.DefaultMatcher(), nil)

	enc, err := s.Encode(portrait(t, warmFace, lightBg))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if enc.Descriptor.Empty() || enc.Thumbnail == "" {
		t.Error("expected descriptor and thumbnail")
	}
	// 48x48 box padded by 4 on every side
	if enc.Region.Box != image.Rect(20, 20, 76, 76) {
		t.Errorf("unexpected region %v", enc.Region.Box)
	}

	rec := enc.Record(s.now())
	if rec.Format() != storage.FormatCurrent {
		t.Errorf("expected current format, got %s", rec.Format())
	}

	s.detector = &MockDetector{DetectFunc: func(image.Image) ([]image.Rectangle, error) { return nil, nil }}
	if _, err := s.Encode(portrait(t, warmFace, lightBg)); err == nil {
		t.Error("expected error when no face is found")
	}
	if _, err := s.Encode([]byte("not an image")); err == nil {
		t.Error("expected decode error")
	}

	s.detector = &MockDetector{}
	s.opts.MaxPixels = 64 * 64
	if _, err := s.Encode(portrait(t, warmFace, lightBg)); !errors.Is(err, imaging.ErrTooLarge) {
		t.Errorf("expected ErrTooLarge for a 96x96 image over a 64x64 budget, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	warm := portrait(t, warmFace, lightBg)
	cool := portrait(t, coolFace, darkBg)

	t.Run("Accept", func(t *testing.T) {
		store := &MockStorage{}
		s := newTestService(store, matching.DefaultMatcher(), nil)
		users := []storage.User{
			registeredUser(t, s, "USR_COOL", cool),
			registeredUser(t, s, "USR_WARM", warm),
		}
		store.ListWithFacesFunc = func(context.Context) ([]storage.User, error) { return users, nil }

		res, err := s.Login(context.Background(), warm)
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if res.User.UserID != "USR_WARM" {
			t.Errorf("expected USR_WARM, got %s", res.User.UserID)
		}
		if res.Score < 0.999 || res.Confidence != "100.0%" {
			t.Errorf("identical image should score 1, got %f (%s)", res.Score, res.Confidence)
		}
		if len(store.Touched) != 1 || store.Touched[0] != "USR_WARM" {
			t.Errorf("last login not updated: %v", store.Touched)
		}
	})

	t.Run("NoRegisteredFaces", func(t *testing.T) {
		s := newTestService(&MockStorage{}, matching.DefaultMatcher(), nil)
		_, err := s.Login(context.Background(), warm)
		authErr := asAuthError(t, err)
		if authErr.Code != ErrCodeNoRegisteredFaces || authErr.HTTPStatus() != http.StatusNotFound {
			t.Errorf("unexpected error %s/%d", authErr.Code, authErr.HTTPStatus())
		}
	})

	t.Run("NoFace", func(t *testing.T) {
		store := &MockStorage{}
		s := newTestService(store, matching.DefaultMatcher(), nil)
		users := []storage.User{registeredUser(t, s, "USR1", warm)}
		store.ListWithFacesFunc = func(context.Context) ([]storage.User, error) { return users, nil }
		s.detector = &MockDetector{DetectFunc: func(image.Image) ([]image.Rectangle, error) { return nil, nil }}

		_, err := s.Login(context.Background(), warm)
		authErr := asAuthError(t, err)
		if authErr.Code != ErrCodeNoFace || authErr.HTTPStatus() != http.StatusBadRequest {
			t.Errorf("unexpected error %s/%d", authErr.Code, authErr.HTTPStatus())
		}
		if len(authErr.Suggestions) == 0 {
			t.Error("expected suggestions")
		}
	})

	t.Run("LowSimilarity", func(t *testing.T) {
		store := &MockStorage{}
		s := newTestService(store, matching.NewMatcher(0.99, 0, 2), nil)
		users := []storage.User{registeredUser(t, s, "USR1", cool)}
		store.ListWithFacesFunc = func(context.Context) ([]storage.User, error) { return users, nil }

		_, err := s.Login(context.Background(), warm)
		authErr := asAuthError(t, err)
		if authErr.Code != ErrCodeLowSimilarity || authErr.HTTPStatus() != http.StatusUnauthorized {
			t.Fatalf("unexpected error %s/%d", authErr.Code, authErr.HTTPStatus())
		}
		if authErr.Details["required"] != "99.0%" || authErr.Details["gap"] == nil {
			t.Errorf("unexpected details %v", authErr.Details)
		}
		if !strings.Contains(authErr.Message, "need 99.0%") {
			t.Errorf("unexpected message %q", authErr.Message)
		}
		if len(store.Touched) != 0 {
			t.Error("last login must not change on failure")
		}
	})

	t.Run("NotRegistered", func(t *testing.T) {
		store := &MockStorage{}
		s := newTestService(store, matching.NewMatcher(0.999, 0.998, 2), nil)
		users := []storage.User{registeredUser(t, s, "USR1", cool)}
		store.ListWithFacesFunc = func(context.Context) ([]storage.User, error) { return users, nil }

		_, err := s.Login(context.Background(), warm)
		authErr := asAuthError(t, err)
		if authErr.Code != ErrCodeNotRegistered || authErr.HTTPStatus() != http.StatusNotFound {
			t.Errorf("unexpected error %s/%d", authErr.Code, authErr.HTTPStatus())
		}
	})

	t.Run("OnlyLegacyRecords", func(t *testing.T) {
		store := &MockStorage{ListWithFacesFunc: func(context.Context) ([]storage.User, error) {
			return []storage.User{{UserID: "OLD", Face: &storage.FaceRecord{Legacy: "b64-blob"}}}, nil
		}}
		s := newTestService(store, matching.DefaultMatcher(), nil)

		_, err := s.Login(context.Background(), warm)
		if asAuthError(t, err).Code != ErrCodeNotRegistered {
			t.Errorf("legacy records should never match, got %v", err)
		}
	})

	t.Run("ThumbnailOnlyRecord", func(t *testing.T) {
		store := &MockStorage{}
		s := newTestService(store, matching.NewMatcher(0, 0, 1), nil)
		enc, err := s.Encode(warm)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		users := []storage.User{
			{UserID: "OLD", Face: &storage.FaceRecord{Legacy: "b64-blob"}},
			{UserID: "THUMB", Face: &storage.FaceRecord{Thumbnail: enc.Thumbnail}},
		}
		store.ListWithFacesFunc = func(context.Context) ([]storage.User, error) { return users, nil }

		res, err := s.Login(context.Background(), warm)
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if res.User.UserID != "THUMB" || res.Match.Compared != 1 || res.Match.Skipped != 1 {
			t.Errorf("unexpected match %+v", res.Match)
		}
	})

	t.Run("CorruptRecordNextToGoodOne", func(t *testing.T) {
		store := &MockStorage{}
		s := newTestService(store, matching.DefaultMatcher(), nil)

		raw, err := bson.Marshal(bson.M{"user_id": "CORRUPT", "face_data": bson.M{
			"features":  bson.M{"face_brightness": "bright"},
			"face_data": "!!!",
		}})
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var corrupt storage.User
		if err := bson.Unmarshal(raw, &corrupt); err != nil {
			t.Fatalf("corrupt face data should still decode: %v", err)
		}
		users := []storage.User{corrupt, registeredUser(t, s, "USR_WARM", warm)}
		store.ListWithFacesFunc = func(context.Context) ([]storage.User, error) { return users, nil }

		res, err := s.Login(context.Background(), warm)
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if res.User.UserID != "USR_WARM" || res.Match.Skipped != 1 {
			t.Errorf("unexpected match %+v", res.Match)
		}
	})

	t.Run("StorageFailure", func(t *testing.T) {
		store := &MockStorage{ListWithFacesFunc: func(context.Context) ([]storage.User, error) {
			return nil, storage.ErrStorageAccess
		}}
		s := newTestService(store, matching.DefaultMatcher(), nil)
		_, err := s.Login(context.Background(), warm)
		authErr := asAuthError(t, err)
		if authErr.Code != ErrCodeSystem || authErr.HTTPStatus() != http.StatusInternalServerError {
			t.Errorf("unexpected error %s", authErr.Code)
		}
		if authErr.Details["technical_error"] == nil {
			t.Error("expected technical error detail")
		}
	})
}

func TestRegister(t *testing.T) {
	warm := portrait(t, warmFace, lightBg)

	t.Run("Success", func(t *testing.T) {
		var created *storage.User
		var account *storage.BankAccount
		var vehicle *storage.Vehicle
		store := &MockStorage{CreateUserFunc: func(ctx context.Context, u *storage.User, a *storage.BankAccount, v *storage.Vehicle) error {
			created, account, vehicle = u, a, v
			return nil
		}}
		otps := &MockOTP{}
		s := newTestService(store, matching.DefaultMatcher(), otps)

		user, veh, err := s.Register(context.Background(), Registration{
			Name:         "  Asha  ",
			MobileNumber: "9000000001",
			DLNumber:     "DL-42",
			Email:        "asha@example.com",
			Image:        warm,
		})
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		if user != created || veh != vehicle {
			t.Fatal("returned records should be the stored ones")
		}
		if user.Name != "Asha" || !strings.HasPrefix(user.UserID, "USR") || len(user.UserID) != 29 {
			t.Errorf("unexpected user %s/%s", user.Name, user.UserID)
		}
		if !strings.HasPrefix(account.AccountNumber, "BANK") || account.AccountNumber != user.BankAccountNumber {
			t.Errorf("account not linked: %+v", account)
		}
		if account.AccountType != "savings" || account.Balance != 0 {
			t.Errorf("unexpected account %+v", account)
		}
		if !strings.HasPrefix(vehicle.VehicleID, "VEH") || vehicle.UserID != user.UserID || user.VehicleID != vehicle.VehicleID {
			t.Errorf("vehicle not linked: %+v", vehicle)
		}
		if user.Face.Format() != storage.FormatCurrent || user.Face.Thumbnail == "" {
			t.Errorf("face not stored: %s", user.Face.Format())
		}
		if len(otps.Cleared) != 1 || otps.Cleared[0] != "9000000001" {
			t.Errorf("otp not cleared: %v", otps.Cleared)
		}
	})

	tests := []struct {
		name  string
		store *MockStorage
		reg   Registration
		code  ErrorCode
	}{
		{
			name:  "missing fields",
			store: &MockStorage{},
			reg:   Registration{Name: "A", MobileNumber: " ", DLNumber: "DL", Image: warm},
			code:  ErrCodeInvalidInput,
		},
		{
			name: "duplicate mobile",
			store: &MockStorage{FindByMobileFunc: func(context.Context, string) (*storage.User, error) {
				return &storage.User{UserID: "USR1"}, nil
			}},
			reg:  Registration{Name: "A", MobileNumber: "1", DLNumber: "DL", Image: warm},
			code: ErrCodeMobileExists,
		},
		{
			name: "duplicate dl",
			store: &MockStorage{FindByDLFunc: func(context.Context, string) (*storage.User, error) {
				return &storage.User{UserID: "USR1"}, nil
			}},
			reg:  Registration{Name: "A", MobileNumber: "1", DLNumber: "DL", Image: warm},
			code: ErrCodeDLExists,
		},
		{
			name:  "unreadable image",
			store: &MockStorage{},
			reg:   Registration{Name: "A", MobileNumber: "1", DLNumber: "DL", Image: []byte("nope")},
			code:  ErrCodeFaceUnusable,
		},
		{
			name: "race on insert",
			store: &MockStorage{CreateUserFunc: func(context.Context, *storage.User, *storage.BankAccount, *storage.Vehicle) error {
				return storage.ErrUserExists
			}},
			reg:  Registration{Name: "A", MobileNumber: "1", DLNumber: "DL", Image: warm},
			code: ErrCodeMobileExists,
		},
		{
			name: "lookup failure",
			store: &MockStorage{FindByMobileFunc: func(context.Context, string) (*storage.User, error) {
				return nil, storage.ErrStorageAccess
			}},
			reg:  Registration{Name: "A", MobileNumber: "1", DLNumber: "DL", Image: warm},
			code: ErrCodeSystem,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			otps := &MockOTP{}
			s := newTestService(tt.store, matching.DefaultMatcher(), otps)
			_, _, err := s.Register(context.Background(), tt.reg)
			if asAuthError(t, err).Code != tt.code {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
			if len(otps.Cleared) != 0 {
				t.Error("otp must not be cleared on failure")
			}
		})
	}
}

func TestValidateQuality(t *testing.T) {
	s := newTestService(&MockStorage{}, matching.DefaultMatcher(), nil)

	report, err := s.ValidateQuality(context.Background(), portrait(t, warmFace, lightBg))
	if err != nil {
		t.Fatalf("ValidateQuality failed: %v", err)
	}
	if !report.Good() {
		t.Errorf("expected good quality, got issues %v (b=%.1f c=%.1f)", report.Issues, report.Brightness, report.Contrast)
	}

	dark := portrait(t, color.NRGBA{20, 20, 20, 255}, color.NRGBA{5, 5, 5, 255})
	report, err = s.ValidateQuality(context.Background(), dark)
	if err != nil {
		t.Fatalf("ValidateQuality failed: %v", err)
	}
	if report.Good() || report.Issues[0] != "Image too dark - improve lighting" {
		t.Errorf("expected dark warning, got %v", report.Issues)
	}

	s.detector = &MockDetector{DetectFunc: func(image.Image) ([]image.Rectangle, error) { return nil, nil }}
	_, err = s.ValidateQuality(context.Background(), dark)
	if asAuthError(t, err).Code != ErrCodeNoFace {
		t.Errorf("expected no face error, got %v", err)
	}
}

func TestMigrate(t *testing.T) {
	warm := portrait(t, warmFace, lightBg)
	store := &MockStorage{}
	s := newTestService(store, matching.DefaultMatcher(), nil)

	current := registeredUser(t, s, "CURRENT", warm)
	thumbOnly := storage.User{UserID: "THUMB", Face: &storage.FaceRecord{Thumbnail: current.Face.Thumbnail}}
	oldFeatures := storage.User{UserID: "OLDFEAT", Face: &storage.FaceRecord{Features: current.Face.Features, Thumbnail: current.Face.Thumbnail}}
	legacy := storage.User{UserID: "LEGACY", Face: &storage.FaceRecord{Legacy: "blob"}}
	broken := storage.User{UserID: "BROKEN", Face: &storage.FaceRecord{Thumbnail: "!!!"}}
	users := []storage.User{current, thumbOnly, oldFeatures, legacy, broken}
	store.ListWithFacesFunc = func(context.Context) ([]storage.User, error) { return users, nil }

	status, err := s.MigrationStatus(context.Background())
	if err != nil {
		t.Fatalf("MigrationStatus failed: %v", err)
	}
	if status.TotalWithFaces != 5 || status.OldFormat != 4 || !status.Needed() {
		t.Errorf("unexpected status %+v", status)
	}

	report, err := s.Migrate(context.Background())
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	want := MigrationReport{AlreadyMigrated: 1, Migrated: 2, Failed: 2, Total: 5}
	if *report != want {
		t.Errorf("report = %+v, want %+v", *report, want)
	}

	for _, id := range []string{"THUMB", "OLDFEAT"} {
		if rec := store.Updated[id]; rec == nil || rec.Format() != storage.FormatCurrent {
			t.Errorf("%s should be rewritten in the current format", id)
		}
	}
	if rec, ok := store.Updated["LEGACY"]; !ok || rec != nil {
		t.Error("legacy face data should be removed")
	}
	if _, ok := store.Updated["BROKEN"]; ok {
		t.Error("failed re-encode must not touch the record")
	}
}

func TestDebug(t *testing.T) {
	store := &MockStorage{ListWithFacesFunc: func(context.Context) ([]storage.User, error) {
		return []storage.User{
			{UserID: "A", Name: "a", Face: &storage.FaceRecord{Features: &features.Descriptor{}, Version: features.Version}},
			{UserID: "B", Name: "b", Face: &storage.FaceRecord{Thumbnail: "xyz"}},
			{UserID: "C", Name: "c", Face: &storage.FaceRecord{Legacy: "blob"}},
		}, nil
	}}
	s := newTestService(store, matching.DefaultMatcher(), nil)

	info, err := s.Debug(context.Background())
	if err != nil {
		t.Fatalf("Debug failed: %v", err)
	}
	if len(info) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(info))
	}
	if info[0].Version != features.Version || !info[0].HasFeatures || info[0].DataType != "document" {
		t.Errorf("unexpected entry %+v", info[0])
	}
	if info[1].Version != "old" || !info[1].HasThumbnail || len(info[1].Keys) != 1 {
		t.Errorf("unexpected entry %+v", info[1])
	}
	if info[2].DataType != "string" || info[2].Version != "unknown" || info[2].Format != storage.FormatLegacy {
		t.Errorf("unexpected entry %+v", info[2])
	}
}

func TestFaceLoginInfo(t *testing.T) {
	store := &MockStorage{CountWithFacesFunc: func(context.Context) (int64, error) { return 7, nil }}
	s := newTestService(store, matching.DefaultMatcher(), nil)

	info, err := s.FaceLoginInfo(context.Background())
	if err != nil {
		t.Fatalf("FaceLoginInfo failed: %v", err)
	}
	if info.RegisteredFaces != 7 || info.Threshold != 0.5 {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestVerifyOTP(t *testing.T) {
	t.Run("ExistingUser", func(t *testing.T) {
		store := &MockStorage{FindByMobileFunc: func(ctx context.Context, mobile string) (*storage.User, error) {
			return &storage.User{UserID: "USR1", MobileNumber: mobile}, nil
		}}
		s := newTestService(store, matching.DefaultMatcher(), &MockOTP{})

		res, err := s.VerifyOTP(context.Background(), "9000000001", "123456")
		if err != nil {
			t.Fatalf("VerifyOTP failed: %v", err)
		}
		if !res.UserExists || res.User.UserID != "USR1" {
			t.Errorf("unexpected result %+v", res)
		}
		if len(store.Touched) != 1 {
			t.Error("last login should be updated")
		}
	})

	t.Run("NewUser", func(t *testing.T) {
		s := newTestService(&MockStorage{}, matching.DefaultMatcher(), &MockOTP{})
		res, err := s.VerifyOTP(context.Background(), "9000000001", "123456")
		if err != nil {
			t.Fatalf("VerifyOTP failed: %v", err)
		}
		if res.UserExists || res.User != nil {
			t.Errorf("expected unknown user, got %+v", res)
		}
	})

	t.Run("CodeRejected", func(t *testing.T) {
		otps := &MockOTP{VerifyFunc: func(string, string) error { return &otp.InvalidCodeError{Remaining: 1} }}
		s := newTestService(&MockStorage{}, matching.DefaultMatcher(), otps)
		_, err := s.VerifyOTP(context.Background(), "9000000001", "000000")
		var invalid *otp.InvalidCodeError
		if !errors.As(err, &invalid) || invalid.Remaining != 1 {
			t.Errorf("expected otp error passed through, got %v", err)
		}
	})
}

func TestPercent(t *testing.T) {
	tests := map[float64]string{0.5: "50.0%", 0.7341: "73.4%", 0: "0.0%", 1: "100.0%"}
	for in, want := range tests {
		if got := Percent(in); got != want {
			t.Errorf("Percent(%v) = %s, want %s", in, got, want)
		}
	}
}
