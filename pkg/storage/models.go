package storage

import (
	"encoding/json"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/features"
)

// Face record formats found in the users collection.
const (
	FormatCurrent   = "face_only_v2"
	FormatFeatures  = "features_old"
	FormatThumbnail = "thumbnail_only"
	FormatLegacy    = "legacy_string"
	FormatUnknown   = "unknown"
)

// FaceRecord is the face data stored on a user.
// Records written by older releases may hold only a thumbnail, features
// without a version, or a bare string (kept in Legacy).
type FaceRecord struct {
	Features  *features.Descriptor `bson:"features,omitempty" json:"features,omitempty"`
	Thumbnail string               `bson:"face_data,omitempty" json:"face_data,omitempty"`
	Timestamp string               `bson:"timestamp,omitempty" json:"timestamp,omitempty"`
	Version   string               `bson:"version,omitempty" json:"version,omitempty"`

	Legacy string `bson:"-" json:"-"`
}

// faceDoc has FaceRecord's fields without its custom codecs.
type faceDoc FaceRecord

// NewFaceRecord builds a current-format record.
func NewFaceRecord(desc *features.Descriptor, thumbnail string, at time.Time) *FaceRecord {
	return &FaceRecord{
		Features:  desc,
		Thumbnail: thumbnail,
		Timestamp: at.Format(time.RFC3339Nano),
		Version:   features.Version,
	}
}

// Format classifies the record.
func (f *FaceRecord) Format() string {
	switch {
	case f == nil:
		return FormatUnknown
	case f.Legacy != "":
		return FormatLegacy
	case f.Features != nil && f.Version == features.Version:
		return FormatCurrent
	case f.Features != nil:
		return FormatFeatures
	case f.Thumbnail != "":
		return FormatThumbnail
	default:
		return FormatUnknown
	}
}

// Keys lists the document keys present on the record, sorted.
func (f *FaceRecord) Keys() []string {
	if f == nil || f.Legacy != "" {
		return nil
	}
	var keys []string
	if f.Features != nil {
		keys = append(keys, "features")
	}
	if f.Thumbnail != "" {
		keys = append(keys, "face_data")
	}
	if f.Timestamp != "" {
		keys = append(keys, "timestamp")
	}
	if f.Version != "" {
		keys = append(keys, "version")
	}
	sort.Strings(keys)
	return keys
}

// MarshalBSONValue writes legacy records back as plain strings.
func (f FaceRecord) MarshalBSONValue() (bsontype.Type, []byte, error) {
	if f.Legacy != "" {
		return bson.MarshalValue(f.Legacy)
	}
	return bson.MarshalValue(faceDoc(f))
}

// UnmarshalBSONValue accepts both the document and the bare string forms.
func (f *FaceRecord) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	switch t {
	case bsontype.String:
		var s string
		if err := bson.UnmarshalValue(t, data, &s); err != nil {
			return err
		}
		*f = FaceRecord{Legacy: s}
		return nil
	case bsontype.EmbeddedDocument:
		var doc faceDoc
		if err := bson.Unmarshal(data, &doc); err != nil {
			*f = salvageBSON(bson.Raw(data))
			return nil
		}
		*f = FaceRecord(doc)
		return nil
	default:
		// Null and any type no release ever wrote decode as an
		// unknown-format record.
		*f = FaceRecord{}
		return nil
	}
}

// salvageBSON keeps the string fields of a face document whose features
// could not be decoded. The features are dropped.
func salvageBSON(raw bson.Raw) FaceRecord {
	str := func(key string) string {
		v, err := raw.LookupErr(key)
		if err != nil {
			return ""
		}
		s, _ := v.StringValueOK()
		return s
	}
	return FaceRecord{
		Thumbnail: str("face_data"),
		Timestamp: str("timestamp"),
		Version:   str("version"),
	}
}

// MarshalJSON mirrors MarshalBSONValue.
func (f FaceRecord) MarshalJSON() ([]byte, error) {
	if f.Legacy != "" {
		return json.Marshal(f.Legacy)
	}
	return json.Marshal(faceDoc(f))
}

// UnmarshalJSON mirrors UnmarshalBSONValue.
func (f *FaceRecord) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FaceRecord{Legacy: s}
		return nil
	}
	if len(data) == 0 || data[0] != '{' {
		*f = FaceRecord{}
		return nil
	}
	var doc faceDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		*f = salvageJSON(data)
		return nil
	}
	*f = FaceRecord(doc)
	return nil
}

func salvageJSON(data []byte) FaceRecord {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return FaceRecord{}
	}
	str := func(key string) string {
		var s string
		_ = json.Unmarshal(fields[key], &s)
		return s
	}
	return FaceRecord{
		Thumbnail: str("face_data"),
		Timestamp: str("timestamp"),
		Version:   str("version"),
	}
}

// User is a registered person.
type User struct {
	UserID            string      `bson:"user_id" json:"user_id"`
	Name              string      `bson:"name" json:"name"`
	MobileNumber      string      `bson:"mobile_number" json:"mobile_number"`
	Email             string      `bson:"email" json:"email"`
	DLNumber          string      `bson:"dl_number" json:"dl_number"`
	BankAccountNumber string      `bson:"bank_account_number" json:"bank_account_number"`
	VehicleID         string      `bson:"vehicle_id,omitempty" json:"vehicle_id,omitempty"`
	Face              *FaceRecord `bson:"face_data,omitempty" json:"face_data,omitempty"`
	CreatedAt         time.Time   `bson:"created_at" json:"created_at"`
	LastLogin         time.Time   `bson:"last_login" json:"last_login"`
	IsActive          bool        `bson:"is_active" json:"is_active"`
}

// HasFace reports whether the user carries any face data.
func (u *User) HasFace() bool {
	return u.Face != nil && u.Face.Format() != FormatUnknown
}

// BankAccount is created for every user at registration.
type BankAccount struct {
	UserID        string    `bson:"user_id" json:"user_id"`
	AccountNumber string    `bson:"account_number" json:"account_number"`
	AccountType   string    `bson:"account_type" json:"account_type"`
	Balance       float64   `bson:"balance" json:"balance"`
	CreatedAt     time.Time `bson:"created_at" json:"created_at"`
	IsActive      bool      `bson:"is_active" json:"is_active"`
}

// Vehicle links a user to a vehicle and, once known, its plate.
type Vehicle struct {
	UserID      string    `bson:"user_id,omitempty" json:"user_id,omitempty"`
	OwnerID     string    `bson:"owner_id,omitempty" json:"owner_id,omitempty"`
	VehicleID   string    `bson:"vehicle_id" json:"vehicle_id"`
	DLNumber    string    `bson:"dl_number,omitempty" json:"dl_number,omitempty"`
	PlateNumber string    `bson:"plate_number,omitempty" json:"plate_number,omitempty"`
	Make        string    `bson:"make,omitempty" json:"make,omitempty"`
	Model       string    `bson:"model,omitempty" json:"model,omitempty"`
	VehicleType string    `bson:"vehicle_type,omitempty" json:"vehicle_type,omitempty"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
	IsActive    bool      `bson:"is_active" json:"is_active"`
}

// Owner returns the owning user ID.
func (v *Vehicle) Owner() string {
	if v.OwnerID != "" {
		return v.OwnerID
	}
	return v.UserID
}

// DetectionDetails records what the camera pipeline saw.
type DetectionDetails struct {
	DetectionID      string    `bson:"detection_id" json:"detection_id"`
	CameraID         string    `bson:"camera_id" json:"camera_id"`
	Timestamp        time.Time `bson:"timestamp" json:"timestamp"`
	PlateNumber      string    `bson:"plate_number" json:"plate_number"`
	PlateConfidence  float64   `bson:"plate_confidence" json:"plate_confidence"`
	PersonConfidence float64   `bson:"person_confidence" json:"person_confidence"`
	HelmetDetected   bool      `bson:"helmet_detected" json:"helmet_detected"`
}

// UserDetails is the owner snapshot copied onto a violation memo.
type UserDetails struct {
	UserID       string `bson:"user_id" json:"user_id"`
	Name         string `bson:"name" json:"name"`
	MobileNumber string `bson:"mobile_number" json:"mobile_number"`
	Email        string `bson:"email" json:"email"`
	DLNumber     string `bson:"dl_number" json:"dl_number"`
}

// VehicleDetails is the vehicle snapshot copied onto a violation memo.
type VehicleDetails struct {
	VehicleID   string `bson:"vehicle_id" json:"vehicle_id"`
	PlateNumber string `bson:"plate_number" json:"plate_number"`
	Make        string `bson:"make" json:"make"`
	Model       string `bson:"model" json:"model"`
	VehicleType string `bson:"vehicle_type" json:"vehicle_type"`
}

// Violation is a fine memo.
type Violation struct {
	ViolationID      string           `bson:"violation_id" json:"violation_id"`
	VehicleID        string           `bson:"vehicle_id" json:"vehicle_id"`
	ViolationType    string           `bson:"violation_type" json:"violation_type"`
	FineAmount       float64          `bson:"fine_amount" json:"fine_amount"`
	Location         string           `bson:"location" json:"location"`
	EvidencePhoto    string           `bson:"evidence_photo" json:"evidence_photo"`
	Status           string           `bson:"status" json:"status"`
	CreatedAt        time.Time        `bson:"created_at" json:"created_at"`
	DetectionDetails DetectionDetails `bson:"detection_details" json:"detection_details"`
	UserDetails      *UserDetails     `bson:"user_details,omitempty" json:"user_details,omitempty"`
	VehicleDetails   *VehicleDetails  `bson:"vehicle_details,omitempty" json:"vehicle_details,omitempty"`
}

// Detection is one evaluated camera frame.
type Detection struct {
	DetectionID      string    `bson:"detection_id" json:"detection_id"`
	CameraID         string    `bson:"camera_id" json:"camera_id"`
	Timestamp        time.Time `bson:"timestamp" json:"timestamp"`
	OriginalImage    string    `bson:"original_image" json:"original_image"`
	ProcessedImage   string    `bson:"processed_image,omitempty" json:"processed_image,omitempty"`
	PersonDetected   bool      `bson:"person_detected" json:"person_detected"`
	PersonConfidence float64   `bson:"person_confidence" json:"person_confidence"`
	HelmetDetected   bool      `bson:"helmet_detected" json:"helmet_detected"`
	HelmetConfidence float64   `bson:"helmet_confidence" json:"helmet_confidence"`
	VehicleDetected  bool      `bson:"vehicle_detected" json:"vehicle_detected"`
	VehicleType      string    `bson:"vehicle_type,omitempty" json:"vehicle_type,omitempty"`
	PlateDetected    bool      `bson:"plate_detected" json:"plate_detected"`
	PlateNumber      string    `bson:"plate_number,omitempty" json:"plate_number,omitempty"`
	PlateConfidence  float64   `bson:"plate_confidence" json:"plate_confidence"`
	IsViolation      bool      `bson:"is_violation" json:"is_violation"`
	ViolationType    string    `bson:"violation_type,omitempty" json:"violation_type,omitempty"`
	ViolationID      string    `bson:"violation_id,omitempty" json:"violation_id,omitempty"`
}
