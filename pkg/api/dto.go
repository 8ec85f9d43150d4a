package api

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/violation"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// validateStruct returns one message per failed rule, or nil.
func validateStruct(payload interface{}) []string {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "notblank":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "email":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid email address", fe.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
		}
	}
	return msgs
}

type faceImageRequest struct {
	FaceImage string `json:"face_image" validate:"notblank"`
}

type sendOTPRequest struct {
	MobileNumber string `json:"mobile_number" validate:"notblank"`
}

type verifyOTPRequest struct {
	MobileNumber string `json:"mobile_number" validate:"notblank"`
	OTP          string `json:"otp" validate:"notblank"`
}

type registerRequest struct {
	Name         string `json:"name" validate:"notblank"`
	MobileNumber string `json:"mobile_number" validate:"notblank"`
	DLNumber     string `json:"dl_number" validate:"notblank"`
	Email        string `json:"email" validate:"omitempty,email"`
	FaceImage    string `json:"face_image" validate:"notblank"`
}

type evaluateRequest struct {
	CameraID        string                `json:"camera_id" validate:"notblank"`
	PlateNumber     string                `json:"plate_number"`
	PlateConfidence float64               `json:"plate_confidence" validate:"gte=0,lte=1"`
	EvidencePath    string                `json:"evidence_path"`
	PlateBox        violation.Box         `json:"plate_bbox"`
	Detections      []violation.Detection `json:"detections" validate:"dive"`
}
