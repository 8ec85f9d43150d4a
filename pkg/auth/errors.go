package auth

import (
	"fmt"
	"net/http"
)

// ErrorCode identifies an authentication failure.
type ErrorCode string

const (
	ErrCodeNoFace            ErrorCode = "NO_FACE_DETECTED"
	ErrCodeLowSimilarity     ErrorCode = "LOW_SIMILARITY"
	ErrCodeNotRegistered     ErrorCode = "FACE_NOT_REGISTERED"
	ErrCodeNoRegisteredFaces ErrorCode = "NO_REGISTERED_FACES"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeMobileExists      ErrorCode = "MOBILE_EXISTS"
	ErrCodeDLExists          ErrorCode = "DL_EXISTS"
	ErrCodeFaceUnusable      ErrorCode = "FACE_NOT_PROCESSABLE"
	ErrCodeSystem            ErrorCode = "SYSTEM_ERROR"
)

// AuthError is a structured authentication error.
type AuthError struct {
	Code        ErrorCode
	Message     string
	Retry       bool
	Details     map[string]interface{}
	Suggestions []string
}

func (e *AuthError) Error() string {
	return e.Message
}

// HTTPStatus maps the error code to a response status.
func (e *AuthError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeLowSimilarity:
		return http.StatusUnauthorized
	case ErrCodeNotRegistered, ErrCodeNoRegisteredFaces:
		return http.StatusNotFound
	case ErrCodeSystem:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// User-facing messages
var errorMessages = map[ErrorCode]string{
	ErrCodeNoFace:            "No face detected in the image. Please capture again with good lighting.",
	ErrCodeLowSimilarity:     "Face similarity too low. Try better lighting or angle.",
	ErrCodeNotRegistered:     "Face not registered in our system. Please register first or use mobile login.",
	ErrCodeNoRegisteredFaces: "No registered faces found. Please register first with face authentication.",
	ErrCodeInvalidInput:      "Invalid request",
	ErrCodeMobileExists:      "User with this mobile number already exists",
	ErrCodeDLExists:          "User with this DL number already exists",
	ErrCodeFaceUnusable:      "Could not process face image. Please ensure face is clearly visible.",
	ErrCodeSystem:            "Face authentication system error. Please try mobile login.",
}

var (
	noFaceSuggestions = []string{
		"Ensure your face is clearly visible",
		"Use good lighting",
		"Hold the camera steady",
		"Position your face in the center",
	}
	lowSimilaritySuggestions = []string{
		"Ensure good lighting on your face",
		"Look directly at the camera",
		"Remove glasses if you weren't wearing them during registration",
		"Try a different angle",
	}
	captureSuggestions = []string{
		"Make sure your face is well-lit",
		"Remove sunglasses or masks",
		"Look directly at the camera",
		"Move closer to the camera",
	}
)

// GetErrorMessage returns a user-facing message for an error code.
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return "Authentication failed"
}

// NewAuthError creates a new authentication error.
func NewAuthError(code ErrorCode, retry bool) *AuthError {
	return &AuthError{
		Code:    code,
		Message: GetErrorMessage(code),
		Retry:   retry,
		Details: make(map[string]interface{}),
	}
}

func invalidInput(message string) *AuthError {
	e := NewAuthError(ErrCodeInvalidInput, true)
	e.Message = message
	return e
}

func systemError(err error) *AuthError {
	e := NewAuthError(ErrCodeSystem, true)
	e.Details["technical_error"] = err.Error()
	return e
}

// Percent formats a score the way it is shown to users, e.g. 0.734 as "73.4%".
func Percent(score float64) string {
	return fmt.Sprintf("%.1f%%", score*100)
}
