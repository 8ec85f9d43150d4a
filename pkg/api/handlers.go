package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/auth"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/imaging"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/otp"
)

func (s *Server) faceLoginInfo(ctx *gin.Context) {
	info, err := s.auth.FaceLoginInfo(ctx.Request.Context())
	if err != nil {
		respondAuthError(ctx, err)
		return
	}
	respond(ctx, http.StatusOK, statusInfo, "Face login endpoint is working. Send POST request with face_image data.", gin.H{
		"method":           "POST",
		"registered_faces": info.RegisteredFaces,
		"required_data":    gin.H{"face_image": "base64 encoded image data"},
		"endpoint":         "/api/userlogin/face-login/",
		"threshold":        fmt.Sprintf("Minimum %.0f%% similarity required for authentication", info.Threshold*100),
	})
}

func (s *Server) faceLogin(ctx *gin.Context) {
	var body faceImageRequest
	if !bindJSON(ctx, &body, "Face image is required for authentication") {
		return
	}

	image, err := imaging.DecodeDataURL(body.FaceImage)
	if err != nil {
		e := auth.NewAuthError(auth.ErrCodeNoFace, true)
		e.Details["reason"] = err.Error()
		respondAuthError(ctx, e)
		return
	}

	res, err := s.auth.Login(ctx.Request.Context(), image)
	if err != nil {
		respondAuthError(ctx, err)
		return
	}

	u := res.User
	respond(ctx, http.StatusOK, statusSuccess, fmt.Sprintf("Face authentication successful! Welcome %s", u.Name), gin.H{
		"user_data": gin.H{
			"user_id":             u.UserID,
			"name":                u.Name,
			"mobile_number":       u.MobileNumber,
			"email":               u.Email,
			"dl_number":           u.DLNumber,
			"bank_account_number": u.BankAccountNumber,
			"similarity_score":    res.Score,
			"confidence":          res.Confidence,
		},
	})
}

func (s *Server) sendOTP(ctx *gin.Context) {
	var body sendOTPRequest
	if !bindJSON(ctx, &body, "Mobile number is required") {
		return
	}

	issued, err := s.auth.SendOTP(ctx.Request.Context(), strings.TrimSpace(body.MobileNumber))
	if err != nil {
		_ = ctx.Error(err)
		respondError(ctx, http.StatusInternalServerError, "Failed to send OTP")
		return
	}

	payload := gin.H{"expires_in": int(issued.ExpiresIn / time.Second)}
	if s.exposeOTP {
		payload["otp"] = issued.Code
	}
	respond(ctx, http.StatusOK, statusSuccess, "OTP sent successfully", payload)
}

func (s *Server) verifyOTP(ctx *gin.Context) {
	var body verifyOTPRequest
	if !bindJSON(ctx, &body, "Mobile number and OTP are required") {
		return
	}
	mobile := strings.TrimSpace(body.MobileNumber)

	res, err := s.auth.VerifyOTP(ctx.Request.Context(), mobile, strings.TrimSpace(body.OTP))
	if err != nil {
		var invalid *otp.InvalidCodeError
		switch {
		case errors.Is(err, otp.ErrNotFound):
			respondError(ctx, http.StatusNotFound, "No OTP found for this mobile number")
		case errors.Is(err, otp.ErrExpired):
			respondError(ctx, http.StatusBadRequest, "OTP has expired. Please request a new one.")
		case errors.Is(err, otp.ErrTooManyAttempts):
			respondError(ctx, http.StatusBadRequest, "Too many failed attempts. Please request a new OTP.")
		case errors.As(err, &invalid):
			respond(ctx, http.StatusBadRequest, statusError,
				fmt.Sprintf("Invalid OTP. %d attempts remaining.", invalid.Remaining),
				gin.H{"remaining_attempts": invalid.Remaining})
		default:
			respondAuthError(ctx, err)
		}
		return
	}

	if !res.UserExists {
		respond(ctx, http.StatusOK, statusSuccess, "OTP verified successfully", gin.H{
			"user_exists":              false,
			"redirect_to_registration": true,
		})
		return
	}

	u := res.User
	respond(ctx, http.StatusOK, statusSuccess, "OTP verified successfully", gin.H{
		"user_exists": true,
		"user_data": gin.H{
			"user_id":             u.UserID,
			"name":                u.Name,
			"mobile_number":       u.MobileNumber,
			"email":               u.Email,
			"dl_number":           u.DLNumber,
			"bank_account_number": u.BankAccountNumber,
			"has_face_auth":       u.HasFace(),
		},
	})
}

func (s *Server) register(ctx *gin.Context) {
	var body registerRequest
	if !bindJSON(ctx, &body, "Name, mobile number, DL number, and face image are required") {
		return
	}

	image, err := imaging.DecodeDataURL(body.FaceImage)
	if err != nil {
		respondAuthError(ctx, auth.NewAuthError(auth.ErrCodeFaceUnusable, true))
		return
	}

	user, vehicle, err := s.auth.Register(ctx.Request.Context(), auth.Registration{
		Name:         body.Name,
		MobileNumber: body.MobileNumber,
		Email:        body.Email,
		DLNumber:     body.DLNumber,
		Image:        image,
	})
	if err != nil {
		respondAuthError(ctx, err)
		return
	}

	respond(ctx, http.StatusOK, statusSuccess, fmt.Sprintf("User %s registered successfully with face authentication", user.Name), gin.H{
		"user_data": gin.H{
			"user_id":             user.UserID,
			"name":                user.Name,
			"mobile_number":       user.MobileNumber,
			"email":               user.Email,
			"dl_number":           user.DLNumber,
			"bank_account_number": user.BankAccountNumber,
			"vehicle_id":          vehicle.VehicleID,
		},
	})
}

func (s *Server) validateFaceQuality(ctx *gin.Context) {
	var body faceImageRequest
	if !bindJSON(ctx, &body, "Face image is required") {
		return
	}

	image, err := imaging.DecodeDataURL(body.FaceImage)
	if err != nil {
		respondError(ctx, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.auth.ValidateQuality(ctx.Request.Context(), image)
	if err != nil {
		respondAuthError(ctx, err)
		return
	}

	if !report.Good() {
		respond(ctx, http.StatusOK, statusWarning, "Face detected but image quality could be better", gin.H{
			"quality_issues": report.Issues,
			"face_detected":  true,
		})
		return
	}
	respond(ctx, http.StatusOK, statusSuccess, "Face detected with good quality", gin.H{
		"face_detected": true,
		"brightness":    report.Brightness,
		"contrast":      report.Contrast,
	})
}

func (s *Server) migrationStatus(ctx *gin.Context) {
	st, err := s.auth.MigrationStatus(ctx.Request.Context())
	if err != nil {
		respondAuthError(ctx, err)
		return
	}
	respond(ctx, http.StatusOK, statusInfo, "Face data migration utility", gin.H{
		"total_users_with_faces": st.TotalWithFaces,
		"old_format_users":       st.OldFormat,
		"migration_needed":       st.Needed(),
	})
}

func (s *Server) migrate(ctx *gin.Context) {
	report, err := s.auth.Migrate(ctx.Request.Context())
	if err != nil {
		respondAuthError(ctx, err)
		return
	}
	respond(ctx, http.StatusOK, statusSuccess, "Face data migration completed", gin.H{"results": report})
}

func (s *Server) debugFaceData(ctx *gin.Context) {
	users, err := s.auth.Debug(ctx.Request.Context())
	if err != nil {
		respondAuthError(ctx, err)
		return
	}
	respond(ctx, http.StatusOK, statusSuccess, "", gin.H{
		"total_users": len(users),
		"users":       users,
	})
}

func (s *Server) debugOTP(ctx *gin.Context) {
	pending := s.otps.Pending()
	byMobile := make(map[string]otp.PendingEntry, len(pending))
	for _, p := range pending {
		byMobile[p.Mobile] = p
	}
	respond(ctx, http.StatusOK, statusSuccess, "", gin.H{
		"current_time": time.Now().Format(time.RFC3339),
		"total_otps":   len(pending),
		"otp_storage":  byMobile,
	})
}
