package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/auth"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/logging"
)

const (
	statusSuccess = "success"
	statusError   = "error"
	statusWarning = "warning"
	statusInfo    = "info"
)

// respond writes the {"status", "message", ...} envelope.
func respond(ctx *gin.Context, code int, status, message string, payload gin.H) {
	ctx.Abort()
	body := gin.H{"status": status}
	if message != "" {
		body["message"] = message
	}
	for k, v := range payload {
		body[k] = v
	}
	ctx.JSON(code, body)
}

func respondError(ctx *gin.Context, code int, message string) {
	respond(ctx, code, statusError, message, nil)
}

// respondAuthError renders an *auth.AuthError; anything else becomes a
// SYSTEM_ERROR response.
func respondAuthError(ctx *gin.Context, err error) {
	var authErr *auth.AuthError
	if !errors.As(err, &authErr) {
		logging.WithError(err).Error("Unexpected error")
		authErr = auth.NewAuthError(auth.ErrCodeSystem, true)
		authErr.Details["technical_error"] = err.Error()
	}
	if authErr.Code == auth.ErrCodeSystem {
		_ = ctx.Error(err)
	}

	payload := gin.H{"error_code": string(authErr.Code)}
	for k, v := range authErr.Details {
		payload[k] = v
	}
	if len(authErr.Suggestions) > 0 {
		payload["suggestions"] = authErr.Suggestions
	}
	respond(ctx, authErr.HTTPStatus(), statusError, authErr.Message, payload)
}

// bindJSON decodes and validates the request body. It writes a 400 response
// and returns false when the body is unusable.
func bindJSON(ctx *gin.Context, body interface{}, message string) bool {
	if err := ctx.ShouldBindJSON(body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(ctx, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		respond(ctx, http.StatusBadRequest, statusError, "Invalid JSON payload", gin.H{"errors": []string{err.Error()}})
		return false
	}
	if errs := validateStruct(body); errs != nil {
		respond(ctx, http.StatusBadRequest, statusError, message, gin.H{"errors": errs})
		return false
	}
	return true
}
