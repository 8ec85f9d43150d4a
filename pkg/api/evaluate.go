package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/violation"
)

func (s *Server) evaluate(ctx *gin.Context) {
	var body evaluateRequest
	if !bindJSON(ctx, &body, "camera_id and detections are required") {
		return
	}

	res, err := s.violations.Process(ctx.Request.Context(), violation.Event{
		CameraID:        body.CameraID,
		PlateNumber:     body.PlateNumber,
		PlateConfidence: body.PlateConfidence,
		EvidencePath:    body.EvidencePath,
		PlateBox:        body.PlateBox,
		Detections:      body.Detections,
	})
	switch {
	case errors.Is(err, violation.ErrNoPlate):
		respond(ctx, http.StatusOK, statusWarning, "Violation detected but no license plate was read", gin.H{
			"detection":    res.Detection,
			"is_violation": true,
		})
		return
	case err != nil:
		_ = ctx.Error(err)
		respondError(ctx, http.StatusInternalServerError, "Detection processing failed")
		return
	}

	payload := gin.H{
		"detection":    res.Detection,
		"is_violation": res.Detection.IsViolation,
	}
	message := "No violation detected"
	if res.Memo != nil {
		message = "Violation memo generated"
		payload["violation_memo"] = res.Memo
	}
	respond(ctx, http.StatusOK, statusSuccess, message, payload)
}
