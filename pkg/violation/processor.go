package violation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/logging"
	"github.com/DhruvilPatel-godcoder/sentra/pkg/storage"
)

// Memo values.
const (
	TypeHelmet        = "helmet_violation"
	DetectionNoHelmet = "NO_HELMET"
	StatusPending     = "pending"
)

// ErrNoPlate is returned when a violation is found but no plate was read.
var ErrNoPlate = errors.New("no license plate detected")

// Repository is the storage the processor needs.
type Repository interface {
	FindVehicleByPlate(ctx context.Context, plate string) (*storage.Vehicle, error)
	FindByID(ctx context.Context, userID string) (*storage.User, error)
	SaveViolation(ctx context.Context, v *storage.Violation) error
	SaveDetection(ctx context.Context, d *storage.Detection) error
}

// Event is one evaluated camera frame.
type Event struct {
	CameraID        string
	PlateNumber     string
	PlateConfidence float64
	EvidencePath    string
	PlateBox        Box
	Detections      []Detection
}

// Result is the outcome of processing an event.
type Result struct {
	Detection *storage.Detection
	Summary   Summary
	Memo      *storage.Violation
}

// Processor evaluates events and records violations.
type Processor struct {
	repo      Repository
	rules     Rules
	annotator *Annotator
	now       func() time.Time
}

// NewProcessor creates a Processor.
func NewProcessor(repo Repository, rules Rules) *Processor {
	return &Processor{
		repo:  repo,
		rules: rules,
		now:   time.Now,
	}
}

// WithAnnotator makes the processor draw annotated evidence for violations.
func (p *Processor) WithAnnotator(a *Annotator) *Processor {
	p.annotator = a
	return p
}

// Rules returns the policy in use.
func (p *Processor) Rules() Rules {
	return p.rules
}

// Process evaluates ev and stores a detection record. When the frame is a
// violation and a plate was read, a fine memo is created for the vehicle's
// owner. A violation without a plate still returns the result, together
// with ErrNoPlate.
func (p *Processor) Process(ctx context.Context, ev Event) (*Result, error) {
	now := p.now()
	summary := p.rules.Summarize(ev.Detections)

	det := &storage.Detection{
		DetectionID:      fmt.Sprintf("DET_%s_%s", now.Format("20060102_150405"), strings.ReplaceAll(uuid.NewString(), "-", "")[:8]),
		CameraID:         ev.CameraID,
		Timestamp:        now,
		OriginalImage:    ev.EvidencePath,
		PersonDetected:   summary.PersonDetected,
		PersonConfidence: summary.PersonConfidence,
		HelmetDetected:   summary.HelmetDetected,
		HelmetConfidence: summary.HelmetConfidence,
		VehicleDetected:  summary.VehicleDetected,
		VehicleType:      summary.VehicleType,
		PlateDetected:    ev.PlateNumber != "",
		PlateNumber:      ev.PlateNumber,
		PlateConfidence:  ev.PlateConfidence,
		IsViolation:      p.rules.IsViolation(summary),
	}
	result := &Result{Detection: det, Summary: summary}

	var noPlate error
	if det.IsViolation {
		det.ViolationType = DetectionNoHelmet
		det.ProcessedImage = p.annotate(ev, summary, now)
		if ev.PlateNumber == "" {
			noPlate = ErrNoPlate
		} else {
			memo, err := p.memo(ctx, ev, det)
			if err != nil {
				return nil, err
			}
			if err := p.repo.SaveViolation(ctx, memo); err != nil {
				return nil, fmt.Errorf("failed to save violation: %w", err)
			}
			det.ViolationID = memo.ViolationID
			result.Memo = memo
		}
	}

	if err := p.repo.SaveDetection(ctx, det); err != nil {
		return nil, fmt.Errorf("failed to save detection: %w", err)
	}

	logging.WithFields(logging.Fields{
		"component":    "violation",
		"detection_id": det.DetectionID,
		"camera_id":    ev.CameraID,
		"violation":    det.IsViolation,
		"violation_id": det.ViolationID,
	}).Info("Frame processed")

	return result, noPlate
}

// annotate returns the annotated evidence path, or the original path when
// annotation is disabled or fails.
func (p *Processor) annotate(ev Event, s Summary, at time.Time) string {
	if p.annotator == nil || ev.EvidencePath == "" {
		return ev.EvidencePath
	}
	path, err := p.annotator.Annotate(ev, s, true, at)
	if err != nil {
		logging.Component("violation").WithError(err).WithField("evidence", ev.EvidencePath).Warn("Failed to annotate evidence")
		return ev.EvidencePath
	}
	return path
}

func (p *Processor) memo(ctx context.Context, ev Event, det *storage.Detection) (*storage.Violation, error) {
	now := det.Timestamp
	memo := &storage.Violation{
		ViolationID:   fmt.Sprintf("VIO%s%s", now.Format("20060102150405"), strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])),
		ViolationType: TypeHelmet,
		FineAmount:    p.rules.FineAmount,
		Location:      "Camera_" + ev.CameraID,
		EvidencePhoto: det.ProcessedImage,
		Status:        StatusPending,
		CreatedAt:     now,
		DetectionDetails: storage.DetectionDetails{
			DetectionID:      det.DetectionID,
			CameraID:         ev.CameraID,
			Timestamp:        now,
			PlateNumber:      ev.PlateNumber,
			PlateConfidence:  ev.PlateConfidence,
			PersonConfidence: det.PersonConfidence,
			HelmetDetected:   det.HelmetDetected,
		},
	}

	vehicle, err := p.repo.FindVehicleByPlate(ctx, ev.PlateNumber)
	switch {
	case errors.Is(err, storage.ErrVehicleNotFound):
		logging.Component("violation").WithField("plate", ev.PlateNumber).Warn("No vehicle registered for plate")
		return memo, nil
	case err != nil:
		return nil, fmt.Errorf("failed to look up vehicle: %w", err)
	}

	memo.VehicleID = vehicle.VehicleID
	memo.VehicleDetails = &storage.VehicleDetails{
		VehicleID:   vehicle.VehicleID,
		PlateNumber: vehicle.PlateNumber,
		Make:        vehicle.Make,
		Model:       vehicle.Model,
		VehicleType: vehicle.VehicleType,
	}

	owner, err := p.repo.FindByID(ctx, vehicle.Owner())
	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		return memo, nil
	case err != nil:
		return nil, fmt.Errorf("failed to look up owner: %w", err)
	}

	memo.UserDetails = &storage.UserDetails{
		UserID:       owner.UserID,
		Name:         owner.Name,
		MobileNumber: owner.MobileNumber,
		Email:        owner.Email,
		DLNumber:     owner.DLNumber,
	}
	return memo, nil
}
