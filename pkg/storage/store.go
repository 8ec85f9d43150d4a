// Package storage persists users, their face data and the records created
// alongside them. Two backends are provided: MongoDB for deployments and an
// encrypted file store for single-host setups.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrUserNotFound is returned when no user matches the lookup.
var ErrUserNotFound = errors.New("user not found")

// ErrUserExists is returned when a user with the same key is already stored.
var ErrUserExists = errors.New("user already exists")

// ErrVehicleNotFound is returned when no vehicle matches the lookup.
var ErrVehicleNotFound = errors.New("vehicle not found")

// ErrStorageAccess is returned when storage cannot be accessed.
var ErrStorageAccess = errors.New("failed to access storage")

// ErrEncryption is returned when encryption/decryption fails.
var ErrEncryption = errors.New("encryption error")

// Store is implemented by every storage backend.
type Store interface {
	// CreateUser stores the user together with the account and vehicle
	// opened for them. account and vehicle may be nil.
	CreateUser(ctx context.Context, user *User, account *BankAccount, vehicle *Vehicle) error
	FindByID(ctx context.Context, userID string) (*User, error)
	FindByMobile(ctx context.Context, mobile string) (*User, error)
	FindByDL(ctx context.Context, dl string) (*User, error)
	// ListWithFaces returns every user whose face data is present and not null.
	ListWithFaces(ctx context.Context) ([]User, error)
	CountWithFaces(ctx context.Context) (int64, error)
	// UpdateFace replaces the user's face data; a nil record removes it.
	UpdateFace(ctx context.Context, userID string, face *FaceRecord) error
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error

	FindVehicleByPlate(ctx context.Context, plate string) (*Vehicle, error)
	SaveViolation(ctx context.Context, v *Violation) error
	ListViolations(ctx context.Context, status string, limit int) ([]Violation, error)
	SaveDetection(ctx context.Context, d *Detection) error

	Close(ctx context.Context) error
}

var (
	_ Store = (*FileStore)(nil)
	_ Store = (*MongoStore)(nil)
)
