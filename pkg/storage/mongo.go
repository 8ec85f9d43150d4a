package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/logging"
)

// Collection names.
const (
	UsersCollection        = "users"
	BankAccountsCollection = "bank_accounts"
	VehiclesCollection     = "vehicles"
	ViolationsCollection   = "violations"
	DetectionsCollection   = "detections"
)

// hasFaceFilter matches documents whose face_data exists and is not null.
var hasFaceFilter = bson.M{"face_data": bson.M{"$exists": true, "$ne": nil}}

// MongoStore implements Store on MongoDB.
type MongoStore struct {
	client     *mongo.Client
	db         *mongo.Database
	users      *mongo.Collection
	accounts   *mongo.Collection
	vehicles   *mongo.Collection
	violations *mongo.Collection
	detections *mongo.Collection
}

// NewMongoStore connects to uri, selects database and sets up indexes.
func NewMongoStore(ctx context.Context, uri, database string, timeout time.Duration) (*MongoStore, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: mongo uri missing", ErrStorageAccess)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	clientOpts := options.Client().ApplyURI(uri)
	clientOpts.SetMinPoolSize(5)
	clientOpts.SetMaxPoolSize(10)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageAccess, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: %v", ErrStorageAccess, err)
	}

	db := client.Database(database)
	s := &MongoStore{
		client:     client,
		db:         db,
		users:      db.Collection(UsersCollection),
		accounts:   db.Collection(BankAccountsCollection),
		vehicles:   db.Collection(VehiclesCollection),
		violations: db.Collection(ViolationsCollection),
		detections: db.Collection(DetectionsCollection),
	}
	s.setUpIndexes(ctx)

	logging.WithFields(logging.Fields{"database": database}).Info("connected to mongodb successfully")
	return s, nil
}

// setUpIndexes creates lookup indexes. They are not unique because
// existing collections may already hold duplicates.
func (s *MongoStore) setUpIndexes(ctx context.Context) {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.users: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index()},
			{Keys: bson.D{{Key: "mobile_number", Value: 1}}, Options: options.Index()},
			{Keys: bson.D{{Key: "dl_number", Value: 1}}, Options: options.Index()},
		},
		s.vehicles: {
			{Keys: bson.D{{Key: "plate_number", Value: 1}}, Options: options.Index()},
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index()},
		},
		s.violations: {
			{Keys: bson.D{{Key: "violation_id", Value: 1}}, Options: options.Index()},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}, Options: options.Index()},
		},
	}

	for coll, models := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			logging.WithError(err).Warnf("failed to create indexes on %s", coll.Name())
		}
	}
	logging.Debug("mongodb indexes set up successfully")
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*User, error) {
	var u User
	if err := s.users.FindOne(ctx, filter).Decode(&u); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &u, nil
}

// CreateUser inserts the user, account and vehicle documents in that order.
func (s *MongoStore) CreateUser(ctx context.Context, user *User, account *BankAccount, vehicle *Vehicle) error {
	if _, err := s.users.InsertOne(ctx, user); err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	if account != nil {
		if _, err := s.accounts.InsertOne(ctx, account); err != nil {
			return fmt.Errorf("failed to insert bank account: %w", err)
		}
	}
	if vehicle != nil {
		if _, err := s.vehicles.InsertOne(ctx, vehicle); err != nil {
			return fmt.Errorf("failed to insert vehicle: %w", err)
		}
	}
	return nil
}

// FindByID loads a user by user_id.
func (s *MongoStore) FindByID(ctx context.Context, userID string) (*User, error) {
	return s.findUser(ctx, bson.M{"user_id": userID})
}

// FindByMobile loads a user by mobile number.
func (s *MongoStore) FindByMobile(ctx context.Context, mobile string) (*User, error) {
	return s.findUser(ctx, bson.M{"mobile_number": mobile})
}

// FindByDL loads a user by driving licence number.
func (s *MongoStore) FindByDL(ctx context.Context, dl string) (*User, error) {
	return s.findUser(ctx, bson.M{"dl_number": dl})
}

// ListWithFaces returns all users with face data in natural order.
func (s *MongoStore) ListWithFaces(ctx context.Context) ([]User, error) {
	cursor, err := s.users.Find(ctx, hasFaceFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return decodeUsers(ctx, cursor)
}

// userCursor is the part of *mongo.Cursor decodeUsers reads.
type userCursor interface {
	Next(ctx context.Context) bool
	Decode(v interface{}) error
	Err() error
	Close(ctx context.Context) error
}

// decodeUsers decodes documents one at a time. A document that fails to
// decode is logged and skipped.
func decodeUsers(ctx context.Context, cursor userCursor) ([]User, error) {
	defer func() { _ = cursor.Close(ctx) }()

	var users []User
	for cursor.Next(ctx) {
		var u User
		if err := cursor.Decode(&u); err != nil {
			logging.WithError(err).Warn("Skipping undecodable user document")
			continue
		}
		users = append(users, u)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}

// CountWithFaces counts users with face data.
func (s *MongoStore) CountWithFaces(ctx context.Context) (int64, error) {
	n, err := s.users.CountDocuments(ctx, hasFaceFilter)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

func (s *MongoStore) updateUser(ctx context.Context, userID string, update bson.M) error {
	res, err := s.users.UpdateOne(ctx, bson.M{"user_id": userID}, update)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateFace sets face_data, or unsets it when face is nil.
func (s *MongoStore) UpdateFace(ctx context.Context, userID string, face *FaceRecord) error {
	return s.updateUser(ctx, userID, faceUpdate(face))
}

func faceUpdate(face *FaceRecord) bson.M {
	if face == nil {
		return bson.M{"$unset": bson.M{"face_data": ""}}
	}
	return bson.M{"$set": bson.M{"face_data": face}}
}

// TouchLastLogin sets last_login.
func (s *MongoStore) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	return s.updateUser(ctx, userID, bson.M{"$set": bson.M{"last_login": at}})
}

// FindVehicleByPlate loads a vehicle by plate number.
func (s *MongoStore) FindVehicleByPlate(ctx context.Context, plate string) (*Vehicle, error) {
	var v Vehicle
	if err := s.vehicles.FindOne(ctx, bson.M{"plate_number": plate}).Decode(&v); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrVehicleNotFound
		}
		return nil, fmt.Errorf("failed to find vehicle: %w", err)
	}
	return &v, nil
}

// SaveViolation inserts a violation memo.
func (s *MongoStore) SaveViolation(ctx context.Context, v *Violation) error {
	if _, err := s.violations.InsertOne(ctx, v); err != nil {
		return fmt.Errorf("failed to insert violation: %w", err)
	}
	return nil
}

// ListViolations returns memos newest first, optionally filtered by status.
func (s *MongoStore) ListViolations(ctx context.Context, status string, limit int) ([]Violation, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.violations.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list violations: %w", err)
	}
	var out []Violation
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode violations: %w", err)
	}
	return out, nil
}

// SaveDetection inserts a detection record.
func (s *MongoStore) SaveDetection(ctx context.Context, d *Detection) error {
	if _, err := s.detections.InsertOne(ctx, d); err != nil {
		return fmt.Errorf("failed to insert detection: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
