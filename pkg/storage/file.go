package storage

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/logging"
)

const (
	// NonceSize is the size of the nonce used for encryption
	NonceSize = 24
	// KeySize is the size of the encryption key
	KeySize = 32
)

// Record directories under the data dir.
const (
	usersDir      = "users"
	accountsDir   = "accounts"
	vehiclesDir   = "vehicles"
	violationsDir = "violations"
	detectionsDir = "detections"
)

// FileStore implements Store with one JSON file per record, optionally
// sealed with NaCl secretbox. It suits single-host deployments with a
// modest number of users.
type FileStore struct {
	dataDir           string
	encryptionEnabled bool
	encryptionKey     [KeySize]byte
	mu                sync.RWMutex
}

// NewFileStore creates a FileStore rooted at dataDir. When encryption is
// enabled the key is derived from passphrase, or from machine identity if
// passphrase is empty.
func NewFileStore(dataDir string, encryptionEnabled bool, passphrase string) (*FileStore, error) {
	fs := &FileStore{
		dataDir:           dataDir,
		encryptionEnabled: encryptionEnabled,
	}

	if encryptionEnabled {
		if passphrase != "" {
			fs.encryptionKey = sha256.Sum256([]byte(passphrase))
		} else {
			key, err := deriveKey()
			if err != nil {
				return nil, fmt.Errorf("failed to derive encryption key: %w", err)
			}
			fs.encryptionKey = key
		}
	}

	for _, dir := range []string{usersDir, accountsDir, vehiclesDir, violationsDir, detectionsDir} {
		if err := os.MkdirAll(filepath.Join(dataDir, dir), 0700); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	logging.Infof("Using file storage at %s (encrypted: %v)", dataDir, encryptionEnabled)
	return fs, nil
}

// deriveKey derives an encryption key from machine-specific information.
// This ties the encrypted data to this specific machine.
func deriveKey() ([KeySize]byte, error) {
	var identity strings.Builder

	if machineID, err := os.ReadFile("/etc/machine-id"); err == nil {
		identity.Write(machineID)
	}
	if hostname, err := os.Hostname(); err == nil {
		identity.WriteString(hostname)
	}
	identity.WriteString(fmt.Sprintf("%d", os.Getuid()))
	identity.WriteString("sentra-v1-salt")

	return sha256.Sum256([]byte(identity.String())), nil
}

func (fs *FileStore) recordPath(dir, id string) string {
	ext := ".json"
	if fs.encryptionEnabled {
		ext = ".enc"
	}
	return filepath.Join(fs.dataDir, dir, id+ext)
}

func (fs *FileStore) writeRecord(dir, id string, v interface{}) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return fmt.Errorf("invalid record id %q", id)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if fs.encryptionEnabled {
		data, err = fs.encrypt(data)
		if err != nil {
			return fmt.Errorf("failed to encrypt record: %w", err)
		}
	}

	if err := os.WriteFile(fs.recordPath(dir, id), data, 0600); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

func (fs *FileStore) readRecord(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	if fs.encryptionEnabled {
		data, err = fs.decrypt(data)
		if err != nil {
			return fmt.Errorf("failed to decrypt %s: %w", filepath.Base(path), err)
		}
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", filepath.Base(path), err)
	}
	return nil
}

// listRecords returns the record files in dir, sorted by name.
func (fs *FileStore) listRecords(dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(fs.dataDir, dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageAccess, err)
	}

	ext := ".json"
	if fs.encryptionEnabled {
		ext = ".enc"
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		paths = append(paths, filepath.Join(fs.dataDir, dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func (fs *FileStore) loadUsers() ([]User, error) {
	paths, err := fs.listRecords(usersDir)
	if err != nil {
		return nil, err
	}
	users := make([]User, 0, len(paths))
	for _, path := range paths {
		var u User
		if err := fs.readRecord(path, &u); err != nil {
			logging.WithError(err).Warnf("Skipping unreadable user record %s", filepath.Base(path))
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

func (fs *FileStore) findUser(match func(*User) bool) (*User, error) {
	users, err := fs.loadUsers()
	if err != nil {
		return nil, err
	}
	for i := range users {
		if match(&users[i]) {
			return &users[i], nil
		}
	}
	return nil, ErrUserNotFound
}

// CreateUser stores the user, account and vehicle records.
func (fs *FileStore) CreateUser(ctx context.Context, user *User, account *BankAccount, vehicle *Vehicle) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, err := os.Stat(fs.recordPath(usersDir, user.UserID)); err == nil {
		return ErrUserExists
	}

	if err := fs.writeRecord(usersDir, user.UserID, user); err != nil {
		return err
	}
	if account != nil {
		if err := fs.writeRecord(accountsDir, account.AccountNumber, account); err != nil {
			return err
		}
	}
	if vehicle != nil {
		if err := fs.writeRecord(vehiclesDir, vehicle.VehicleID, vehicle); err != nil {
			return err
		}
	}

	logging.Debugf("Saved user data for: %s", user.UserID)
	return nil
}

// FindByID loads a user by ID.
func (fs *FileStore) FindByID(ctx context.Context, userID string) (*User, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	var u User
	if err := fs.readRecord(fs.recordPath(usersDir, userID), &u); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// FindByMobile returns the first user with the mobile number.
func (fs *FileStore) FindByMobile(ctx context.Context, mobile string) (*User, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.findUser(func(u *User) bool { return u.MobileNumber == mobile })
}

// FindByDL returns the first user with the driving licence number.
func (fs *FileStore) FindByDL(ctx context.Context, dl string) (*User, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.findUser(func(u *User) bool { return u.DLNumber == dl })
}

// ListWithFaces returns every user carrying face data.
func (fs *FileStore) ListWithFaces(ctx context.Context) ([]User, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	users, err := fs.loadUsers()
	if err != nil {
		return nil, err
	}
	withFaces := users[:0]
	for _, u := range users {
		if u.Face != nil {
			withFaces = append(withFaces, u)
		}
	}
	return withFaces, nil
}

// CountWithFaces counts users carrying face data.
func (fs *FileStore) CountWithFaces(ctx context.Context) (int64, error) {
	users, err := fs.ListWithFaces(ctx)
	if err != nil {
		return 0, err
	}
	return int64(len(users)), nil
}

func (fs *FileStore) updateUser(userID string, update func(*User)) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var u User
	if err := fs.readRecord(fs.recordPath(usersDir, userID), &u); err != nil {
		if os.IsNotExist(err) {
			return ErrUserNotFound
		}
		return err
	}
	update(&u)
	return fs.writeRecord(usersDir, userID, &u)
}

// UpdateFace replaces or removes the user's face data.
func (fs *FileStore) UpdateFace(ctx context.Context, userID string, face *FaceRecord) error {
	return fs.updateUser(userID, func(u *User) { u.Face = face })
}

// TouchLastLogin sets the user's last login time.
func (fs *FileStore) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	return fs.updateUser(userID, func(u *User) { u.LastLogin = at })
}

// FindVehicleByPlate returns the vehicle registered with plate.
func (fs *FileStore) FindVehicleByPlate(ctx context.Context, plate string) (*Vehicle, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	paths, err := fs.listRecords(vehiclesDir)
	if err != nil {
		return nil, err
	}
	for _, path := range paths {
		var v Vehicle
		if err := fs.readRecord(path, &v); err != nil {
			return nil, err
		}
		if v.PlateNumber == plate {
			return &v, nil
		}
	}
	return nil, ErrVehicleNotFound
}

// SaveViolation stores a violation memo.
func (fs *FileStore) SaveViolation(ctx context.Context, v *Violation) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.writeRecord(violationsDir, v.ViolationID, v)
}

// ListViolations returns memos newest first, optionally filtered by status.
// limit <= 0 returns all.
func (fs *FileStore) ListViolations(ctx context.Context, status string, limit int) ([]Violation, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	paths, err := fs.listRecords(violationsDir)
	if err != nil {
		return nil, err
	}
	var out []Violation
	for _, path := range paths {
		var v Violation
		if err := fs.readRecord(path, &v); err != nil {
			return nil, err
		}
		if status == "" || v.Status == status {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SaveDetection stores a detection record.
func (fs *FileStore) SaveDetection(ctx context.Context, d *Detection) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.writeRecord(detectionsDir, d.DetectionID, d)
}

// Close is a no-op for file storage.
func (fs *FileStore) Close(ctx context.Context) error {
	return nil
}

// encrypt encrypts data using NaCl secretbox.
func (fs *FileStore) encrypt(plaintext []byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &fs.encryptionKey), nil
}

// decrypt decrypts data using NaCl secretbox.
func (fs *FileStore) decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < NonceSize {
		return nil, ErrEncryption
	}

	var nonce [NonceSize]byte
	copy(nonce[:], ciphertext[:NonceSize])

	plaintext, ok := secretbox.Open(nil, ciphertext[NonceSize:], &nonce, &fs.encryptionKey)
	if !ok {
		return nil, ErrEncryption
	}
	return plaintext, nil
}
