// Package otp issues and verifies one-time passwords for mobile login.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/DhruvilPatel-godcoder/sentra/pkg/logging"
)

const otpChars = "1234567890"

// Defaults.
const (
	DefaultLength      = 6
	DefaultTTL         = 5 * time.Minute
	DefaultMaxAttempts = 3
)

// ErrNotFound is returned when no code was issued for the number.
var ErrNotFound = errors.New("no OTP found for this mobile number")

// ErrExpired is returned when the code is past its validity window.
var ErrExpired = errors.New("OTP has expired")

// ErrTooManyAttempts is returned once the attempt budget is spent.
var ErrTooManyAttempts = errors.New("too many failed attempts")

// ErrSendFailed is returned when the sender could not deliver the code.
var ErrSendFailed = errors.New("failed to send OTP")

// InvalidCodeError is returned for a wrong code while attempts remain.
type InvalidCodeError struct {
	Remaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid OTP, %d attempts remaining", e.Remaining)
}

// Sender delivers a message to a mobile number.
type Sender interface {
	Send(ctx context.Context, mobile, message string) error
}

// LogSender writes messages to the log instead of sending them.
type LogSender struct{}

// Send logs the message.
func (LogSender) Send(ctx context.Context, mobile, message string) error {
	logging.WithField("mobile", mobile).Infof("SMS: %s", message)
	return nil
}

// Entry is the state kept for one mobile number.
type Entry struct {
	Code      string    `json:"otp"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Verified  bool      `json:"verified"`
	Attempts  int       `json:"attempts"`
}

// Issued is returned by Issue.
type Issued struct {
	Code      string
	ExpiresIn time.Duration
}

// Store keeps pending codes in memory.
type Store struct {
	entries     *cache.Cache
	sender      Sender
	ttl         time.Duration
	maxAttempts int
	length      int
	now         func() time.Time
	mu          sync.Mutex
}

// NewStore creates a Store. Entries are evicted one minute after they
// expire so a late verification still reports ErrExpired.
func NewStore(sender Sender, ttl time.Duration, maxAttempts int) *Store {
	if sender == nil {
		sender = LogSender{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Store{
		entries:     cache.New(ttl+time.Minute, time.Minute),
		sender:      sender,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		length:      DefaultLength,
		now:         time.Now,
	}
}

// TTL returns the validity window of issued codes.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Generate returns a random numeric code of the given length.
func Generate(length int) (string, error) {
	return generate(rand.Reader, length)
}

// generate draws digits from r. Bytes of 250 and above are discarded so
// every digit is equally likely.
func generate(r io.Reader, length int) (string, error) {
	code := make([]byte, 0, length)
	buffer := make([]byte, length)
	for len(code) < length {
		if _, err := io.ReadFull(r, buffer); err != nil {
			return "", err
		}
		for _, b := range buffer {
			if b >= 250 {
				continue
			}
			code = append(code, otpChars[int(b)%len(otpChars)])
			if len(code) == length {
				break
			}
		}
	}
	return string(code), nil
}

// Issue creates a fresh code for mobile, replacing any previous one, and sends it.
func (s *Store) Issue(ctx context.Context, mobile string) (*Issued, error) {
	code, err := Generate(s.length)
	if err != nil {
		return nil, fmt.Errorf("failed to generate OTP: %w", err)
	}

	now := s.now()
	s.mu.Lock()
	s.entries.SetDefault(mobile, &Entry{
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	})
	s.mu.Unlock()

	message := fmt.Sprintf("Your Sentra OTP is: %s. Valid for %d minutes.", code, int(s.ttl.Minutes()))
	if err := s.sender.Send(ctx, mobile, message); err != nil {
		s.Clear(mobile)
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	return &Issued{Code: code, ExpiresIn: s.ttl}, nil
}

// Verify checks code against the entry for mobile.
func (s *Store) Verify(mobile, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, found := s.entries.Get(mobile)
	if !found {
		return ErrNotFound
	}
	entry := v.(*Entry)

	if s.now().After(entry.ExpiresAt) {
		s.entries.Delete(mobile)
		return ErrExpired
	}

	if entry.Attempts >= s.maxAttempts {
		s.entries.Delete(mobile)
		return ErrTooManyAttempts
	}

	if subtle.ConstantTimeCompare([]byte(code), []byte(entry.Code)) == 1 {
		entry.Verified = true
		return nil
	}

	entry.Attempts++
	return &InvalidCodeError{Remaining: s.maxAttempts - entry.Attempts}
}

// Clear drops any entry for mobile.
func (s *Store) Clear(mobile string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries.Delete(mobile)
}

// PendingEntry is a diagnostic view of one entry.
type PendingEntry struct {
	Mobile        string    `json:"mobile_number"`
	Code          string    `json:"otp"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	Expired       bool      `json:"is_expired"`
	Verified      bool      `json:"verified"`
	Attempts      int       `json:"attempts"`
	TimeRemaining string    `json:"time_remaining"`
}

// Pending lists every entry still held, sorted by mobile number.
func (s *Store) Pending() []PendingEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var out []PendingEntry
	for mobile, item := range s.entries.Items() {
		e := item.Object.(*Entry)
		p := PendingEntry{
			Mobile:        mobile,
			Code:          e.Code,
			CreatedAt:     e.CreatedAt,
			ExpiresAt:     e.ExpiresAt,
			Expired:       now.After(e.ExpiresAt),
			Verified:      e.Verified,
			Attempts:      e.Attempts,
			TimeRemaining: "Expired",
		}
		if !p.Expired {
			p.TimeRemaining = e.ExpiresAt.Sub(now).Round(time.Second).String()
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mobile < out[j].Mobile })
	return out
}
