// Package config provides configuration management for Sentra.
// It loads YAML files over sensible defaults and applies environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all Sentra configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Detector  DetectorConfig  `yaml:"detector"`
	Features  FeaturesConfig  `yaml:"features"`
	Matching  MatchingConfig  `yaml:"matching"`
	Quality   QualityConfig   `yaml:"quality"`
	Storage   StorageConfig   `yaml:"storage"`
	OTP       OTPConfig       `yaml:"otp"`
	Violation ViolationConfig `yaml:"violation"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds HTTP settings.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	Mode           string   `yaml:"mode"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxBodyMB      int      `yaml:"max_body_mb"`
}

// DetectorConfig selects and tunes the face box detector.
type DetectorConfig struct {
	Backend     string  `yaml:"backend"` // "dlib" or "pigo"
	ModelPath   string  `yaml:"model_path"`
	CascadePath string  `yaml:"cascade_path"`
	MinFaceSize int     `yaml:"min_face_size"`
	Padding     float64 `yaml:"padding"`

	// MaxImagePixels rejects uploads whose declared width*height is larger.
	MaxImagePixels int `yaml:"max_image_pixels"`
}

// FeaturesConfig holds descriptor extraction settings.
type FeaturesConfig struct {
	FaceSize       int     `yaml:"face_size"`
	ContrastFactor float64 `yaml:"contrast_factor"`
}

// MatchingConfig holds the decision policy.
type MatchingConfig struct {
	DecisionThreshold  float64 `yaml:"decision_threshold"`
	MinAcceptableScore float64 `yaml:"min_acceptable_score"`
	Parallelism        int     `yaml:"parallelism"`
}

// QualityConfig holds face image quality limits.
type QualityConfig struct {
	MinBrightness float64 `yaml:"min_brightness"`
	MaxBrightness float64 `yaml:"max_brightness"`
	MinContrast   float64 `yaml:"min_contrast"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	Backend           string `yaml:"backend"` // "mongo" or "file"
	MongoURI          string `yaml:"mongo_uri"`
	Database          string `yaml:"database"`
	ConnectTimeout    int    `yaml:"connect_timeout"`
	DataDir           string `yaml:"data_dir"`
	EncryptionEnabled bool   `yaml:"encryption_enabled"`
	EncryptionKey     string `yaml:"encryption_key"`
}

// OTPConfig holds one-time-password settings.
type OTPConfig struct {
	TTLSeconds  int  `yaml:"ttl_seconds"`
	MaxAttempts int  `yaml:"max_attempts"`
	ExposeCode  bool `yaml:"expose_code"`
}

// ViolationConfig holds helmet violation rules.
type ViolationConfig struct {
	HelmetRequired      bool    `yaml:"helmet_required"`
	FineAmount          float64 `yaml:"fine_amount"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	HeadRatio           float64 `yaml:"head_ratio"`
	HelmetIoU           float64 `yaml:"helmet_iou"`
	// ProcessedDir receives annotated evidence images. Empty disables annotation.
	ProcessedDir string `yaml:"processed_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	File   string `yaml:"file"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Server: ServerConfig{
			Addr:           ":8000",
			Mode:           "debug",
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
			MaxBodyMB:      15,
		},
		Detector: DetectorConfig{
			Backend:        "dlib",
			ModelPath:      filepath.Join(homeDir, ".local/share/sentra/models"),
			CascadePath:    filepath.Join(homeDir, ".local/share/sentra/models/facefinder"),
			MinFaceSize:    30,
			Padding:        0.1,
			MaxImagePixels: 24_000_000,
		},
		Features: FeaturesConfig{
			FaceSize:       128,
			ContrastFactor: 1.3,
		},
		Matching: MatchingConfig{
			DecisionThreshold:  0.5,
			MinAcceptableScore: 0.3,
			Parallelism:        4,
		},
		Quality: QualityConfig{
			MinBrightness: 50,
			MaxBrightness: 200,
			MinContrast:   20,
		},
		Storage: StorageConfig{
			Backend:           "mongo",
			MongoURI:          "mongodb://localhost:27017/",
			Database:          "sentra",
			ConnectTimeout:    15,
			DataDir:           filepath.Join(homeDir, ".local/share/sentra"),
			EncryptionEnabled: true,
		},
		OTP: OTPConfig{
			TTLSeconds:  300,
			MaxAttempts: 3,
		},
		Violation: ViolationConfig{
			HelmetRequired:      true,
			FineAmount:          500.00,
			ConfidenceThreshold: 0.5,
			HeadRatio:           0.4,
			HelmetIoU:           0.4,
			ProcessedDir:        filepath.Join(homeDir, ".local/share/sentra/processed"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from the specified file.
// Environment overrides are applied on top of the file.
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, err
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return config, err
	}

	config.ApplyEnv()
	return config, nil
}

// LoadDefault tries the system and user config locations, then falls back to defaults.
func LoadDefault() (*Config, error) {
	candidates := []string{"/etc/sentra/sentra.yaml"}
	if homeDir, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(homeDir, ".config/sentra/sentra.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	config := DefaultConfig()
	config.ApplyEnv()
	return config, nil
}

// LoadDotEnv loads a .env file into the process environment if one exists.
// Variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
	}
	return godotenv.Load(paths...)
}

// ApplyEnv overrides fields from SENTRA_* variables and GIN_MODE.
func (c *Config) ApplyEnv() {
	setString(&c.Server.Addr, "SENTRA_HTTP_ADDR")
	setString(&c.Server.Mode, "GIN_MODE")
	if origins := os.Getenv("SENTRA_ALLOWED_ORIGINS"); origins != "" {
		c.Server.AllowedOrigins = strings.Split(origins, ",")
	}
	setString(&c.Detector.Backend, "SENTRA_DETECTOR")
	setString(&c.Detector.ModelPath, "SENTRA_MODEL_PATH")
	setString(&c.Storage.Backend, "SENTRA_STORAGE")
	setString(&c.Storage.MongoURI, "SENTRA_MONGO_URI")
	setString(&c.Storage.Database, "SENTRA_MONGO_DB")
	setString(&c.Storage.DataDir, "SENTRA_DATA_DIR")
	setString(&c.Storage.EncryptionKey, "SENTRA_ENCRYPTION_KEY")
	setString(&c.Violation.ProcessedDir, "SENTRA_PROCESSED_DIR")
	setString(&c.Logging.Level, "SENTRA_LOG_LEVEL")
	setFloat(&c.Matching.DecisionThreshold, "SENTRA_DECISION_THRESHOLD")
	setFloat(&c.Matching.MinAcceptableScore, "SENTRA_MIN_ACCEPTABLE_SCORE")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

// ExpandPath expands ~ and environment variables in a path.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(homeDir, path[2:])
		}
	}
	return os.ExpandEnv(path)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return fmt.Errorf("invalid server mode: %s (must be debug, release, or test)", c.Server.Mode)
	}

	if c.Detector.Backend != "dlib" && c.Detector.Backend != "pigo" {
		return fmt.Errorf("invalid detector backend: %s (must be dlib or pigo)", c.Detector.Backend)
	}
	if c.Detector.Padding < 0 || c.Detector.Padding > 0.5 {
		return fmt.Errorf("padding must be between 0 and 0.5, got %f", c.Detector.Padding)
	}
	if c.Detector.MaxImagePixels < 0 {
		return fmt.Errorf("max_image_pixels must not be negative, got %d", c.Detector.MaxImagePixels)
	}

	if c.Features.FaceSize < 16 {
		return fmt.Errorf("face_size must be at least 16, got %d", c.Features.FaceSize)
	}
	if c.Features.ContrastFactor <= 0 {
		return fmt.Errorf("contrast_factor must be positive, got %f", c.Features.ContrastFactor)
	}

	m := c.Matching
	if m.DecisionThreshold < 0 || m.DecisionThreshold > 1 {
		return fmt.Errorf("decision_threshold must be between 0 and 1, got %f", m.DecisionThreshold)
	}
	if m.MinAcceptableScore < 0 || m.MinAcceptableScore > m.DecisionThreshold {
		return fmt.Errorf("min_acceptable_score must be between 0 and decision_threshold, got %f", m.MinAcceptableScore)
	}
	if m.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive, got %d", m.Parallelism)
	}

	if c.Quality.MinBrightness >= c.Quality.MaxBrightness {
		return fmt.Errorf("min_brightness (%f) must be below max_brightness (%f)", c.Quality.MinBrightness, c.Quality.MaxBrightness)
	}

	switch c.Storage.Backend {
	case "mongo":
		if c.Storage.MongoURI == "" || c.Storage.Database == "" {
			return fmt.Errorf("mongo storage requires mongo_uri and database")
		}
	case "file":
		if c.Storage.DataDir == "" {
			return fmt.Errorf("file storage requires data_dir")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be mongo or file)", c.Storage.Backend)
	}

	if c.OTP.TTLSeconds <= 0 {
		return fmt.Errorf("otp ttl_seconds must be positive, got %d", c.OTP.TTLSeconds)
	}
	if c.OTP.MaxAttempts <= 0 {
		return fmt.Errorf("otp max_attempts must be positive, got %d", c.OTP.MaxAttempts)
	}

	if c.Violation.HeadRatio <= 0 || c.Violation.HeadRatio > 1 {
		return fmt.Errorf("head_ratio must be in (0, 1], got %f", c.Violation.HeadRatio)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	return nil
}

// ExpandPaths expands all paths in the configuration.
func (c *Config) ExpandPaths() {
	c.Detector.ModelPath = ExpandPath(c.Detector.ModelPath)
	c.Detector.CascadePath = ExpandPath(c.Detector.CascadePath)
	c.Storage.DataDir = ExpandPath(c.Storage.DataDir)
	if c.Violation.ProcessedDir != "" {
		c.Violation.ProcessedDir = ExpandPath(c.Violation.ProcessedDir)
	}
	if c.Logging.File != "" {
		c.Logging.File = ExpandPath(c.Logging.File)
	}
}
