// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidPort is returned when PORT is outside 1-65535.
	ErrInvalidPort = errors.New("config: PORT must be between 1 and 65535")
	// ErrInvalidMaxUploadBytes is returned when MAX_UPLOAD_BYTES is not positive.
	ErrInvalidMaxUploadBytes = errors.New("config: MAX_UPLOAD_BYTES must be positive")
)

// defaultFTPPort is used when FTP_PORT is missing or invalid.
const defaultFTPPort = 21

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=3001" json:"port"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`

	// Public URL settings. PUBLIC_BASE_URL wins over BASE_URL.
	PublicBaseURL string `env:"PUBLIC_BASE_URL" json:"public_base_url,omitempty"`
	BaseURL       string `env:"BASE_URL" json:"base_url,omitempty"`

	// Upload settings
	UploadBaseDir  string `env:"UPLOAD_BASE_DIR, default=./uploads/videos" json:"upload_base_dir"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES, default=104857600" json:"max_upload_bytes"`

	// Watermark settings. Numeric overrides are kept as strings so an
	// unparseable value falls back to the default instead of failing startup.
	WatermarkEnabledFlag    string `env:"WATERMARK_ENABLED, default=true" json:"watermark_enabled"`
	WatermarkFilePath       string `env:"WATERMARK_FILE_PATH" json:"watermark_file_path,omitempty"`
	WatermarkOrientation    string `env:"WATERMARK_ORIENTATION" json:"watermark_orientation,omitempty"`
	WatermarkMargin         string `env:"WATERMARK_MARGIN" json:"watermark_margin,omitempty"`
	WatermarkPortraitRatio  string `env:"WATERMARK_PORTRAIT_RATIO" json:"watermark_portrait_ratio,omitempty"`
	WatermarkLandscapeRatio string `env:"WATERMARK_LANDSCAPE_RATIO" json:"watermark_landscape_ratio,omitempty"`
	FFmpegPath              string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath             string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Optional FTP settings
	FTPHost          string        `env:"FTP_HOST" json:"ftp_host,omitempty"`
	FTPUser          string        `env:"FTP_USER" json:"ftp_user,omitempty"`
	FTPPassword      string        `env:"FTP_PASSWORD" json:"-"` // Masked in JSON
	FTPPort          string        `env:"FTP_PORT" json:"ftp_port,omitempty"`
	FTPRemotePath    string        `env:"FTP_REMOTE_PATH" json:"ftp_remote_path,omitempty"`
	FTPDisplayURL    string        `env:"FTP_DISPLAY_URL" json:"ftp_display_url,omitempty"`
	FTPSecure        string        `env:"FTP_SECURE" json:"ftp_secure,omitempty"`
	FTPKeepLocalCopy string        `env:"FTP_KEEP_LOCAL_COPY" json:"ftp_keep_local_copy,omitempty"`
	FTPDebug         string        `env:"FTP_DEBUG" json:"ftp_debug,omitempty"`
	FTPTimeout       time.Duration `env:"FTP_TIMEOUT, default=30s" json:"ftp_timeout"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	S3Prefix           string `env:"S3_PREFIX" json:"s3_prefix,omitempty"`
	S3DisplayURL       string `env:"S3_DISPLAY_URL" json:"s3_display_url,omitempty"`
	S3KeepLocalCopy    string `env:"S3_KEEP_LOCAL_COPY" json:"s3_keep_local_copy,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// FTPSettings is the FTP remote configuration. It is only active when every
// required field is present.
type FTPSettings struct {
	Host          string `validate:"required"`
	User          string `validate:"required"`
	Password      string `validate:"required"`
	RemotePath    string `validate:"required"`
	DisplayURL    string `validate:"required"`
	Port          int
	Secure        string
	KeepLocalCopy bool
	Debug         bool
	Timeout       time.Duration
}

// S3Settings is the S3 remote configuration.
type S3Settings struct {
	Bucket          string `validate:"required"`
	Region          string `validate:"required"`
	Endpoint        string
	Prefix          string
	DisplayURL      string
	AccessKeyID     string
	SecretAccessKey string
	KeepLocalCopy   bool
}

// WatermarkLayout holds the optional layout overrides. Nil fields use the
// compositor defaults.
type WatermarkLayout struct {
	Orientation    string
	Margin         *float64
	PortraitRatio  *float64
	LandscapeRatio *float64
}

var validate = validator.New()

// Load reads configuration from the environment using go-envconfig. A .env
// file in the working directory is loaded first when present; variables
// already set in the environment take precedence over it.
func Load() (*Config, error) {
	return LoadFrom(".env")
}

// LoadFrom is Load with an explicit dotenv path.
func LoadFrom(dotenvPath string) (*Config, error) {
	if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load %s: %w", dotenvPath, err)
	}

	cfg := &Config{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if c.MaxUploadBytes <= 0 {
		return ErrInvalidMaxUploadBytes
	}
	return nil
}

// FTP returns the FTP settings, or nil when any of host, user, password,
// remote path or display URL is missing.
func (c *Config) FTP() *FTPSettings {
	s := &FTPSettings{
		Host:          strings.TrimSpace(c.FTPHost),
		User:          c.FTPUser,
		Password:      c.FTPPassword,
		RemotePath:    c.FTPRemotePath,
		DisplayURL:    strings.TrimSpace(c.FTPDisplayURL),
		Port:          parsePort(c.FTPPort),
		Secure:        c.FTPSecure,
		KeepLocalCopy: isTrue(c.FTPKeepLocalCopy),
		Debug:         isTrue(c.FTPDebug),
		Timeout:       c.FTPTimeout,
	}
	if err := validate.Struct(s); err != nil {
		return nil
	}
	return s
}

// S3 returns the S3 settings, or nil when bucket or region is missing.
func (c *Config) S3() *S3Settings {
	s := &S3Settings{
		Bucket:          c.S3Bucket,
		Region:          c.S3Region,
		Endpoint:        c.S3Endpoint,
		Prefix:          c.S3Prefix,
		DisplayURL:      strings.TrimSpace(c.S3DisplayURL),
		AccessKeyID:     c.AWSAccessKeyID,
		SecretAccessKey: c.AWSSecretAccessKey,
		KeepLocalCopy:   isTrue(c.S3KeepLocalCopy),
	}
	if err := validate.Struct(s); err != nil {
		return nil
	}
	return s
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3() != nil
}

// FTPEnabled returns true if the FTP configuration is complete.
func (c *Config) FTPEnabled() bool {
	return c.FTP() != nil
}

// WatermarkEnabled reports whether compositing is switched on and an image
// path is configured. Whether the image exists is checked at upload time.
func (c *Config) WatermarkEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(c.WatermarkEnabledFlag)) {
	case "false", "0", "off":
		return false
	}
	return strings.TrimSpace(c.WatermarkFilePath) != ""
}

// WatermarkLayout returns the parsed layout overrides.
func (c *Config) WatermarkLayout() WatermarkLayout {
	return WatermarkLayout{
		Orientation:    strings.ToLower(strings.TrimSpace(c.WatermarkOrientation)),
		Margin:         parseFloat(c.WatermarkMargin),
		PortraitRatio:  parseFloat(c.WatermarkPortraitRatio),
		LandscapeRatio: parseFloat(c.WatermarkLandscapeRatio),
	}
}

// PublicBaseURLs returns the public base URL candidates in priority order.
func (c *Config) PublicBaseURLs() []string {
	return []string{c.PublicBaseURL, c.BaseURL}
}

// UploadDir returns the staging directory as an absolute path.
func (c *Config) UploadDir() (string, error) {
	dir, err := filepath.Abs(c.UploadBaseDir)
	if err != nil {
		return "", fmt.Errorf("config: resolve UPLOAD_BASE_DIR: %w", err)
	}
	return dir, nil
}

// UploadPathPrefix returns the URL path staged files are served under.
func (c *Config) UploadPathPrefix() (string, error) {
	dir, err := c.UploadDir()
	if err != nil {
		return "", err
	}
	return "/uploads/" + filepath.Base(dir) + "/", nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, PublicBaseURL: %s, BaseURL: %s, UploadBaseDir: %s, MaxUploadBytes: %d, Watermark: %t, FTPHost: %s, FTPUser: %s, FTPPassword: %s, S3Bucket: %s, S3Region: %s, AWSSecretAccessKey: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.PublicBaseURL,
		c.BaseURL,
		c.UploadBaseDir,
		c.MaxUploadBytes,
		c.WatermarkEnabled(),
		c.FTPHost,
		c.FTPUser,
		mask(c.FTPPassword),
		c.S3Bucket,
		c.S3Region,
		mask(c.AWSSecretAccessKey),
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// parsePort returns the FTP port, or 21 when value is not a positive integer.
func parsePort(value string) int {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || port <= 0 || port > 65535 {
		return defaultFTPPort
	}
	return port
}

func parseFloat(value string) *float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func isTrue(value string) bool {
	return strings.ToLower(strings.TrimSpace(value)) == "true"
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "****"
}
