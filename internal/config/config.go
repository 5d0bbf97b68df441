package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	UploadBackendLocal = "local"
	UploadBackendS3    = "s3"

	DefaultThumbnailSize = "0x100"
)

var thumbnailSizePattern = regexp.MustCompile(`^[0-9]+x[0-9]+$`)

// ThumborConfig rendering servisinin ayarları. URL boşsa servis kapalıdır.
type ThumborConfig struct {
	URL           string
	Key           string
	ThumbnailSize string
}

func (c ThumborConfig) Enabled() bool {
	return strings.TrimSpace(c.URL) != ""
}

type CamoConfig struct {
	URL string
	Key string
}

type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PresignTTL      time.Duration
}

type UploadConfig struct {
	Backend  string
	LocalDir string
	MaxSize  int64
}

type Config struct {
	Port         string
	AppEnv       string
	DatabaseURL  string
	ExternalHost string
	JWTSecret    string
	SessionTTL   time.Duration

	// RegistrationKey lets anonymous callers create the first user of a
	// realm. Empty means only logged-in users can register colleagues.
	RegistrationKey string

	Thumbor ThumborConfig
	Camo    CamoConfig
	Uploads UploadConfig
	S3      S3Config
}

func LoadConfig() *Config {
	cfg := &Config{}

	cfg.Port = getEnv("PORT", "8080")
	cfg.AppEnv = getEnv("APP_ENV", "production")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.ExternalHost = os.Getenv("EXTERNAL_HOST")
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	cfg.SessionTTL = getDuration("SESSION_TTL", 7*24*time.Hour)
	cfg.RegistrationKey = os.Getenv("REGISTRATION_KEY")

	// Thumbor config
	cfg.Thumbor.URL = os.Getenv("THUMBOR_URL")
	cfg.Thumbor.Key = os.Getenv("THUMBOR_KEY")
	cfg.Thumbor.ThumbnailSize = getEnv("THUMBNAIL_SIZE", DefaultThumbnailSize)

	cfg.Camo.URL = os.Getenv("CAMO_URL")
	cfg.Camo.Key = os.Getenv("CAMO_KEY")

	// Upload backend config
	cfg.Uploads.Backend = getEnv("UPLOAD_BACKEND", UploadBackendLocal)
	cfg.Uploads.LocalDir = getEnv("LOCAL_UPLOADS_DIR", "./uploads")
	cfg.Uploads.MaxSize = getInt64("MAX_UPLOAD_SIZE", 25*1024*1024)

	// S3 config
	cfg.S3.Endpoint = os.Getenv("S3_ENDPOINT")
	cfg.S3.Region = getEnv("S3_REGION", "us-east-1")
	cfg.S3.AccessKeyID = os.Getenv("S3_ACCESS_KEY_ID")
	cfg.S3.SecretAccessKey = os.Getenv("S3_SECRET_ACCESS_KEY")
	cfg.S3.Bucket = os.Getenv("S3_BUCKET")
	cfg.S3.PresignTTL = getDuration("S3_PRESIGN_TTL", 60*time.Second)

	return cfg
}

// Validate checks settings that would otherwise fail on the first request.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	switch c.Uploads.Backend {
	case UploadBackendLocal:
		if c.Uploads.LocalDir == "" {
			return fmt.Errorf("LOCAL_UPLOADS_DIR is not set")
		}
	case UploadBackendS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET is not set")
		}
	default:
		return fmt.Errorf("unknown UPLOAD_BACKEND %q", c.Uploads.Backend)
	}
	if (c.Camo.URL == "") != (c.Camo.Key == "") {
		return fmt.Errorf("CAMO_URL and CAMO_KEY must be set together")
	}
	if size := c.Thumbor.ThumbnailSize; size != "" && !thumbnailSizePattern.MatchString(size) {
		return fmt.Errorf("THUMBNAIL_SIZE must look like 0x100, got %q", size)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
