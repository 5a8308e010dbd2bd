// Package config reads the server's settings from the environment.
package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"lg/nutrition-ledger-go-api/internal/backup"
	"lg/nutrition-ledger-go-api/internal/goals"
)

// Config is loaded once at startup and not mutated afterwards.
type Config struct {
	DatabaseURL string
	ServerAddr  string

	// TargetMode is the default calorie formula when a request names none.
	TargetMode goals.Mode

	SyncBackend string
	SyncTimeout time.Duration
	Drive       backup.DriveConfig
	S3          backup.S3Config
}

// LoadDotEnv loads .env if present. A missing file is not an error; any other
// read or parse failure is.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load builds a Config from the environment. Missing required variables are
// reported together.
func Load() (*Config, error) {
	cfg := &Config{}
	var missing []string

	cfg.DatabaseURL = os.Getenv("DB_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DB_URL")
	}

	cfg.ServerAddr = getEnvString("SERVER_ADDR", "localhost:3000")
	cfg.SyncTimeout = getEnvDuration("SYNC_TIMEOUT", 10*time.Second)

	mode, err := goals.ParseMode(os.Getenv("TARGET_MODE"))
	if err != nil {
		return nil, fmt.Errorf("TARGET_MODE: %w", err)
	}
	cfg.TargetMode = mode

	cfg.SyncBackend = strings.ToLower(getEnvString("SYNC_BACKEND", backup.BackendNone))
	switch cfg.SyncBackend {
	case backup.BackendNone, backup.BackendMemory:
	case backup.BackendDrive:
		cfg.Drive.CredentialsFile = os.Getenv("DRIVE_CREDENTIALS_FILE")
		if cfg.Drive.CredentialsFile == "" {
			missing = append(missing, "DRIVE_CREDENTIALS_FILE")
		}
		cfg.Drive.FolderID = os.Getenv("DRIVE_FOLDER_ID")
	case backup.BackendS3:
		cfg.S3.Bucket = os.Getenv("S3_BUCKET")
		if cfg.S3.Bucket == "" {
			missing = append(missing, "S3_BUCKET")
		}
		cfg.S3.Region = os.Getenv("S3_REGION")
		cfg.S3.Prefix = os.Getenv("S3_PREFIX")
	default:
		return nil, fmt.Errorf("SYNC_BACKEND must be one of: none, memory, drive, s3 (got %q)", cfg.SyncBackend)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}
	return cfg, nil
}

// OpenBackup builds the configured sync backend; nil when sync is disabled.
func (c *Config) OpenBackup(ctx context.Context) (backup.Service, error) {
	return backup.Open(ctx, c.SyncBackend, c.Drive, c.S3)
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
