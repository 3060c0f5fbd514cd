package logger

import (
	"io"
	"os"
	"strconv"
)

// Config configures a Logger.
type Config struct {
	Level       string    // debug, info, warn, error
	Format      string    // json, text
	ServiceName string    // value of the "service" field on every line
	Output      io.Writer // when set, replaces stdout and file routing
	Environment string    // "local" logs to stdout only
	File        FileConfig
}

// FileConfig controls the rotated log file used outside local environments.
type FileConfig struct {
	Path       string
	Only       bool // skip stdout
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultConfig logs JSON at info level to stdout.
func DefaultConfig() *Config {
	return &Config{
		Level:       "info",
		Format:      "json",
		ServiceName: "lenscat",
		Output:      os.Stdout,
		Environment: "local",
	}
}

// LoadFromEnv reads LOG_*, SERVICE_NAME and APP_ENV.
func LoadFromEnv() *Config {
	return &Config{
		Level:       envString("LOG_LEVEL", "info"),
		Format:      envString("LOG_FORMAT", "json"),
		ServiceName: envString("SERVICE_NAME", "lenscat"),
		Environment: envString("APP_ENV", "local"),
		File: FileConfig{
			Path:       envString("LOG_FILE", "/var/log/lenscat/jobs.log"),
			Only:       envBool("LOG_FILE_ONLY", false),
			MaxSizeMB:  envInt("LOG_MAX_SIZE", 100),
			MaxBackups: envInt("LOG_MAX_BACKUPS", 7),
			MaxAgeDays: envInt("LOG_MAX_AGE", 30),
			Compress:   envBool("LOG_COMPRESS", true),
		},
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return def
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return def
}
