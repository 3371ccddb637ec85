package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port               string
	DatabaseURL        string
	JWTSecret          string
	SchemaPath         string
	CORSAllowedOrigins []string
	LogLevel           string
	UpstreamBaseURL    string
	FarmInputsID       string
	ProgressID         string
	UpstreamTimeout    time.Duration
	SessionTTL         time.Duration
	LoginAttempts      int
	LoginWindow        time.Duration
}

var defaults = map[string]any{
	"port":                 "8080",
	"db_schema_path":       "db/schema.sql",
	"cors_allowed_origins": "http://localhost:5173,http://127.0.0.1:5173",
	"log_level":            "info",
	"upstream_timeout":     "10s",
	"session_ttl":          "12h",
	"login_attempts":       10,
	"login_window":         "15m",
}

// Load reads settings from the environment, falling back to the given env
// files and then to built-in defaults. Missing env files are skipped.
func Load(envFiles ...string) (Config, error) {
	v, err := newViper(envFiles)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:               v.GetString("port"),
		DatabaseURL:        strings.TrimSpace(v.GetString("database_url")),
		JWTSecret:          strings.TrimSpace(v.GetString("jwt_secret")),
		SchemaPath:         v.GetString("db_schema_path"),
		CORSAllowedOrigins: splitCSV(v.GetString("cors_allowed_origins")),
		LogLevel:           strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),
		UpstreamBaseURL:    strings.TrimSpace(v.GetString("upstream_base_url")),
		FarmInputsID:       strings.TrimSpace(v.GetString("upstream_farm_inputs_id")),
		ProgressID:         strings.TrimSpace(v.GetString("upstream_progress_id")),
		UpstreamTimeout:    v.GetDuration("upstream_timeout"),
		SessionTTL:         v.GetDuration("session_ttl"),
		LoginAttempts:      v.GetInt("login_attempts"),
		LoginWindow:        v.GetDuration("login_window"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing required environment variable: DATABASE_URL")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("missing required environment variable: JWT_SECRET")
	}
	if cfg.UpstreamBaseURL == "" {
		return Config{}, fmt.Errorf("missing required environment variable: UPSTREAM_BASE_URL")
	}
	if cfg.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("SESSION_TTL must be positive, got %s", v.GetString("session_ttl"))
	}

	return cfg, nil
}

func newViper(envFiles []string) (*viper.Viper, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	for _, p := range envFiles {
		if strings.TrimSpace(p) == "" {
			continue
		}
		v.SetConfigFile(p)
		v.SetConfigType("env")
		if err := v.MergeInConfig(); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
	}
	return v, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		item := strings.TrimSpace(p)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
