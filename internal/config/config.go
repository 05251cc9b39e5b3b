// Package config reads settings for both the shell and the backend server
// from the environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DefaultUserID = "user_123"
)

type Config struct {
	AppEnv         string
	APIURL         string
	UserID         string
	HTTPTimeout    time.Duration
	MaxUploadBytes int64

	Port        string
	DatabaseURL string
	SQLitePath  string
	CORSOrigins []string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	MemegenBaseURL string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadDotenv loads the given .env files into the process environment.
// Variables that are already set win. Missing files are ignored.
func LoadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load builds a Config from lookup, falling back to os.LookupEnv when lookup
// is nil.
func Load(lookup LookupFunc) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	env := reader{lookup: lookup}

	cfg := &Config{
		AppEnv:         env.get("MEMESTUDIO_ENV", EnvDevelopment),
		APIURL:         env.get("MEMESTUDIO_API_URL", "http://localhost:8001"),
		UserID:         env.get("MEMESTUDIO_USER_ID", DefaultUserID),
		HTTPTimeout:    time.Second * time.Duration(env.getInt("MEMESTUDIO_HTTP_TIMEOUT", 120)),
		MaxUploadBytes: int64(env.getInt("MEMESTUDIO_MAX_UPLOAD_MB", 10)) << 20,

		Port:        env.get("PORT", "8001"),
		DatabaseURL: env.get("DATABASE_URL", ""),
		SQLitePath:  env.get("SQLITE_PATH", ""),
		CORSOrigins: splitList(env.get("CORS_ORIGINS", "*")),

		OpenAIAPIKey:  env.get("OPENAI_API_KEY", ""),
		OpenAIBaseURL: env.get("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:   env.get("OPENAI_IMAGE_MODEL", "gpt-image-1"),

		MemegenBaseURL: env.get("MEMEGEN_BASE_URL", "https://api.memegen.link"),

		HTTPReadTimeout:  time.Second * time.Duration(env.getInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(env.getInt("HTTP_WRITE_TIMEOUT_SECONDS", 180)),
		HTTPIdleTimeout:  time.Second * time.Duration(env.getInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(env.errs) > 0 {
		return nil, errors.Join(env.errs...)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return errors.New("MEMESTUDIO_USER_ID must not be blank")
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("MEMESTUDIO_HTTP_TIMEOUT must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MEMESTUDIO_MAX_UPLOAD_MB must be positive")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("PORT must be numeric: %q", c.Port)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// UsePostgres reports whether the server should store memes in PostgreSQL
// rather than SQLite.
func (c *Config) UsePostgres() bool {
	return c.DatabaseURL != ""
}

type reader struct {
	lookup LookupFunc
	errs   []error
}

func (r *reader) get(key, fallback string) string {
	if v, ok := r.lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func (r *reader) getInt(key string, fallback int) int {
	v, ok := r.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s: not an integer: %q", key, v))
		return fallback
	}
	return i
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
