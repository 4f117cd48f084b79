// Package config reads service and CLI settings from the environment and
// optional .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPort         = "8080"
	DefaultAPIURL       = "http://localhost:8080"
	DefaultReadTimeout  = 15 * time.Second
	DefaultWriteTimeout = 15 * time.Second
)

// Config holds every setting the server and the CLI read
type Config struct {
	// DatabaseURL selects PostgreSQL storage; empty means in-memory
	DatabaseURL string

	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// APITokens are the bearer tokens the server accepts; empty disables auth
	APITokens []string

	// CacheTTL bounds how long test data lists are served from cache
	CacheTTL time.Duration

	// APIURL and TokenFile configure the CLI client
	APIURL    string
	TokenFile string
}

// Lookup returns the value of an environment variable
type Lookup func(key string) (string, bool)

// Load reads the given .env files (".env" when none are named) and then the
// process environment. Process variables take precedence over file values
// and missing files are skipped.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	fileEnv := map[string]string{}
	for _, file := range files {
		values, err := godotenv.Read(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Config{}, fmt.Errorf("cannot parse env file %q: %w", file, err)
		}
		for k, v := range values {
			if _, seen := fileEnv[k]; !seen {
				fileEnv[k] = v
			}
		}
	}

	return FromLookup(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	})
}

// FromLookup builds a Config from lookup, applying defaults
func FromLookup(lookup Lookup) (Config, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	cfg := Config{
		DatabaseURL: get("DATABASE_URL"),
		Port:        get("PORT"),
		APIURL:      strings.TrimRight(get("CSTT_API_URL"), "/"),
		TokenFile:   get("CSTT_TOKEN_FILE"),
	}
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return Config{}, fmt.Errorf("PORT must be numeric, got %q", cfg.Port)
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.TokenFile == "" {
		cfg.TokenFile = defaultTokenFile()
	}

	for _, token := range strings.Split(get("API_TOKENS"), ",") {
		if token = strings.TrimSpace(token); token != "" {
			cfg.APITokens = append(cfg.APITokens, token)
		}
	}

	var err error
	if cfg.CacheTTL, err = duration(get("CACHE_TTL"), 0, "CACHE_TTL"); err != nil {
		return Config{}, err
	}
	if cfg.ReadTimeout, err = duration(get("READ_TIMEOUT"), DefaultReadTimeout, "READ_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if cfg.WriteTimeout, err = duration(get("WRITE_TIMEOUT"), DefaultWriteTimeout, "WRITE_TIMEOUT"); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// duration accepts Go duration strings or a plain number of seconds
func duration(value string, fallback time.Duration, name string) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("%s cannot be negative", name)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 30s or 5m, got %q", name, value)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s cannot be negative", name)
	}
	return d, nil
}

func defaultTokenFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".cstt-token"
	}
	return filepath.Join(dir, "cstt", "token")
}
