package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents application configuration. Values come from an optional
// TOML file first and are overridden by environment variables.
type Config struct {
	AppEnv             string
	LogLevel           string
	Port               string
	BFLAPIKey          string
	BFLBaseURL         string
	BFLModel           string
	BFLPollHosts       []string
	BFLTimeout         time.Duration
	PollInterval       time.Duration
	PollMaxAttempts    int
	SyncMode           bool
	DefaultLocale      string
	CORSAllowedOrigins []string
	RateLimitPerMin    int
	MaxUploadBytes     int64
	MaxInputMegapixels int
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
}

// fileConfig mirrors the keys accepted in the TOML file. Zero values mean
// "not set".
type fileConfig struct {
	AppEnv             string   `toml:"app_env"`
	LogLevel           string   `toml:"log_level"`
	Port               string   `toml:"port"`
	BFLAPIKey          string   `toml:"bfl_api_key"`
	BFLBaseURL         string   `toml:"bfl_base_url"`
	BFLModel           string   `toml:"bfl_model"`
	BFLPollHosts       []string `toml:"bfl_poll_hosts"`
	BFLTimeoutSeconds  int      `toml:"bfl_timeout_seconds"`
	PollIntervalMS     int      `toml:"poll_interval_ms"`
	PollMaxAttempts    int      `toml:"poll_max_attempts"`
	SyncMode           bool     `toml:"sync_mode"`
	DefaultLocale      string   `toml:"default_locale"`
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`
	RateLimitPerMin    int      `toml:"rate_limit_per_minute"`
	MaxUploadMB        int      `toml:"max_upload_mb"`
	MaxInputMegapixels int      `toml:"max_input_megapixels"`
}

const defaultConfigFile = "config.toml"

// LoadConfig loads configuration and applies defaults where needed.
func LoadConfig() (*Config, error) {
	path, explicit := os.LookupEnv("FLUXSTUDIO_CONFIG")
	if !explicit || strings.TrimSpace(path) == "" {
		path, explicit = defaultConfigFile, false
	}
	file, err := loadFileConfig(path, explicit)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppEnv:             getEnv("APP_ENV", orString(file.AppEnv, "development")),
		LogLevel:           getEnv("LOG_LEVEL", file.LogLevel),
		Port:               getEnv("PORT", orString(file.Port, "8080")),
		BFLAPIKey:          getEnv("BFL_API_KEY", file.BFLAPIKey),
		BFLBaseURL:         strings.TrimRight(getEnv("BFL_BASE_URL", orString(file.BFLBaseURL, "https://api.bfl.ai")), "/"),
		BFLModel:           getEnv("BFL_MODEL", orString(file.BFLModel, "flux-kontext-pro")),
		BFLPollHosts:       getEnvList("BFL_POLL_HOSTS", orList(file.BFLPollHosts, []string{"bfl.ai"})),
		BFLTimeout:         time.Second * time.Duration(getEnvInt("BFL_TIMEOUT_SECONDS", orInt(file.BFLTimeoutSeconds, 30))),
		PollInterval:       time.Millisecond * time.Duration(getEnvInt("POLL_INTERVAL_MS", orInt(file.PollIntervalMS, 3000))),
		PollMaxAttempts:    getEnvInt("POLL_MAX_ATTEMPTS", orInt(file.PollMaxAttempts, 30)),
		SyncMode:           getEnvBool("SYNC_MODE", file.SyncMode),
		DefaultLocale:      getEnv("DEFAULT_LOCALE", orString(file.DefaultLocale, "en")),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", file.CORSAllowedOrigins),
		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", orInt(file.RateLimitPerMin, 30)),
		MaxUploadBytes:     int64(getEnvInt("MAX_UPLOAD_MB", orInt(file.MaxUploadMB, 10))) << 20,
		MaxInputMegapixels: getEnvInt("MAX_INPUT_MEGAPIXELS", orInt(file.MaxInputMegapixels, 4)),
		HTTPReadTimeout:    time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:   time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:    time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.BFLAPIKey == "" {
		return nil, fmt.Errorf("BFL_API_KEY is required")
	}
	if cfg.PollMaxAttempts <= 0 {
		return nil, fmt.Errorf("POLL_MAX_ATTEMPTS must be positive")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("POLL_INTERVAL_MS must be positive")
	}

	return cfg, nil
}

func loadFileConfig(path string, required bool) (fileConfig, error) {
	var file fileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return file, nil
		}
		return file, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return file, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func orString(v, fallback string) string {
	if strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func orInt(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func orList(v, fallback []string) []string {
	if len(v) > 0 {
		return v
	}
	return fallback
}
