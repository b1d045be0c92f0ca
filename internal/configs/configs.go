/*
Package configs is responsible for loading and parsing the application's configuration settings.

Configuration is read from operating system environment variables. The client side covers
backend endpoints, credentials, the identity of the current user, timeouts and the
reconnect policy; the development backend reads its listen port, CORS origins and JWT secret.
*/
package configs

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig contains all configuration parameters required for the application to run.
type AppConfig struct {
	// General Settings
	Environment string

	// Backend Endpoints
	APIBaseURL string
	WSURL      string

	// Identity
	AccessToken      string
	UserID           string
	UserNickname     string
	UserProfileImage string

	// Session Timing
	LoadTimeout          time.Duration
	ConnectTimeout       time.Duration
	ReconnectMaxAttempts int
	ReconnectMaxInterval time.Duration

	// Location
	TrackingEnabled bool
	DeviceLat       *float64
	DeviceLng       *float64

	// Observability
	MetricsAddr string

	// Development Backend
	Port           int
	AllowedOrigins []string
	JWTSecret      string
}

// IsDevelopment reports whether the application runs in the development environment.
func (c *AppConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// HasDevicePosition reports whether a static device position was configured.
func (c *AppConfig) HasDevicePosition() bool {
	return c.DeviceLat != nil && c.DeviceLng != nil
}

// LoadConfig reads and parses the application configuration from environment variables.
// It provides default values for each configuration item and performs necessary type
// conversions and validation.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	// --- General Settings ---
	cfg.Environment = os.Getenv("ENVIRONMENT")
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	// --- Backend Endpoints ---
	cfg.APIBaseURL = strings.TrimRight(envOr("API_BASE_URL", "http://localhost:8080"), "/")
	cfg.WSURL = envOr("WS_URL", "ws://localhost:8080/ws-stomp")

	if !strings.HasPrefix(cfg.WSURL, "ws://") && !strings.HasPrefix(cfg.WSURL, "wss://") {
		return nil, fmt.Errorf("WS_URL must use the ws:// or wss:// scheme, got %q", cfg.WSURL)
	}

	// --- Identity ---
	cfg.AccessToken = os.Getenv("ACCESS_TOKEN")
	cfg.UserID = os.Getenv("USER_ID")
	cfg.UserNickname = os.Getenv("USER_NICKNAME")
	cfg.UserProfileImage = os.Getenv("USER_PROFILE_IMAGE")

	// --- Session Timing ---
	if cfg.LoadTimeout, err = envDuration("LOAD_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ConnectTimeout, err = envDuration("CONNECT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReconnectMaxInterval, err = envDuration("RECONNECT_MAX_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.ReconnectMaxAttempts, err = envInt("RECONNECT_MAX_ATTEMPTS", 5); err != nil {
		return nil, err
	}
	if cfg.ReconnectMaxAttempts < 0 {
		return nil, fmt.Errorf("RECONNECT_MAX_ATTEMPTS must not be negative, got %d", cfg.ReconnectMaxAttempts)
	}

	// --- Location ---
	if cfg.TrackingEnabled, err = envBool("TRACKING_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.DeviceLat, err = envFloat("DEVICE_LAT"); err != nil {
		return nil, err
	}
	if cfg.DeviceLng, err = envFloat("DEVICE_LNG"); err != nil {
		return nil, err
	}
	if (cfg.DeviceLat == nil) != (cfg.DeviceLng == nil) {
		return nil, fmt.Errorf("DEVICE_LAT and DEVICE_LNG must be set together")
	}

	// --- Observability ---
	cfg.MetricsAddr = os.Getenv("METRICS_ADDR")

	// --- Development Backend ---
	if cfg.Port, err = envInt("PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.Port < 1024 || cfg.Port > 65535 {
		return nil, fmt.Errorf("port number %d is outside the recommended range (%d-%d) to avoid privileged ports", cfg.Port, 1024, 65535)
	}

	originsStr := os.Getenv("ALLOWED_ORIGINS")
	cfg.AllowedOrigins = []string{}
	for _, origin := range strings.Split(originsStr, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, trimmed)
		}
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		if !cfg.IsDevelopment() {
			return nil, fmt.Errorf("JWT_SECRET environment variable is required in %s environment for security", cfg.Environment)
		}
		cfg.JWTSecret = "your_default_insecure_secret_key_change_me"
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}

func envFloat(key string) (*float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return &f, nil
}
