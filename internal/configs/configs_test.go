package configs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("WS_URL", "")
	t.Setenv("JWT_SECRET", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "http://localhost:8080", cfg.APIBaseURL)
	assert.Equal(t, 10*time.Second, cfg.LoadTimeout)
	assert.Equal(t, 5, cfg.ReconnectMaxAttempts)
	assert.False(t, cfg.HasDevicePosition())
	assert.NotEmpty(t, cfg.JWTSecret)
}

func TestLoadConfigDevicePosition(t *testing.T) {
	t.Setenv("DEVICE_LAT", "37.5665")
	t.Setenv("DEVICE_LNG", "126.978")
	t.Setenv("API_BASE_URL", "https://api.example.com/")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.HasDevicePosition())
	assert.InDelta(t, 37.5665, *cfg.DeviceLat, 1e-9)
	assert.Equal(t, "https://api.example.com", cfg.APIBaseURL)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"half position":   {"DEVICE_LAT", "1.0"},
		"bad ws scheme":   {"WS_URL", "http://localhost/ws"},
		"bad duration":    {"LOAD_TIMEOUT", "soon"},
		"negative budget": {"RECONNECT_MAX_ATTEMPTS", "-1"},
		"bad tracking":    {"TRACKING_ENABLED", "maybe"},
	}

	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestLoadConfigRequiresSecretOutsideDevelopment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
}
