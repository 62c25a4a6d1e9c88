package config

import (
	"os"
	"path/filepath"
	"testing"

	"stoyanka/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  path: ./data/test.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.API.HTTP.Port)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
	assert.Equal(t, "x-api-extra", cfg.API.Auth.HeaderExtra)
	assert.Equal(t, models.DefaultCheckInOtpTTL, cfg.Booking.CheckInOtpTTLMinutes)
	assert.Equal(t, models.DefaultCheckOutOtpTTL, cfg.Booking.CheckOutOtpTTLMinutes)
	assert.Equal(t, models.DefaultOtpAttempts, cfg.Booking.OtpAttempts)
	assert.Equal(t, models.DefaultPollInterval, cfg.Booking.PollIntervalSeconds)
	assert.Equal(t, models.DefaultEndingSoonWindow, cfg.Booking.EndingSoonMinutes)
	assert.Equal(t, models.DefaultSweepInterval, cfg.Booking.SweepIntervalMinutes)
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_DB_PATH", "./data/env.db")

	path := writeConfig(t, `
database:
  path: ${TEST_DB_PATH}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "./data/env.db", cfg.Database.Path)
}

func TestLoad_RequiresDatabasePath(t *testing.T) {
	path := writeConfig(t, `
app:
  name: stoyanka
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_ParsesFullConfig(t *testing.T) {
	path := writeConfig(t, `
app:
  name: stoyanka
  environment: test
database:
  path: ./data/test.db
booking:
  check_in_otp_ttl_minutes: 45
  otp_attempts: 7
api:
  enabled: true
  auth:
    enabled: true
    api_keys:
      - key: secret
        name: mobile
  rate_limit:
    rps: 10
    burst: 20
spaces:
  - id: lot-1
    name: "Центральная парковка"
    total_spots: 10
    hourly_rate_cents: 15000
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "stoyanka", cfg.App.Name)
	assert.Equal(t, 45, cfg.Booking.CheckInOtpTTLMinutes)
	assert.Equal(t, 7, cfg.Booking.OtpAttempts)
	assert.True(t, cfg.API.HTTP.Enabled) // включается вслед за api.enabled
	assert.Equal(t, float64(10), cfg.API.RateLimit.RPS)
	require.Len(t, cfg.Spaces, 1)
	assert.Equal(t, int64(10), cfg.Spaces[0].TotalSpots)
}

func TestValidateSpaces(t *testing.T) {
	ok := []models.ParkingSpace{
		{ID: "lot-1", TotalSpots: 10},
		{ID: "lot-2", TotalSpots: 5, DiscountPercent: 15},
	}
	assert.NoError(t, ValidateSpaces(ok))

	assert.Error(t, ValidateSpaces([]models.ParkingSpace{{ID: "", Name: "x", TotalSpots: 1}}))
	assert.Error(t, ValidateSpaces([]models.ParkingSpace{
		{ID: "lot-1", TotalSpots: 1},
		{ID: "lot-1", TotalSpots: 2},
	}))
	assert.Error(t, ValidateSpaces([]models.ParkingSpace{{ID: "lot-1", TotalSpots: 0}}))
	assert.Error(t, ValidateSpaces([]models.ParkingSpace{{ID: "lot-1", TotalSpots: 1, DiscountPercent: 101}}))
}
