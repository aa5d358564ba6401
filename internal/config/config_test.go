package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("JWT_SECRET_KEY", "jwt-secret")
	t.Setenv("ADMIN_PASSWORD_HASH", "$2a$10$abcdefghijklmnopqrstuv")
	t.Setenv("HIKVISION_LOCATION", "salon-norte")
	t.Setenv("HIKVISION_BRAND_ID", "brand-1")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.App.Port)
	assert.Equal(t, 30, cfg.Attendance.CooldownSeconds)
	assert.Equal(t, 1000, cfg.Attendance.MinExternalID)
	assert.Equal(t, -5, cfg.Attendance.UTCOffsetHours)
	assert.Equal(t, 60*time.Second, cfg.Attendance.HistoricalGrace)
	assert.Equal(t, 30*time.Second, cfg.Attendance.ReconcileAtOffset)
	assert.Equal(t, 15*time.Second, cfg.Device.Warmup)
	assert.Equal(t, "time.nist.gov", cfg.Device.NTPServer)
	assert.Equal(t, "CST+5:00:00", cfg.Device.TimeZone)
	assert.False(t, cfg.Device.AlertStream)
	assert.Empty(t, cfg.Redis.URL)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ATTENDANCE_COOLDOWN_SECONDS", "45")
	t.Setenv("HIKVISION_ALERT_STREAM", "true")
	t.Setenv("REDIS_LOCK_TTL", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 45, cfg.Attendance.CooldownSeconds)
	assert.True(t, cfg.Device.AlertStream)
	assert.Equal(t, 5*time.Second, cfg.Redis.LockTTL)
}

func TestLoad_InvalidValues(t *testing.T) {
	setRequired(t)
	t.Setenv("ATTENDANCE_COOLDOWN_SECONDS", "thirty")

	_, err := Load()
	assert.ErrorContains(t, err, "ATTENDANCE_COOLDOWN_SECONDS")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database:   DatabaseConfig{Password: "x"},
			JWT:        JWTConfig{Secret: "x"},
			Admin:      AdminConfig{PasswordHash: "x"},
			Device:     DeviceConfig{Site: "s", Brand: "b"},
			Attendance: AttendanceConfig{CooldownSeconds: 30, UTCOffsetHours: -5},
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"db password", func(c *Config) { c.Database.Password = "" }, "DB_PASSWORD"},
		{"jwt secret", func(c *Config) { c.JWT.Secret = "" }, "JWT_SECRET_KEY"},
		{"admin hash", func(c *Config) { c.Admin.PasswordHash = "" }, "ADMIN_PASSWORD_HASH"},
		{"site", func(c *Config) { c.Device.Site = "" }, "HIKVISION_LOCATION"},
		{"brand", func(c *Config) { c.Device.Brand = "" }, "HIKVISION_BRAND_ID"},
		{"negative cooldown", func(c *Config) { c.Attendance.CooldownSeconds = -1 }, "ATTENDANCE_COOLDOWN_SECONDS"},
		{"offset range", func(c *Config) { c.Attendance.UTCOffsetHours = 20 }, "BUSINESS_UTC_OFFSET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	c := &Config{}
	for level, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	} {
		c.App.LogLevel = level
		assert.Equal(t, want, c.SlogLevel(), level)
	}
}
