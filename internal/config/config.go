package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database     DatabaseConfig
	JWT          JWTConfig
	App          AppConfig
	Admin        AdminConfig
	Attendance   AttendanceConfig
	Device       DeviceConfig
	Redis        RedisConfig
	SMTP         SMTPConfig
	Notification NotificationConfig
	Storage      StorageConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	AccessExpiration string
}

// AppConfig holds application configuration
type AppConfig struct {
	Port        int
	Env         string
	LogLevel    string
	FrontendURL string
}

// AdminConfig holds the single operator account used by the admin API.
type AdminConfig struct {
	Username     string
	PasswordHash string
}

// AttendanceConfig holds the ingestion and reconciliation rules.
type AttendanceConfig struct {
	CooldownSeconds   int
	MinExternalID     int
	UTCOffsetHours    int
	HistoricalGrace   time.Duration
	ReconcileAtOffset time.Duration
}

// DeviceConfig describes the Hikvision terminal this deployment serves.
type DeviceConfig struct {
	Host         string
	Port         int
	Username     string
	Password     string
	Site         string
	Brand        string
	WebhookToken string
	WebhookURL   string
	NTPServer    string
	TimeZone     string
	AlertStream  bool
	Warmup       time.Duration
	Timeout      time.Duration
}

type RedisConfig struct {
	URL      string
	PoolSize int
	LockTTL  time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	AlertTo  string
}

// NotificationConfig tunes the queued publisher.
type NotificationConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	WorkerCount   int
	QueueSize     int
}

type StorageConfig struct {
	BasePath string
	BaseURL  string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	config := &Config{}

	// Database configuration
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	config.Database = DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     dbPort,
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "biometric_attendance"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
	}

	// Application configuration
	appPort, err := strconv.Atoi(getEnv("APP_PORT", "5000"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}

	config.App = AppConfig{
		Port:        appPort,
		Env:         getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:3000"),
	}

	config.JWT = JWTConfig{
		Secret:           getEnv("JWT_SECRET_KEY", ""),
		AccessExpiration: getEnv("JWT_ACCESS_EXPIRATION_TIME", "12h"),
	}

	config.Admin = AdminConfig{
		Username:     getEnv("ADMIN_USERNAME", "admin"),
		PasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
	}

	// Attendance rules
	cooldown, err := getEnvInt("ATTENDANCE_COOLDOWN_SECONDS", 30)
	if err != nil {
		return nil, err
	}
	minExternalID, err := getEnvInt("ATTENDANCE_MIN_EXTERNAL_ID", 1000)
	if err != nil {
		return nil, err
	}
	utcOffset, err := getEnvInt("BUSINESS_UTC_OFFSET", -5)
	if err != nil {
		return nil, err
	}
	historicalGrace, err := getEnvDuration("ATTENDANCE_HISTORICAL_GRACE", "60s")
	if err != nil {
		return nil, err
	}
	reconcileAt, err := getEnvDuration("ATTENDANCE_RECONCILE_AT", "30s")
	if err != nil {
		return nil, err
	}

	config.Attendance = AttendanceConfig{
		CooldownSeconds:   cooldown,
		MinExternalID:     minExternalID,
		UTCOffsetHours:    utcOffset,
		HistoricalGrace:   historicalGrace,
		ReconcileAtOffset: reconcileAt,
	}

	// Hikvision device
	devicePort, err := getEnvInt("HIKVISION_PORT", 80)
	if err != nil {
		return nil, err
	}
	warmup, err := getEnvDuration("HIKVISION_STREAM_WARMUP", "15s")
	if err != nil {
		return nil, err
	}
	deviceTimeout, err := getEnvDuration("HIKVISION_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	config.Device = DeviceConfig{
		Host:         getEnv("HIKVISION_IP", "192.168.1.25"),
		Port:         devicePort,
		Username:     getEnv("HIKVISION_USERNAME", "admin"),
		Password:     getEnv("HIKVISION_PASSWORD", ""),
		Site:         getEnv("HIKVISION_LOCATION", ""),
		Brand:        getEnv("HIKVISION_BRAND_ID", ""),
		WebhookToken: getEnv("HIKVISION_WEBHOOK_TOKEN", ""),
		WebhookURL:   getEnv("HIKVISION_WEBHOOK_URL", ""),
		NTPServer:    getEnv("HIKVISION_NTP_SERVER", "time.nist.gov"),
		TimeZone:     getEnv("HIKVISION_TIMEZONE", "CST+5:00:00"),
		AlertStream:  getEnv("HIKVISION_ALERT_STREAM", "false") == "true",
		Warmup:       warmup,
		Timeout:      deviceTimeout,
	}

	// Redis configuration
	redisPoolSize, err := getEnvInt("REDIS_POOL_SIZE", 10)
	if err != nil {
		return nil, err
	}
	lockTTL, err := getEnvDuration("REDIS_LOCK_TTL", "10s")
	if err != nil {
		return nil, err
	}

	config.Redis = RedisConfig{
		URL:      getEnv("REDIS_URL", ""),
		PoolSize: redisPoolSize,
		LockTTL:  lockTTL,
	}

	smtpPort, err := getEnvInt("SMTP_PORT", 587)
	if err != nil {
		return nil, err
	}

	config.SMTP = SMTPConfig{
		Host:     getEnv("SMTP_HOST", ""),
		Port:     smtpPort,
		Username: getEnv("SMTP_USERNAME", ""),
		Password: getEnv("SMTP_PASSWORD", ""),
		From:     getEnv("SMTP_FROM", ""),
		FromName: getEnv("SMTP_FROM_NAME", "Control de Asistencia"),
		AlertTo:  getEnv("SMTP_ALERT_TO", ""),
	}

	// Notification queue
	batchSize, err := getEnvInt("NOTIFICATION_BATCH_SIZE", 100)
	if err != nil {
		return nil, err
	}
	flushInterval, err := getEnvDuration("NOTIFICATION_FLUSH_INTERVAL", "1s")
	if err != nil {
		return nil, err
	}
	workers, err := getEnvInt("NOTIFICATION_WORKERS", 2)
	if err != nil {
		return nil, err
	}
	queueSize, err := getEnvInt("NOTIFICATION_QUEUE_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	config.Notification = NotificationConfig{
		BatchSize:     batchSize,
		FlushInterval: flushInterval,
		WorkerCount:   workers,
		QueueSize:     queueSize,
	}

	config.Storage = StorageConfig{
		BasePath: getEnv("STORAGE_BASE_PATH", "./attendance-evidence"),
		BaseURL:  getEnv("STORAGE_BASE_URL", "http://localhost:5000/evidence"),
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	if c.Admin.PasswordHash == "" {
		return fmt.Errorf("ADMIN_PASSWORD_HASH is required")
	}
	if c.Device.Site == "" {
		return fmt.Errorf("HIKVISION_LOCATION is required")
	}
	if c.Device.Brand == "" {
		return fmt.Errorf("HIKVISION_BRAND_ID is required")
	}
	if c.Attendance.CooldownSeconds < 0 {
		return fmt.Errorf("ATTENDANCE_COOLDOWN_SECONDS must not be negative")
	}
	if c.Attendance.UTCOffsetHours < -12 || c.Attendance.UTCOffsetHours > 14 {
		return fmt.Errorf("BUSINESS_UTC_OFFSET out of range: %d", c.Attendance.UTCOffsetHours)
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.App.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
