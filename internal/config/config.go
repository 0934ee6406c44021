// Package config loads application configuration from environment variables.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	SMTP       SMTPConfig
	Poller     PollerConfig
	Encryption EncryptionConfig
}

// ServerConfig holds the ops HTTP server configuration.
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// SMTPConfig holds the default outbound mail configuration, used when an
// inbox has no usable from address of its own.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
	From     string
}

// PollerConfig holds tunables for the email ingestion pipeline.
type PollerConfig struct {
	// DuplicateWindow is how far back the duplicate detector looks when
	// matching a (sender, subject) fingerprint for an inbox.
	DuplicateWindow time.Duration
	// NotifyQueueSize bounds the outbound notification queue; enqueues
	// beyond this are dropped rather than blocking persistence.
	NotifyQueueSize int
	// TicketBaseURL is the public URL prefix for ticket links embedded in
	// confirmation mail.
	TicketBaseURL string
}

// EncryptionConfig holds the key for stored mailbox credentials.
type EncryptionConfig struct {
	// Key is the base64-encoded 32-byte key used to decrypt inbox passwords.
	Key string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "hatchdesk"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_DEFAULT_HOST", "localhost"),
			Port:     getIntEnv("SMTP_DEFAULT_PORT", 587),
			Username: getEnv("SMTP_DEFAULT_USER", ""),
			Password: getEnv("SMTP_DEFAULT_PASSWORD", ""),
			UseTLS:   getBoolEnv("SMTP_DEFAULT_USE_TLS", true),
			From:     getEnv("SMTP_DEFAULT_FROM", ""),
		},
		Poller: PollerConfig{
			DuplicateWindow: getMinutesEnv("DUPLICATE_EMAIL_THRESHOLD_MINUTES", 60*time.Minute),
			NotifyQueueSize: getIntEnv("NOTIFY_QUEUE_SIZE", 256),
			TicketBaseURL:   getEnv("TICKET_BASE_URL", "http://localhost:8080"),
		},
		Encryption: EncryptionConfig{
			Key: getEnv("ENCRYPTION_KEY", ""),
		},
	}
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

// Addr returns the host:port pair for the SMTP server.
func (s *SMTPConfig) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}
