// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the stackd server and workers.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Terraform TerraformConfig
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int
}

// DatabaseConfig configures the postgres connection for the request store.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the postgres connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		c.Host, c.User, c.Password, c.DBName, c.Port, c.SSLMode)
}

// RedisConfig configures the redis connection used by the queue, the job
// store and the update publisher.
type RedisConfig struct {
	URL          string
	JobResultTTL time.Duration
}

// QueueConfig selects and configures the queue backend.
type QueueConfig struct {
	// Backend is "redis" or "file".
	Backend string
	// Dir is the base directory for the file backend.
	Dir string
}

// WorkerConfig configures the worker pool.
type WorkerConfig struct {
	// Count is the number of concurrent workers.
	Count int
	// JobTimeout bounds how long a worker may hold a claimed job.
	JobTimeout time.Duration
	// PollInterval is the backoff between empty dequeues.
	PollInterval time.Duration
}

// TerraformConfig configures the external tool invocation.
type TerraformConfig struct {
	// Binary is the terraform executable name or path.
	Binary string
	// TemplatesDir is the root directory holding per-resource templates.
	TemplatesDir string
	// WorkspacesDir is the root directory for per-job workspaces.
	WorkspacesDir string
}

// Load reads configuration from the environment, applying defaults for
// anything unset.
func Load() Config {
	return Config{
		Server: ServerConfig{
			Port: getEnvInt("STACKD_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:     GetEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     GetEnv("DB_USER", "postgres"),
			Password: GetEnv("DB_PASSWORD", "postgres"),
			DBName:   GetEnv("DB_NAME", "stackd"),
			SSLMode:  GetEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:          GetEnv("REDIS_URL", "redis://localhost:6379/0"),
			JobResultTTL: getEnvDuration("JOB_RESULT_TTL", 24*time.Hour),
		},
		Queue: QueueConfig{
			Backend: GetEnv("QUEUE_BACKEND", "redis"),
			Dir:     GetEnv("QUEUE_DIR", "queue"),
		},
		Worker: WorkerConfig{
			Count:        getEnvInt("WORKER_COUNT", 2),
			JobTimeout:   getEnvDuration("JOB_TIMEOUT", 30*time.Minute),
			PollInterval: getEnvDuration("WORKER_POLL_INTERVAL", time.Second),
		},
		Terraform: TerraformConfig{
			Binary:        GetEnv("TERRAFORM_BINARY", "terraform"),
			TemplatesDir:  GetEnv("TERRAFORM_TEMPLATES_DIR", "terraform/templates"),
			WorkspacesDir: GetEnv("TERRAFORM_WORKSPACES_DIR", "terraform/workspaces"),
		},
	}
}

// GetEnv retrieves the value of an environment variable with a fallback value if not set
func GetEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
