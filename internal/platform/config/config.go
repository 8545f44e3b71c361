package config

import (
	"os"
	"strings"
	"time"
)

// Server captures process-level configuration so main stays lean.
type Server struct {
	Addr          string
	JWTSigningKey string

	DatabaseURL string
	Redis       RedisConfig

	KafkaBrokers      []string
	AuditTopic        string
	AnalyzerURL       string
	AnalyzerToken     string
	IncomeLimitsURL   string
	IncomeLimitsToken string
	DirectoryURL      string
	DirectoryToken    string

	SweepInterval  time.Duration
	StaleThreshold time.Duration
}

// RedisConfig holds connection settings for the income-limit cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:              envOr("VERISTAY_ADDR", ":8080"),
		JWTSigningKey:     envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		AuditTopic:        envOr("AUDIT_TOPIC", "veristay.audit"),
		AnalyzerURL:       os.Getenv("ANALYZER_URL"),
		AnalyzerToken:     os.Getenv("ANALYZER_CALLBACK_TOKEN"),
		IncomeLimitsURL:   os.Getenv("INCOME_LIMITS_URL"),
		IncomeLimitsToken: os.Getenv("INCOME_LIMITS_TOKEN"),
		DirectoryURL:      os.Getenv("DIRECTORY_URL"),
		DirectoryToken:    os.Getenv("DIRECTORY_TOKEN"),
		SweepInterval:     durationOr("SWEEP_INTERVAL", time.Minute),
		StaleThreshold:    durationOr("DOCUMENT_STALE_AFTER", 5*time.Minute),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
