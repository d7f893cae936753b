package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the binaries need from the environment.
// DBSource, RedisAddr and SMTPHost are each optional: when one is
// empty the server falls back to its in-process implementation of
// that backend (memory store, memory cache, log mailer).
type Config struct {
	Port string
	Env  string

	DBSource string

	RedisAddr     string
	RedisPassword string

	SMTPHost string
	SMTPPort string
	SMTPUser string
	SMTPPass string

	JWTSecret string
	TokenTTL  time.Duration

	CodeTTL time.Duration
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, relying on system env vars")
	}

	return &Config{
		Port:          getEnv("SERVER_PORT", "8080"),
		Env:           getEnv("ENVIRONMENT", "development"),
		DBSource:      getEnv("DB_SOURCE", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SMTPHost:      getEnv("SMTP_HOST", ""),
		SMTPPort:      getEnv("SMTP_PORT", "465"),
		SMTPUser:      getEnv("SMTP_USER", ""),
		SMTPPass:      getEnv("SMTP_PASS", ""),
		JWTSecret:     getEnv("JWT_SECRET", "dev-only-secret"),
		TokenTTL:      getDuration("TOKEN_TTL", 24*time.Hour),
		CodeTTL:       getDuration("VERIFICATION_CODE_TTL", 10*time.Minute),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("invalid duration for %s: %q, using default %s", key, v, fallback)
		return fallback
	}
	return d
}
