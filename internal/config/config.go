package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort    string
	DatabaseDSN string
	CORSOrigins string
	LogLevel    string

	// Web-push (VAPID). Notifications are skipped when the keys are empty.
	VAPIDSubject    string
	VAPIDPublicKey  string
	VAPIDPrivateKey string
}

func Load() *Config {
	// Local development reads a .env file; in production the variables come
	// from the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:        getEnv("HTTP_PORT", "5000"),
		DatabaseDSN:     getEnv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=supplychain port=5432 sslmode=disable"),
		CORSOrigins:     getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		VAPIDSubject:    getEnv("VAPID_SUBJECT", "mailto:admin@localhost"),
		VAPIDPublicKey:  getEnv("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: getEnv("VAPID_PRIVATE_KEY", ""),
	}

	if cfg.DatabaseDSN == "host=localhost user=postgres password=postgres dbname=supplychain port=5432 sslmode=disable" {
		log.Println("[WARN] DATABASE_DSN not set, using local development default")
	}
	if cfg.CORSOrigins == "http://localhost:3000" {
		log.Println("[WARN] CORS_ALLOWED_ORIGINS not set, only localhost clients will be accepted")
	}
	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		log.Println("[WARN] VAPID keys not set, push notifications are disabled")
	}

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
