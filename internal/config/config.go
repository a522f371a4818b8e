// Package config reads the service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/Skotchmaster/userauth/internal/tokens"
)

type Config struct {
	ServiceName string
	Port        int
	LogLevel    string

	DBDriver    string
	DatabaseURL string

	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ActivationTTL time.Duration
	BcryptCost    int

	BackendURL            string
	FrontendActivationURL string
	AllowedOrigins        []string

	KafkaBrokers []string

	HousekeepingInterval time.Duration
}

// LoadDotEnv reads path into the environment when the file exists. Variables
// already set win.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func Load() Config {
	port := EnvIntDefault("PORT", 8080)
	return Config{
		ServiceName: EnvDefault("SERVICE_NAME", "userauth"),
		Port:        port,
		LogLevel:    EnvDefault("LOG_LEVEL", "info"),

		DBDriver:    EnvDefault("DB_DRIVER", "postgres"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		AccessSecret:  []byte(os.Getenv("JWT_ACCESS_SECRET")),
		RefreshSecret: []byte(os.Getenv("JWT_REFRESH_SECRET")),
		AccessTTL:     tokens.ParseLifetime(EnvDefault("ACCESS_EXPIRES_IN", "15m")),
		RefreshTTL:    tokens.ParseLifetime(EnvDefault("REFRESH_EXPIRES_IN", "7d")),
		ActivationTTL: tokens.ParseLifetime(EnvDefault("ACTIVATION_EXPIRES_IN", "24h")),
		BcryptCost:    EnvIntDefault("BCRYPT_COST", 10),

		BackendURL:            EnvDefault("BACKEND_URL", fmt.Sprintf("http://localhost:%d", port)),
		FrontendActivationURL: EnvDefault("FRONTEND_ACTIVATION_URL", "http://localhost:3000"),
		AllowedOrigins:        CSV(EnvDefault("ALLOWED_ORIGINS", "http://localhost:3000")),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),

		HousekeepingInterval: tokens.ParseLifetime(EnvDefault("HOUSEKEEPING_INTERVAL", "1h")),
	}
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
