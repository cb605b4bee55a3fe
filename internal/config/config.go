package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"
)

type Config struct {
	Port        int    `env:"PORT" envDefault:"4001"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv      string `env:"APP_ENV" envDefault:"production"`

	// WhatsApp Cloud API.
	VerifyToken   string `env:"WP_VERIFY_TOKEN" envDefault:"gasto_obra_verify"`
	PhoneNumberID string `env:"WP_PHONE_NUMBER_ID,required"`
	AccessToken   string `env:"WP_ACCESS_TOKEN,required"`

	// Gemini extraction assistant. Optional: without a key, photo and audio
	// intake is disabled and text expenses fall back to the "otros" category.
	GeminiAPIKey string `env:"GEMINI_API_KEY"`

	AppURL     string        `env:"APP_URL" envDefault:"https://gasto-obra.web.app"`
	PendingTTL time.Duration `env:"PENDING_TTL" envDefault:"10m"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}
