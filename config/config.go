package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Database holds the Postgres connection pieces. The keys match the
// ones the hosted database dashboard hands out.
type Database struct {
	User     string `env:"user"`
	Password string `env:"password"`
	Host     string `env:"host" envDefault:"localhost"`
	Port     string `env:"port" envDefault:"5432"`
	Name     string `env:"dbname"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"require"`
}

// DSN returns the lib/pq connection string.
func (d Database) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// Protocol holds the collaboration timings shared by the server and the client.
type Protocol struct {
	OpenTimeout       time.Duration `env:"OPEN_TIMEOUT" envDefault:"10s"`
	SyncTimeout       time.Duration `env:"SYNC_TIMEOUT" envDefault:"3s"`
	StaleAfter        time.Duration `env:"STALE_AFTER" envDefault:"60s"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"20s"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"5s"`
}

type Config struct {
	Addr      string `env:"ADDR" envDefault:":8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	JWTSecret string `env:"SUPABASE_JWT_SECRET"`
	RedisAddr string `env:"REDIS_ADDR"`

	Database Database
	Protocol Protocol
}

// Load reads an optional .env file and then parses the environment.
// Variables already present in the environment win over the file.
func Load(files ...string) (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load(files...)

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Protocol.StaleAfter <= cfg.Protocol.HeartbeatInterval {
		return nil, fmt.Errorf("STALE_AFTER (%s) must exceed HEARTBEAT_INTERVAL (%s)", cfg.Protocol.StaleAfter, cfg.Protocol.HeartbeatInterval)
	}
	return &cfg, nil
}
