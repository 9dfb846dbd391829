package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	RunAddress      string `env:"RUN_ADDRESS"`
	DatabaseURI     string `env:"DATABASE_URI"`
	CommerceAddress string `env:"COMMERCE_API_ADDRESS"`
	CommerceToken   string `env:"COMMERCE_API_TOKEN"`
	JWTSecret       string `env:"JWT_SECRET"`

	OperatorLogin        string `env:"OPERATOR_LOGIN"`
	OperatorPasswordHash string `env:"OPERATOR_PASSWORD_HASH"`

	SyncInterval   time.Duration `env:"SYNC_INTERVAL"`
	DueDefaultDays int           `env:"DUE_DEFAULT_DAYS"`
	GraceWindow    time.Duration `env:"GRACE_WINDOW"`
	RefetchDelay   time.Duration `env:"REFETCH_DELAY"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT"`
}

// New reads the process flags and environment.
func New(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("orderdesk", flag.ContinueOnError)
	fs.StringVar(&cfg.RunAddress, "a", "localhost:8080", "server address and port")
	fs.StringVar(&cfg.DatabaseURI, "d", "", "journal database URI, empty disables the journal")
	fs.StringVar(&cfg.CommerceAddress, "r", "http://localhost:8081", "commerce API address")
	fs.StringVar(&cfg.JWTSecret, "s", "super-secret-jwt-key", "jwt signing key")
	fs.StringVar(&cfg.OperatorLogin, "operator", "operator", "operator login")
	fs.DurationVar(&cfg.SyncInterval, "sync", time.Minute, "full refetch interval")
	fs.IntVar(&cfg.DueDefaultDays, "due-days", 7, "default production window in days")
	fs.DurationVar(&cfg.GraceWindow, "grace", 3*time.Second, "how long an updated order stays in its view")
	fs.DurationVar(&cfg.RefetchDelay, "refetch-delay", 300*time.Millisecond, "reconciliation refetch debounce")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", 15*time.Second, "remote write timeout")
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	// Only variables that are set override the flag values.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.CommerceAddress == "" {
		return nil, fmt.Errorf("commerce API address is required")
	}
	if cfg.DueDefaultDays <= 0 {
		return nil, fmt.Errorf("due-days must be positive, got %d", cfg.DueDefaultDays)
	}
	return cfg, nil
}
