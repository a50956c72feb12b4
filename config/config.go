// config/config.go
package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"match-escrow-system/escrow"
	"match-escrow-system/utils"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process configuration, read from the environment.
type Config struct {
	DatabaseURL    string   `env:"DATABASE_URL,required,notEmpty"`
	ServiceToken   string   `env:"ESCROW_SERVICE_TOKEN,required,notEmpty"`
	Port           int      `env:"PORT" envDefault:"5200"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	ExecutionContext string `env:"EXECUTION_CONTEXT" envDefault:"authoritative"`
	TokenMint        string `env:"TOKEN_MINT,required,notEmpty"`
	TokenDecimals    int32  `env:"TOKEN_DECIMALS" envDefault:"6"`

	// Empty URLs select the in-process implementations.
	TokenLedgerURL      string        `env:"TOKEN_LEDGER_URL"`
	SettlementURL       string        `env:"SETTLEMENT_URL"`
	HTTPTimeout         time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
	CommitFrequency     time.Duration `env:"COMMIT_FREQUENCY" envDefault:"120s"`
	CommitSweepInterval time.Duration `env:"COMMIT_SWEEP_INTERVAL" envDefault:"30s"`

	SyncServiceURL      string        `env:"SYNC_SERVICE_URL"`
	AccountPollInterval time.Duration `env:"ACCOUNT_POLL_INTERVAL" envDefault:"10s"`
	AuthServiceURL      string        `env:"AUTH_SERVICE_URL"`

	R2AccountID       string `env:"CLOUDFLARE_ACCOUNT_ID"`
	R2AccessKeyID     string `env:"R2_ACCESS_KEY_ID"`
	R2AccessKeySecret string `env:"R2_ACCESS_KEY_SECRET"`
	R2Bucket          string `env:"R2_BUCKET_NAME"`
	CDNBaseURL        string `env:"CDN_BASE_URL"`
}

// Load reads .env when present, then parses and validates the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return Parse()
}

// Parse reads the configuration from the current environment only.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	for i, origin := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(origin)
	}
	if _, err := cfg.Context(); err != nil {
		return nil, err
	}
	if cfg.CommitFrequency <= 0 {
		return nil, fmt.Errorf("COMMIT_FREQUENCY must be positive, got %s", cfg.CommitFrequency)
	}
	if cfg.CommitSweepInterval <= 0 {
		return nil, fmt.Errorf("COMMIT_SWEEP_INTERVAL must be positive, got %s", cfg.CommitSweepInterval)
	}
	if cfg.TokenDecimals < 0 || cfg.TokenDecimals > 18 {
		return nil, fmt.Errorf("TOKEN_DECIMALS must be within [0,18], got %d", cfg.TokenDecimals)
	}
	return &cfg, nil
}

func (c *Config) Context() (escrow.ExecutionContext, error) {
	return escrow.ParseExecutionContext(c.ExecutionContext)
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) R2() utils.R2Config {
	return utils.R2Config{
		AccountID:       c.R2AccountID,
		AccessKeyID:     c.R2AccessKeyID,
		AccessKeySecret: c.R2AccessKeySecret,
		Bucket:          c.R2Bucket,
		CDNBaseURL:      c.CDNBaseURL,
	}
}
