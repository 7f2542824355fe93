package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Defaults for the transfer policy knobs. The mode list and the per-transfer
// ceiling follow the values the bank operated with before they became
// configuration.
const (
	DefaultPort            = "8080"
	DefaultPINLength       = 6
	DefaultTransferCeiling = "1000000.00"
	DefaultTransferModes   = "bank transfer,upi,debit card,credit card,net banking,atm,cash,cheque,neft,rtgs,imps"
	DefaultTransferMode    = "bank transfer"
	DefaultTransferTimeout = 5 * time.Second
)

type Config struct {
	DBSource string
	Port     string
	Env      string

	// Transfer policy.
	TransferCeiling decimal.Decimal
	TransferModes   []string
	DefaultMode     string
	TransferTimeout time.Duration

	// Credential policy.
	PINLength int
}

func Load() (*Config, error) {
	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	cfg := &Config{
		DBSource:        dbSource,
		Port:            envOr("SERVER_PORT", DefaultPort),
		Env:             envOr("ENVIRONMENT", "development"),
		DefaultMode:     envOr("TRANSFER_DEFAULT_MODE", DefaultTransferMode),
		TransferTimeout: DefaultTransferTimeout,
		PINLength:       DefaultPINLength,
	}

	ceiling, err := decimal.NewFromString(envOr("TRANSFER_CEILING", DefaultTransferCeiling))
	if err != nil || ceiling.Sign() <= 0 {
		return nil, fmt.Errorf("invalid TRANSFER_CEILING: %q", os.Getenv("TRANSFER_CEILING"))
	}
	cfg.TransferCeiling = ceiling

	for _, m := range strings.Split(envOr("TRANSFER_MODES", DefaultTransferModes), ",") {
		if m = strings.TrimSpace(m); m != "" {
			cfg.TransferModes = append(cfg.TransferModes, strings.ToLower(m))
		}
	}
	if len(cfg.TransferModes) == 0 {
		return nil, fmt.Errorf("TRANSFER_MODES must name at least one mode")
	}

	if v := os.Getenv("TRANSFER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid TRANSFER_TIMEOUT: %q", v)
		}
		cfg.TransferTimeout = d
	}

	if v := os.Getenv("PIN_LENGTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 4 || n > 8 {
			return nil, fmt.Errorf("invalid PIN_LENGTH: %q", v)
		}
		cfg.PINLength = n
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
