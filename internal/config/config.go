package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	App struct {
		Port int `envconfig:"PORT" default:"8080"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"fiscal_recon"`
		SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	}

	Fiscal struct {
		BaseURL    string        `envconfig:"FISCAL_BASE_URL"`
		Login      string        `envconfig:"FISCAL_LOGIN"`
		Password   string        `envconfig:"FISCAL_PASSWORD"`
		LicenseKey string        `envconfig:"FISCAL_LICENSE_KEY"`
		SessionTTL time.Duration `envconfig:"FISCAL_SESSION_TTL" default:"23h"`
	}

	BankFeed struct {
		BaseURL string `envconfig:"BANK_FEED_BASE_URL"`
		Token   string `envconfig:"BANK_FEED_TOKEN"`
		Source  string `envconfig:"BANK_FEED_SOURCE" default:"privat"`
	}

	Orders struct {
		BaseURL string `envconfig:"ORDER_STORE_BASE_URL"`
		Token   string `envconfig:"ORDER_STORE_TOKEN"`
		ShopID  string `envconfig:"ORDER_STORE_SHOP_ID"`
	}

	Rules struct {
		// Comma-separated 4-digit payment codes that must never receive a check.
		ExcludedCodes     string `envconfig:"EXCLUDED_PAYMENT_CODES" default:"2902"`
		NovaPoshtaAccount string `envconfig:"NOVA_POSHTA_ACCOUNT"`
		// Upper bound on a single ingested transaction amount, in currency units.
		MaxTransactionAmount string `envconfig:"MAX_TRANSACTION_AMOUNT" default:"1000000"`
	}

	Distribution struct {
		// All prices in whole currency units; the distributor converts to minor units.
		SingleItemThreshold int64 `envconfig:"DIST_SINGLE_ITEM_THRESHOLD" default:"1000"`
		MinItemPrice        int64 `envconfig:"DIST_MIN_ITEM_PRICE" default:"100"`
		MaxItemPrice        int64 `envconfig:"DIST_MAX_ITEM_PRICE" default:"800"`
	}

	Matching struct {
		AmountEpsilon string `envconfig:"MATCH_AMOUNT_EPSILON" default:"0.01"`
		WindowDays    int    `envconfig:"MATCH_WINDOW_DAYS" default:"7"`
	}
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}

// ExcludedCodeSet splits the configured code list into a lookup set.
func (c *Config) ExcludedCodeSet() map[string]struct{} {
	set := make(map[string]struct{})
	for _, code := range strings.Split(c.Rules.ExcludedCodes, ",") {
		code = strings.TrimSpace(code)
		if code != "" {
			set[code] = struct{}{}
		}
	}
	return set
}

func (c *Config) MaxAmount() decimal.Decimal {
	max, err := decimal.NewFromString(c.Rules.MaxTransactionAmount)
	if err != nil {
		return decimal.NewFromInt(1_000_000)
	}
	return max
}

func (c *Config) MatchEpsilon() decimal.Decimal {
	eps, err := decimal.NewFromString(c.Matching.AmountEpsilon)
	if err != nil {
		return decimal.NewFromFloat(0.01)
	}
	return eps
}
