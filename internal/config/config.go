// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"billing-ops-platform/internal/domain"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type APIConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type GatewayConfig struct {
	KeyID         string `yaml:"key_id"`
	KeySecret     string `yaml:"key_secret"`
	WebhookSecret string `yaml:"webhook_secret"`
	BaseURL       string `yaml:"base_url"`
}

// PlanConfig is one entry of the static plan table.
type PlanConfig struct {
	Name          string `yaml:"name"`
	GatewayPlanID string `yaml:"gateway_plan_id"`
	Price         int64  `yaml:"price"` // minor units
	DurationDays  int    `yaml:"duration_days"`
	TrialDays     int    `yaml:"trial_days"`
	ProductLimit  int    `yaml:"product_limit"`
	Lifetime      bool   `yaml:"lifetime"`
}

type BillingConfig struct {
	Currency     string                `yaml:"currency"`
	TokenAmount  int64                 `yaml:"token_amount"`  // fixed upfront mandate charge, minor units
	TokenPlanID  string                `yaml:"token_plan_id"` // gateway plan provisioned at exactly TokenAmount
	Plans        map[string]PlanConfig `yaml:"plans"`
	TrialCharges int                   `yaml:"trial_charges"` // totalCount for the token subscription
}

type WalletConfig struct {
	MinTopup int64 `yaml:"min_topup"` // minor units
	MaxTopup int64 `yaml:"max_topup"`
}

type AffiliateConfig struct {
	// DefaultRates maps purchase type (subscription|service_order|store_order)
	// to the global commission rate in [0,1].
	DefaultRates map[string]float64 `yaml:"default_rates"`
	// Overrides maps affiliate user id -> purchase type -> rate, for
	// per-affiliate deals negotiated outside the defaults.
	Overrides map[string]map[string]float64 `yaml:"overrides"`
	MinPayout int64                         `yaml:"min_payout"` // minor units
	HoldDays  int                           `yaml:"hold_days"`  // pending -> approved maturation delay
}

type SchedulerConfig struct {
	ExpiryInterval     time.Duration `yaml:"expiry_interval"`
	CommissionInterval time.Duration `yaml:"commission_interval"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	API       APIConfig       `yaml:"api"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Billing   BillingConfig   `yaml:"billing"`
	Wallet    WalletConfig    `yaml:"wallet"`
	Affiliate AffiliateConfig `yaml:"affiliate"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads, defaults and fully validates the configuration. Plan and
// gateway misconfiguration is caught here, before traffic, so request paths
// never see a half-configured billing table.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 8080
	}
	if cfg.Billing.Currency == "" {
		cfg.Billing.Currency = "INR"
	}
	if cfg.Billing.TrialCharges <= 0 {
		cfg.Billing.TrialCharges = 1
	}
	if cfg.Scheduler.ExpiryInterval <= 0 {
		cfg.Scheduler.ExpiryInterval = time.Hour
	}
	if cfg.Scheduler.CommissionInterval <= 0 {
		cfg.Scheduler.CommissionInterval = time.Hour
	}
	if cfg.Affiliate.HoldDays < 0 {
		cfg.Affiliate.HoldDays = 0
	}

	cfg.Runtime.Dev = dev
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the invariants the billing core depends on.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("%w: database.url is required", domain.ErrConfiguration)
	}
	// dev mode may run without provider credentials; main substitutes the
	// in-memory gateway in that case
	if !c.Runtime.Dev {
		if c.Gateway.KeyID == "" || c.Gateway.KeySecret == "" {
			return fmt.Errorf("%w: gateway.key_id and gateway.key_secret are required", domain.ErrConfiguration)
		}
		if c.Gateway.WebhookSecret == "" {
			return fmt.Errorf("%w: gateway.webhook_secret is required", domain.ErrConfiguration)
		}
	}
	if c.Billing.TokenAmount <= 0 {
		return fmt.Errorf("%w: billing.token_amount must be positive", domain.ErrConfiguration)
	}
	if c.Billing.TokenPlanID == "" {
		return fmt.Errorf("%w: billing.token_plan_id is not provisioned", domain.ErrConfiguration)
	}
	if len(c.Billing.Plans) == 0 {
		return fmt.Errorf("%w: billing.plans is empty", domain.ErrConfiguration)
	}
	for code, p := range c.Billing.Plans {
		if p.GatewayPlanID == "" {
			return fmt.Errorf("%w: plan %q has no gateway_plan_id", domain.ErrConfiguration, code)
		}
		if p.Price <= 0 {
			return fmt.Errorf("%w: plan %q has non-positive price", domain.ErrConfiguration, code)
		}
		if !p.Lifetime && p.DurationDays <= 0 {
			return fmt.Errorf("%w: plan %q has no duration", domain.ErrConfiguration, code)
		}
		if p.TrialDays < 0 {
			return fmt.Errorf("%w: plan %q has negative trial_days", domain.ErrConfiguration, code)
		}
	}
	if c.Wallet.MinTopup <= 0 || c.Wallet.MaxTopup < c.Wallet.MinTopup {
		return fmt.Errorf("%w: wallet topup bounds invalid (min=%d max=%d)", domain.ErrConfiguration, c.Wallet.MinTopup, c.Wallet.MaxTopup)
	}
	for pt, rate := range c.Affiliate.DefaultRates {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%w: affiliate.default_rates[%s]=%f out of [0,1]", domain.ErrConfiguration, pt, rate)
		}
	}
	for aff, rates := range c.Affiliate.Overrides {
		for pt, rate := range rates {
			if rate < 0 || rate > 1 {
				return fmt.Errorf("%w: affiliate.overrides[%s][%s]=%f out of [0,1]", domain.ErrConfiguration, aff, pt, rate)
			}
		}
	}
	if c.Affiliate.MinPayout < 0 {
		return fmt.Errorf("%w: affiliate.min_payout must not be negative", domain.ErrConfiguration)
	}
	return nil
}

// Plan resolves a plan code against the static table.
func (c *Config) Plan(code string) (PlanConfig, bool) {
	p, ok := c.Billing.Plans[code]
	return p, ok
}
