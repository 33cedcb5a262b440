package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"golang.org/x/crypto/sha3"
)

// Config holds all configuration for the fulfillment service.
type Config struct {
	LogLevel  string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn warning error"`
	LogFormat string `mapstructure:"LOG_FORMAT" validate:"oneof=json text"`

	// Safety settings. Each one left unset is reported in DefaultedKeys.
	CooldownSeconds  float64 `mapstructure:"COOLDOWN_SECONDS" validate:"gte=0"`
	AutoRefund       bool    `mapstructure:"AUTO_REFUND"`
	AutoDeactivate   bool    `mapstructure:"AUTO_DEACTIVATE"`
	WalletMinBalance float64 `mapstructure:"WALLET_MIN_BALANCE" validate:"gte=0"`

	DeactivateCategoryID   int64 `mapstructure:"DEACTIVATE_CATEGORY_ID" validate:"gt=0"`
	FilterOrdersByCategory bool  `mapstructure:"FILTER_ORDERS_BY_CATEGORY"`

	WalletAPIURL                string  `mapstructure:"WALLET_API_URL" validate:"required,url"`
	WalletAPIKey                string  `mapstructure:"WALLET_API_KEY"`
	WalletPhone                 string  `mapstructure:"WALLET_PHONE"`
	WalletMnemonics             string  `mapstructure:"WALLET_MNEMONICS"`
	WalletVersion               string  `mapstructure:"WALLET_VERSION" validate:"oneof=V4R2 W5"`
	WalletTokenFile             string  `mapstructure:"WALLET_TOKEN_FILE" validate:"required"`
	WalletRateLimitRPS          float64 `mapstructure:"WALLET_RATE_LIMIT_RPS" validate:"gte=0"`
	WalletRateLimitBurst        int     `mapstructure:"WALLET_RATE_LIMIT_BURST" validate:"gte=1"`
	WalletAuthTimeoutSeconds    int     `mapstructure:"WALLET_AUTH_TIMEOUT_SECONDS" validate:"gt=0"`
	WalletCheckTimeoutSeconds   int     `mapstructure:"WALLET_CHECK_TIMEOUT_SECONDS" validate:"gt=0"`
	WalletOrderTimeoutSeconds   int     `mapstructure:"WALLET_ORDER_TIMEOUT_SECONDS" validate:"gt=0"`
	WalletBalanceTimeoutSeconds int     `mapstructure:"WALLET_BALANCE_TIMEOUT_SECONDS" validate:"gt=0"`

	NATSURL                          string `mapstructure:"NATS_URL" validate:"required"`
	MarketplaceSubjectPrefix         string `mapstructure:"MARKETPLACE_SUBJECT_PREFIX" validate:"required"`
	MarketplaceAccountID             int64  `mapstructure:"MARKETPLACE_ACCOUNT_ID" validate:"gt=0"`
	MarketplaceRequestTimeoutSeconds int    `mapstructure:"MARKETPLACE_REQUEST_TIMEOUT_SECONDS" validate:"gt=0"`

	PostgresDSN    string `mapstructure:"POSTGRES_DSN"`
	MetricsPort    int    `mapstructure:"METRICS_PORT" validate:"gte=0,lte=65535"`
	GRPCHealthPort int    `mapstructure:"GRPC_HEALTH_PORT" validate:"gte=0,lte=65535"`

	// DefaultedKeys lists safety keys that were not configured explicitly.
	DefaultedKeys []string `mapstructure:"-"`
}

// Safety keys have no SetDefault: IsSet must report whether the operator
// chose a value.
var safetyDefaults = []struct {
	key   string
	value any
}{
	{"COOLDOWN_SECONDS", 1.0},
	{"AUTO_REFUND", false},
	{"AUTO_DEACTIVATE", false},
	{"WALLET_MIN_BALANCE", 5.0},
}

// Keys without a default still need binding so Unmarshal sees env values.
var unboundKeys = []string{
	"WALLET_API_KEY",
	"WALLET_PHONE",
	"WALLET_MNEMONICS",
	"MARKETPLACE_ACCOUNT_ID",
	"POSTGRES_DSN",
}

var defaultPaths = []string{
	"./configs",
	"../configs",
	"../../configs",
	"../../../configs",
	".",
}

// Load reads config.defaults.yaml from the standard paths, then APP_* env.
func Load(serviceName string) (*Config, error) {
	return LoadFrom(defaultPaths...)
}

// LoadFrom is Load with explicit config search paths.
func LoadFrom(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config.defaults")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.SetEnvPrefix("APP")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("DEACTIVATE_CATEGORY_ID", 2418)
	v.SetDefault("FILTER_ORDERS_BY_CATEGORY", true)
	v.SetDefault("WALLET_API_URL", "https://api.fragment-api.com/v1")
	v.SetDefault("WALLET_VERSION", "V4R2")
	v.SetDefault("WALLET_TOKEN_FILE", "auth_token.json")
	v.SetDefault("WALLET_RATE_LIMIT_RPS", 5.0)
	v.SetDefault("WALLET_RATE_LIMIT_BURST", 2)
	v.SetDefault("WALLET_AUTH_TIMEOUT_SECONDS", 30)
	v.SetDefault("WALLET_CHECK_TIMEOUT_SECONDS", 8)
	v.SetDefault("WALLET_ORDER_TIMEOUT_SECONDS", 60)
	v.SetDefault("WALLET_BALANCE_TIMEOUT_SECONDS", 8)
	v.SetDefault("NATS_URL", "nats://localhost:4222")
	v.SetDefault("MARKETPLACE_SUBJECT_PREFIX", "marketplace")
	v.SetDefault("MARKETPLACE_REQUEST_TIMEOUT_SECONDS", 10)
	v.SetDefault("METRICS_PORT", 9100)
	v.SetDefault("GRPC_HEALTH_PORT", 0)

	for _, key := range unboundKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}
	for _, s := range safetyDefaults {
		if err := v.BindEnv(s.key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", s.key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Printf("Base configuration file ('config.defaults.yaml') not found; using defaults and environment variables.")
		} else {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var defaulted []string
	for _, s := range safetyDefaults {
		if !v.IsSet(s.key) || strings.TrimSpace(v.GetString(s.key)) == "" {
			v.Set(s.key, s.value)
			defaulted = append(defaulted, s.key)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.DefaultedKeys = defaulted

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds * float64(time.Second))
}

// Mnemonics splits WALLET_MNEMONICS on whitespace and commas.
func (c *Config) Mnemonics() []string {
	return strings.FieldsFunc(c.WalletMnemonics, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
}

// SecretFingerprint identifies the configured wallet secret material in
// logs without revealing it. It is empty when no secret is configured.
func (c *Config) SecretFingerprint() string {
	words := c.Mnemonics()
	if c.WalletAPIKey == "" && len(words) == 0 {
		return ""
	}
	h := sha3.New256()
	h.Write([]byte(c.WalletAPIKey))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(words, " ")))
	return hex.EncodeToString(h.Sum(nil))[:12]
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (c *Config) WalletAuthTimeout() time.Duration    { return seconds(c.WalletAuthTimeoutSeconds) }
func (c *Config) WalletCheckTimeout() time.Duration   { return seconds(c.WalletCheckTimeoutSeconds) }
func (c *Config) WalletOrderTimeout() time.Duration   { return seconds(c.WalletOrderTimeoutSeconds) }
func (c *Config) WalletBalanceTimeout() time.Duration { return seconds(c.WalletBalanceTimeoutSeconds) }
func (c *Config) MarketplaceRequestTimeout() time.Duration {
	return seconds(c.MarketplaceRequestTimeoutSeconds)
}
