package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_DefaultsAndDefaultedSafetyKeys(t *testing.T) {
	t.Setenv("APP_MARKETPLACE_ACCOUNT_ID", "1001")

	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, time.Second, cfg.Cooldown())
	assert.False(t, cfg.AutoRefund)
	assert.False(t, cfg.AutoDeactivate)
	assert.InDelta(t, 5.0, cfg.WalletMinBalance, 1e-9)
	assert.Equal(t, int64(2418), cfg.DeactivateCategoryID)
	assert.True(t, cfg.FilterOrdersByCategory)
	assert.Equal(t, "V4R2", cfg.WalletVersion)
	assert.Equal(t, 60*time.Second, cfg.WalletOrderTimeout())
	assert.Equal(t, int64(1001), cfg.MarketplaceAccountID)
	assert.ElementsMatch(t, []string{"COOLDOWN_SECONDS", "AUTO_REFUND", "AUTO_DEACTIVATE", "WALLET_MIN_BALANCE"}, cfg.DefaultedKeys)
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	t.Setenv("APP_MARKETPLACE_ACCOUNT_ID", "1001")
	t.Setenv("APP_COOLDOWN_SECONDS", "0.5")
	t.Setenv("APP_AUTO_REFUND", "true")
	t.Setenv("APP_WALLET_MIN_BALANCE", "12.5")
	t.Setenv("APP_WALLET_VERSION", "W5")
	t.Setenv("APP_WALLET_MNEMONICS", "alpha, beta gamma")

	cfg, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.Cooldown())
	assert.True(t, cfg.AutoRefund)
	assert.InDelta(t, 12.5, cfg.WalletMinBalance, 1e-9)
	assert.Equal(t, "W5", cfg.WalletVersion)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, cfg.Mnemonics())
	assert.Equal(t, []string{"AUTO_DEACTIVATE"}, cfg.DefaultedKeys)
}

func TestLoadFrom_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "MARKETPLACE_ACCOUNT_ID: 77\nAUTO_DEACTIVATE: true\nLOG_FORMAT: text\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.defaults.yaml"), []byte(yaml), 0o600))

	cfg, err := LoadFrom(dir)
	require.NoError(t, err)
	assert.Equal(t, int64(77), cfg.MarketplaceAccountID)
	assert.True(t, cfg.AutoDeactivate)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.NotContains(t, cfg.DefaultedKeys, "AUTO_DEACTIVATE")
}

func TestLoadFrom_Invalid(t *testing.T) {
	t.Setenv("APP_MARKETPLACE_ACCOUNT_ID", "1001")
	t.Setenv("APP_WALLET_VERSION", "V3")

	_, err := LoadFrom(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WalletVersion")
}

func TestSecretFingerprint(t *testing.T) {
	cfg := &Config{}
	assert.Empty(t, cfg.SecretFingerprint())

	cfg.WalletAPIKey = "key"
	cfg.WalletMnemonics = "one two"
	fp := cfg.SecretFingerprint()
	assert.Len(t, fp, 12)
	assert.NotContains(t, fp, "key")

	cfg.WalletMnemonics = "one,two"
	assert.Equal(t, fp, cfg.SecretFingerprint(), "separator does not change the fingerprint")

	cfg.WalletAPIKey = "other"
	assert.NotEqual(t, fp, cfg.SecretFingerprint())
}
