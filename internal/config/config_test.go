package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"EXCHANGE_API_KEY", "EXCHANGE_API_SECRET", "USE_TESTNET", "OPENAI_API_KEY",
		"CRYPTONEWS_API_KEY", "NEWSAPI_KEY", "SMS_PROVIDER_SID", "SMS_PROVIDER_TOKEN",
		"SMS_FROM", "SMS_TO_LIST", "TELEGRAM_TOKEN", "TELEGRAM_CHAT_ID", "REDIS_ADDR",
		"DASHBOARD_PORT", "DATA_DIR", "TICK_INTERVAL_SEC", "NEWS_TTL_SEC",
		"NEWS_DAILY_BUDGET", "STOP_LOSS_PCT", "TAKE_PROFIT_PCT", "MAX_HOLD_HOURS",
		"AUTO_ADOPT_ORPHANS",
	}
	for _, k := range keys {
		os.Unsetenv(k)
	}
}

func TestLoad_FailsWithoutExchangeCredentials(t *testing.T) {
	clearEnv(t)
	_, err := Load("")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "EXCHANGE_API_KEY")
	assert.Contains(t, err.Error(), "EXCHANGE_API_SECRET")
}

func TestLoad_EnvironmentOverridesDefaults(t *testing.T) {
	clearEnv(t)
	os.Setenv("EXCHANGE_API_KEY", "key")
	os.Setenv("EXCHANGE_API_SECRET", "secret")
	os.Setenv("DASHBOARD_PORT", "9090")
	os.Setenv("TICK_INTERVAL_SEC", "60")
	defer clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Dashboard.Port)
	assert.Equal(t, 60, cfg.Trading.TickIntervalSec)
	assert.Equal(t, int64(60)*1e9, cfg.Trading.TickInterval.Nanoseconds())
}

func TestLoad_DefaultsAppliedWhenUnset(t *testing.T) {
	clearEnv(t)
	os.Setenv("EXCHANGE_API_KEY", "key")
	os.Setenv("EXCHANGE_API_SECRET", "secret")
	defer clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Dashboard.Port)
	assert.Equal(t, "./data", cfg.DataDir)
	assert.True(t, cfg.Trading.AutoAdoptOrphans)
}

func TestSMSRecipients_SplitsAndTrims(t *testing.T) {
	cfg := &Config{SMS: SMSConfig{ToList: "+15551234567, +15557654321 ,"}}
	got := cfg.SMSRecipients()
	assert.Equal(t, []string{"+15551234567", "+15557654321"}, got)
}

func TestValidate_RejectsOutOfRangeStopLoss(t *testing.T) {
	cfg := defaults()
	cfg.Exchange.APIKey = "k"
	cfg.Exchange.APISecret = "s"
	cfg.Trading.StopLossPct = 1.5
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "STOP_LOSS_PCT")
}
