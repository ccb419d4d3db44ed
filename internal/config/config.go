// Package config loads the daemon's configuration from an optional
// YAML file, a .env file, and the process environment, in that order
// of increasing precedence, mirroring the teacher's
// LoadProductionConfig/applyEnvironmentOverrides idiom.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the fully resolved daemon configuration.
type Config struct {
	Exchange   ExchangeConfig   `yaml:"exchange"`
	AI         AIConfig         `yaml:"ai"`
	News       NewsConfig       `yaml:"news"`
	SMS        SMSConfig        `yaml:"sms"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Redis      RedisConfig      `yaml:"redis"`
	Dashboard  DashboardConfig  `yaml:"dashboard"`
	Trading    TradingConfig    `yaml:"trading"`
	DataDir    string           `yaml:"data_dir"`
}

type ExchangeConfig struct {
	APIKey    string `yaml:"-"`
	APISecret string `yaml:"-"`
	Testnet   bool   `yaml:"testnet"`
}

type AIConfig struct {
	APIKey  string `yaml:"-"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type NewsConfig struct {
	CryptonewsAPIKey string        `yaml:"-"`
	NewsAPIKey       string        `yaml:"-"`
	TTL              time.Duration `yaml:"-"`
	TTLSeconds       int           `yaml:"ttl_seconds"`
	DailyBudget      int           `yaml:"daily_budget"`
}

type SMSConfig struct {
	ProviderSID   string `yaml:"-"`
	ProviderToken string `yaml:"-"`
	From          string `yaml:"-"`
	ToList        string `yaml:"-"`
}

type TelegramConfig struct {
	Token  string `yaml:"-"`
	ChatID int64  `yaml:"-"`
}

type RedisConfig struct {
	Addr string `yaml:"-"`
}

type DashboardConfig struct {
	Port int `yaml:"port"`
}

type TradingConfig struct {
	TickInterval     time.Duration `yaml:"-"`
	TickIntervalSec  int           `yaml:"tick_interval_sec"`
	StopLossPct      float64       `yaml:"stop_loss_pct"`
	TakeProfitPct    float64       `yaml:"take_profit_pct"`
	MaxHoldHours     int           `yaml:"max_hold_hours"`
	AutoAdoptOrphans bool          `yaml:"auto_adopt_orphans"`
}

func defaults() Config {
	return Config{
		Dashboard: DashboardConfig{Port: 5000},
		DataDir:   "./data",
		AI: AIConfig{
			Model:   "gpt-4o-mini",
			BaseURL: "https://api.openai.com/v1",
		},
		News: NewsConfig{
			TTLSeconds:  1800,
			DailyBudget: 100,
		},
		Trading: TradingConfig{
			TickIntervalSec:  900,
			StopLossPct:      0.03,
			TakeProfitPct:    0.05,
			MaxHoldHours:     48,
			AutoAdoptOrphans: true,
		},
	}
}

// Load reads an optional YAML file for non-secret defaults, loads a
// .env file if present, applies environment-variable overrides (which
// always win), derives duration fields, and validates the result.
func Load(yamlPath string) (*Config, error) {
	cfg := defaults()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", yamlPath, err)
			}
		case os.IsNotExist(err):
			// optional file: defaults stand
		default:
			return nil, fmt.Errorf("reading config file %s: %w", yamlPath, err)
		}
	}

	_ = godotenv.Load() // .env is optional; missing file is not an error

	cfg.applyEnvironmentOverrides()
	cfg.deriveDurations()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	if v := os.Getenv("EXCHANGE_API_KEY"); v != "" {
		c.Exchange.APIKey = v
	}
	if v := os.Getenv("EXCHANGE_API_SECRET"); v != "" {
		c.Exchange.APISecret = v
	}
	if v := os.Getenv("USE_TESTNET"); v != "" {
		c.Exchange.Testnet = v == "true"
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv("CRYPTONEWS_API_KEY"); v != "" {
		c.News.CryptonewsAPIKey = v
	}
	if v := os.Getenv("NEWSAPI_KEY"); v != "" {
		c.News.NewsAPIKey = v
	}
	if v := os.Getenv("SMS_PROVIDER_SID"); v != "" {
		c.SMS.ProviderSID = v
	}
	if v := os.Getenv("SMS_PROVIDER_TOKEN"); v != "" {
		c.SMS.ProviderToken = v
	}
	if v := os.Getenv("SMS_FROM"); v != "" {
		c.SMS.From = v
	}
	if v := os.Getenv("SMS_TO_LIST"); v != "" {
		c.SMS.ToList = v
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.ChatID = id
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("DASHBOARD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Dashboard.Port = port
		}
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("TICK_INTERVAL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Trading.TickIntervalSec = n
		}
	}
	if v := os.Getenv("NEWS_TTL_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.News.TTLSeconds = n
		}
	}
	if v := os.Getenv("NEWS_DAILY_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.News.DailyBudget = n
		}
	}
	if v := os.Getenv("STOP_LOSS_PCT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Trading.StopLossPct = f
		}
	}
	if v := os.Getenv("TAKE_PROFIT_PCT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Trading.TakeProfitPct = f
		}
	}
	if v := os.Getenv("MAX_HOLD_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Trading.MaxHoldHours = n
		}
	}
	if v := os.Getenv("AUTO_ADOPT_ORPHANS"); v != "" {
		c.Trading.AutoAdoptOrphans = v == "true"
	}
}

func (c *Config) deriveDurations() {
	c.Trading.TickInterval = time.Duration(c.Trading.TickIntervalSec) * time.Second
	c.News.TTL = time.Duration(c.News.TTLSeconds) * time.Second
}

// Validate aggregates every configuration violation into a single
// error instead of failing on the first one, so an operator fixing a
// misconfigured daemon sees the whole list at once.
func (c *Config) Validate() error {
	var problems []string

	if c.Exchange.APIKey == "" {
		problems = append(problems, "EXCHANGE_API_KEY is required")
	}
	if c.Exchange.APISecret == "" {
		problems = append(problems, "EXCHANGE_API_SECRET is required")
	}
	if c.DataDir == "" {
		problems = append(problems, "DATA_DIR must not be empty")
	}
	if c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535 {
		problems = append(problems, "DASHBOARD_PORT must be a valid TCP port")
	}
	if c.Trading.TickIntervalSec <= 0 {
		problems = append(problems, "TICK_INTERVAL_SEC must be positive")
	}
	if c.Trading.StopLossPct <= 0 || c.Trading.StopLossPct >= 1 {
		problems = append(problems, "STOP_LOSS_PCT must be between 0 and 1")
	}
	if c.Trading.TakeProfitPct <= 0 {
		problems = append(problems, "TAKE_PROFIT_PCT must be positive")
	}
	if c.Trading.MaxHoldHours <= 0 {
		problems = append(problems, "MAX_HOLD_HOURS must be positive")
	}
	if c.News.DailyBudget < 0 {
		problems = append(problems, "NEWS_DAILY_BUDGET must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// SMSRecipients splits the comma-separated SMS_TO_LIST env var.
func (c *Config) SMSRecipients() []string {
	if c.SMS.ToList == "" {
		return nil
	}
	parts := strings.Split(c.SMS.ToList, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
