// Command spotfleetd boots the multi-bot spot-trading fleet daemon:
// it wires the exchange client, notifier, shared news cache, AI
// analyzer, and fleet supervisor, resumes the persisted registry, and
// serves the dashboard HTTP API until told to shut down.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/spotfleet/spotfleet/internal/ai"
	"github.com/spotfleet/spotfleet/internal/api"
	"github.com/spotfleet/spotfleet/internal/apicounters"
	"github.com/spotfleet/spotfleet/internal/config"
	"github.com/spotfleet/spotfleet/internal/exchange"
	"github.com/spotfleet/spotfleet/internal/fleet"
	"github.com/spotfleet/spotfleet/internal/newscache"
	"github.com/spotfleet/spotfleet/internal/notify"
	"github.com/spotfleet/spotfleet/internal/ratelimit"
)

func main() {
	configPath := flag.String("config", "", "optional path to a YAML config file with non-secret defaults")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("creating data dir %s: %v", cfg.DataDir, err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	}

	counters, err := apicounters.New(apicounters.Config{
		DataDir:  cfg.DataDir,
		Redis:    redisClient,
		RedisKey: "spotfleet:counters",
	})
	if err != nil {
		log.Fatalf("loading api counters: %v", err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		PerEndpoint: map[string]rate.Limit{
			"order": rate.Limit(8),
			"query": rate.Limit(15),
		},
		Burst:    20,
		Redis:    redisClient,
		RedisKey: "spotfleet:ratelimit",
		Logger:   logger,
	})

	exchangeClient := exchange.New(exchange.Config{
		APIKey:    cfg.Exchange.APIKey,
		APISecret: cfg.Exchange.APISecret,
		Testnet:   cfg.Exchange.Testnet,
		Timeout:   10 * time.Second,
		RateLimit: limiter,
	})

	newsCache, err := newscache.New(newscache.Config{
		DataDir:     cfg.DataDir,
		APIKey:      cfg.News.CryptonewsAPIKey,
		BaseURL:     "https://cryptonews-api.com/api/v1",
		TTL:         cfg.News.TTL,
		DailyBudget: cfg.News.DailyBudget,
		Counters:    counters,
		Logger:      logger,
		RSSFallback: "https://www.coindesk.com/arc/outboundfeeds/rss/",
	})
	if err != nil {
		log.Fatalf("loading news cache: %v", err)
	}

	analyzer := ai.New(ai.Config{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
		Logger:  logger,
	})

	notifier := notify.New(buildRecipients(cfg, logger), logger)

	supervisor := fleet.New(fleet.Config{
		DataDir:          cfg.DataDir,
		Exchange:         exchangeClient,
		Notifier:         notifier,
		NewsCache:        newsCache,
		Analyzer:         analyzer,
		Logger:           logger,
		TickInterval:     cfg.Trading.TickInterval,
		AutoAdoptOrphans: cfg.Trading.AutoAdoptOrphans,
		StopLossPct:      decimal.NewFromFloat(cfg.Trading.StopLossPct),
		TakeProfitPct:    decimal.NewFromFloat(cfg.Trading.TakeProfitPct),
		MaxHold:          time.Duration(cfg.Trading.MaxHoldHours) * time.Hour,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := supervisor.Boot(ctx); err != nil {
		log.Fatalf("booting fleet supervisor: %v", err)
	}

	server := api.New(api.Config{
		Supervisor: supervisor,
		Exchange:   exchangeClient,
		DataDir:    cfg.DataDir,
		Logger:     logger,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Dashboard.Port),
		Handler:           server.Handler(),
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.WithField("addr", httpServer.Addr).Info("dashboard listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("dashboard server stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Trading.TickInterval+time.Minute)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("dashboard server shutdown did not complete cleanly")
	}

	supervisor.Shutdown()
	logger.Info("spotfleetd stopped")
}

func buildRecipients(cfg *config.Config, logger *logrus.Logger) []notify.Recipient {
	var recipients []notify.Recipient

	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		recipient, err := notify.NewTelegramRecipient(cfg.Telegram.Token, cfg.Telegram.ChatID)
		if err != nil {
			logger.WithError(err).Warn("telegram notifier disabled: failed to initialize")
		} else {
			recipients = append(recipients, recipient)
		}
	}

	for _, to := range cfg.SMSRecipients() {
		recipients = append(recipients, notify.NewSMSRecipient(notify.SMSConfig{
			ProviderURL: "https://api.twilio.com/2010-04-01/Accounts/" + cfg.SMS.ProviderSID + "/Messages.json",
			APIKey:      cfg.SMS.ProviderToken,
			ToNumber:    to,
		}))
	}

	return recipients
}
