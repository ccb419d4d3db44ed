// Package ai wraps an OpenAI-compatible chat completion endpoint used
// to turn a batch of news articles into a trading Analysis. It is
// deliberately fail-soft: a down or rate-limited model must never stop
// a bot from trading on its technical signal alone.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/spotfleet/spotfleet/internal/models"
)

const maxReasoningChars = 400

var unavailableAnalysis = models.Analysis{
	Signal:     models.Hold,
	Confidence: 0,
	Sentiment:  models.SentimentNeutral,
	Impact:     models.ImpactLow,
	Urgency:    models.UrgencyLong,
	Reasoning:  "analyzer unavailable",
}

// Config configures the Analyzer.
type Config struct {
	BaseURL string // OpenAI-compatible base URL, e.g. https://api.openai.com/v1
	APIKey  string
	Model   string
	Timeout time.Duration
	Logger  *logrus.Logger
}

// Analyzer turns news articles into a structured Analysis.
type Analyzer struct {
	cfg     Config
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *logrus.Logger
}

// New builds an Analyzer.
func New(cfg Config) *Analyzer {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ai-analyzer",
		MaxRequests: 2,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &Analyzer{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: breaker,
		logger:  cfg.Logger,
	}
}

// Analyze scores articles for ticker (empty for a market-wide batch).
// It never returns an error: on any failure it returns a HOLD/0
// analysis explaining the analyzer was unavailable, so callers can
// treat it as a pure fallback blend input.
func (a *Analyzer) Analyze(ctx context.Context, ticker string, articles []models.Article) models.Analysis {
	if len(articles) == 0 {
		return unavailableAnalysis
	}

	result, err := a.breaker.Execute(func() (interface{}, error) {
		return a.call(ctx, ticker, articles)
	})
	if err != nil {
		a.logger.WithError(err).WithField("ticker", ticker).Warn("ai analysis unavailable")
		return unavailableAnalysis
	}
	return result.(models.Analysis)
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type modelAnalysis struct {
	Signal     string   `json:"signal"`
	Confidence int      `json:"confidence"`
	Sentiment  string   `json:"sentiment"`
	Impact     string   `json:"impact"`
	Urgency    string   `json:"urgency"`
	Tickers    []string `json:"tickers"`
	Reasoning  string   `json:"reasoning"`
}

func (a *Analyzer) call(ctx context.Context, ticker string, articles []models.Article) (models.Analysis, error) {
	prompt := buildPrompt(ticker, articles)

	reqBody, err := json.Marshal(chatRequest{
		Model: a.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return models.Analysis{}, fmt.Errorf("marshaling chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return models.Analysis{}, fmt.Errorf("building chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return models.Analysis{}, fmt.Errorf("calling chat completion: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Analysis{}, fmt.Errorf("reading chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.Analysis{}, fmt.Errorf("chat completion returned status %d: %s", resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return models.Analysis{}, fmt.Errorf("parsing chat response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return models.Analysis{}, fmt.Errorf("chat completion returned no choices")
	}

	var parsed modelAnalysis
	content := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return models.Analysis{}, fmt.Errorf("parsing model analysis payload: %w", err)
	}

	reasoning := parsed.Reasoning
	if len(reasoning) > maxReasoningChars {
		reasoning = reasoning[:maxReasoningChars]
	}

	return models.Analysis{
		Signal:     models.Action(strings.ToUpper(parsed.Signal)),
		Confidence: parsed.Confidence,
		Sentiment:  models.Sentiment(parsed.Sentiment),
		Impact:     models.Impact(parsed.Impact),
		Urgency:    models.Urgency(parsed.Urgency),
		Tickers:    parsed.Tickers,
		Reasoning:  reasoning,
	}, nil
}

const systemPrompt = `You are a cryptocurrency news analyst. Given a batch of articles, ` +
	`respond with a single JSON object: {"signal":"BUY|SELL|HOLD","confidence":0-100,` +
	`"sentiment":"bullish|bearish|neutral","impact":"low|med|high","urgency":"immediate|short|long",` +
	`"tickers":["..."],"reasoning":"..."}. Output only the JSON object.`

func buildPrompt(ticker string, articles []models.Article) string {
	var b strings.Builder
	if ticker != "" {
		fmt.Fprintf(&b, "Ticker: %s\n\n", ticker)
	}
	for _, art := range articles {
		fmt.Fprintf(&b, "- %s (%s): %s\n", art.Title, art.Source, art.Summary)
	}
	return b.String()
}
