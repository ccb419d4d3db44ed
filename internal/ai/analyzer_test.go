package ai

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spotfleet/spotfleet/internal/models"
)

func TestAnalyze_NoArticlesReturnsUnavailable(t *testing.T) {
	a := New(Config{BaseURL: "http://unused.invalid", Model: "gpt-test"})
	got := a.Analyze(context.Background(), "BTC", nil)
	assert.Equal(t, unavailableAnalysis, got)
}

func TestAnalyze_ParsesModelResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"signal\":\"buy\",\"confidence\":80,\"sentiment\":\"bullish\",\"impact\":\"high\",\"urgency\":\"immediate\",\"tickers\":[\"BTC\"],\"reasoning\":\"etf inflows\"}"}}]}`))
	}))
	defer srv.Close()

	a := New(Config{BaseURL: srv.URL, Model: "gpt-test"})
	got := a.Analyze(context.Background(), "BTC", []models.Article{{Title: "ETF approved", Summary: "inflows surge"}})

	assert.Equal(t, models.Buy, got.Signal)
	assert.Equal(t, 80, got.Confidence)
	assert.Equal(t, models.SentimentBullish, got.Sentiment)
	assert.Equal(t, "etf inflows", got.Reasoning)
}

func TestAnalyze_FallsBackOnTransportError(t *testing.T) {
	a := New(Config{BaseURL: "http://127.0.0.1:0", Model: "gpt-test"})
	got := a.Analyze(context.Background(), "BTC", []models.Article{{Title: "x"}})
	assert.Equal(t, unavailableAnalysis, got)
}
