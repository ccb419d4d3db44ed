// Package notify fans trade events out to whichever alert channels are
// configured: a generic SMS gateway and/or a whitelisted Telegram
// chat. Sending never blocks a bot's trading loop for more than a
// bounded timeout per recipient.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/spotfleet/spotfleet/internal/models"
)

const maxReasoningChars = 400

// Recipient delivers one formatted trade alert.
type Recipient interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// Notifier fans a trade event out to every configured Recipient
// concurrently; no single slow recipient delays the others.
type Notifier struct {
	recipients []Recipient
	timeout    time.Duration
	logger     *logrus.Logger
}

// New builds a Notifier over recipients. A nil or empty slice is
// valid: SendTrade becomes a no-op, matching a fleet run with no
// alerting configured.
func New(recipients []Recipient, logger *logrus.Logger) *Notifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &Notifier{recipients: recipients, timeout: 10 * time.Second, logger: logger}
}

// SendTrade formats ev and delivers it to every recipient. It returns
// once all deliveries finish or time out; it never returns an error
// because a failed alert must not fail the trade it is reporting.
func (n *Notifier) SendTrade(ctx context.Context, ev models.TradeEvent) {
	if len(n.recipients) == 0 {
		return
	}
	text := formatTradeEvent(ev)

	var wg sync.WaitGroup
	for _, r := range n.recipients {
		r := r
		wg.Add(1)
		go func() {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(ctx, n.timeout)
			defer cancel()
			if err := r.Send(sendCtx, text); err != nil {
				n.logger.WithError(err).WithFields(logrus.Fields{
					"recipient": r.Name(),
					"bot_id":    ev.BotID,
				}).Warn("notification delivery failed")
			}
		}()
	}
	wg.Wait()
}

func formatTradeEvent(ev models.TradeEvent) string {
	reasoning := ev.Reasoning
	if len(reasoning) > maxReasoningChars {
		reasoning = reasoning[:maxReasoningChars] + "..."
	}

	pnl := ""
	if ev.PnL != nil {
		pnl = " pnl=" + ev.PnL.StringFixed(2) + "USDT"
	}

	return fmt.Sprintf(
		"[bot %d] %s %s qty=%s price=%s notional=%s%s\n%s",
		ev.BotID, ev.Action, ev.Symbol,
		ev.Qty.String(), ev.Price.String(), ev.Notional.StringFixed(2),
		pnl, reasoning,
	)
}
