package notify

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
)

// SMSConfig configures a generic HTTP-gateway SMS recipient. It is
// intentionally provider-agnostic: ProviderURL is POSTed a JSON body
// of {"to": "...", "message": "..."} with an Authorization header,
// matching the common shape of Twilio-alike gateways fronted by a
// thin proxy.
type SMSConfig struct {
	ProviderURL string
	APIKey      string
	ToNumber    string
}

type smsRecipient struct {
	cfg    SMSConfig
	client *http.Client
}

// NewSMSRecipient builds a Recipient that posts to cfg.ProviderURL.
func NewSMSRecipient(cfg SMSConfig) Recipient {
	return &smsRecipient{cfg: cfg, client: &http.Client{}}
}

func (s *smsRecipient) Name() string { return "sms" }

func (s *smsRecipient) Send(ctx context.Context, text string) error {
	body := []byte(fmt.Sprintf(`{"to":%q,"message":%q}`, s.cfg.ToNumber, text))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.ProviderURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending sms: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	return nil
}
