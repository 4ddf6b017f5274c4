package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
)

// CallbackNotifier posts every payment outcome to a merchant callback URL.
type CallbackNotifier struct {
	callbackURL string
	client      *http.Client
}

func NewCallbackNotifier(callbackURL string, timeout time.Duration) *CallbackNotifier {
	return &CallbackNotifier{
		callbackURL: callbackURL,
		client:      &http.Client{Timeout: timeout},
	}
}

func (n *CallbackNotifier) PublishPaymentEvent(ctx context.Context, event domain.PaymentEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal callback: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.callbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", event.PaymentID+":"+event.Stage)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send callback: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}
	slog.Debug("callback sent", "url", n.callbackURL, "payment_id", event.PaymentID)

	return nil
}
