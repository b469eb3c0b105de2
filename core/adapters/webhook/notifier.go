// Package webhook delivers workflow notifications as JSON HTTP POSTs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/cordum/mediaflow/core/infra/logging"
	"github.com/cordum/mediaflow/core/infra/secrets"
	"github.com/cordum/mediaflow/core/workflow"
)

const (
	defaultTimeout  = 10 * time.Second
	maxErrorBody    = 512
	eventHeader     = "X-Mediaflow-Event"
	userAgentHeader = "mediaflow-webhook/1"
)

// Envelope is the request body of every delivery.
type Envelope struct {
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
	SentAt  time.Time      `json:"sentAt"`
}

// Notifier posts envelopes to the target URL. Any 2xx response counts as
// delivered. secret:// references in configured headers are resolved just
// before sending.
type Notifier struct {
	client  *http.Client
	headers map[string]string
	secrets secrets.Lookup
	now     func() time.Time
}

func NewNotifier(timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Notifier{
		client:  &http.Client{Timeout: timeout},
		headers: map[string]string{},
		secrets: secrets.EnvLookup,
		now:     time.Now,
	}
}

// WithHeader adds a static header to every request, e.g. a shared secret.
func (n *Notifier) WithHeader(key, value string) *Notifier {
	if key != "" {
		n.headers[key] = value
	}
	return n
}

// WithSecrets sets how secret:// header values are resolved.
func (n *Notifier) WithSecrets(lookup secrets.Lookup) *Notifier {
	if lookup != nil {
		n.secrets = lookup
	}
	return n
}

// WithClient swaps the HTTP client; tests pass httptest clients here.
func (n *Notifier) WithClient(c *http.Client) *Notifier {
	if c != nil {
		n.client = c
	}
	return n
}

// Deliver posts the envelope to target.Target as given; callers resolve any
// secret in the url or payload before calling. Logs and errors name only the
// scheme and host since the url itself may be a secret.
func (n *Notifier) Deliver(ctx context.Context, target workflow.NotificationTarget, eventType string, payload map[string]any) (workflow.DeliveryResult, error) {
	url := strings.TrimSpace(target.Target)
	if url == "" {
		return workflow.DeliveryResult{Error: "empty target"}, fmt.Errorf("webhook: empty target")
	}
	shown := endpoint(url)
	if secrets.IsRef(url) {
		return workflow.DeliveryResult{Error: "unresolved secret reference"}, fmt.Errorf("webhook: target %s is an unresolved secret reference", url)
	}
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(Envelope{Event: eventType, Payload: payload, SentAt: n.now().UTC()})
	if err != nil {
		return workflow.DeliveryResult{Error: err.Error()}, fmt.Errorf("encode webhook body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return workflow.DeliveryResult{Error: "invalid webhook url"}, fmt.Errorf("build webhook request for %s: invalid url", shown)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgentHeader)
	req.Header.Set(eventHeader, eventType)
	for k, v := range n.headers {
		if secrets.IsRef(v) {
			if v, err = secrets.ResolveString(v, n.secrets); err != nil {
				return workflow.DeliveryResult{Error: err.Error()}, fmt.Errorf("webhook header %s: %w", k, err)
			}
		}
		req.Header.Set(k, v)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		var uerr *neturl.Error
		if errors.As(err, &uerr) {
			err = fmt.Errorf("post %s: %w", shown, uerr.Err)
		}
		logging.Warn("webhook", "delivery failed", "endpoint", shown, "event", eventType, "error", err)
		return workflow.DeliveryResult{Error: err.Error()}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = resp.Status
		}
		logging.Warn("webhook", "delivery rejected", "endpoint", shown, "event", eventType, "status", resp.StatusCode)
		return workflow.DeliveryResult{StatusCode: resp.StatusCode, Error: msg}, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	logging.Debug("webhook", "delivered", "endpoint", shown, "event", eventType, "status", resp.StatusCode)
	return workflow.DeliveryResult{Success: true, StatusCode: resp.StatusCode}, nil
}

// endpoint reduces a url to scheme and host.
func endpoint(raw string) string {
	u, err := neturl.Parse(raw)
	if err != nil || u.Host == "" {
		return "invalid-url"
	}
	return u.Scheme + "://" + u.Host
}
