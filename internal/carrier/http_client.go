package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fieldserve/sms-engine/pkg/circuitbreaker"
)

// HTTPConfig configures the carrier HTTP client.
type HTTPConfig struct {
	BaseURL     string
	APIKey      string
	Timeout     time.Duration
	MaxFailures int
	OpenTimeout time.Duration
}

type httpGateway struct {
	cfg     HTTPConfig
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

// NewHTTPGateway returns a Gateway backed by the carrier's REST API,
// guarded by a circuit breaker so a carrier outage fails fast instead
// of tying up dispatch workers.
func NewHTTPGateway(cfg HTTPConfig) Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &httpGateway{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "carrier",
			MaxFailures: cfg.MaxFailures,
			Timeout:     cfg.OpenTimeout,
		}),
	}
}

type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type sendResponse struct {
	ProviderRef string `json:"provider_ref"`
	ErrorCode   string `json:"error_code,omitempty"`
	ErrorDetail string `json:"error_detail,omitempty"`
}

func (g *httpGateway) Send(ctx context.Context, to, body string) (string, error) {
	var ref string
	err := g.breaker.Execute(func() error {
		var sendErr error
		ref, sendErr = g.send(ctx, to, body)
		return sendErr
	})
	return ref, err
}

func (g *httpGateway) send(ctx context.Context, to, body string) (string, error) {
	payload, err := json.Marshal(sendRequest{To: to, Body: body})
	if err != nil {
		return "", fmt.Errorf("failed to marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", NewTransientError("network", err.Error())
	}
	defer resp.Body.Close()

	var decoded sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil && resp.StatusCode < 300 {
		return "", NewTransientError("bad_response", err.Error())
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if decoded.ProviderRef == "" {
			return "", NewTransientError("bad_response", "missing provider_ref")
		}
		return decoded.ProviderRef, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", NewTransientError("rate_limited", decoded.ErrorDetail)
	case resp.StatusCode >= 500:
		return "", NewTransientError(fmt.Sprintf("http_%d", resp.StatusCode), decoded.ErrorDetail)
	default:
		// 4xx: invalid number, opted-out recipient, bad payload
		code := decoded.ErrorCode
		if code == "" {
			code = fmt.Sprintf("http_%d", resp.StatusCode)
		}
		return "", NewPermanentError(code, decoded.ErrorDetail)
	}
}
