// Package credential implements component D: minting short-lived model
// credentials so the carrier-facing document builder (E) and the Bridge
// (G) never handle the long-lived API key directly (spec.md §4.4).
package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/birddigital/voicebridge/internal/bridgeerr"
	"github.com/birddigital/voicebridge/internal/metrics"
	"github.com/birddigital/voicebridge/pkg/sessionconfig"
)

// Timeout bounds the outbound mint request. There is no retry; callers
// that need a fresh credential must call Mint again.
const Timeout = 15 * time.Second

// WebhookRef is an optional pointer to a webhook the model may call back
// during the session, forwarded only when the caller supplies one.
type WebhookRef struct {
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

// Request is the mint contract's input.
type Request struct {
	ExpiresAfterSeconds int
	Session             map[string]any
	Webhook             *WebhookRef
}

// Result is the mint contract's output.
type Result struct {
	Token     string
	ExpiresAt time.Time
}

// Minter mints ephemeral credentials against the model's credential
// endpoint.
type Minter struct {
	endpoint   string
	apiKey     string
	orgID      string
	projectID  string
	httpClient *http.Client
}

// New builds a Minter for the given credential endpoint and API key.
func New(endpoint, apiKey, orgID, projectID string) *Minter {
	return &Minter{
		endpoint:  endpoint,
		apiKey:    apiKey,
		orgID:     orgID,
		projectID: projectID,
		httpClient: &http.Client{
			Timeout: Timeout,
		},
	}
}

type outboundPayload struct {
	ExpiresAfter int             `json:"expires_after,omitempty"`
	Session      map[string]any  `json:"session"`
	Webhook      *WebhookRef     `json:"webhook,omitempty"`
}

// expiresAfterMin and expiresAfterMax bound ExpiresAfterSeconds (spec.md §6
// "Validation surface").
const (
	expiresAfterMin = 60
	expiresAfterMax = 3600
)

// Mint sanitizes req.Session down to the fields the credential endpoint
// accepts and performs the mint POST.
func (m *Minter) Mint(ctx context.Context, req Request) (*Result, error) {
	if req.ExpiresAfterSeconds < expiresAfterMin || req.ExpiresAfterSeconds > expiresAfterMax {
		return nil, bridgeerr.New(bridgeerr.KindInputInvalid, fmt.Errorf(
			"expires_after_seconds %d out of range [%d,%d]", req.ExpiresAfterSeconds, expiresAfterMin, expiresAfterMax))
	}

	sanitized := sessionconfig.SanitizeForCredential(req.Session)

	payload := outboundPayload{
		ExpiresAfter: req.ExpiresAfterSeconds,
		Session:      sanitized,
		Webhook:      req.Webhook,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, bridgeerr.New(bridgeerr.KindCredentialMintFailed, fmt.Errorf("encoding mint request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, bridgeerr.New(bridgeerr.KindCredentialMintFailed, fmt.Errorf("building mint request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	if m.orgID != "" {
		httpReq.Header.Set("OpenAI-Organization", m.orgID)
	}
	if m.projectID != "" {
		httpReq.Header.Set("OpenAI-Project", m.projectID)
	}

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		metrics.CredentialMints.WithLabelValues("error").Inc()
		return nil, bridgeerr.New(bridgeerr.KindCredentialMintFailed, fmt.Errorf("mint request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.CredentialMints.WithLabelValues("error").Inc()
		return nil, bridgeerr.New(bridgeerr.KindCredentialMintFailed, fmt.Errorf("reading mint response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.CredentialMints.WithLabelValues("error").Inc()
		return nil, bridgeerr.New(bridgeerr.KindCredentialMintFailed, fmt.Errorf("mint endpoint returned %d", resp.StatusCode)).
			WithUpstream(resp.StatusCode, respBody)
	}

	result, err := parseMintResponse(respBody)
	if err != nil {
		metrics.CredentialMints.WithLabelValues("error").Inc()
		return nil, bridgeerr.New(bridgeerr.KindCredentialMintFailed, err).WithUpstream(resp.StatusCode, respBody)
	}

	metrics.CredentialMints.WithLabelValues("ok").Inc()
	return result, nil
}

// parseMintResponse accepts the three shapes spec.md §4.4 names:
//
//	{client_secret: {value, expires_at}}
//	{client_secret: string, expires_at}
//	{value: string, expires_at}
func parseMintResponse(body []byte) (*Result, error) {
	var generic map[string]any
	if err := json.Unmarshal(body, &generic); err != nil {
		return nil, fmt.Errorf("decoding mint response: %w", err)
	}

	if errMsg, ok := generic["error"]; ok {
		return nil, fmt.Errorf("mint endpoint reported an error: %v", errMsg)
	}

	if cs, ok := generic["client_secret"]; ok {
		switch v := cs.(type) {
		case map[string]any:
			value, _ := v["value"].(string)
			if value == "" {
				return nil, fmt.Errorf("mint response client_secret.value missing")
			}
			expiresAt, err := extractExpiry(v["expires_at"])
			if err != nil {
				return nil, err
			}
			return &Result{Token: value, ExpiresAt: expiresAt}, nil
		case string:
			if v == "" {
				return nil, fmt.Errorf("mint response client_secret missing")
			}
			expiresAt, err := extractExpiry(generic["expires_at"])
			if err != nil {
				return nil, err
			}
			return &Result{Token: v, ExpiresAt: expiresAt}, nil
		}
	}

	if value, ok := generic["value"].(string); ok {
		if value == "" {
			return nil, fmt.Errorf("mint response value missing")
		}
		expiresAt, err := extractExpiry(generic["expires_at"])
		if err != nil {
			return nil, err
		}
		return &Result{Token: value, ExpiresAt: expiresAt}, nil
	}

	return nil, fmt.Errorf("mint response matched none of the accepted shapes")
}

func extractExpiry(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case float64:
		return time.Unix(int64(t), 0), nil
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, fmt.Errorf("unparseable expires_at %q: %w", t, err)
		}
		return parsed, nil
	default:
		return time.Time{}, fmt.Errorf("expires_at has unsupported type %T", v)
	}
}
