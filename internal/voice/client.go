// Package voice is the client for the external voice-agent platform.
// The platform conducts the actual phone conversation and reports lifecycle
// events back through the webhook; this package never touches the telephone
// network itself.
package voice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"garagecall_backend/platform/apperr"
	"garagecall_backend/platform/config"
)

// CallRequest describes one outbound call to start.
type CallRequest struct {
	// Number is the post-safety-gate destination. Callers must resolve
	// through the safety gate before building a CallRequest.
	Number    string
	Assistant Assistant
	// Metadata is echoed back verbatim on every webhook event and carries
	// the (session id, shop id) correlation.
	Metadata map[string]string
}

// Client talks to a Vapi-style calls API over HTTP.
type Client struct {
	baseURL       string
	apiKey        string
	phoneNumberID string
	webhookURL    string
	webhookSecret string
	http          *http.Client
}

// NewClient creates a voice platform client from configuration.
func NewClient(cfg config.VoiceConfig) *Client {
	return &Client{
		baseURL:       cfg.GetVoiceAPIURL(),
		apiKey:        cfg.GetVoiceAPIKey(),
		phoneNumberID: cfg.GetVoicePhoneNumberID(),
		webhookURL:    cfg.GetWebhookBaseURL() + "/api/v1/webhook/voice",
		webhookSecret: cfg.GetWebhookSecret(),
		http:          &http.Client{Timeout: 30 * time.Second},
	}
}

type createCallPayload struct {
	PhoneNumberID string            `json:"phoneNumberId"`
	Customer      customerPayload   `json:"customer"`
	Assistant     Assistant         `json:"assistant"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Server        serverPayload     `json:"server"`
}

type customerPayload struct {
	Number string `json:"number"`
}

type serverPayload struct {
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

type createCallResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// StartCall asks the platform to place one outbound call and returns the
// external call identifier. The call itself completes asynchronously via
// webhook events.
func (c *Client) StartCall(ctx context.Context, req CallRequest) (string, error) {
	payload := createCallPayload{
		PhoneNumberID: c.phoneNumberID,
		Customer:      customerPayload{Number: req.Number},
		Assistant:     req.Assistant,
		Metadata:      req.Metadata,
		Server:        serverPayload{URL: c.webhookURL, Secret: c.webhookSecret},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/call", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", apperr.External("voice platform unreachable", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", apperr.External("voice platform response read failed", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apperr.External(
			fmt.Sprintf("voice platform returned %d: %s", resp.StatusCode, truncate(string(raw), 200)), nil)
	}

	var parsed createCallResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", apperr.External("voice platform returned malformed response", err)
	}
	if parsed.ID == "" {
		return "", apperr.External("voice platform response missing call id", nil)
	}

	return parsed.ID, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
