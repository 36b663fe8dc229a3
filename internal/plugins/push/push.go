package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dkeye/Callhub/internal/config"
	"github.com/dkeye/Callhub/internal/domain"
)

// Gateway errors that mean the token will never work again.
var deadTokenErrors = map[string]bool{
	"NotRegistered":       true,
	"InvalidRegistration": true,
	"Unregistered":        true,
	"InvalidToken":        true,
}

type GatewayClient struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

func NewGatewayClient(cfg config.PushConfig) *GatewayClient {
	return &GatewayClient{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: cfg.Timeout},
	}
}

type request struct {
	To           string            `json:"to"`
	Notification notification      `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type response struct {
	Error string `json:"error,omitempty"`
}

// SendPush posts one notification. It never returns an error; the outcome,
// including whether the token should be forgotten, is in the result.
func (c *GatewayClient) SendPush(ctx context.Context, token string, payload domain.PushPayload) domain.PushResult {
	res := domain.PushResult{Token: token}

	body, err := json.Marshal(request{
		To:           token,
		Notification: notification{Title: payload.Title, Body: payload.Body},
		Data:         payload.Data,
	})
	if err != nil {
		res.Err = fmt.Errorf("push marshal: %w", err)
		return res
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		res.Err = fmt.Errorf("push request: %w", err)
		return res
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		res.Err = fmt.Errorf("push send: %w", err)
		return res
	}
	defer resp.Body.Close()

	var out response
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &out)

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		res.Err = fmt.Errorf("push gateway: status %d", resp.StatusCode)
		res.ShouldRemoveToken = true
	case deadTokenErrors[out.Error]:
		res.Err = errors.New("push gateway: " + out.Error)
		res.ShouldRemoveToken = true
	case resp.StatusCode >= 300:
		res.Err = fmt.Errorf("push gateway: status %d", resp.StatusCode)
	case out.Error != "":
		res.Err = errors.New("push gateway: " + out.Error)
	default:
		res.Success = true
	}
	return res
}
