// Package gateway is the outbound side of the payment provider integration.
// Inbound callbacks land on the webhook handler; this client only initiates
// and verifies payments.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/marketloop/wallet-service/pkg/config"
	"github.com/marketloop/wallet-service/pkg/logger"
)

type InitRequest struct {
	Reference     string
	Amount        int64 // minor units
	Currency      string
	PaymentMethod string
	CallbackURL   string
}

type InitResponse struct {
	AuthorizationURL string
	GatewayReference string
}

type Client interface {
	InitializePayment(ctx context.Context, req InitRequest) (*InitResponse, error)
	VerifyPayment(ctx context.Context, gatewayRef string) (string, error)
}

type httpClient struct {
	baseURL string
	secret  string
	client  *http.Client
}

func NewHTTPClient(cfg config.Config) Client {
	return &httpClient{
		baseURL: cfg.GatewayBaseURL,
		secret:  cfg.GatewaySecret,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *httpClient) InitializePayment(ctx context.Context, req InitRequest) (*InitResponse, error) {
	payload := map[string]interface{}{
		"reference":    req.Reference,
		"amount":       req.Amount,
		"currency":     req.Currency,
		"channel":      req.PaymentMethod,
		"callback_url": req.CallbackURL,
	}

	body, _ := json.Marshal(payload)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secret)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach payment gateway: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		logger.Error("gateway initialize error", logger.Fields{
			"status_code": resp.StatusCode,
			"body":        string(respBody),
			"reference":   req.Reference,
		})
		return nil, fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var gatewayResp struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AuthorizationURL string `json:"authorization_url"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&gatewayResp); err != nil {
		return nil, fmt.Errorf("failed to parse gateway response: %w", err)
	}
	if !gatewayResp.Status {
		return nil, fmt.Errorf("gateway initialization failed: %s", gatewayResp.Message)
	}

	ref := gatewayResp.Data.Reference
	if ref == "" {
		ref = req.Reference
	}

	return &InitResponse{
		AuthorizationURL: gatewayResp.Data.AuthorizationURL,
		GatewayReference: ref,
	}, nil
}

func (c *httpClient) VerifyPayment(ctx context.Context, gatewayRef string) (string, error) {
	url := fmt.Sprintf("%s/transaction/verify/%s", c.baseURL, gatewayRef)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	var result struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			Status string `json:"status"`
		} `json:"data"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if !result.Status {
		return "", fmt.Errorf("gateway verification failed: %s", result.Message)
	}

	return result.Data.Status, nil
}
