package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tmakori/sokohub-backend/pkg/config"
	"github.com/tmakori/sokohub-backend/pkg/logger"
)

const defaultTimeout = 10 * time.Second

var (
	errSecretKeyRequired     = errors.New("paystack secret key is required")
	errWebhookSecretRequired = errors.New("paystack webhook secret is required")
)

// Client talks to the Paystack REST API. It covers the handful of
// endpoints the platform needs: initializing transactions and refunds.
type Client struct {
	baseURL       string
	secretKey     string
	webhookSecret string
	httpClient    *http.Client
}

// InitiateRequest starts a hosted checkout transaction.
type InitiateRequest struct {
	Reference   string `json:"reference"`
	AmountMinor int    `json:"amount"`
	Currency    string `json:"currency"`
	Email       string `json:"email"`
	CallbackURL string `json:"callback_url,omitempty"`
}

// InitiateResponse carries the provider-side handles for a new transaction.
type InitiateResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// RefundRequest asks the provider to return funds for a settled transaction.
type RefundRequest struct {
	TransactionRef string `json:"transaction"`
	AmountMinor    int    `json:"amount,omitempty"`
}

// RefundResponse reports the provider's refund handle and state.
type RefundResponse struct {
	RefundRef string `json:"refund_reference"`
	Status    string `json:"status"`
}

type apiEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// NewClient validates the provider configuration and builds the HTTP client.
func NewClient(ctx context.Context, cfg config.ProviderConfig, logg *logger.Logger) (*Client, error) {
	secretKey := strings.TrimSpace(cfg.SecretKey)
	if secretKey == "" {
		return nil, errSecretKeyRequired
	}
	webhookSecret := strings.TrimSpace(cfg.WebhookSecret)
	if webhookSecret == "" {
		return nil, errWebhookSecretRequired
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}

	if logg != nil {
		logg.Info(ctx, "paystack client initialized")
	}

	return &Client{
		baseURL:       baseURL,
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		httpClient:    &http.Client{Timeout: timeout},
	}, nil
}

// Initiate creates a transaction and returns the hosted checkout handles.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	if req.Reference == "" {
		return nil, errors.New("transaction reference is required")
	}
	if req.AmountMinor <= 0 {
		return nil, errors.New("amount must be positive")
	}
	var out InitiateResponse
	if err := c.post(ctx, "/transaction/initialize", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refund requests a refund for the given transaction reference. A zero
// amount refunds the full transaction.
func (c *Client) Refund(ctx context.Context, req RefundRequest) (*RefundResponse, error) {
	if req.TransactionRef == "" {
		return nil, errors.New("transaction reference is required")
	}
	var out RefundResponse
	if err := c.post(ctx, "/refund", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifySignature checks the x-paystack-signature header against the
// HMAC-SHA512 of the raw webhook body.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(c.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paystack %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("decode response (%d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 400 || !envelope.Status {
		return fmt.Errorf("paystack %s failed (%d): %s", path, resp.StatusCode, envelope.Message)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode response data: %w", err)
		}
	}
	return nil
}
