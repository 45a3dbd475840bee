package paystack

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tmakori/sokohub-backend/pkg/config"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(context.Background(), config.ProviderConfig{
		BaseURL:       server.URL,
		SecretKey:     "sk_test_abc",
		WebhookSecret: "whsec_test",
	}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestInitiateSuccess(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transaction/initialize" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk_test_abc" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req InitiateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.AmountMinor != 250000 {
			t.Errorf("unexpected amount %d", req.AmountMinor)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Authorization URL created",
			"data": map[string]any{
				"authorization_url": "https://checkout.paystack.com/abc123",
				"access_code":       "abc123",
				"reference":         req.Reference,
			},
		})
	}))

	resp, err := client.Initiate(context.Background(), InitiateRequest{
		Reference:   "pay-001",
		AmountMinor: 250000,
		Currency:    "KES",
		Email:       "buyer@example.com",
	})
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if resp.Reference != "pay-001" {
		t.Fatalf("unexpected reference %q", resp.Reference)
	}
	if resp.AuthorizationURL == "" {
		t.Fatal("expected authorization url")
	}
}

func TestInitiateProviderError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  false,
			"message": "Invalid amount",
		})
	}))

	_, err := client.Initiate(context.Background(), InitiateRequest{
		Reference:   "pay-002",
		AmountMinor: 100,
		Currency:    "KES",
		Email:       "buyer@example.com",
	})
	if err == nil {
		t.Fatal("expected provider error")
	}
}

func TestRefundSuccess(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/refund" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  true,
			"message": "Refund queued",
			"data": map[string]any{
				"refund_reference": "rf-001",
				"status":           "pending",
			},
		})
	}))

	resp, err := client.Refund(context.Background(), RefundRequest{TransactionRef: "pay-001"})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if resp.RefundRef != "rf-001" {
		t.Fatalf("unexpected refund ref %q", resp.RefundRef)
	}
}

func TestVerifySignature(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	body := []byte(`{"event":"charge.success"}`)
	mac := hmac.New(sha512.New, []byte("whsec_test"))
	mac.Write(body)
	signature := hex.EncodeToString(mac.Sum(nil))

	if !client.VerifySignature(body, signature) {
		t.Fatal("expected valid signature")
	}
	if client.VerifySignature(body, "deadbeef") {
		t.Fatal("expected invalid signature to fail")
	}
	if client.VerifySignature(body, "") {
		t.Fatal("expected empty signature to fail")
	}
}

func TestNewClientRequiresSecrets(t *testing.T) {
	if _, err := NewClient(context.Background(), config.ProviderConfig{WebhookSecret: "x"}, nil); err == nil {
		t.Fatal("expected missing secret key error")
	}
	if _, err := NewClient(context.Background(), config.ProviderConfig{SecretKey: "x"}, nil); err == nil {
		t.Fatal("expected missing webhook secret error")
	}
}
