package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tmakori/sokohub-backend/api/middleware"
	internalpayments "github.com/tmakori/sokohub-backend/internal/payments"
	"github.com/tmakori/sokohub-backend/pkg/db/models"
	"github.com/tmakori/sokohub-backend/pkg/enums"
	pkgerrors "github.com/tmakori/sokohub-backend/pkg/errors"
)

type stubPaymentsService struct {
	create  func(ctx context.Context, input internalpayments.CreatePaymentInput) (*internalpayments.CreatePaymentResult, error)
	refund  func(ctx context.Context, input internalpayments.RefundInput) (*models.Payment, error)
	detail  func(ctx context.Context, paymentID, buyerID uuid.UUID) (*models.Payment, error)
	resolve func(ctx context.Context, reference string) (*models.Payment, error)
	update  func(ctx context.Context, input internalpayments.UpdateStatusInput) (*models.Payment, error)
}

func (s *stubPaymentsService) Create(ctx context.Context, input internalpayments.CreatePaymentInput) (*internalpayments.CreatePaymentResult, error) {
	if s.create != nil {
		return s.create(ctx, input)
	}
	return nil, nil
}

func (s *stubPaymentsService) UpdateStatus(ctx context.Context, input internalpayments.UpdateStatusInput) (*models.Payment, error) {
	if s.update != nil {
		return s.update(ctx, input)
	}
	return nil, nil
}

func (s *stubPaymentsService) ResolveByReference(ctx context.Context, reference string) (*models.Payment, error) {
	if s.resolve != nil {
		return s.resolve(ctx, reference)
	}
	return nil, nil
}

func (s *stubPaymentsService) Refund(ctx context.Context, input internalpayments.RefundInput) (*models.Payment, error) {
	if s.refund != nil {
		return s.refund(ctx, input)
	}
	return nil, nil
}

func (s *stubPaymentsService) ExpirePending(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func (s *stubPaymentsService) Detail(ctx context.Context, paymentID, buyerID uuid.UUID) (*models.Payment, error) {
	if s.detail != nil {
		return s.detail(ctx, paymentID, buyerID)
	}
	return nil, nil
}

func authedRequest(req *http.Request, userID uuid.UUID, role enums.UserRole) *http.Request {
	ctx := middleware.WithUserID(req.Context(), userID.String())
	ctx = middleware.WithRole(ctx, string(role))
	return req.WithContext(ctx)
}

func TestCreatePaymentReturnsAuthorizationURL(t *testing.T) {
	buyerID := uuid.New()
	orderID := uuid.New()
	paymentID := uuid.New()
	expires := time.Now().UTC().Add(30 * time.Minute).Truncate(time.Second)

	svc := &stubPaymentsService{
		create: func(ctx context.Context, input internalpayments.CreatePaymentInput) (*internalpayments.CreatePaymentResult, error) {
			if input.BuyerID != buyerID || input.OrderID != orderID {
				t.Fatalf("unexpected input %+v", input)
			}
			if input.Method != enums.PaymentMethodCard || input.Currency != enums.CurrencyKES {
				t.Fatalf("method or currency not parsed")
			}
			return &internalpayments.CreatePaymentResult{
				Payment:          &models.Payment{ID: paymentID, OrderID: orderID, Status: enums.PaymentStatusPending},
				AuthorizationURL: "https://checkout.paystack.com/abc123",
				ExpiresAt:        expires,
			}, nil
		},
	}

	body := `{"order_id":"` + orderID.String() + `","amount_cents":5000,"currency":"KES","method":"card","email":"buyer@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body))
	req = authedRequest(req, buyerID, enums.UserRoleBuyer)

	resp := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data createPaymentResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.AuthorizationURL != "https://checkout.paystack.com/abc123" {
		t.Fatalf("authorization url missing from response")
	}
	if envelope.Data.Payment == nil || envelope.Data.Payment.ID != paymentID {
		t.Fatalf("payment missing from response")
	}
}

func TestCreatePaymentRejectsBadCurrency(t *testing.T) {
	svc := &stubPaymentsService{
		create: func(ctx context.Context, input internalpayments.CreatePaymentInput) (*internalpayments.CreatePaymentResult, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}

	body := `{"order_id":"` + uuid.NewString() + `","amount_cents":5000,"currency":"EUR","method":"card","email":"buyer@example.com"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body))
	req = authedRequest(req, uuid.New(), enums.UserRoleBuyer)

	resp := httptest.NewRecorder()
	Create(svc, nil).ServeHTTP(resp, req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestRefundPassesActor(t *testing.T) {
	adminID := uuid.New()
	paymentID := uuid.New()

	svc := &stubPaymentsService{
		refund: func(ctx context.Context, input internalpayments.RefundInput) (*models.Payment, error) {
			if input.PaymentID != paymentID || input.ActorUserID != adminID {
				t.Fatalf("unexpected refund input %+v", input)
			}
			if input.ActorRole != string(enums.UserRoleAdmin) {
				t.Fatalf("actor role not forwarded")
			}
			return &models.Payment{ID: paymentID, Status: enums.PaymentStatusRefunded}, nil
		},
	}

	r := chi.NewRouter()
	r.Post("/api/v1/payments/{paymentId}/refund", Refund(svc, nil))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/"+paymentID.String()+"/refund", nil)
	req = authedRequest(req, adminID, enums.UserRoleAdmin)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestRefundSurfacesProviderOutage(t *testing.T) {
	svc := &stubPaymentsService{
		refund: func(ctx context.Context, input internalpayments.RefundInput) (*models.Payment, error) {
			return nil, pkgerrors.New(pkgerrors.CodeDependency, "provider refund")
		},
	}

	r := chi.NewRouter()
	r.Post("/api/v1/payments/{paymentId}/refund", Refund(svc, nil))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/"+uuid.NewString()+"/refund", nil)
	req = authedRequest(req, uuid.New(), enums.UserRoleAdmin)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}

func TestDetailChecksOwnership(t *testing.T) {
	buyerID := uuid.New()
	paymentID := uuid.New()

	svc := &stubPaymentsService{
		detail: func(ctx context.Context, id, caller uuid.UUID) (*models.Payment, error) {
			if id != paymentID || caller != buyerID {
				t.Fatalf("unexpected detail call %s %s", id, caller)
			}
			return &models.Payment{ID: paymentID}, nil
		},
	}

	r := chi.NewRouter()
	r.Get("/api/v1/payments/{paymentId}", Detail(svc, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/"+paymentID.String(), nil)
	req = authedRequest(req, buyerID, enums.UserRoleBuyer)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}
