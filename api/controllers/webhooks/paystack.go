package webhooks

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/tmakori/sokohub-backend/api/responses"
	internalpayments "github.com/tmakori/sokohub-backend/internal/payments"
	"github.com/tmakori/sokohub-backend/pkg/enums"
	pkgerrors "github.com/tmakori/sokohub-backend/pkg/errors"
	"github.com/tmakori/sokohub-backend/pkg/logger"
	"github.com/tmakori/sokohub-backend/pkg/metrics"
)

const paystackProvider = "paystack"

type signatureVerifier interface {
	VerifySignature(body []byte, signature string) bool
}

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference      string `json:"reference"`
		GatewayMessage string `json:"gateway_response"`
	} `json:"data"`
}

// Paystack applies charge outcomes reported by the payment provider.
// Duplicate deliveries are absorbed by the payment state machine, so
// the handler always acks events it has already seen.
func Paystack(svc internalpayments.Service, verifier signatureVerifier, wm *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "provider client unavailable"))
			return
		}

		if wm != nil {
			wm.IncReceived(paystackProvider)
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			recordOutcome(wm, "read_error")
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := r.Header.Get("X-Paystack-Signature")
		if signature == "" || !verifier.VerifySignature(body, signature) {
			recordOutcome(wm, "bad_signature")
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		var event paystackEvent
		if err := json.Unmarshal(body, &event); err != nil {
			recordOutcome(wm, "bad_payload")
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook payload"))
			return
		}

		var status enums.PaymentStatus
		switch event.Event {
		case "charge.success":
			status = enums.PaymentStatusCompleted
		case "charge.failed":
			status = enums.PaymentStatusFailed
		default:
			// Events outside the charge lifecycle are acked and dropped.
			recordOutcome(wm, "ignored")
			if logg != nil {
				logg.Info(ctx, fmt.Sprintf("paystack event %s ignored", event.Event))
			}
			responses.WriteSuccess(w, nil)
			return
		}

		payment, err := svc.ResolveByReference(ctx, event.Data.Reference)
		if err != nil {
			recordOutcome(wm, "unknown_reference")
			responses.WriteError(ctx, logg, w, err)
			return
		}

		input := internalpayments.UpdateStatusInput{
			PaymentID: payment.ID,
			Status:    status,
		}
		if event.Data.Reference != "" && event.Data.Reference != payment.ID.String() {
			ref := event.Data.Reference
			input.ProviderRef = &ref
		}
		if status == enums.PaymentStatusFailed {
			input.FailureReason = event.Data.GatewayMessage
		}
		input.ActorUserID = uuid.Nil

		if _, err := svc.UpdateStatus(ctx, input); err != nil {
			recordOutcome(wm, "error")
			responses.WriteError(ctx, logg, w, err)
			return
		}

		recordOutcome(wm, "applied")
		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("paystack event %s applied to payment %s", event.Event, payment.ID))
		}
		responses.WriteSuccess(w, nil)
	}
}

func recordOutcome(wm *metrics.WebhookMetrics, outcome string) {
	if wm != nil {
		wm.IncOutcome(paystackProvider, outcome)
	}
}
