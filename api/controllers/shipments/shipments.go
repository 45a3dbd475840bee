package shipments

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/tmakori/sokohub-backend/api/middleware"
	"github.com/tmakori/sokohub-backend/api/responses"
	"github.com/tmakori/sokohub-backend/api/validators"
	internalshipments "github.com/tmakori/sokohub-backend/internal/shipments"
	"github.com/tmakori/sokohub-backend/pkg/db/models"
	"github.com/tmakori/sokohub-backend/pkg/enums"
	pkgerrors "github.com/tmakori/sokohub-backend/pkg/errors"
	"github.com/tmakori/sokohub-backend/pkg/logger"
)

// orderGuard verifies the caller may see an order before its shipments
// are listed.
type orderGuard interface {
	Detail(ctx context.Context, orderID, buyerID uuid.UUID) (*models.Order, error)
}

type updateStatusRequest struct {
	Status         string  `json:"status" validate:"required"`
	Carrier        *string `json:"carrier,omitempty"`
	TrackingNumber *string `json:"tracking_number,omitempty"`
	PickupPIN      string  `json:"pickup_pin,omitempty"`
}

// UpdateStatus moves a shipment along its progress chain on the owning
// vendor's report.
func UpdateStatus(svc internalshipments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipments service unavailable"))
			return
		}

		vendorID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rawShipmentID := strings.TrimSpace(chi.URLParam(r, "shipmentId"))
		shipmentID, err := uuid.Parse(rawShipmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipment id"))
			return
		}

		var req updateStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status, err := enums.ParseShipmentStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipment status"))
			return
		}

		shipment, err := svc.UpdateStatus(r.Context(), internalshipments.UpdateStatusInput{
			ShipmentID:     shipmentID,
			VendorID:       vendorID,
			Status:         status,
			Carrier:        req.Carrier,
			TrackingNumber: req.TrackingNumber,
			PickupPIN:      req.PickupPIN,
			ActorRole:      middleware.RoleFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, shipment)
	}
}

// ListForOrder returns the shipments of one of the caller's orders.
func ListForOrder(svc internalshipments.Service, orders orderGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || orders == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "shipments service unavailable"))
			return
		}

		buyerID, err := callerID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rawOrderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
		orderID, err := uuid.Parse(rawOrderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
			return
		}

		if _, err := orders.Detail(r.Context(), orderID, buyerID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shipments, err := svc.ListForOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, shipments)
	}
}

func callerID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return id, nil
}
