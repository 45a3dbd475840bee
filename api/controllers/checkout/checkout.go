package checkout

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tmakori/sokohub-backend/api/middleware"
	"github.com/tmakori/sokohub-backend/api/responses"
	"github.com/tmakori/sokohub-backend/api/validators"
	internalcheckout "github.com/tmakori/sokohub-backend/internal/checkout"
	pkgerrors "github.com/tmakori/sokohub-backend/pkg/errors"
	"github.com/tmakori/sokohub-backend/pkg/logger"
)

type shippingSelection struct {
	VendorID  string  `json:"vendor_id" validate:"required,uuid4"`
	AddressID string  `json:"address_id" validate:"required,uuid4"`
	Notes     *string `json:"notes,omitempty"`
}

type checkoutRequest struct {
	Selections []shippingSelection `json:"selections" validate:"required,min=1,dive"`
}

const maxNotesLen = 500

// Execute converts the caller's active cart into an order with one
// shipment per vendor.
func Execute(svc internalcheckout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		rawUser := middleware.UserIDFromContext(r.Context())
		buyerID, err := uuid.Parse(rawUser)
		if err != nil || rawUser == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalcheckout.CheckoutInput{
			BuyerID:   buyerID,
			ActorRole: middleware.RoleFromContext(r.Context()),
		}
		for _, sel := range req.Selections {
			vendorID, parseErr := uuid.Parse(sel.VendorID)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid vendor id"))
				return
			}
			addressID, parseErr := uuid.Parse(sel.AddressID)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, parseErr, "invalid address id"))
				return
			}
			selection := internalcheckout.VendorShippingSelection{
				VendorID:  vendorID,
				AddressID: addressID,
			}
			if sel.Notes != nil {
				clean := validators.SanitizeString(*sel.Notes, maxNotesLen)
				selection.Notes = &clean
			}
			input.Selections = append(input.Selections, selection)
		}

		result, err := svc.Execute(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
