package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/corporatepranks/storefront-backend/api/middleware"
	"github.com/corporatepranks/storefront-backend/api/responses"
	"github.com/corporatepranks/storefront-backend/api/validators"
	checkoutsvc "github.com/corporatepranks/storefront-backend/internal/checkout"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
)

// CheckoutService is the checkout orchestration the HTTP layer drives.
type CheckoutService interface {
	Start(ctx context.Context, in checkoutsvc.StartInput) (*checkoutsvc.View, error)
	Get(ctx context.Context, id string) (*checkoutsvc.View, error)
	UpdateForm(ctx context.Context, id string, fields map[string]string) (*checkoutsvc.View, error)
	PrepareSession(ctx context.Context, id string) (*checkoutsvc.View, error)
	ElementReady(ctx context.Context, id string) (*checkoutsvc.View, error)
	CreateOrder(ctx context.Context, id string) (*checkoutsvc.View, error)
	Submit(ctx context.Context, id string, in checkoutsvc.SubmitInput) (*checkoutsvc.View, error)
	Cancel(ctx context.Context, id string) (*checkoutsvc.View, error)
	ReportError(ctx context.Context, id, message string) (*checkoutsvc.View, error)
}

type startCheckoutRequest struct {
	Flow      string `json:"flow" validate:"required,oneof=cart digital funnel"`
	Funnel    string `json:"funnel,omitempty" validate:"omitempty,max=64"`
	ProductID string `json:"product_id,omitempty" validate:"omitempty,uuid"`
}

type updateFormRequest struct {
	Fields map[string]string `json:"fields" validate:"required"`
}

type submitCheckoutRequest struct {
	PaymentMethod   string `json:"payment_method,omitempty" validate:"max=255"`
	ProviderOrderID string `json:"provider_order_id,omitempty" validate:"max=255"`
}

type reportErrorRequest struct {
	Message string `json:"message" validate:"max=2000"`
}

// CheckoutStart opens a checkout instance for the caller.
func CheckoutStart(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload startCheckoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		flow, err := checkoutsvc.ParseFlow(payload.Flow)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid flow"))
			return
		}

		userID, err := optionalUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := checkoutsvc.StartInput{
			Flow:   flow,
			Funnel: strings.TrimSpace(payload.Funnel),
			Owner:  middleware.OwnerFromRequest(r),
			UserID: userID,
		}
		if payload.ProductID != "" {
			pid, err := uuid.Parse(payload.ProductID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
				return
			}
			input.ProductID = &pid
		}

		view, err := svc.Start(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, view)
	}
}

// CheckoutGet returns the current checkout snapshot.
func CheckoutGet(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return checkoutAction(svc, logg, func(r *http.Request, id string) (*checkoutsvc.View, error) {
		return svc.Get(r.Context(), id)
	})
}

// CheckoutUpdateForm merges buyer form fields and re-evaluates the gate.
func CheckoutUpdateForm(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return checkoutAction(svc, logg, func(r *http.Request, id string) (*checkoutsvc.View, error) {
		var payload updateFormRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.UpdateForm(r.Context(), id, payload.Fields)
	})
}

// CheckoutPrepareSession mints or reuses the hosted payment session.
func CheckoutPrepareSession(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return checkoutAction(svc, logg, func(r *http.Request, id string) (*checkoutsvc.View, error) {
		return svc.PrepareSession(r.Context(), id)
	})
}

// CheckoutElementReady records that the hosted widget finished mounting.
func CheckoutElementReady(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return checkoutAction(svc, logg, func(r *http.Request, id string) (*checkoutsvc.View, error) {
		return svc.ElementReady(r.Context(), id)
	})
}

// CheckoutCreateOrder mints a provider order for redirect-button flows.
func CheckoutCreateOrder(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return checkoutAction(svc, logg, func(r *http.Request, id string) (*checkoutsvc.View, error) {
		return svc.CreateOrder(r.Context(), id)
	})
}

// CheckoutSubmit confirms the payment. Declines come back as a 200 view with
// outcome=failed and the provider's notice.
func CheckoutSubmit(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return checkoutAction(svc, logg, func(r *http.Request, id string) (*checkoutsvc.View, error) {
		var payload submitCheckoutRequest
		if err := decodeOptionalBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.Submit(r.Context(), id, checkoutsvc.SubmitInput{
			PaymentMethod:   strings.TrimSpace(payload.PaymentMethod),
			ProviderOrderID: strings.TrimSpace(payload.ProviderOrderID),
		})
	})
}

// CheckoutCancel handles the redirect widget closing before approval.
func CheckoutCancel(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return checkoutAction(svc, logg, func(r *http.Request, id string) (*checkoutsvc.View, error) {
		return svc.Cancel(r.Context(), id)
	})
}

// CheckoutReportError surfaces a widget-side error.
func CheckoutReportError(svc CheckoutService, logg *logger.Logger) http.HandlerFunc {
	return checkoutAction(svc, logg, func(r *http.Request, id string) (*checkoutsvc.View, error) {
		var payload reportErrorRequest
		if err := decodeOptionalBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.ReportError(r.Context(), id, payload.Message)
	})
}

func checkoutAction(svc CheckoutService, logg *logger.Logger, action func(*http.Request, string) (*checkoutsvc.View, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		id := strings.TrimSpace(chi.URLParam(r, "checkoutID"))
		if _, err := uuid.Parse(id); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid checkout id"))
			return
		}
		view, err := action(r, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func optionalUserID(r *http.Request) (*uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return &id, nil
}

func requireUserID(r *http.Request) (uuid.UUID, error) {
	id, err := optionalUserID(r)
	if err != nil {
		return uuid.Nil, err
	}
	if id == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	return *id, nil
}

// decodeOptionalBody tolerates an empty body for action endpoints.
func decodeOptionalBody(r *http.Request, dest any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return validators.DecodeJSONBody(r, dest)
}
