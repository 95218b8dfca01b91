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
	internalorders "github.com/corporatepranks/storefront-backend/internal/orders"
	"github.com/corporatepranks/storefront-backend/pkg/enums"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
	"github.com/corporatepranks/storefront-backend/pkg/outbox"
	"github.com/corporatepranks/storefront-backend/pkg/pagination"
)

// OrderAdmin lists orders and moves them through fulfillment.
type OrderAdmin interface {
	List(ctx context.Context, kind enums.ProductType, params pagination.Params) (*internalorders.ListResult, error)
	UpdateStatus(ctx context.Context, kind enums.ProductType, id uuid.UUID, next enums.OrderStatus, actor *outbox.ActorRef) (*internalorders.Recorded, error)
}

type updateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// AdminOrderList pages through one order table, newest first.
func AdminOrderList(svc OrderAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		kind, err := orderKindParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), kind, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AdminOrderUpdateStatus moves an order forward through fulfillment.
func AdminOrderUpdateStatus(svc OrderAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		kind, err := orderKindParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseUUIDParam(r, "orderID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateOrderStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(strings.TrimSpace(payload.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		actor := &outbox.ActorRef{Role: middleware.RoleFromContext(r.Context())}
		if uid, err := optionalUserID(r); err == nil {
			actor.UserID = uid
		}

		updated, err := svc.UpdateStatus(r.Context(), kind, orderID, status, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

func orderKindParam(r *http.Request) (enums.ProductType, error) {
	kind, err := enums.ParseProductType(strings.TrimSpace(chi.URLParam(r, "kind")))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order kind")
	}
	return kind, nil
}
