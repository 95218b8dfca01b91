package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/corporatepranks/storefront-backend/api/responses"
	"github.com/corporatepranks/storefront-backend/api/validators"
	cartsvc "github.com/corporatepranks/storefront-backend/internal/cart"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
)

type addCartItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
}

type setQuantityRequest struct {
	Quantity int `json:"quantity" validate:"min=0,max=100"`
}

// CartFetch returns the caller's cart with its derived total.
func CartFetch(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartAction(svc, logg, func(r *http.Request, userID uuid.UUID) (*cartsvc.View, error) {
		return svc.View(r.Context(), userID)
	})
}

// CartAddItem adds one unit of a product, incrementing an existing line.
func CartAddItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartAction(svc, logg, func(r *http.Request, userID uuid.UUID) (*cartsvc.View, error) {
		var payload addCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		productID, err := uuid.Parse(payload.ProductID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id")
		}
		return svc.Add(r.Context(), userID, productID)
	})
}

// CartSetQuantity changes a line quantity. Zero is rejected by the service.
func CartSetQuantity(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartAction(svc, logg, func(r *http.Request, userID uuid.UUID) (*cartsvc.View, error) {
		itemID, err := parseUUIDParam(r, "itemID")
		if err != nil {
			return nil, err
		}
		var payload setQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			return nil, err
		}
		return svc.SetQuantity(r.Context(), userID, itemID, payload.Quantity)
	})
}

// CartRemoveItem drops one line.
func CartRemoveItem(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartAction(svc, logg, func(r *http.Request, userID uuid.UUID) (*cartsvc.View, error) {
		itemID, err := parseUUIDParam(r, "itemID")
		if err != nil {
			return nil, err
		}
		return svc.Remove(r.Context(), userID, itemID)
	})
}

// CartClear empties the cart.
func CartClear(svc cartsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return cartAction(svc, logg, func(r *http.Request, userID uuid.UUID) (*cartsvc.View, error) {
		if err := svc.Clear(r.Context(), userID); err != nil {
			return nil, err
		}
		return &cartsvc.View{Items: []cartsvc.Item{}}, nil
	})
}

func cartAction(svc cartsvc.Service, logg *logger.Logger, action func(*http.Request, uuid.UUID) (*cartsvc.View, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable"))
			return
		}
		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := action(r, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}
