package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/corporatepranks/storefront-backend/api/middleware"
	"github.com/corporatepranks/storefront-backend/api/responses"
	"github.com/corporatepranks/storefront-backend/api/validators"
	"github.com/corporatepranks/storefront-backend/internal/draft"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
)

// DraftSave replaces the caller's draft for a funnel.
func DraftSave(store draft.Store, logg *logger.Logger) http.HandlerFunc {
	return draftAction(store, logg, func(w http.ResponseWriter, r *http.Request, owner, funnel string) error {
		var order draft.Order
		if err := validators.DecodeJSONBody(r, &order); err != nil {
			return err
		}
		if err := store.Save(r.Context(), owner, funnel, &order); err != nil {
			return err
		}
		responses.WriteSuccess(w, order)
		return nil
	})
}

// DraftFetch returns the caller's draft for a funnel. An empty slot is a 404.
func DraftFetch(store draft.Store, logg *logger.Logger) http.HandlerFunc {
	return draftAction(store, logg, func(w http.ResponseWriter, r *http.Request, owner, funnel string) error {
		order, err := store.Load(r.Context(), owner, funnel)
		if err != nil {
			return err
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "no draft order")
		}
		responses.WriteSuccess(w, order)
		return nil
	})
}

// DraftClear empties the caller's draft slot for a funnel.
func DraftClear(store draft.Store, logg *logger.Logger) http.HandlerFunc {
	return draftAction(store, logg, func(w http.ResponseWriter, r *http.Request, owner, funnel string) error {
		if err := store.Clear(r.Context(), owner, funnel); err != nil {
			return err
		}
		responses.WriteSuccess(w, map[string]string{"status": "cleared"})
		return nil
	})
}

func draftAction(store draft.Store, logg *logger.Logger, action func(http.ResponseWriter, *http.Request, string, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "draft store unavailable"))
			return
		}
		owner := middleware.OwnerFromRequest(r)
		if owner == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, middleware.ClientIDHeader+" header required"))
			return
		}
		funnel := strings.TrimSpace(chi.URLParam(r, "funnel"))
		if err := draft.ValidateSlot(owner, funnel); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := action(w, r, owner, funnel); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
		}
	}
}
