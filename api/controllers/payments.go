package controllers

import (
	"net/http"

	"github.com/corporatepranks/storefront-backend/api/responses"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
)

type PublicKeySource interface {
	ClientID() string
}

// PayPalClientID serves the public id the PayPal buttons bootstrap with.
func PayPalClientID(src PublicKeySource, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if src == nil || src.ClientID() == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "paypal is not configured"))
			return
		}
		responses.WriteSuccess(w, map[string]string{"client_id": src.ClientID()})
	}
}
