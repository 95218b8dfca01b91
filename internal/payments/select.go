package payments

import (
	"fmt"

	"github.com/corporatepranks/storefront-backend/pkg/config"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
)

// Providers groups the provider serving each widget family.
type Providers struct {
	Hosted   Provider
	Redirect Provider
}

// SelectHosted picks the hosted provider named by config.
func SelectHosted(name string, stripeProvider, squareProvider Provider) (Provider, error) {
	var p Provider
	switch name {
	case config.HostedProviderStripe, "":
		p = stripeProvider
	case config.HostedProviderSquare:
		p = squareProvider
	default:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unknown hosted provider %q", name))
	}
	if p == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("hosted provider %q not configured", name))
	}
	return p, nil
}

// For returns the provider of the given kind.
func (p Providers) For(kind Kind) (Provider, error) {
	var provider Provider
	switch kind {
	case KindHosted:
		provider = p.Hosted
	case KindRedirect:
		provider = p.Redirect
	}
	if provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("no %s payment provider configured", kind))
	}
	return provider, nil
}
