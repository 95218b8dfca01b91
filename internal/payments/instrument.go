package payments

import (
	"context"
	"time"
)

type instrumented struct {
	Provider
	obs CallObserver
}

// Instrument wraps p so every provider call is timed and every minted session counted.
func Instrument(p Provider, obs CallObserver) Provider {
	if p == nil || obs == nil {
		return p
	}
	return &instrumented{Provider: p, obs: obs}
}

func (i *instrumented) name() string {
	return string(i.Provider.Name())
}

func (i *instrumented) InitiateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	start := time.Now()
	sess, err := i.Provider.InitiateSession(ctx, req)
	i.obs.ObserveProviderCall(i.name(), "initiate", time.Since(start))
	if err == nil {
		i.obs.SessionInitiated(i.name())
	}
	return sess, err
}

func (i *instrumented) Confirm(ctx context.Context, req ConfirmRequest) (*Result, error) {
	start := time.Now()
	res, err := i.Provider.Confirm(ctx, req)
	i.obs.ObserveProviderCall(i.name(), "confirm", time.Since(start))
	return res, err
}

func (i *instrumented) Cancel(ctx context.Context, sessionID string) error {
	start := time.Now()
	err := i.Provider.Cancel(ctx, sessionID)
	i.obs.ObserveProviderCall(i.name(), "cancel", time.Since(start))
	return err
}
