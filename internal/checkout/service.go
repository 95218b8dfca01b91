package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/corporatepranks/storefront-backend/internal/analytics"
	"github.com/corporatepranks/storefront-backend/internal/cart"
	"github.com/corporatepranks/storefront-backend/internal/draft"
	"github.com/corporatepranks/storefront-backend/internal/orders"
	"github.com/corporatepranks/storefront-backend/internal/payments"
	"github.com/corporatepranks/storefront-backend/internal/profiles"
	gating "github.com/corporatepranks/storefront-backend/pkg/checkout"
	"github.com/corporatepranks/storefront-backend/pkg/config"
	"github.com/corporatepranks/storefront-backend/pkg/db"
	"github.com/corporatepranks/storefront-backend/pkg/db/models"
	"github.com/corporatepranks/storefront-backend/pkg/enums"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
	"github.com/corporatepranks/storefront-backend/pkg/types"
)

const (
	maxFormFields   = 20
	maxFieldLength  = 500
	genericDecline  = "We couldn't complete your payment. Please try again."
	cancelledNotice = "Payment was cancelled. You can try again when you're ready."
	pendingNotice   = "We couldn't confirm your payment yet. Retry to check its status; you won't be charged twice."
)

type productLoader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type buyerLookup interface {
	Buyer(ctx context.Context, userID uuid.UUID) (*profiles.Buyer, error)
}

type sessionStore interface {
	Create(ctx context.Context, s *models.PaymentSession) error
	Transition(ctx context.Context, provider enums.PaymentProvider, sessionID string, next enums.PaymentSessionStatus, transactionID string, lastErr error) (bool, error)
	UpdateSnapshot(ctx context.Context, provider enums.PaymentProvider, sessionID string, snapshot json.RawMessage) error
}

type orderWriter interface {
	Record(ctx context.Context, in orders.RecordInput) (*orders.Recorded, error)
}

type purchaseTracker interface {
	Purchase(ctx context.Context, p analytics.Purchase)
}

type outcomeRecorder interface {
	Outcome(flow, outcome string)
	OrderWriteFailed(kind string)
}

type noopRecorder struct{}

func (noopRecorder) Outcome(string, string)  {}
func (noopRecorder) OrderWriteFailed(string) {}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	Config    config.CheckoutConfig
	Registry  *Registry
	Drafts    draft.Store
	Carts     cart.Service
	Products  productLoader
	Buyers    buyerLookup
	Providers payments.Providers
	Sessions  sessionStore
	Orders    orderWriter
	Tracker   purchaseTracker
	Metrics   outcomeRecorder
	Logger    *logger.Logger
	Clock     func() time.Time
}

// Service orchestrates checkout instances from form entry to a recorded order.
type Service struct {
	cfg       config.CheckoutConfig
	registry  *Registry
	drafts    draft.Store
	carts     cart.Service
	products  productLoader
	buyers    buyerLookup
	providers payments.Providers
	sessions  sessionStore
	orders    orderWriter
	tracker   purchaseTracker
	metrics   outcomeRecorder
	logg      *logger.Logger
	now       func() time.Time

	sessionGroup singleflight.Group
}

// StartInput opens a checkout instance.
type StartInput struct {
	Flow      Flow
	Funnel    string
	ProductID *uuid.UUID
	Owner     string
	UserID    *uuid.UUID
}

// SubmitInput carries what the widget hands back on submit.
type SubmitInput struct {
	PaymentMethod   string `json:"payment_method"`
	ProviderOrderID string `json:"provider_order_id"`
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Drafts == nil:
		return nil, fmt.Errorf("draft store required")
	case p.Carts == nil:
		return nil, fmt.Errorf("cart service required")
	case p.Products == nil:
		return nil, fmt.Errorf("product loader required")
	case p.Sessions == nil:
		return nil, fmt.Errorf("payment session store required")
	case p.Orders == nil:
		return nil, fmt.Errorf("order writer required")
	case p.Tracker == nil:
		return nil, fmt.Errorf("purchase tracker required")
	}
	s := &Service{
		cfg:       p.Config,
		registry:  p.Registry,
		drafts:    p.Drafts,
		carts:     p.Carts,
		products:  p.Products,
		buyers:    p.Buyers,
		providers: p.Providers,
		sessions:  p.Sessions,
		orders:    p.Orders,
		tracker:   p.Tracker,
		metrics:   p.Metrics,
		logg:      p.Logger,
		now:       p.Clock,
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.metrics == nil {
		s.metrics = noopRecorder{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.cfg.Currency == "" {
		s.cfg.Currency = "usd"
	}
	if s.cfg.FreeShippingQty < 1 {
		s.cfg.FreeShippingQty = 2
	}
	if s.cfg.PaymentTimeout <= 0 {
		s.cfg.PaymentTimeout = 20 * time.Second
	}
	if s.cfg.ConfirmationPath == "" {
		s.cfg.ConfirmationPath = "/confirmation"
	}
	return s, nil
}

// Start opens a checkout instance for the flow and prefills the form from the buyer profile.
func (s *Service) Start(ctx context.Context, in StartInput) (*View, error) {
	now := s.now()
	c := &Checkout{
		id:        uuid.NewString(),
		flow:      in.Flow,
		owner:     in.Owner,
		funnel:    in.Funnel,
		userID:    in.UserID,
		createdAt: now,
		lastSeen:  now,
		state:     StateIdle,
		history:   []State{StateIdle},
		fields:    map[string]string{},
	}
	ctx = s.logg.WithCheckout(ctx, c.id, string(c.flow))

	switch in.Flow {
	case FlowFunnel:
		if err := draft.ValidateSlot(in.Owner, in.Funnel); err != nil {
			return nil, err
		}
		d, err := s.drafts.Load(ctx, in.Owner, in.Funnel)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load draft order")
		}
		if d == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no draft order")
		}
		c.draft = d
		if d.Kind() == enums.ProductTypeDigital && d.ProductID != nil {
			if p, err := s.products.Get(ctx, *d.ProductID); err == nil {
				c.product = p
			} else {
				s.logg.Warn(s.logg.WithField(ctx, "product_id", d.ProductID.String()), "draft product unavailable")
			}
		}
	case FlowCart:
		if in.UserID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to check out your cart")
		}
		store := cart.NewStore(cart.BindRemote(s.carts, *in.UserID), s.logg)
		if err := store.Resync(ctx); err != nil {
			return nil, err
		}
		if len(store.Items()) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cart is empty")
		}
		c.cart = store
	case FlowDigital:
		if in.ProductID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		p, err := s.loadDigitalProduct(ctx, *in.ProductID)
		if err != nil {
			return nil, err
		}
		c.product = p
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid checkout flow")
	}

	s.prefill(ctx, c)

	c.mu.Lock()
	s.reprice(c)
	s.evaluate(c)
	s.syncWidget(c)
	view := c.view(s.cfg.Currency)
	c.mu.Unlock()

	s.registry.put(c)
	s.logg.Info(ctx, "checkout started")
	return view, nil
}

// Get returns the current view of a checkout.
func (s *Service) Get(_ context.Context, id string) (*View, error) {
	c, err := s.registry.get(id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = s.now()
	return c.view(s.cfg.Currency), nil
}

// UpdateForm merges fields into the form and re-evaluates the gate. A valid
// form mounts the widget; an invalid one unmounts it.
func (s *Service) UpdateForm(ctx context.Context, id string, fields map[string]string) (*View, error) {
	if len(fields) > maxFormFields {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "too many form fields")
	}
	for k, v := range fields {
		if len(v) > maxFieldLength {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "form field is too long").
				WithDetails(map[string]any{"invalid_fields": []string{k}})
		}
	}
	c, err := s.registry.get(id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = s.now()
	if c.inFlight {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment already in progress")
	}
	if c.state == StateSubmitting || c.state == StateSucceeded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("form is locked while %s", c.state))
	}
	changed := false
	for k, v := range fields {
		if c.fields[k] != v {
			c.fields[k] = v
			changed = true
		}
	}
	s.evaluate(c)
	s.syncWidget(c)
	if changed {
		s.refreshSnapshot(s.logg.WithCheckout(ctx, c.id, string(c.flow)), c)
	}
	return c.view(s.cfg.Currency), nil
}

// PrepareSession mints or reuses the hosted payment session for the current
// draft total. One provider call is made per checkout and amount.
func (s *Service) PrepareSession(ctx context.Context, id string) (*View, error) {
	c, err := s.registry.get(id)
	if err != nil {
		return nil, err
	}
	if c.flow.ProviderKind() != payments.KindHosted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment sessions are prepared for hosted checkouts only")
	}
	ctx = s.logg.WithCheckout(ctx, c.id, string(c.flow))

	d, err := s.drafts.Load(ctx, c.owner, c.funnel)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load draft order")
	}
	if d == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no draft order")
	}

	c.mu.Lock()
	c.lastSeen = s.now()
	if c.inFlight {
		c.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment already in progress")
	}
	if c.state != StateIdle && c.state != StateAwaitingElementReady {
		c.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("payment session cannot change while %s", c.state))
	}
	c.draft = d
	s.reprice(c)
	s.evaluate(c)
	if err := c.form.Err(); err != nil {
		s.syncWidget(c)
		c.mu.Unlock()
		return nil, err
	}
	if !strings.Contains(c.fields[gating.FieldEmail], "@") {
		c.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "buyer email is required")
	}
	if c.session != nil && c.session.Amount.Equal(c.amount) {
		if c.state == StateIdle {
			_ = c.transition(StateAwaitingElementReady)
		}
		s.refreshSnapshot(ctx, c)
		view := c.view(s.cfg.Currency)
		c.mu.Unlock()
		return view, nil
	}
	stale := c.session
	if stale != nil {
		c.dropSession()
		if c.state == StateAwaitingElementReady {
			_ = c.transition(StateIdle)
		}
	}
	req := s.sessionRequest(c)
	snapshot := s.recordInput(c)
	c.mu.Unlock()

	provider, err := s.providers.For(payments.KindHosted)
	if err != nil {
		return nil, err
	}
	if stale != nil {
		s.discardSession(ctx, provider, stale)
	}

	session, err := s.initiateOnce(ctx, provider, c, req, snapshot)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || !c.session.Amount.Equal(c.amount) {
		c.session = session
		c.elementReady = false
	}
	if c.state == StateIdle && c.form.Valid {
		_ = c.transition(StateAwaitingElementReady)
	}
	return c.view(s.cfg.Currency), nil
}

// ElementReady records that the hosted card element finished mounting.
func (s *Service) ElementReady(_ context.Context, id string) (*View, error) {
	c, err := s.registry.get(id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = s.now()
	if c.flow.ProviderKind() != payments.KindHosted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "redirect checkouts have no payment element")
	}
	if c.state != StateAwaitingElementReady || c.session == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment element is not mounted")
	}
	c.elementReady = true
	return c.view(s.cfg.Currency), nil
}

// CreateOrder mints the provider order for a redirect checkout when the buyer
// clicks the payment button. The live total is recomputed first.
func (s *Service) CreateOrder(ctx context.Context, id string) (*View, error) {
	c, err := s.registry.get(id)
	if err != nil {
		return nil, err
	}
	if c.flow.ProviderKind() != payments.KindRedirect {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "orders are created for redirect checkouts only")
	}
	ctx = s.logg.WithCheckout(ctx, c.id, string(c.flow))

	c.mu.Lock()
	c.lastSeen = s.now()
	if c.inFlight {
		c.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment already in progress")
	}
	s.evaluate(c)
	if err := c.form.Err(); err != nil {
		s.syncWidget(c)
		c.mu.Unlock()
		return nil, err
	}
	if c.state != StateAwaitingElementReady {
		c.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment button is not available")
	}
	c.inFlight = true
	c.mu.Unlock()

	release := func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}

	if err := s.refreshSource(ctx, c); err != nil {
		release()
		return nil, err
	}

	c.mu.Lock()
	s.reprice(c)
	if !c.amount.IsPositive() {
		c.inFlight = false
		c.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "nothing to pay for")
	}
	req := s.sessionRequest(c)
	snapshot := s.recordInput(c)
	c.mu.Unlock()

	provider, err := s.providers.For(payments.KindRedirect)
	if err != nil {
		release()
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
	session, err := provider.InitiateSession(callCtx, req)
	cancel()
	if err != nil {
		release()
		s.logg.Error(ctx, "create provider order failed", err)
		return nil, providerError(err, "payment order could not be created")
	}
	s.persistSession(ctx, provider.Name(), c, session, snapshot)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	c.session = session
	c.notice = ""
	c.outcome = ""
	if err := c.transition(StateSubmitting); err != nil {
		return nil, err
	}
	return c.view(s.cfg.Currency), nil
}

// Submit confirms the payment with the provider and, on success, records the
// order, tracks the purchase, clears the draft or cart and sets the redirect.
func (s *Service) Submit(ctx context.Context, id string, in SubmitInput) (*View, error) {
	c, err := s.registry.get(id)
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithCheckout(ctx, c.id, string(c.flow))
	kind := c.flow.ProviderKind()
	provider, err := s.providers.For(kind)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.lastSeen = s.now()
	if c.inFlight {
		c.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment already in progress")
	}
	resume := c.unconfirmed
	switch {
	case kind == payments.KindHosted && !resume:
		if c.state != StateAwaitingElementReady || c.session == nil || !c.elementReady {
			c.mu.Unlock()
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment element is not ready")
		}
		s.evaluate(c)
		if err := c.form.Err(); err != nil {
			s.syncWidget(c)
			c.mu.Unlock()
			return nil, err
		}
		if err := c.transition(StateSubmitting); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	default:
		if c.state != StateSubmitting || c.session == nil {
			c.mu.Unlock()
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no provider order awaiting approval")
		}
		if kind == payments.KindRedirect && in.ProviderOrderID != c.session.ID {
			c.mu.Unlock()
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider order does not match this checkout")
		}
	}
	c.inFlight = true
	session := *c.session
	snapshot := s.recordInput(c)
	c.mu.Unlock()

	// The buyer may close the tab mid-confirm; the capture still has to land.
	detached := context.WithoutCancel(ctx)
	ctx = s.logg.WithProvider(detached, string(provider.Name()))

	if raw, err := json.Marshal(snapshot); err == nil {
		if err := s.sessions.UpdateSnapshot(ctx, provider.Name(), session.ID, raw); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "payment session snapshot not updated")
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
	result, err := provider.Confirm(callCtx, payments.ConfirmRequest{
		SessionID:     session.ID,
		CheckoutID:    c.id,
		PaymentMethod: in.PaymentMethod,
		Amount:        session.Amount,
		Currency:      session.Currency,
		BuyerEmail:    snapshot.Contact.Email,
		Resume:        resume,
	})
	cancel()
	if err != nil {
		if !rejected(err) {
			return s.pending(ctx, c, err)
		}
		s.logg.Error(ctx, "confirm payment failed", err)
		result = &payments.Result{Outcome: payments.OutcomeFailed, Message: publicMessage(err)}
	}

	switch result.Outcome {
	case payments.OutcomeSucceeded:
		return s.succeed(ctx, c, provider.Name(), session, snapshot, result)
	case payments.OutcomeCancelled:
		return s.cancelled(ctx, c, provider, &session, false)
	default:
		return s.failed(ctx, c, provider.Name(), &session, result.Message)
	}
}

// Cancel handles the buyer closing the redirect popup without approving.
func (s *Service) Cancel(ctx context.Context, id string) (*View, error) {
	c, err := s.registry.get(id)
	if err != nil {
		return nil, err
	}
	if c.flow.ProviderKind() != payments.KindRedirect {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "hosted payments cannot be cancelled")
	}
	ctx = s.logg.WithCheckout(ctx, c.id, string(c.flow))
	provider, err := s.providers.For(payments.KindRedirect)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.lastSeen = s.now()
	if c.inFlight {
		c.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment already in progress")
	}
	if c.unconfirmed {
		c.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment status is still being confirmed")
	}
	if c.state != StateSubmitting && c.state != StateAwaitingElementReady {
		c.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("nothing to cancel while %s", c.state))
	}
	var session *payments.Session
	if c.session != nil {
		cp := *c.session
		session = &cp
	}
	c.inFlight = true
	c.mu.Unlock()

	return s.cancelled(ctx, c, provider, session, true)
}

// ReportError surfaces a widget-side error. While submitting it fails the
// attempt; otherwise it only sets the notice.
func (s *Service) ReportError(ctx context.Context, id, message string) (*View, error) {
	c, err := s.registry.get(id)
	if err != nil {
		return nil, err
	}
	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = genericDecline
	}
	if len(msg) > maxFieldLength {
		msg = msg[:maxFieldLength]
	}

	c.mu.Lock()
	c.lastSeen = s.now()
	if c.inFlight {
		c.mu.Unlock()
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment already in progress")
	}
	if c.state != StateSubmitting || c.unconfirmed {
		c.notice = msg
		view := c.view(s.cfg.Currency)
		c.mu.Unlock()
		return view, nil
	}
	var session *payments.Session
	if c.session != nil {
		cp := *c.session
		session = &cp
	}
	c.inFlight = true
	c.mu.Unlock()

	provider, err := s.providers.For(c.flow.ProviderKind())
	if err != nil {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
		return nil, err
	}
	return s.failed(s.logg.WithCheckout(ctx, c.id, string(c.flow)), c, provider.Name(), session, msg)
}

// Sweep drops checkout instances idle for longer than the configured TTL.
func (s *Service) Sweep(_ context.Context) int {
	ttl := s.cfg.InstanceTTL
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return s.registry.Sweep(s.now(), ttl)
}

func (s *Service) succeed(ctx context.Context, c *Checkout, provider enums.PaymentProvider, session payments.Session, in orders.RecordInput, result *payments.Result) (*View, error) {
	in.Provider = provider
	in.TransactionID = result.TransactionID
	if in.TransactionID == "" {
		in.TransactionID = session.ID
	}
	if result.AmountPaid.IsPositive() {
		in.AmountPaid = result.AmountPaid
	}
	ctx = s.logg.WithField(ctx, "transaction_id", in.TransactionID)

	rec, err := s.orders.Record(ctx, in)
	if err != nil {
		s.logg.Error(ctx, "order write failed after capture", err)
		s.metrics.OrderWriteFailed(string(in.Kind))
		s.markSession(ctx, provider, session.ID, enums.PaymentSessionCaptured, in.TransactionID, err)
	} else {
		if rec.Duplicate {
			s.logg.Info(s.logg.WithField(ctx, "order_id", rec.ID.String()), "order already recorded")
		}
		s.markSession(ctx, provider, session.ID, enums.PaymentSessionRecorded, in.TransactionID, nil)
	}

	purchase := analytics.FromOrder(in, string(c.flow))
	purchase.OccurredAt = s.now().UTC()
	s.tracker.Purchase(ctx, purchase)
	s.clearSource(ctx, c)

	redirect := s.confirmationURL(in.TransactionID, in.Kind)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if err := c.transition(StateSucceeded); err != nil {
		return nil, err
	}
	c.unconfirmed = false
	c.outcome = payments.OutcomeSucceeded
	c.notice = ""
	c.redirect = redirect
	c.elementReady = false
	s.metrics.Outcome(string(c.flow), string(payments.OutcomeSucceeded))
	s.logg.Info(ctx, "checkout succeeded")
	return c.view(s.cfg.Currency), nil
}

func (s *Service) failed(ctx context.Context, c *Checkout, provider enums.PaymentProvider, session *payments.Session, message string) (*View, error) {
	if message == "" {
		message = genericDecline
	}
	if session != nil {
		s.markSession(ctx, provider, session.ID, enums.PaymentSessionFailed, "", errors.New(message))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if err := c.transition(StateFailed); err != nil {
		return nil, err
	}
	if err := c.transition(StateAwaitingElementReady); err != nil {
		return nil, err
	}
	c.unconfirmed = false
	c.outcome = payments.OutcomeFailed
	c.notice = message
	if c.flow.ProviderKind() == payments.KindRedirect {
		c.dropSession()
	}
	s.metrics.Outcome(string(c.flow), string(payments.OutcomeFailed))
	s.logg.Warn(s.logg.WithField(ctx, "notice", message), "payment failed")
	return c.view(s.cfg.Currency), nil
}

func (s *Service) cancelled(ctx context.Context, c *Checkout, provider payments.Provider, session *payments.Session, callProvider bool) (*View, error) {
	if session != nil {
		if callProvider {
			if err := provider.Cancel(ctx, session.ID); err != nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "provider cancel failed")
			}
		}
		s.markSession(ctx, provider.Name(), session.ID, enums.PaymentSessionCancelled, "", nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if err := c.transition(StateCancelled); err != nil {
		return nil, err
	}
	if err := c.transition(StateAwaitingElementReady); err != nil {
		return nil, err
	}
	c.unconfirmed = false
	c.outcome = payments.OutcomeCancelled
	c.notice = cancelledNotice
	c.dropSession()
	s.metrics.Outcome(string(c.flow), string(payments.OutcomeCancelled))
	s.logg.Info(ctx, "payment cancelled")
	return c.view(s.cfg.Currency), nil
}

// pending keeps the session after a confirm that ended without a verdict. The
// charge may have landed, so the buyer retries against the same session and a
// new one is never minted until the provider answers.
func (s *Service) pending(ctx context.Context, c *Checkout, err error) (*View, error) {
	s.logg.Error(ctx, "confirm payment unresolved", err)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	c.unconfirmed = true
	c.outcome = ""
	c.notice = pendingNotice
	s.metrics.Outcome(string(c.flow), "unconfirmed")
	return c.view(s.cfg.Currency), nil
}

func (s *Service) initiateOnce(ctx context.Context, provider payments.Provider, c *Checkout, req payments.SessionRequest, snapshot orders.RecordInput) (*payments.Session, error) {
	key := fmt.Sprintf("%s:%s:%d", c.id, req.Amount.StringFixed(2), req.Attempt)
	v, err, shared := s.sessionGroup.Do(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, s.cfg.PaymentTimeout)
		defer cancel()
		session, err := provider.InitiateSession(callCtx, req)
		if err != nil {
			s.logg.Error(ctx, "initiate payment session failed", err)
			return nil, providerError(err, "payment session could not be created")
		}
		s.persistSession(ctx, provider.Name(), c, session, snapshot)
		return session, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.logg.Debug(ctx, "payment session shared")
	}
	return v.(*payments.Session), nil
}

func (s *Service) persistSession(ctx context.Context, provider enums.PaymentProvider, c *Checkout, session *payments.Session, snapshot orders.RecordInput) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		s.logg.Error(ctx, "encode order snapshot", err)
		return
	}
	row := &models.PaymentSession{
		Provider:          provider,
		ProviderSessionID: session.ID,
		CheckoutID:        c.id,
		Flow:              string(c.flow),
		Amount:            session.Amount,
		Currency:          session.Currency,
		Snapshot:          raw,
		Status:            enums.PaymentSessionInitiated,
	}
	if err := s.sessions.Create(ctx, row); err != nil && !db.IsUniqueViolation(err, "") {
		s.logg.Error(s.logg.WithField(ctx, "session_id", session.ID), "persist payment session", err)
	}
}

// refreshSnapshot rewrites the order snapshot of the cached session so a
// webhook recording before Submit sees the latest form. Caller holds c.mu.
func (s *Service) refreshSnapshot(ctx context.Context, c *Checkout) {
	if c.session == nil {
		return
	}
	provider, err := s.providers.For(c.flow.ProviderKind())
	if err != nil {
		return
	}
	raw, err := json.Marshal(s.recordInput(c))
	if err != nil {
		s.logg.Error(ctx, "encode order snapshot", err)
		return
	}
	if err := s.sessions.UpdateSnapshot(ctx, provider.Name(), c.session.ID, raw); err != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"session_id": c.session.ID,
			"error":      err.Error(),
		}), "payment session snapshot not updated")
	}
}

func (s *Service) discardSession(ctx context.Context, provider payments.Provider, session *payments.Session) {
	if err := provider.Cancel(ctx, session.ID); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "session_id", session.ID), "stale payment session not cancelled")
	}
	s.markSession(ctx, provider.Name(), session.ID, enums.PaymentSessionCancelled, "", nil)
}

func (s *Service) markSession(ctx context.Context, provider enums.PaymentProvider, sessionID string, next enums.PaymentSessionStatus, transactionID string, lastErr error) {
	if _, err := s.sessions.Transition(ctx, provider, sessionID, next, transactionID, lastErr); err != nil {
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{
			"session_id": sessionID,
			"status":     string(next),
		}), "payment session transition failed", err)
	}
}

func (s *Service) clearSource(ctx context.Context, c *Checkout) {
	var err error
	switch c.flow {
	case FlowFunnel:
		err = s.drafts.Clear(ctx, c.owner, c.funnel)
	case FlowCart:
		if c.cart != nil {
			err = c.cart.Clear(ctx)
		}
	}
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "order source not cleared")
	}
}

func (s *Service) refreshSource(ctx context.Context, c *Checkout) error {
	switch c.flow {
	case FlowCart:
		if err := c.cart.Resync(ctx); err != nil {
			return err
		}
	case FlowDigital:
		c.mu.Lock()
		id := c.product.ID
		c.mu.Unlock()
		p, err := s.loadDigitalProduct(ctx, id)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.product = p
		c.mu.Unlock()
	}
	return nil
}

func (s *Service) loadDigitalProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	p, err := s.products.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Published {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	if p.ProductType != enums.ProductTypeDigital {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not a digital download")
	}
	return p, nil
}

func (s *Service) prefill(ctx context.Context, c *Checkout) {
	if c.userID == nil || s.buyers == nil {
		return
	}
	buyer, err := s.buyers.Buyer(ctx, *c.userID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "buyer prefill skipped")
		return
	}
	if buyer == nil {
		return
	}
	set := func(field, value string) {
		if value != "" {
			c.fields[field] = value
		}
	}
	set(gating.FieldEmail, buyer.Email)
	set(gating.FieldPhone, buyer.Phone)
	if c.flow == FlowDigital {
		set(gating.FieldName, buyer.FullName)
	} else {
		set(gating.FieldFullName, buyer.FullName)
	}
}

// reprice recomputes items and totals from the loaded order source. Caller holds c.mu.
func (s *Service) reprice(c *Checkout) {
	switch c.flow {
	case FlowFunnel:
		d := c.draft
		unit := d.UnitPrice
		if unit.IsZero() && d.Quantity > 0 {
			unit = d.TotalPrice.Div(decimal.NewFromInt(int64(d.Quantity))).Round(2)
		}
		c.items = types.OrderItems{{
			ProductID:     d.ProductID,
			Name:          d.ProductName,
			Quantity:      d.Quantity,
			UnitPrice:     unit,
			Variants:      d.Variants,
			Customization: d.Customization,
		}}
		c.shipping = gating.FunnelShipping(d.Quantity, s.cfg.FreeShippingQty, s.cfg.FunnelShipping)
		c.amount = gating.FunnelTotal(d.TotalPrice, d.Quantity, s.cfg.FreeShippingQty, s.cfg.FunnelShipping)
	case FlowCart:
		lines := c.cart.Items()
		items := make(types.OrderItems, 0, len(lines))
		for _, line := range lines {
			productID := line.ProductID
			items = append(items, types.OrderItem{
				ProductID: &productID,
				Name:      line.Name,
				Quantity:  line.Quantity,
				UnitPrice: line.Price,
			})
		}
		c.items = items
		c.shipping = decimal.Zero
		c.amount = cart.TotalPrice(lines).Round(2)
	case FlowDigital:
		productID := c.product.ID
		c.items = types.OrderItems{{
			ProductID: &productID,
			Name:      c.product.Name,
			Quantity:  1,
			UnitPrice: c.product.Price,
		}}
		c.shipping = decimal.Zero
		c.amount = c.product.Price.Round(2)
	}
}

// evaluate runs the flow gate. Caller holds c.mu.
func (s *Service) evaluate(c *Checkout) {
	c.form = c.flow.Gate().EvaluateAt(c.fields, s.now())
}

// syncWidget mounts or unmounts the payment widget after the gate changed.
// Hosted widgets need a session for the current amount before they mount.
// Caller holds c.mu.
func (s *Service) syncWidget(c *Checkout) {
	switch {
	case c.form.Valid && c.state == StateIdle:
		if c.flow.ProviderKind() == payments.KindRedirect ||
			(c.session != nil && c.session.Amount.Equal(c.amount)) {
			_ = c.transition(StateAwaitingElementReady)
		}
	case !c.form.Valid && c.state == StateAwaitingElementReady:
		_ = c.transition(StateIdle)
		c.elementReady = false
	}
}

// sessionRequest builds the provider request for the current totals. Caller holds c.mu.
func (s *Service) sessionRequest(c *Checkout) payments.SessionRequest {
	req := payments.SessionRequest{
		CheckoutID:  c.id,
		Flow:        string(c.flow),
		Amount:      c.amount,
		Currency:    s.cfg.Currency,
		BuyerEmail:  c.fields[gating.FieldEmail],
		Description: describe(c.items),
		Attempt:     c.attempt,
		Metadata: map[string]string{
			"checkout_id": c.id,
			"flow":        string(c.flow),
			"order_kind":  string(c.orderKind()),
		},
	}
	if c.userID != nil {
		req.UserID = c.userID.String()
	}
	if c.funnel != "" {
		req.Metadata["funnel"] = c.funnel
	}
	return req
}

// recordInput snapshots the order a successful payment will write. Caller holds c.mu.
func (s *Service) recordInput(c *Checkout) orders.RecordInput {
	in := orders.RecordInput{
		Kind:       c.orderKind(),
		UserID:     c.userID,
		CheckoutID: c.id,
		Contact:    contactFrom(c.fields),
		Items:      c.items,
		AmountPaid: c.amount,
		Shipping:   c.shipping,
		Currency:   s.cfg.Currency,
	}
	switch c.flow {
	case FlowFunnel:
		in.ProductID = c.draft.ProductID
		in.Interval = c.draft.Variants["interval"]
		if c.product != nil {
			in.ContentURL = c.product.ContentURL
		}
	case FlowDigital:
		productID := c.product.ID
		in.ProductID = &productID
		in.ContentURL = c.product.ContentURL
	}
	return in
}

func (s *Service) confirmationURL(transactionID string, kind enums.ProductType) string {
	q := url.Values{}
	q.Set("order", transactionID)
	q.Set("type", string(kind))
	return s.cfg.ConfirmationPath + "?" + q.Encode()
}

func contactFrom(fields map[string]string) orders.Contact {
	name := strings.TrimSpace(fields[gating.FieldFullName])
	if name == "" {
		name = strings.TrimSpace(fields[gating.FieldName])
	}
	contact := orders.Contact{
		Name:       name,
		Email:      strings.TrimSpace(fields[gating.FieldEmail]),
		Phone:      strings.TrimSpace(fields[gating.FieldPhone]),
		Address:    strings.TrimSpace(fields[gating.FieldAddress]),
		City:       strings.TrimSpace(fields[gating.FieldCity]),
		PostalCode: strings.TrimSpace(fields[gating.FieldPostalCode]),
	}
	if raw := strings.TrimSpace(fields[gating.FieldDeliveryDate]); raw != "" {
		if d, err := time.Parse(gating.DeliveryDateLayout, raw); err == nil {
			contact.DeliveryDate = &d
		}
	}
	return contact
}

func describe(items types.OrderItems) string {
	switch len(items) {
	case 0:
		return "Corporate Pranks order"
	case 1:
		return items[0].Name
	default:
		return fmt.Sprintf("%s and %d more", items[0].Name, len(items)-1)
	}
}

// providerError keeps validation errors and hides transport details behind a generic message.
func providerError(err error, message string) error {
	if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}

// rejected reports whether the provider answered with a definite refusal, as
// opposed to a transport failure that leaves the charge unknown.
func rejected(err error) bool {
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeDeclined, pkgerrors.CodeValidation, pkgerrors.CodeNotFound:
		return true
	}
	return false
}

func publicMessage(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		switch typed.Code() {
		case pkgerrors.CodeDeclined, pkgerrors.CodeValidation:
			return typed.Message()
		}
	}
	return genericDecline
}
