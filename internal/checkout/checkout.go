package checkout

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/corporatepranks/storefront-backend/internal/cart"
	"github.com/corporatepranks/storefront-backend/internal/draft"
	"github.com/corporatepranks/storefront-backend/internal/payments"
	gating "github.com/corporatepranks/storefront-backend/pkg/checkout"
	"github.com/corporatepranks/storefront-backend/pkg/db/models"
	"github.com/corporatepranks/storefront-backend/pkg/enums"
	pkgerrors "github.com/corporatepranks/storefront-backend/pkg/errors"
	"github.com/corporatepranks/storefront-backend/pkg/types"
)

// Flow names where a checkout takes its order from.
type Flow string

const (
	FlowCart    Flow = "cart"
	FlowDigital Flow = "digital"
	FlowFunnel  Flow = "funnel"
)

// ParseFlow validates raw input.
func ParseFlow(value string) (Flow, error) {
	switch Flow(value) {
	case FlowCart, FlowDigital, FlowFunnel:
		return Flow(value), nil
	}
	return "", fmt.Errorf("invalid checkout flow %q", value)
}

// ProviderKind returns the widget family serving the flow.
func (f Flow) ProviderKind() payments.Kind {
	if f == FlowFunnel {
		return payments.KindHosted
	}
	return payments.KindRedirect
}

// Gate returns the form gate of the flow.
func (f Flow) Gate() gating.Gate {
	switch f {
	case FlowCart:
		return gating.CartGate()
	case FlowDigital:
		return gating.DigitalGate()
	default:
		return gating.FunnelGate()
	}
}

// Checkout is one checkout page instance. All fields are guarded by mu;
// provider calls run with mu released and inFlight set.
type Checkout struct {
	mu sync.Mutex

	id        string
	flow      Flow
	owner     string
	funnel    string
	userID    *uuid.UUID
	createdAt time.Time
	lastSeen  time.Time

	draft   *draft.Order
	product *models.Product
	cart    *cart.Store

	fields   map[string]string
	form     gating.Result
	amount   decimal.Decimal
	shipping decimal.Decimal
	items    types.OrderItems

	state        State
	history      []State
	session      *payments.Session
	attempt      int
	elementReady bool
	inFlight     bool
	// unconfirmed is set while the last confirm of session ended without a verdict.
	unconfirmed bool

	outcome  payments.Outcome
	notice   string
	redirect string
}

// View is the client-facing snapshot of a checkout instance.
type View struct {
	ID            string                `json:"id"`
	Flow          Flow                  `json:"flow"`
	State         State                 `json:"state"`
	FormValid     bool                  `json:"form_valid"`
	MissingFields []string              `json:"missing_fields,omitempty"`
	InvalidFields []gating.InvalidField `json:"invalid_fields,omitempty"`
	Fields        map[string]string     `json:"fields,omitempty"`
	Items         types.OrderItems      `json:"items"`
	Amount        decimal.Decimal       `json:"amount"`
	Shipping      decimal.Decimal       `json:"shipping"`
	Currency      string                `json:"currency"`
	Session       *payments.Session     `json:"session,omitempty"`
	ElementReady  bool                  `json:"element_ready"`
	Unconfirmed   bool                  `json:"unconfirmed,omitempty"`
	Outcome       payments.Outcome      `json:"outcome,omitempty"`
	Notice        string                `json:"notice,omitempty"`
	Redirect      string                `json:"redirect,omitempty"`
}

// ID returns the instance id.
func (c *Checkout) ID() string { return c.id }

func (c *Checkout) transition(next State) error {
	if !c.state.CanTransitionTo(next) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("checkout cannot move from %s to %s", c.state, next))
	}
	c.state = next
	c.history = append(c.history, next)
	return nil
}

// dropSession forgets the provider session. The next one is minted under a new attempt.
func (c *Checkout) dropSession() {
	c.session = nil
	c.elementReady = false
	c.attempt++
}

func (c *Checkout) orderKind() enums.ProductType {
	switch c.flow {
	case FlowDigital:
		return enums.ProductTypeDigital
	case FlowFunnel:
		return c.draft.Kind()
	default:
		return enums.ProductTypePhysical
	}
}

func (c *Checkout) view(currency string) *View {
	v := &View{
		ID:            c.id,
		Flow:          c.flow,
		State:         c.state,
		FormValid:     c.form.Valid,
		MissingFields: c.form.Missing,
		InvalidFields: c.form.Invalid,
		Fields:        copyFields(c.fields),
		Items:         c.items,
		Amount:        c.amount,
		Shipping:      c.shipping,
		Currency:      currency,
		ElementReady:  c.elementReady,
		Unconfirmed:   c.unconfirmed,
		Outcome:       c.outcome,
		Notice:        c.notice,
		Redirect:      c.redirect,
	}
	if c.session != nil {
		s := *c.session
		v.Session = &s
	}
	return v
}

func copyFields(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
