package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/corporatepranks/storefront-backend/pkg/db/models"
	"github.com/corporatepranks/storefront-backend/pkg/enums"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
)

// Event is a domain change to publish once the surrounding transaction commits.
type Event struct {
	Type        enums.OutboxEventType
	Aggregate   enums.OutboxAggregateType
	AggregateID uuid.UUID
	Actor       *ActorRef
	Data        any
	// Schema is the payload version, 1 when unset.
	Schema     int
	OccurredAt time.Time
}

// Emitter queues events inside the caller's transaction.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event Event) error
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit wraps the event in a PayloadEnvelope and inserts the row with tx, so
// it commits or rolls back with the caller's writes.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event Event) error {
	switch {
	case tx == nil:
		return errors.New("outbox emit needs a transaction")
	case !event.Type.IsValid():
		return fmt.Errorf("unknown outbox event type %q", event.Type)
	case event.AggregateID == uuid.Nil:
		return fmt.Errorf("%s event without aggregate id", event.Type)
	}

	env, err := s.envelope(event)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", event.Type, err)
	}
	if err := s.repo.Insert(tx, models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     event.Type,
		AggregateType: event.Aggregate,
		AggregateID:   event.AggregateID,
		Payload:       raw,
	}); err != nil {
		return err
	}

	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
		"event_id":     env.EventID,
		"event_type":   string(event.Type),
		"aggregate_id": event.AggregateID.String(),
	}), "outbox.queued")
	return nil
}

func (s *Service) envelope(event Event) (PayloadEnvelope, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("encode %s payload: %w", event.Type, err)
	}
	env := PayloadEnvelope{
		Version:    max(event.Schema, 1),
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}
	if event.OccurredAt.IsZero() {
		env.OccurredAt = s.now().UTC()
	}
	return env, nil
}
