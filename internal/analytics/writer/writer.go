// Package writer loads purchase events into the BigQuery purchase table.
package writer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/sethvargo/go-retry"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/corporatepranks/storefront-backend/internal/analytics"
)

// Config controls batching and retries. Zero values take the defaults.
type Config struct {
	PurchaseTable string
	BatchSize     int
	Attempts      uint64
	BaseBackoff   time.Duration
	MaxBackoff    time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 1
	}
	if c.Attempts == 0 {
		c.Attempts = 3
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 250 * time.Millisecond
	}
	if c.MaxBackoff < c.BaseBackoff {
		c.MaxBackoff = 8 * c.BaseBackoff
	}
	return c
}

// Warehouse is satisfied by *pkg/bigquery.Client.
type Warehouse interface {
	EnsureTable(ctx context.Context, table string, schema bigquery.Schema, partitionField string) error
	InsertRows(ctx context.Context, table string, rows []any) error
}

// PurchaseSchema is the purchase_events layout, partitioned by day on occurred_at.
var PurchaseSchema = bigquery.Schema{
	{Name: "event_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "transaction_id", Type: bigquery.StringFieldType, Required: true},
	{Name: "provider", Type: bigquery.StringFieldType, Required: true},
	{Name: "flow", Type: bigquery.StringFieldType},
	{Name: "currency", Type: bigquery.StringFieldType, Required: true},
	{Name: "total_cents", Type: bigquery.IntegerFieldType, Required: true},
	{Name: "item_count", Type: bigquery.IntegerFieldType, Required: true},
	{Name: "items", Type: bigquery.JSONFieldType},
	{Name: "occurred_at", Type: bigquery.TimestampFieldType, Required: true},
	{Name: "ingested_at", Type: bigquery.TimestampFieldType, Required: true},
}

// PurchaseRow is one purchase_events row.
type PurchaseRow struct {
	EventID       string            `bigquery:"event_id"`
	TransactionID string            `bigquery:"transaction_id"`
	Provider      string            `bigquery:"provider"`
	Flow          string            `bigquery:"flow"`
	Currency      string            `bigquery:"currency"`
	TotalCents    int64             `bigquery:"total_cents"`
	ItemCount     int64             `bigquery:"item_count"`
	Items         bigquery.NullJSON `bigquery:"items"`
	OccurredAt    time.Time         `bigquery:"occurred_at"`
	IngestedAt    time.Time         `bigquery:"ingested_at"`
}

// Save keys streamed rows by event id so BigQuery drops retried duplicates
// on a best-effort basis.
func (r *PurchaseRow) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"event_id":       r.EventID,
		"transaction_id": r.TransactionID,
		"provider":       r.Provider,
		"flow":           r.Flow,
		"currency":       r.Currency,
		"total_cents":    r.TotalCents,
		"item_count":     r.ItemCount,
		"items":          r.Items,
		"occurred_at":    r.OccurredAt,
		"ingested_at":    r.IngestedAt,
	}, r.EventID, nil
}

// RowFor flattens a purchase event. Totals are stored in cents.
func RowFor(p analytics.Purchase, ingestedAt time.Time) (PurchaseRow, error) {
	items, err := jsonColumn(p.Items)
	if err != nil {
		return PurchaseRow{}, err
	}
	var units int64
	for _, item := range p.Items {
		units += int64(item.Quantity)
	}
	return PurchaseRow{
		EventID:       p.EventID.String(),
		TransactionID: p.TransactionID,
		Provider:      string(p.Provider),
		Flow:          p.Flow,
		Currency:      strings.ToLower(p.Currency),
		TotalCents:    p.TotalAmount.Shift(2).Round(0).IntPart(),
		ItemCount:     units,
		Items:         items,
		OccurredAt:    p.OccurredAt.UTC(),
		IngestedAt:    ingestedAt.UTC(),
	}, nil
}

func jsonColumn(v any) (bigquery.NullJSON, error) {
	var raw []byte
	switch typed := v.(type) {
	case nil:
		return bigquery.NullJSON{}, nil
	case json.RawMessage:
		raw = typed
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return bigquery.NullJSON{}, fmt.Errorf("encode json column: %w", err)
		}
		raw = b
	}
	if len(raw) == 0 || string(raw) == "null" {
		return bigquery.NullJSON{}, nil
	}
	return bigquery.NullJSON{Valid: true, JSONVal: string(raw)}, nil
}

// Writer buffers rows and streams them in batches.
type Writer struct {
	warehouse Warehouse
	cfg       Config
	now       func() time.Time

	mu      sync.Mutex
	pending []PurchaseRow
}

// New makes sure the purchase table exists before returning.
func New(ctx context.Context, warehouse Warehouse, cfg Config) (*Writer, error) {
	if warehouse == nil {
		return nil, errors.New("writer: warehouse is required")
	}
	cfg.PurchaseTable = strings.TrimSpace(cfg.PurchaseTable)
	if cfg.PurchaseTable == "" {
		return nil, errors.New("writer: purchase table is required")
	}
	if err := warehouse.EnsureTable(ctx, cfg.PurchaseTable, PurchaseSchema, "occurred_at"); err != nil {
		return nil, err
	}
	return &Writer{warehouse: warehouse, cfg: cfg.withDefaults(), now: time.Now}, nil
}

// InsertPurchase buffers one row and flushes once the batch is full.
func (w *Writer) InsertPurchase(ctx context.Context, p analytics.Purchase) error {
	row, err := RowFor(p, w.now())
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, row)
	if len(w.pending) < w.cfg.BatchSize {
		return nil
	}
	return w.flush(ctx)
}

// Flush writes whatever is buffered.
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flush(ctx)
}

// flush keeps the buffer when the insert fails so the rows go out with the
// next batch. Caller holds mu.
func (w *Writer) flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	rows := make([]any, len(w.pending))
	for i := range w.pending {
		rows[i] = &w.pending[i]
	}

	backoff := retry.WithMaxRetries(w.cfg.Attempts-1,
		retry.WithCappedDuration(w.cfg.MaxBackoff, retry.NewExponential(w.cfg.BaseBackoff)))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := w.warehouse.InsertRows(ctx, w.cfg.PurchaseTable, rows)
		if err != nil && transient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("insert %d rows into %s: %w", len(rows), w.cfg.PurchaseTable, err)
	}
	w.pending = w.pending[:0]
	return nil
}

// transient reports whether every failure inside err is worth retrying.
// Streaming inserts report per-row errors; one bad row makes the batch permanent.
func transient(err error) bool {
	var rows bigquery.PutMultiError
	if errors.As(err, &rows) {
		if len(rows) == 0 {
			return false
		}
		for _, row := range rows {
			if !allTransient(row.Errors) {
				return false
			}
		}
		return true
	}
	var multi bigquery.MultiError
	if errors.As(err, &multi) {
		return allTransient(multi)
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Aborted, codes.DeadlineExceeded, codes.Internal, codes.ResourceExhausted, codes.Unavailable:
			return true
		}
	}
	return false
}

func allTransient(errs []error) bool {
	if len(errs) == 0 {
		return false
	}
	for _, e := range errs {
		if !transient(e) {
			return false
		}
	}
	return true
}
