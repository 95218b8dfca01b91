package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/corporatepranks/storefront-backend/pkg/config"
	"github.com/corporatepranks/storefront-backend/pkg/gcp"
	"github.com/corporatepranks/storefront-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var errNotConnected = errors.New("bigquery: client not connected")

// Client is scoped to one dataset.
type Client struct {
	bq      *bigquery.Client
	dataset *bigquery.Dataset
	logg    *logger.Logger
}

// NewClient connects and checks the dataset exists. Tables are checked (or
// created) by their writers through EnsureTable.
func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcpCfg.ProjectID)
	if project == "" {
		return nil, errors.New("bigquery: gcp project id is required")
	}
	datasetID := strings.TrimSpace(cfg.Dataset)
	if datasetID == "" {
		return nil, errors.New("bigquery: dataset is required")
	}

	bq, err := bigquery.NewClient(ctx, project, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("bigquery client: %w", err)
	}
	c := &Client{bq: bq, dataset: bq.Dataset(datasetID), logg: logg}
	if err := c.Ping(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}
	logg.Info(logg.WithField(ctx, "dataset", datasetID), "bigquery connected")
	return c, nil
}

// Ping reads the dataset metadata.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.dataset == nil {
		return errNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	if _, err := c.dataset.Metadata(ctx); err != nil {
		if notFound(err) {
			return fmt.Errorf("bigquery: dataset %q does not exist", c.dataset.DatasetID)
		}
		return fmt.Errorf("bigquery: dataset %q: %w", c.dataset.DatasetID, err)
	}
	return nil
}

// EnsureTable creates table with schema when it is missing. An existing table
// is left as is.
func (c *Client) EnsureTable(ctx context.Context, table string, schema bigquery.Schema, partitionField string) error {
	if c == nil || c.dataset == nil {
		return errNotConnected
	}
	table = strings.TrimSpace(table)
	if table == "" {
		return errors.New("bigquery: table name is required")
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	ref := c.dataset.Table(table)
	_, err := ref.Metadata(ctx)
	if err == nil {
		return nil
	}
	if !notFound(err) {
		return fmt.Errorf("bigquery: table %q: %w", table, err)
	}

	meta := &bigquery.TableMetadata{Schema: schema}
	if partitionField != "" {
		meta.TimePartitioning = &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: partitionField}
	}
	if err := ref.Create(ctx, meta); err != nil && !conflict(err) {
		return fmt.Errorf("bigquery: create table %q: %w", table, err)
	}
	c.logg.Info(c.logg.WithField(ctx, "table", table), "bigquery table created")
	return nil
}

// InsertRows streams rows into table. Rows must be structs (or pointers to
// structs) tagged for bigquery, or ValueSavers.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.dataset == nil {
		return errNotConnected
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(strings.TrimSpace(table)).Inserter().Put(ctx, rows)
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

func notFound(err error) bool { return apiStatus(err) == http.StatusNotFound }

func conflict(err error) bool { return apiStatus(err) == http.StatusConflict }

func apiStatus(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}
