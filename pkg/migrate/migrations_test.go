package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/corporatepranks/storefront-backend/pkg/migrate"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := migrate.Validate(migrate.Embedded()); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
	onDisk, _ := filepath.Glob(filepath.Join("migrations", "*.sql"))
	embedded, _ := fs.Glob(migrate.Embedded(), "*.sql")
	if len(onDisk) == 0 || len(onDisk) != len(embedded) {
		t.Fatalf("embedded %d migrations, %d on disk", len(embedded), len(onDisk))
	}
}

func TestOrderTablesCarryTransactionUniqueness(t *testing.T) {
	content := readMigration(t, "*_create_order_tables.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS physical_orders",
		"CREATE TABLE IF NOT EXISTS digital_orders",
		"CREATE TABLE IF NOT EXISTS subscription_orders",
		"physical_orders_provider_txn_key UNIQUE (payment_provider, provider_transaction_id)",
		"digital_orders_provider_txn_key UNIQUE (payment_provider, provider_transaction_id)",
		"subscription_orders_provider_txn_key UNIQUE (payment_provider, provider_transaction_id)",
		"CREATE TYPE order_status AS ENUM ('Pending', 'Paid', 'Completed')",
		"delivered_at timestamptz",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestCartItemsEnforcePositiveQuantity(t *testing.T) {
	content := readMigration(t, "*_create_cart_items_table.sql")
	if !strings.Contains(content, "CHECK (quantity >= 1)") {
		t.Fatalf("cart_items must reject non-positive quantities")
	}
	if !strings.Contains(content, "cart_items_user_product_key UNIQUE (user_id, product_id)") {
		t.Fatalf("cart_items must keep one row per product")
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Blog Posts!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_blog_posts.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "1_bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := migrate.ValidateDir(dir); err == nil {
		t.Fatal("expected invalid filename to fail validation")
	}
}

func TestValidateRejectsDuplicateVersionsAndMissingMarkers(t *testing.T) {
	up := []byte("-- +goose Up\n-- +goose Down\n")
	cases := map[string]fstest.MapFS{
		"duplicate version": {
			"20261001090000_a.sql": {Data: up},
			"20261001090000_b.sql": {Data: up},
		},
		"no down": {
			"20261001090000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			if err := migrate.Validate(fsys); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := fs.Glob(migrate.Embedded(), pattern)
	if err != nil || len(matches) == 0 {
		t.Fatalf("no migration matching %s (%v)", pattern, err)
	}
	data, err := fs.ReadFile(migrate.Embedded(), matches[0])
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	return string(data)
}
