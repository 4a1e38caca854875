// Package testutil provides shared helpers for package tests: a migrated
// SQLite file per test and small fixtures.
//
// All helpers call t.Fatalf (through require) on failure rather than
// returning errors, since test setup failures are not recoverable.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"storefront/internal/code"
	"storefront/internal/model"
	"storefront/internal/schema"
	"storefront/internal/store"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// OpenDB returns a freshly migrated database in a temp dir, closed on cleanup.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "store.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	require.NoError(t, (&schema.Migrator{DB: db, Codes: code.Default}).Run())
	return db
}

// Product inserts a published product. Zero stock is kept as given.
func Product(t testing.TB, db *gorm.DB, title string, priceCents, stock int64) model.Product {
	t.Helper()
	now := model.NewTimestamp(time.Now())
	p := model.Product{
		Title:      title,
		Slug:       title + "-" + code.Legacy(priceCents, now.String(), stock),
		PriceCents: priceCents,
		Stock:      stock,
		Published:  true,
		Images:     []string{"uploads/" + title + ".jpg"},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, db.Create(&p).Error)
	return p
}

// Order inserts an order with the given status and line items, bypassing
// the ledger so tests can control created_at.
func Order(t testing.TB, db *gorm.DB, status model.OrderStatus, createdAt time.Time, items ...model.LineItem) model.Order {
	t.Helper()
	raw, version, err := model.EncodeLineItems(items)
	require.NoError(t, err)
	var total int64
	for _, it := range items {
		total += it.LineTotal
	}
	c, err := code.New()
	require.NoError(t, err)
	o := model.Order{
		PublicID:     &c,
		CustomerName: "Test Customer",
		ItemsJSON:    raw,
		ItemsVersion: version,
		TotalCents:   total,
		Status:       status,
		CreatedAt:    model.NewTimestamp(createdAt),
	}
	require.NoError(t, db.Create(&o).Error)
	return o
}

// Item builds a line item for fixtures.
func Item(productID int64, title string, unitCents int64, qty int) model.LineItem {
	return model.LineItem{
		ProductID: productID,
		Title:     title,
		UnitCents: unitCents,
		Quantity:  qty,
		LineTotal: unitCents * int64(qty),
		Images:    []string{},
	}
}
