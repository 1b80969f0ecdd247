package storage

import (
	"context"
	"os"
	"testing"

	"github.com/martroben/apartmentbot/models"
)

// Needs a reachable database; set TEST_DATABASE_URL to run.
func newTestPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	store, err := NewPostgresStore(ctx, databaseURL)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	if _, err := store.pool.Exec(ctx, "DELETE FROM listings"); err != nil {
		t.Fatalf("clear listings: %v", err)
	}
	t.Cleanup(func() {
		store.pool.Exec(context.Background(), "DELETE FROM listings")
		store.Close()
	})
	return store
}

func TestPostgresApplyReconciliationSkipsConflictingRecords(t *testing.T) {
	store := newTestPostgresStore(t)
	ctx := context.Background()

	relisted := testListing("111")
	if err := store.ApplyReconciliation(ctx, []*models.Listing{relisted}, nil, 0); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.ApplyReconciliation(ctx, nil, []*models.Listing{relisted}, 1700003600); err != nil {
		t.Fatalf("expire: %v", err)
	}

	// A listing relisted under its old portal id collides with its own
	// expired row. The failed insert must roll back alone and the rest of
	// the batch must still commit.
	batch := []*models.Listing{testListing("111"), testListing("222")}
	if err := store.ApplyReconciliation(ctx, batch, nil, 0); err != nil {
		t.Fatalf("ApplyReconciliation: %v", err)
	}

	active, err := store.ActiveListings(ctx, models.PortalC24)
	if err != nil {
		t.Fatalf("ActiveListings: %v", err)
	}
	if len(active) != 1 || active[0].ID != "222" {
		t.Fatalf("expected only listing 222 active, got %+v", active)
	}
}
