package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/martroben/apartmentbot/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testListing(id string) *models.Listing {
	return &models.Listing{
		ID:          id,
		Portal:      models.PortalC24,
		Active:      true,
		Address:     "Kopli 64-" + id + ", Tallinn",
		AreaM2:      57.3,
		Price:       85000,
		NRooms:      2,
		DateListed:  1700000000,
		DateScraped: 1700000100,
	}
}

func TestListingLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testListing("1")
	b := testListing("2")
	if err := store.ApplyReconciliation(ctx, []*models.Listing{a, b}, nil, 0); err != nil {
		t.Fatalf("insert: %v", err)
	}

	active, err := store.ActiveListings(ctx, models.PortalC24)
	if err != nil {
		t.Fatalf("ActiveListings: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("got %d active listings, want 2", len(active))
	}
	if !active[0].ContentEqual(a) && !active[0].ContentEqual(b) {
		t.Fatalf("stored listing does not match input: %+v", active[0])
	}

	// Expire one of them.
	unlistedAt := float64(1700003600)
	if err := store.ApplyReconciliation(ctx, nil, []*models.Listing{a}, unlistedAt); err != nil {
		t.Fatalf("expire: %v", err)
	}
	active, err = store.ActiveListings(ctx, models.PortalC24)
	if err != nil {
		t.Fatalf("ActiveListings after expire: %v", err)
	}
	if len(active) != 1 || active[0].ID != "2" {
		t.Fatalf("expected only listing 2 active, got %+v", active)
	}
}

func TestApplyReconciliationSkipsConflictingRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	relisted := testListing("111")
	if err := store.ApplyReconciliation(ctx, []*models.Listing{relisted}, nil, 0); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.ApplyReconciliation(ctx, nil, []*models.Listing{relisted}, 1700003600); err != nil {
		t.Fatalf("expire: %v", err)
	}

	// A listing relisted under its old portal id collides with its own
	// expired row. The rest of the batch must still commit.
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

func TestActiveListingsScopedToPortal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	c24 := testListing("1")
	kv := testListing("9")
	kv.Portal = models.PortalKV
	if err := store.ApplyReconciliation(ctx, []*models.Listing{c24, kv}, nil, 0); err != nil {
		t.Fatalf("insert: %v", err)
	}

	active, err := store.ActiveListings(ctx, models.PortalKV)
	if err != nil {
		t.Fatalf("ActiveListings: %v", err)
	}
	if len(active) != 1 || active[0].ID != "9" {
		t.Fatalf("portal filter leaked records: %+v", active)
	}
}

func TestMarkReported(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	a := testListing("1")
	if err := store.ApplyReconciliation(ctx, []*models.Listing{a}, nil, 0); err != nil {
		t.Fatalf("insert: %v", err)
	}

	unreported, err := store.UnreportedListings(ctx)
	if err != nil {
		t.Fatalf("UnreportedListings: %v", err)
	}
	if len(unreported) != 1 {
		t.Fatalf("got %d unreported listings, want 1", len(unreported))
	}

	if err := store.MarkReported(ctx, unreported); err != nil {
		t.Fatalf("MarkReported: %v", err)
	}
	unreported, err = store.UnreportedListings(ctx)
	if err != nil {
		t.Fatalf("UnreportedListings after marking: %v", err)
	}
	if len(unreported) != 0 {
		t.Fatalf("listings still unreported after marking: %+v", unreported)
	}
}

func TestScrapeRunBookkeeping(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := &models.ScrapeRun{
		Portal:    models.PortalC24,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	id, err := store.CreateRun(ctx, run)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if id == 0 {
		t.Fatal("CreateRun returned zero id")
	}

	run.ID = id
	run.Status = models.RunStatusCompleted
	run.ListingsFound = 12
	run.ListingsNew = 3
	run.ListingsExpired = 1
	if err := store.UpdateRun(ctx, run); err != nil {
		t.Fatalf("UpdateRun: %v", err)
	}
}
