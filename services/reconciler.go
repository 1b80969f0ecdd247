// Package services holds the logic between the portal adapters and the
// store: deciding which scraped listings are new, which stored ones have
// expired, and whether a scraped batch can be trusted at all.
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/martroben/apartmentbot/models"
)

// ErrBatchRejected means the scraped batch failed address validation and
// nothing was written. The raw payloads should be archived as unused.
var ErrBatchRejected = errors.New("scraped batch failed address validation")

// ListingStore is the slice of the storage layer reconciliation needs.
type ListingStore interface {
	ActiveListings(ctx context.Context, portal string) ([]*models.Listing, error)
	ApplyReconciliation(ctx context.Context, inserted, expired []*models.Listing, unlistedAt float64) error
}

type Reconciler struct {
	store ListingStore
	now   func() time.Time
	rng   *rand.Rand
}

func NewReconciler(store ListingStore) *Reconciler {
	return &Reconciler{
		store: store,
		now:   time.Now,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Result summarizes one reconciliation pass.
type Result struct {
	New       []*models.Listing
	Expired   []*models.Listing
	Unchanged []*models.Listing
}

// Reconcile compares one portal's scraped listings against the active set
// in the store. Listings present only in the scrape are inserted as active;
// listings present only in the store are deactivated with date_unlisted set
// to the reconciliation time. Matching is by advertised content, so a price
// change shows up as one new listing plus one expired listing.
//
// Running the same batch twice is a no-op the second time.
func (r *Reconciler) Reconcile(ctx context.Context, portal string, scraped []*models.Listing) (*Result, error) {
	scraped = dedupeByID(scraped)

	// An implausible batch (scraper blocked, layout change) must not expire
	// the whole portal. An empty batch is still trusted: it is how a portal
	// with no matching listings looks.
	if len(scraped) > 0 && !r.validateAddresses(scraped) {
		return nil, ErrBatchRejected
	}

	active, err := r.store.ActiveListings(ctx, portal)
	if err != nil {
		return nil, fmt.Errorf("load active listings: %w", err)
	}

	activeContent := make(map[models.ContentKey]bool, len(active))
	for _, l := range active {
		activeContent[l.ContentKey()] = true
	}
	scrapedContent := make(map[models.ContentKey]bool, len(scraped))
	for _, l := range scraped {
		scrapedContent[l.ContentKey()] = true
	}

	now := float64(r.now().Unix())
	result := &Result{}

	for _, l := range scraped {
		if activeContent[l.ContentKey()] {
			result.Unchanged = append(result.Unchanged, l)
			continue
		}
		l.Active = true
		if l.DateListed == 0 {
			l.DateListed = now
		}
		result.New = append(result.New, l)
	}
	for _, l := range active {
		if scrapedContent[l.ContentKey()] {
			continue
		}
		result.Expired = append(result.Expired, l)
	}

	if err := r.store.ApplyReconciliation(ctx, result.New, result.Expired, now); err != nil {
		return nil, fmt.Errorf("apply reconciliation: %w", err)
	}

	log.Printf("Reconciled %s: %d scraped, %d new, %d expired, %d unchanged",
		portal, len(scraped), len(result.New), len(result.Expired), len(result.Unchanged))
	return result, nil
}

// validateAddresses samples roughly 2% of the batch (at least one record)
// and accepts it if any sampled listing has a non-empty address.
func (r *Reconciler) validateAddresses(scraped []*models.Listing) bool {
	sampleSize := 1 + len(scraped)/50
	for _, i := range r.rng.Perm(len(scraped))[:sampleSize] {
		if scraped[i].Address != "" {
			return true
		}
	}
	return false
}

// dedupeByID collapses records sharing a portal id, keeping the one with
// the larger date_listed. On a tie the later record in the batch wins.
func dedupeByID(scraped []*models.Listing) []*models.Listing {
	type portalID struct {
		portal, id string
	}
	keep := make(map[portalID]*models.Listing, len(scraped))
	var order []portalID
	for _, l := range scraped {
		key := portalID{l.Portal, l.ID}
		existing, ok := keep[key]
		if !ok {
			order = append(order, key)
		}
		if !ok || l.DateListed >= existing.DateListed {
			keep[key] = l
		}
	}

	out := make([]*models.Listing, 0, len(order))
	for _, key := range order {
		out = append(out, keep[key])
	}
	return out
}
