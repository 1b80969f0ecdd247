package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/martroben/apartmentbot/models"
)

// Store is the persistence contract shared by the sqlite and postgres
// backends.
type Store interface {
	// ActiveListings returns the currently listed records for one portal.
	ActiveListings(ctx context.Context, portal string) ([]*models.Listing, error)
	// ApplyReconciliation inserts new listings and deactivates expired ones
	// in a single transaction. Expired listings get date_unlisted set to
	// unlistedAt.
	ApplyReconciliation(ctx context.Context, inserted, expired []*models.Listing, unlistedAt float64) error
	// UnreportedListings returns active listings not yet sent out in a
	// report email.
	UnreportedListings(ctx context.Context) ([]*models.Listing, error)
	// MarkReported flags the given listings as reported.
	MarkReported(ctx context.Context, listings []*models.Listing) error

	CreateRun(ctx context.Context, run *models.ScrapeRun) (int64, error)
	UpdateRun(ctx context.Context, run *models.ScrapeRun) error

	Close() error
}

// sqliteColumnType derives a column type from a listing field's Go type.
func sqliteColumnType(value any) string {
	switch value.(type) {
	case bool, int, int64:
		return "INTEGER"
	case float64:
		return "REAL"
	case string:
		return "TEXT"
	default:
		return "BLOB"
	}
}

func pgColumnType(value any) string {
	switch value.(type) {
	case bool:
		return "BOOLEAN"
	case int, int64:
		return "BIGINT"
	case float64:
		return "DOUBLE PRECISION"
	case string:
		return "TEXT"
	default:
		return "BYTEA"
	}
}

// listingsSchema builds the CREATE TABLE statement for the listings table
// from the canonical field registry, so schema and model cannot drift apart.
func listingsSchema(columnType func(any) string) string {
	zero := &models.Listing{}
	fields := zero.Fields()

	var cols []string
	for _, name := range models.FieldNames() {
		if name == "id" {
			cols = append(cols, "id TEXT PRIMARY KEY NOT NULL")
			continue
		}
		cols = append(cols, fmt.Sprintf("%s %s", name, columnType(fields[name])))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS listings (\n\t%s\n)", strings.Join(cols, ",\n\t"))
}

// listingValues returns a listing's field values in column order.
func listingValues(l *models.Listing) []any {
	fields := l.Fields()
	values := make([]any, 0, len(fields))
	for _, name := range models.FieldNames() {
		values = append(values, fields[name])
	}
	return values
}

// scanTargets returns scan destinations in column order for one listing.
func scanTargets(l *models.Listing) []any {
	return []any{
		&l.ID,
		&l.Portal,
		&l.Active,
		&l.Reported,
		&l.URL,
		&l.ImageURL,
		&l.Address,
		&l.City,
		&l.Street,
		&l.HouseNumber,
		&l.ApartmentNumber,
		&l.NRooms,
		&l.AreaM2,
		&l.Price,
		&l.ConstructionYear,
		&l.DateListed,
		&l.DateScraped,
		&l.DateUnlisted,
	}
}
