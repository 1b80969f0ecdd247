package storage

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/martroben/apartmentbot/models"
)

// PostgresStore is the backend for deployments with a shared database.
// Selected by setting DATABASE_URL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	statements := []string{
		listingsSchema(pgColumnType),
		`CREATE INDEX IF NOT EXISTS idx_listings_portal_active ON listings (portal, active)`,
		`CREATE TABLE IF NOT EXISTS scrape_runs (
			id BIGSERIAL PRIMARY KEY,
			portal TEXT NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ,
			status TEXT NOT NULL,
			listings_found INTEGER DEFAULT 0,
			listings_new INTEGER DEFAULT 0,
			listings_expired INTEGER DEFAULT 0,
			errors_count INTEGER DEFAULT 0
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) ActiveListings(ctx context.Context, portal string) ([]*models.Listing, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM listings WHERE portal = $1 AND active",
		strings.Join(models.FieldNames(), ", "),
	)
	rows, err := s.pool.Query(ctx, query, portal)
	if err != nil {
		return nil, fmt.Errorf("query active listings: %w", err)
	}
	defer rows.Close()

	return collectPgListings(rows)
}

func (s *PostgresStore) UnreportedListings(ctx context.Context) ([]*models.Listing, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM listings WHERE active AND NOT reported",
		strings.Join(models.FieldNames(), ", "),
	)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query unreported listings: %w", err)
	}
	defer rows.Close()

	return collectPgListings(rows)
}

func collectPgListings(rows pgx.Rows) ([]*models.Listing, error) {
	var listings []*models.Listing
	for rows.Next() {
		l := &models.Listing{}
		if err := rows.Scan(scanTargets(l)...); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (s *PostgresStore) ApplyReconciliation(ctx context.Context, inserted, expired []*models.Listing, unlistedAt float64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	names := models.FieldNames()
	placeholders := make([]string, len(names))
	for i := range names {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	insertQuery := fmt.Sprintf(
		"INSERT INTO listings (%s) VALUES (%s)",
		strings.Join(names, ", "),
		strings.Join(placeholders, ", "),
	)
	for _, l := range inserted {
		if err := execSkipping(ctx, tx, insertQuery, listingValues(l)...); err != nil {
			log.Printf("Warning: could not insert listing %s: %v", l, err)
		}
	}

	for _, l := range expired {
		err := execSkipping(ctx, tx,
			"UPDATE listings SET active = FALSE, date_unlisted = $1 WHERE id = $2 AND portal = $3",
			unlistedAt, l.ID, l.Portal,
		)
		if err != nil {
			log.Printf("Warning: could not deactivate listing %s: %v", l, err)
		}
	}

	return tx.Commit(ctx)
}

// execSkipping runs one statement inside its own savepoint (a pgx nested
// transaction), so a failed record rolls back alone instead of aborting the
// surrounding batch transaction.
func execSkipping(ctx context.Context, tx pgx.Tx, query string, args ...any) error {
	inner, err := tx.Begin(ctx)
	if err != nil {
		return err
	}
	if _, err := inner.Exec(ctx, query, args...); err != nil {
		inner.Rollback(ctx)
		return err
	}
	return inner.Commit(ctx)
}

func (s *PostgresStore) MarkReported(ctx context.Context, listings []*models.Listing) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, l := range listings {
		if err := execSkipping(ctx, tx,
			"UPDATE listings SET reported = TRUE WHERE id = $1 AND portal = $2",
			l.ID, l.Portal,
		); err != nil {
			log.Printf("Warning: could not mark listing %s reported: %v", l, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.ScrapeRun) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		"INSERT INTO scrape_runs (portal, started_at, status) VALUES ($1, $2, $3) RETURNING id",
		run.Portal, run.StartedAt, run.Status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create run: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) UpdateRun(ctx context.Context, run *models.ScrapeRun) error {
	finishedAt := run.FinishedAt
	if finishedAt == nil {
		now := time.Now()
		finishedAt = &now
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE scrape_runs
		 SET finished_at = $1, status = $2, listings_found = $3, listings_new = $4, listings_expired = $5, errors_count = $6
		 WHERE id = $7`,
		finishedAt, run.Status, run.ListingsFound, run.ListingsNew, run.ListingsExpired, run.ErrorsCount, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
