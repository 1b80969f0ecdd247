package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/martroben/apartmentbot/models"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	statements := []string{
		listingsSchema(sqliteColumnType),
		`CREATE INDEX IF NOT EXISTS idx_listings_portal_active ON listings (portal, active)`,
		`CREATE TABLE IF NOT EXISTS scrape_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			portal TEXT NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP,
			status TEXT NOT NULL,
			listings_found INTEGER DEFAULT 0,
			listings_new INTEGER DEFAULT 0,
			listings_expired INTEGER DEFAULT 0,
			errors_count INTEGER DEFAULT 0
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) ActiveListings(ctx context.Context, portal string) ([]*models.Listing, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM listings WHERE portal = ? AND active = 1",
		strings.Join(models.FieldNames(), ", "),
	)
	rows, err := s.db.QueryContext(ctx, query, portal)
	if err != nil {
		return nil, fmt.Errorf("query active listings: %w", err)
	}
	defer rows.Close()

	return collectListings(rows)
}

func (s *SQLiteStore) UnreportedListings(ctx context.Context) ([]*models.Listing, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM listings WHERE active = 1 AND reported = 0",
		strings.Join(models.FieldNames(), ", "),
	)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query unreported listings: %w", err)
	}
	defer rows.Close()

	return collectListings(rows)
}

func collectListings(rows *sql.Rows) ([]*models.Listing, error) {
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

// ApplyReconciliation writes one reconciliation outcome atomically. A
// failing insert or update is logged and skipped so one bad record cannot
// sink the whole batch.
func (s *SQLiteStore) ApplyReconciliation(ctx context.Context, inserted, expired []*models.Listing, unlistedAt float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	names := models.FieldNames()
	insertQuery := fmt.Sprintf(
		"INSERT INTO listings (%s) VALUES (%s)",
		strings.Join(names, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", "),
	)
	for _, l := range inserted {
		if _, err := tx.ExecContext(ctx, insertQuery, listingValues(l)...); err != nil {
			log.Printf("Warning: could not insert listing %s: %v", l, err)
		}
	}

	for _, l := range expired {
		_, err := tx.ExecContext(ctx,
			"UPDATE listings SET active = 0, date_unlisted = ? WHERE id = ? AND portal = ?",
			unlistedAt, l.ID, l.Portal,
		)
		if err != nil {
			log.Printf("Warning: could not deactivate listing %s: %v", l, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) MarkReported(ctx context.Context, listings []*models.Listing) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, l := range listings {
		if _, err := tx.ExecContext(ctx,
			"UPDATE listings SET reported = 1 WHERE id = ? AND portal = ?",
			l.ID, l.Portal,
		); err != nil {
			log.Printf("Warning: could not mark listing %s reported: %v", l, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *models.ScrapeRun) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO scrape_runs (portal, started_at, status) VALUES (?, ?, ?)",
		run.Portal, run.StartedAt, run.Status,
	)
	if err != nil {
		return 0, fmt.Errorf("create run: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *models.ScrapeRun) error {
	finishedAt := run.FinishedAt
	if finishedAt == nil {
		now := time.Now()
		finishedAt = &now
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE scrape_runs
		 SET finished_at = ?, status = ?, listings_found = ?, listings_new = ?, listings_expired = ?, errors_count = ?
		 WHERE id = ?`,
		finishedAt, run.Status, run.ListingsFound, run.ListingsNew, run.ListingsExpired, run.ErrorsCount, run.ID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
