package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusRejected  RunStatus = "rejected"
)

// ScrapeRun is the bookkeeping record for one portal scrape.
type ScrapeRun struct {
	ID              int64      `json:"id" db:"id"`
	Portal          string     `json:"portal" db:"portal"`
	StartedAt       time.Time  `json:"started_at" db:"started_at"`
	FinishedAt      *time.Time `json:"finished_at" db:"finished_at"`
	Status          RunStatus  `json:"status" db:"status"`
	ListingsFound   int        `json:"listings_found" db:"listings_found"`
	ListingsNew     int        `json:"listings_new" db:"listings_new"`
	ListingsExpired int        `json:"listings_expired" db:"listings_expired"`
	ErrorsCount     int        `json:"errors_count" db:"errors_count"`
}
