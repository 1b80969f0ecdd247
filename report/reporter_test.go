package report

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/martroben/apartmentbot/config"
	"github.com/martroben/apartmentbot/models"
)

type fakeReporterStore struct {
	unreported []*models.Listing
	reported   []*models.Listing
}

func (s *fakeReporterStore) UnreportedListings(context.Context) ([]*models.Listing, error) {
	return s.unreported, nil
}

func (s *fakeReporterStore) MarkReported(_ context.Context, listings []*models.Listing) error {
	s.reported = append(s.reported, listings...)
	return nil
}

type fakeSender struct {
	sent     []string // html bodies
	subjects []string
	failWith error
}

func (s *fakeSender) Send(_ string, _ []string, subject, htmlBody string) error {
	if s.failWith != nil {
		return s.failWith
	}
	s.sent = append(s.sent, htmlBody)
	s.subjects = append(s.subjects, subject)
	return nil
}

func reportListing(id string, price float64) *models.Listing {
	return &models.Listing{
		ID:         id,
		Portal:     models.PortalKV,
		Active:     true,
		URL:        "https://www2.kv.ee/et/obj/" + id,
		Address:    "Kopli tn 64-5, Tallinn",
		City:       "Tallinn",
		Street:     "Kopli",
		Price:      price,
		NRooms:     2,
		AreaM2:     57.3,
		DateListed: 1693560600,
	}
}

func newTestReporter(store ReporterStore, sender Sender, cfg config.ReportConfig) *Reporter {
	r := NewReporter(store, sender, config.SMTPConfig{
		Sender:     "Apartmentbot <bot@example.com>",
		Recipients: []string{"mart@example.com"},
	}, cfg)
	r.now = func() time.Time { return time.Date(2023, 9, 5, 12, 0, 0, 0, time.UTC) }
	return r
}

func emptyReportConfig(t *testing.T) config.ReportConfig {
	dir := t.TempDir()
	return config.ReportConfig{
		FilterPath:    filepath.Join(dir, "missing_filter"),
		HighlightPath: filepath.Join(dir, "missing_highlight"),
	}
}

func TestReporterSendsAndMarks(t *testing.T) {
	store := &fakeReporterStore{unreported: []*models.Listing{
		reportListing("1", 85000),
		reportListing("2", 120000),
	}}
	sender := &fakeSender{}
	r := newTestReporter(store, sender, emptyReportConfig(t))

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(sender.sent))
	}
	if len(store.reported) != 2 {
		t.Fatalf("marked %d listings reported, want 2", len(store.reported))
	}
	if !strings.Contains(sender.sent[0], "Kopli tn 64-5, Tallinn") {
		t.Fatal("email body missing listing address")
	}
	if !strings.Contains(sender.subjects[0], "05-09-2023") {
		t.Fatalf("subject missing date: %q", sender.subjects[0])
	}
	if strings.Contains(sender.subjects[0], "1/1") {
		t.Fatalf("single email should not be numbered: %q", sender.subjects[0])
	}
}

func TestReporterChunksLargeBatches(t *testing.T) {
	store := &fakeReporterStore{}
	for i := 0; i < 120; i++ {
		store.unreported = append(store.unreported, reportListing(string(rune('a'+i)), 85000))
	}
	sender := &fakeSender{}
	cfg := emptyReportConfig(t)
	cfg.MaxListingsPerEmail = 50
	r := newTestReporter(store, sender, cfg)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sender.sent) != 3 {
		t.Fatalf("sent %d emails, want 3", len(sender.sent))
	}
	if !strings.Contains(sender.subjects[0], "1/3") || !strings.Contains(sender.subjects[2], "3/3") {
		t.Fatalf("multi-email subjects not numbered: %v", sender.subjects)
	}
	if len(store.reported) != 120 {
		t.Fatalf("marked %d listings reported, want 120", len(store.reported))
	}
}

func TestReporterAppliesFilterConditions(t *testing.T) {
	store := &fakeReporterStore{unreported: []*models.Listing{
		reportListing("1", 85000),
		reportListing("2", 500000),
	}}
	sender := &fakeSender{}

	cfg := emptyReportConfig(t)
	cfg.FilterPath = filepath.Join(t.TempDir(), "filter_conditions")
	if err := os.WriteFile(cfg.FilterPath, []byte("price <= 300000\n"), 0644); err != nil {
		t.Fatalf("write filter: %v", err)
	}
	r := newTestReporter(store, sender, cfg)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.reported) != 1 || store.reported[0].ID != "1" {
		t.Fatalf("filter not applied, reported: %+v", store.reported)
	}
}

func TestReporterHighlightsWatchedAddresses(t *testing.T) {
	store := &fakeReporterStore{unreported: []*models.Listing{reportListing("1", 85000)}}
	store.unreported[0].HouseNumber = "64"
	sender := &fakeSender{}

	cfg := emptyReportConfig(t)
	cfg.HighlightPath = filepath.Join(t.TempDir(), "highlight_conditions")
	highlight := `{"city": "Tallinn", "street": "Kopli", "house_number": "64"}` + "\n"
	if err := os.WriteFile(cfg.HighlightPath, []byte(highlight), 0644); err != nil {
		t.Fatalf("write highlight: %v", err)
	}
	r := newTestReporter(store, sender, cfg)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0], "&#x1f525;") {
		t.Fatal("highlighted listing missing fire icon")
	}
}

func TestReporterLeavesUnsentUnreported(t *testing.T) {
	store := &fakeReporterStore{unreported: []*models.Listing{reportListing("1", 85000)}}
	sender := &fakeSender{failWith: errors.New("smtp down")}
	r := newTestReporter(store, sender, emptyReportConfig(t))

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.reported) != 0 {
		t.Fatalf("undelivered listings marked reported: %+v", store.reported)
	}
}

func TestReporterNoUnreportedListings(t *testing.T) {
	store := &fakeReporterStore{}
	sender := &fakeSender{}
	r := newTestReporter(store, sender, emptyReportConfig(t))

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("email sent with nothing to report")
	}
}
