package report

import (
	"context"
	"fmt"
	"html/template"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/martroben/apartmentbot/address"
	"github.com/martroben/apartmentbot/config"
	"github.com/martroben/apartmentbot/models"
)

// ReporterStore is the slice of the storage layer reporting needs.
type ReporterStore interface {
	UnreportedListings(ctx context.Context) ([]*models.Listing, error)
	MarkReported(ctx context.Context, listings []*models.Listing) error
}

// Sender delivers one rendered email. Satisfied by Emailer.
type Sender interface {
	Send(sender string, recipients []string, subject, htmlBody string) error
}

type Reporter struct {
	store  ReporterStore
	sender Sender
	smtp   config.SMTPConfig
	cfg    config.ReportConfig
	now    func() time.Time
}

func NewReporter(store ReporterStore, sender Sender, smtpCfg config.SMTPConfig, cfg config.ReportConfig) *Reporter {
	return &Reporter{
		store:  store,
		sender: sender,
		smtp:   smtpCfg,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Run emails every unreported listing that passes the filter conditions and
// marks the successfully delivered ones as reported. Listings in emails
// that fail to send stay unreported and are retried next run.
func (r *Reporter) Run(ctx context.Context) error {
	unreported, err := r.store.UnreportedListings(ctx)
	if err != nil {
		return fmt.Errorf("load unreported listings: %w", err)
	}
	if len(unreported) == 0 {
		log.Printf("No new unreported listings")
		return nil
	}

	predicates, err := LoadPredicates(r.cfg.FilterPath)
	if err != nil {
		return fmt.Errorf("load filter conditions: %w", err)
	}
	toReport := r.filter(unreported, predicates)
	if len(predicates) > 0 {
		log.Printf("Filter conditions matched %d of %d unreported listings", len(toReport), len(unreported))
	}
	if len(toReport) == 0 {
		return nil
	}

	criteria, err := r.loadHighlightCriteria()
	if err != nil {
		return fmt.Errorf("load highlight conditions: %w", err)
	}

	type renderedListing struct {
		listing *models.Listing
		html    template.HTML
	}
	var rendered []renderedListing
	for _, l := range toReport {
		html, err := renderListing(l, r.highlight(l, criteria))
		if err != nil {
			log.Printf("Warning: could not render listing %s: %v", l, err)
			continue
		}
		rendered = append(rendered, renderedListing{listing: l, html: html})
	}

	maxPerEmail := r.cfg.MaxListingsPerEmail
	if maxPerEmail <= 0 {
		maxPerEmail = 50
	}
	emailCount := (len(rendered) + maxPerEmail - 1) / maxPerEmail

	var reported []*models.Listing
	for i := 0; i < emailCount; i++ {
		chunk := rendered[i*maxPerEmail : min((i+1)*maxPerEmail, len(rendered))]

		blocks := make([]template.HTML, len(chunk))
		for j, item := range chunk {
			blocks[j] = item.html
		}
		body, err := renderEmail(blocks, r.now(), signatures[rand.Intn(len(signatures))])
		if err != nil {
			log.Printf("Warning: could not render email %d/%d: %v", i+1, emailCount, err)
			continue
		}

		subject := r.subject(i+1, emailCount)
		if err := r.sender.Send(r.smtp.Sender, r.smtp.Recipients, subject, body); err != nil {
			log.Printf("Warning: could not send email %d/%d: %v", i+1, emailCount, err)
			continue
		}
		for _, item := range chunk {
			reported = append(reported, item.listing)
		}
	}

	if len(reported) > 0 {
		if err := r.store.MarkReported(ctx, reported); err != nil {
			return fmt.Errorf("mark reported: %w", err)
		}
	}
	log.Printf("Reported %d of %d listings in %d emails", len(reported), len(toReport), emailCount)
	return nil
}

func (r *Reporter) subject(emailNumber, emailCount int) string {
	counter := ""
	if emailCount > 1 {
		counter = fmt.Sprintf(" %d/%d", emailNumber, emailCount)
	}
	return fmt.Sprintf("\U0001F307 Your friendly neighborhood Apartmentbot%s @ %s",
		counter, r.now().Format("02-01-2006"))
}

// filter keeps listings that satisfy every predicate. A listing that cannot
// be evaluated is kept out of the report but logged, so a bad condition
// file cannot spam every listing through.
func (r *Reporter) filter(listings []*models.Listing, predicates []Predicate) []*models.Listing {
	if len(predicates) == 0 {
		return listings
	}
	var kept []*models.Listing
	for _, l := range listings {
		ok, err := EvalAll(l, predicates)
		if err != nil {
			log.Printf("Warning: could not evaluate conditions for %s: %v", l, err)
			continue
		}
		if ok {
			kept = append(kept, l)
		}
	}
	return kept
}

func (r *Reporter) loadHighlightCriteria() ([]address.Criteria, error) {
	data, err := os.ReadFile(r.cfg.HighlightPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return address.ParseCriteria(data)
}

func (r *Reporter) highlight(l *models.Listing, criteria []address.Criteria) bool {
	threshold := r.cfg.SimilarityThreshold
	if threshold == 0 {
		threshold = address.DefaultSimilarityThreshold
	}
	for _, c := range criteria {
		if c.Match(l, threshold) {
			return true
		}
	}
	return false
}
