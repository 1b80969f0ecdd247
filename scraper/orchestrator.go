package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/martroben/apartmentbot/config"
	"github.com/martroben/apartmentbot/httputil"
	"github.com/martroben/apartmentbot/models"
	"github.com/martroben/apartmentbot/services"
	"github.com/martroben/apartmentbot/storage"
	"github.com/martroben/apartmentbot/tor"
)

// Orchestrator runs the scrape cycle for every configured portal: fetch,
// archive the raw payloads, parse, reconcile against the store.
type Orchestrator struct {
	cfg        *config.Config
	store      storage.Store
	archive    *storage.FileArchive
	reconciler *services.Reconciler
	handlers   map[string]Handler
	browser    *BrowserFetcher
}

func NewOrchestrator(
	cfg *config.Config,
	store storage.Store,
	archive *storage.FileArchive,
	reconciler *services.Reconciler,
	clients *httputil.Clients,
	torCtl *tor.Controller,
) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:        cfg,
		store:      store,
		archive:    archive,
		reconciler: reconciler,
		handlers:   make(map[string]Handler),
	}

	for id, portalCfg := range cfg.Portals {
		handler, err := NewHandler(portalCfg, clients, torCtl)
		if err != nil {
			return nil, err
		}
		if portalCfg.Handler == "browser" {
			c24, ok := handler.(*C24Handler)
			if !ok {
				return nil, fmt.Errorf("portal %s does not support the browser handler", id)
			}
			if o.browser == nil {
				o.browser = NewBrowserFetcher(cfg.Tor.SocksAddr())
			}
			c24.UseBrowser(o.browser)
		}
		o.handlers[id] = handler
	}

	return o, nil
}

func (o *Orchestrator) RunAll(ctx context.Context) error {
	for portalID := range o.handlers {
		if err := o.RunPortal(ctx, portalID); err != nil {
			log.Printf("Error running portal %s: %v", portalID, err)
		}
	}
	return nil
}

func (o *Orchestrator) RunPortal(ctx context.Context, portalID string) error {
	handler, ok := o.handlers[portalID]
	if !ok {
		return fmt.Errorf("unknown portal: %s", portalID)
	}

	run := &models.ScrapeRun{
		Portal:    portalID,
		StartedAt: time.Now(),
		Status:    models.RunStatusRunning,
	}
	runID, err := o.store.CreateRun(ctx, run)
	if err != nil {
		return err
	}
	run.ID = runID

	defer func() {
		now := time.Now()
		run.FinishedAt = &now
		if err := o.store.UpdateRun(ctx, run); err != nil {
			log.Printf("Warning: could not update run %d: %v", run.ID, err)
		}
	}()

	log.Printf("Starting scrape for %s", portalID)

	payloads, err := handler.Fetch(ctx)
	if err != nil {
		run.Status = models.RunStatusFailed
		run.ErrorsCount++
		return err
	}

	var scraped []*models.Listing
	var parsed [][]byte
	for _, payload := range payloads {
		listings, err := handler.Parse(payload)
		if err != nil {
			log.Printf("Warning: discarding unparseable %s payload: %v", portalID, err)
			run.ErrorsCount++
			o.archivePayload(portalID, payload, false)
			continue
		}
		scraped = append(scraped, listings...)
		parsed = append(parsed, payload)
	}
	run.ListingsFound = len(scraped)

	result, err := o.reconciler.Reconcile(ctx, portalID, scraped)
	if errors.Is(err, services.ErrBatchRejected) {
		run.Status = models.RunStatusRejected
		for _, payload := range parsed {
			o.archivePayload(portalID, payload, false)
		}
		return fmt.Errorf("portal %s: %w", portalID, err)
	}
	if err != nil {
		run.Status = models.RunStatusFailed
		run.ErrorsCount++
		return err
	}

	for _, payload := range parsed {
		o.archivePayload(portalID, payload, true)
	}

	run.Status = models.RunStatusCompleted
	run.ListingsNew = len(result.New)
	run.ListingsExpired = len(result.Expired)
	log.Printf("Completed %s: %d found, %d new, %d expired", portalID, run.ListingsFound, run.ListingsNew, run.ListingsExpired)
	return nil
}

func (o *Orchestrator) archivePayload(portalID string, payload []byte, used bool) {
	if o.archive == nil {
		return
	}
	if _, err := o.archive.Save(portalID, payload, used); err != nil {
		log.Printf("Warning: could not archive %s payload: %v", portalID, err)
	}
}

// PortalIDs lists the configured portals.
func (o *Orchestrator) PortalIDs() []string {
	var ids []string
	for id := range o.handlers {
		ids = append(ids, id)
	}
	return ids
}

func (o *Orchestrator) Close() {
	if o.browser != nil {
		o.browser.Close()
	}
}
