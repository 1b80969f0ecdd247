package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/martroben/apartmentbot/config"
	"github.com/martroben/apartmentbot/report"
	"github.com/martroben/apartmentbot/scraper"
)

type Scheduler struct {
	cfg          *config.Config
	orchestrator *scraper.Orchestrator
	reporter     *report.Reporter
	cron         *cron.Cron
	ticker       *time.Ticker
	stopCh       chan struct{}
}

func New(cfg *config.Config, orchestrator *scraper.Orchestrator, reporter *report.Reporter) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		orchestrator: orchestrator,
		reporter:     reporter,
		cron:         cron.New(),
		stopCh:       make(chan struct{}),
	}
}

// Start schedules scrape-then-report cycles from the cron expression,
// falling back to a fixed interval when no expression is configured.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			s.runCycle(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
	} else if s.cfg.Scheduler.Interval > 0 {
		log.Printf("Starting scheduler with interval: %s", s.cfg.Scheduler.Interval)
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.runCycle(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	} else {
		log.Println("No schedule configured, daemon is idle until stopped")
	}

	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

// TriggerNow runs a scrape-then-report cycle outside the schedule.
func (s *Scheduler) TriggerNow(ctx context.Context) {
	s.runCycle(ctx)
}

func (s *Scheduler) runCycle(ctx context.Context) {
	if err := s.orchestrator.RunAll(ctx); err != nil {
		log.Printf("Scheduled scrape error: %v", err)
	}
	if err := s.reporter.Run(ctx); err != nil {
		log.Printf("Scheduled report error: %v", err)
	}
}
