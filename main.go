package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/martroben/apartmentbot/config"
	"github.com/martroben/apartmentbot/httputil"
	"github.com/martroben/apartmentbot/logging"
	"github.com/martroben/apartmentbot/report"
	"github.com/martroben/apartmentbot/scheduler"
	"github.com/martroben/apartmentbot/scraper"
	"github.com/martroben/apartmentbot/services"
	"github.com/martroben/apartmentbot/storage"
	"github.com/martroben/apartmentbot/tor"
)

var (
	scrapeNow = flag.Bool("scrape", false, "Run scrape once and exit")
	reportNow = flag.Bool("report", false, "Send report once and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logFile, err := logging.Setup(cfg.LogPath)
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting apartmentbot...")
	log.Printf("Loaded %d portal configs", len(cfg.Portals))
	for id, portal := range cfg.Portals {
		log.Printf("  - %s (%s)", portal.Name, id)
	}

	ctx := context.Background()

	var store storage.Store
	if cfg.DatabaseURL != "" {
		pgStore, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		store = pgStore
		log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.DatabaseURL))
	} else {
		sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			log.Fatalf("Failed to open SQLite: %v", err)
		}
		store = sqliteStore
		log.Printf("SQLite database: %s", cfg.DBPath)
	}
	defer store.Close()

	clients := httputil.NewClients(cfg.Tor.SocksAddr())
	torCtl := tor.NewController(cfg.Tor.ControlAddr(), cfg.Tor.ControlPassword)

	if distinct, err := tor.ProxyDistinct(clients.Scraping, clients.Direct, cfg.Tor.IPReporterURL); err != nil {
		log.Printf("Warning: could not verify proxy exit IP: %v", err)
	} else if !distinct {
		log.Println("Warning: proxied and direct requests exit with the same IP")
	}

	archive := storage.NewFileArchive(cfg.Archive.Dir, cfg.Archive.MaxSizeMB)
	reconciler := services.NewReconciler(store)

	orchestrator, err := scraper.NewOrchestrator(cfg, store, archive, reconciler, clients, torCtl)
	if err != nil {
		log.Fatalf("Failed to initialize scraper: %v", err)
	}
	defer orchestrator.Close()

	emailer := report.NewEmailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Password)
	reporter := report.NewReporter(store, emailer, cfg.SMTP, cfg.Report)

	// One-shot modes
	if *scrapeNow || *reportNow {
		if *scrapeNow {
			log.Println("Running scrape...")
			if err := orchestrator.RunAll(ctx); err != nil {
				log.Fatalf("Scrape failed: %v", err)
			}
			log.Println("Scrape complete!")
		}
		if *reportNow {
			log.Println("Sending report...")
			if err := reporter.Run(ctx); err != nil {
				log.Fatalf("Report failed: %v", err)
			}
			log.Println("Report complete!")
		}
		return
	}

	// Daemon mode
	sched := scheduler.New(cfg, orchestrator, reporter)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	sched.Stop()
	log.Println("Goodbye!")
}

// maskConnectionString masks password in connection string for logging
func maskConnectionString(connStr string) string {
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
