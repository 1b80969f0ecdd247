// Package scraper fetches listing pages from the portals and normalizes
// them into canonical records. One handler per portal: c24 consumes a JSON
// search API, kv parses server rendered HTML.
package scraper

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"time"

	"github.com/martroben/apartmentbot/config"
	"github.com/martroben/apartmentbot/httputil"
	"github.com/martroben/apartmentbot/models"
	"github.com/martroben/apartmentbot/tor"
)

// Handler scrapes one portal. Fetch returns the raw payloads (one per HTTP
// response) so they can be archived; Parse turns one payload into listings.
type Handler interface {
	Portal() string
	Fetch(ctx context.Context) ([][]byte, error)
	Parse(payload []byte) ([]*models.Listing, error)
}

func NewHandler(cfg *config.PortalConfig, clients *httputil.Clients, torCtl *tor.Controller) (Handler, error) {
	switch cfg.ID {
	case models.PortalC24:
		return NewC24Handler(cfg, clients.Scraping, torCtl), nil
	case models.PortalKV:
		return NewKVHandler(cfg, clients.Scraping, torCtl), nil
	default:
		return nil, fmt.Errorf("unknown portal: %s", cfg.ID)
	}
}

// Portals serve captcha or complaint pages with HTTP 200 when they suspect
// a bot. Three keyword hits is the threshold that separates a block page
// from a listing that happens to mention the words.
var blockingRe = regexp.MustCompile(`(?i)captcha|trouble`)

const blockingThreshold = 3

func DetectBlocking(payload []byte) bool {
	return len(blockingRe.FindAll(payload, blockingThreshold)) >= blockingThreshold
}

const maxFetchAttempts = 3

// humanWait sleeps an exponentially distributed interval clamped to a
// plausible human page-to-page range.
func humanWait(minSeconds, maxSeconds float64) {
	time.Sleep(humanWaitTime(minSeconds, maxSeconds))
}

func humanWaitTime(minSeconds, maxSeconds float64) time.Duration {
	for {
		s := rand.ExpFloat64() * 3
		if s >= minSeconds && s <= maxSeconds {
			return time.Duration(s * float64(time.Second))
		}
	}
}
