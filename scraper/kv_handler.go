package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/martroben/apartmentbot/address"
	"github.com/martroben/apartmentbot/config"
	"github.com/martroben/apartmentbot/identity"
	"github.com/martroben/apartmentbot/models"
	"github.com/martroben/apartmentbot/tor"
)

// KVHandler scrapes the kv search result pages, which are server rendered
// HTML with one <article> per listing.
type KVHandler struct {
	cfg    *config.PortalConfig
	client *http.Client
	torCtl *tor.Controller
	now    func() time.Time
}

func NewKVHandler(cfg *config.PortalConfig, client *http.Client, torCtl *tor.Controller) *KVHandler {
	return &KVHandler{
		cfg:    cfg,
		client: client,
		torCtl: torCtl,
		now:    time.Now,
	}
}

func (h *KVHandler) Portal() string {
	return models.PortalKV
}

var (
	articleRe       = regexp.MustCompile(`(?s)<article.*?</article`)
	totalListingsRe = regexp.MustCompile(`<span\s*class="large\s*stronger">.*?(\d+)\s*</span>`)
	numericRe       = regexp.MustCompile(`\d+\.?\d*`)
	digitsRe        = regexp.MustCompile(`\d+`)
	constructionRe  = regexp.MustCompile(`ehitusaasta\s*(\d{4})`)
)

// Fetch walks the paginated search results until the reported total is
// reached or a page comes back without listings.
func (h *KVHandler) Fetch(ctx context.Context) ([][]byte, error) {
	var pages [][]byte
	listingCounter := 0
	totalListings := -1

	for {
		payload, err := h.fetchPage(ctx, listingCounter)
		if err != nil {
			return nil, err
		}

		pageListings := len(articleRe.FindAll(payload, -1))
		if pageListings == 0 {
			break
		}
		pages = append(pages, payload)
		listingCounter += pageListings

		if totalListings < 0 {
			if m := totalListingsRe.FindSubmatch(payload); m != nil {
				totalListings, _ = strconv.Atoi(string(m[1]))
			}
		}
		if totalListings >= 0 && totalListings <= listingCounter {
			break
		}

		humanWait(1, 3)
	}
	return pages, nil
}

// fetchPage gets one result page, rotating the exit node when the portal
// serves a block page instead of results.
func (h *KVHandler) fetchPage(ctx context.Context, start int) ([]byte, error) {
	searchURL := h.searchURL(start)

	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		payload, err := h.get(ctx, searchURL)
		if err != nil {
			return nil, fmt.Errorf("fetch kv search page: %w", err)
		}
		if !DetectBlocking(payload) {
			return payload, nil
		}

		log.Printf("Warning: kv response looks like a block page (attempt %d/%d), rotating exit node", attempt, maxFetchAttempts)
		if h.torCtl != nil {
			if err := h.torCtl.RotateIdentity(); err != nil {
				log.Printf("Warning: could not rotate tor identity: %v", err)
			}
		}
		humanWait(5, 20)
	}
	return nil, fmt.Errorf("kv kept serving block pages after %d attempts", maxFetchAttempts)
}

func (h *KVHandler) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if h.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", h.cfg.UserAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// searchURL builds the paginated search query. Room counts map to a
// rooms_min/rooms_max range; areas become indexed city parameters.
func (h *KVHandler) searchURL(start int) string {
	params := url.Values{}
	for key, value := range h.cfg.Params {
		params.Set(key, value)
	}
	if len(h.cfg.RoomCounts) > 0 {
		minRooms, maxRooms := h.cfg.RoomCounts[0], h.cfg.RoomCounts[0]
		for _, r := range h.cfg.RoomCounts[1:] {
			if r < minRooms {
				minRooms = r
			}
			if r > maxRooms {
				maxRooms = r
			}
		}
		params.Set("rooms_min", strconv.Itoa(minRooms))
		params.Set("rooms_max", strconv.Itoa(maxRooms))
	}
	for i, area := range h.cfg.Areas {
		params.Set(fmt.Sprintf("city[%d]", i), area)
	}
	if start != 0 {
		params.Set("start", strconv.Itoa(start))
	}
	return h.cfg.BaseURL + "/et/search?" + params.Encode()
}

// Parse extracts listings from one result page. Unparseable HTML is a
// structural error; a missing field within one article logs a warning and
// stays at its zero value.
func (h *KVHandler) Parse(payload []byte) ([]*models.Listing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("parse kv page: %w", err)
	}

	var listings []*models.Listing
	doc.Find("article").Each(func(_ int, article *goquery.Selection) {
		listings = append(listings, h.listingFromArticle(article))
	})
	return listings, nil
}

func (h *KVHandler) listingFromArticle(article *goquery.Selection) *models.Listing {
	l := &models.Listing{
		Portal:      models.PortalKV,
		Active:      true,
		DateScraped: float64(h.now().Unix()),
	}

	warn := func(field, reason string) {
		log.Printf("Warning: kv listing %s: could not extract %s: %s", l, field, reason)
	}

	portalID, ok := article.Attr("data-object-id")
	if !ok {
		warn("id", "no data-object-id attribute")
	}

	if path, ok := article.Attr("data-object-url"); ok {
		l.URL = h.publicURL() + path
	} else {
		warn("url", "no data-object-url attribute")
	}

	if img, ok := article.Find("div.media img").First().Attr("data-src"); ok {
		l.ImageURL = img
	} else {
		warn("image_url", "no media image")
	}

	// The address is the first link without a class inside the description
	// block.
	addressLink := article.Find("div.description a").FilterFunction(func(_ int, s *goquery.Selection) bool {
		_, hasClass := s.Attr("class")
		return !hasClass
	}).First()
	l.Address = strings.TrimSpace(addressLink.Text())
	if l.Address == "" {
		warn("address", "no description link")
	}

	parsed := address.ParseFreeTextAddress(l.Address)
	l.City = parsed.City
	l.Street = parsed.Street
	l.HouseNumber = parsed.HouseNumber
	l.ApartmentNumber = parsed.ApartmentNumber

	if rooms := strings.TrimSpace(article.Find("div.rooms").First().Text()); rooms != "" {
		n, err := strconv.Atoi(rooms)
		if err != nil {
			warn("n_rooms", fmt.Sprintf("unexpected value %q", rooms))
		} else {
			l.NRooms = n
		}
	} else {
		warn("n_rooms", "no rooms element")
	}

	if area := numericRe.FindString(article.Find("div.area").First().Text()); area != "" {
		l.AreaM2, _ = strconv.ParseFloat(area, 64)
	} else {
		warn("area_m2", "no area element")
	}

	if price, found := extractPrice(article.Find("div.price").First()); found {
		l.Price = price
	} else {
		warn("price", "no price text")
	}

	article.Find("p.object-excerpt").EachWithBreak(func(_ int, excerpt *goquery.Selection) bool {
		if m := constructionRe.FindStringSubmatch(excerpt.Text()); m != nil {
			l.ConstructionYear, _ = strconv.Atoi(m[1])
			return false
		}
		return true
	})

	l.ID = identity.Resolve(portalID, l.AreaM2, l.Address)
	if portalID == "" {
		log.Printf("kv listing without portal id, assigned %s to %s", l.ID, l.Address)
	}
	return l
}

// extractPrice reads the price from the direct text nodes of the price
// element, skipping child tags (currency badges, per-m2 spans).
func extractPrice(price *goquery.Selection) (float64, bool) {
	var result float64
	found := false
	price.Contents().Each(func(_ int, node *goquery.Selection) {
		if goquery.NodeName(node) != "#text" {
			return
		}
		text := node.Text()
		if len(strings.TrimSpace(text)) <= 1 {
			return
		}
		digits := strings.Join(digitsRe.FindAllString(text, -1), "")
		if digits == "" {
			return
		}
		if v, err := strconv.ParseFloat(digits, 64); err == nil {
			result = v
			found = true
		}
	})
	return result, found
}

func (h *KVHandler) publicURL() string {
	if h.cfg.PublicURL != "" {
		return h.cfg.PublicURL
	}
	return h.cfg.BaseURL
}
