package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/martroben/apartmentbot/address"
	"github.com/martroben/apartmentbot/config"
	"github.com/martroben/apartmentbot/identity"
	"github.com/martroben/apartmentbot/models"
	"github.com/martroben/apartmentbot/tor"
)

// c24PublicBaseURL is where listing detail pages live; the search API
// itself is on a separate host.
const c24PublicBaseURL = "https://www.city24.ee/real-estate"

// C24Handler queries the c24 mobile search API, which returns the full
// result set as one JSON array.
type C24Handler struct {
	cfg     *config.PortalConfig
	client  *http.Client
	torCtl  *tor.Controller
	browser *BrowserFetcher
	now     func() time.Time
}

func NewC24Handler(cfg *config.PortalConfig, client *http.Client, torCtl *tor.Controller) *C24Handler {
	return &C24Handler{
		cfg:    cfg,
		client: client,
		torCtl: torCtl,
		now:    time.Now,
	}
}

// UseBrowser routes fetches through a real browser instead of the plain
// HTTP client. Needed when the API starts fingerprinting TLS clients.
func (h *C24Handler) UseBrowser(b *BrowserFetcher) {
	h.browser = b
}

func (h *C24Handler) Portal() string {
	return models.PortalC24
}

func (h *C24Handler) Fetch(ctx context.Context) ([][]byte, error) {
	searchURL := h.searchURL()

	var payload []byte
	var err error
	for attempt := 1; attempt <= maxFetchAttempts; attempt++ {
		if h.browser != nil {
			payload, err = h.browser.FetchJSON(ctx, searchURL)
		} else {
			payload, err = h.get(ctx, searchURL)
		}
		if err != nil {
			return nil, fmt.Errorf("fetch c24 search page: %w", err)
		}
		if !DetectBlocking(payload) {
			return [][]byte{payload}, nil
		}

		log.Printf("Warning: c24 response looks like a block page (attempt %d/%d), rotating exit node", attempt, maxFetchAttempts)
		if h.torCtl != nil {
			if err := h.torCtl.RotateIdentity(); err != nil {
				log.Printf("Warning: could not rotate tor identity: %v", err)
			}
		}
		humanWait(5, 20)
	}
	return nil, fmt.Errorf("c24 kept serving block pages after %d attempts", maxFetchAttempts)
}

func (h *C24Handler) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if h.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", h.cfg.UserAgent)
	}
	req.Header.Set("Accept", "application/json")

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

// searchURL builds the API query: sale listings, apartments only, the
// configured city areas and room counts. Five rooms and up collapse into
// the "5+" bucket.
func (h *C24Handler) searchURL() string {
	params := url.Values{}
	params.Set("tsType", "sale")
	params.Set("unitType", "Apartment")
	params.Set("itemsPerPage", "500")
	for key, value := range h.cfg.Params {
		params.Set(key, value)
	}
	for i, area := range h.cfg.Areas {
		params.Set(fmt.Sprintf("address[city][%d]", i), area)
	}
	for _, rooms := range h.cfg.RoomCounts {
		bucket := strconv.Itoa(rooms)
		if rooms >= 5 {
			bucket = "5+"
		}
		params.Add("roomCount", bucket)
	}
	return h.cfg.BaseURL + "?" + params.Encode()
}

// Parse normalizes one API response. A malformed response is a structural
// error; a missing field within one record only logs a warning and leaves
// the field at its zero value.
func (h *C24Handler) Parse(payload []byte) ([]*models.Listing, error) {
	var records []map[string]any
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("parse c24 response: %w", err)
	}

	listings := make([]*models.Listing, 0, len(records))
	for _, record := range records {
		listings = append(listings, h.listingFromRecord(record))
	}
	return listings, nil
}

func (h *C24Handler) listingFromRecord(record map[string]any) *models.Listing {
	l := &models.Listing{
		Portal:      models.PortalC24,
		Active:      true,
		DateScraped: float64(h.now().Unix()),
	}

	warn := func(field string, err error) {
		log.Printf("Warning: c24 listing %s: could not extract %s: %v", l, field, err)
	}

	portalID, err := digString(record, "id")
	if err != nil {
		warn("id", err)
	}
	friendlyID, err := digString(record, "friendly_id")
	if err != nil {
		warn("friendly_id", err)
	}

	if l.Street, err = digString(record, "address", "street", "name"); err != nil {
		warn("street", err)
	}
	if l.HouseNumber, err = digString(record, "address", "house_number"); err != nil {
		warn("house_number", err)
	}
	if l.ApartmentNumber, err = digString(record, "address", "apartment_number"); err != nil {
		warn("apartment_number", err)
	}
	if l.City, err = digString(record, "address", "city", "name"); err != nil {
		warn("city", err)
	}
	parish, err := digString(record, "address", "parish", "name")
	if err != nil {
		warn("parish", err)
	}
	county, err := digString(record, "address", "county", "name")
	if err != nil {
		warn("county", err)
	}
	streetAddress := address.CombineStreetAddress(l.Street, l.HouseNumber, l.ApartmentNumber)
	l.Address = joinAddressLevels(streetAddress, l.City, parish, county)

	if l.NRooms, err = digInt(record, "room_count"); err != nil {
		warn("n_rooms", err)
	}
	if l.AreaM2, err = digFloat(record, "property_size"); err != nil {
		warn("area_m2", err)
	}
	if l.Price, err = digFloat(record, "price"); err != nil {
		warn("price", err)
	}

	if year, yearErr := digInt(record, "attributes", "CONSTRUCTION_YEAR"); yearErr == nil {
		l.ConstructionYear = year
	}

	if listed, listedErr := digString(record, "date_published"); listedErr == nil && listed != "" {
		ts, parseErr := time.Parse(time.RFC3339, listed)
		if parseErr != nil {
			warn("date_listed", parseErr)
		} else {
			l.DateListed = float64(ts.Unix())
		}
	}

	if img, imgErr := digString(record, "main_image", "url"); imgErr == nil {
		// The API hands out a size template; 11 is the large format.
		l.ImageURL = strings.ReplaceAll(img, "{fmt:em}", "11")
	} else {
		warn("image_url", imgErr)
	}

	l.URL = h.listingURL(parish, l.City, l.Street, friendlyID)

	l.ID = identity.Resolve(portalID, l.AreaM2, l.Address)
	if portalID == "" {
		log.Printf("c24 listing without portal id, assigned %s to %s", l.ID, l.Address)
	}
	return l
}

// listingURL reconstructs the public detail page URL from address slugs.
// The location slug is cosmetic; only the trailing friendly id matters.
func (h *C24Handler) listingURL(parish, city, street, friendlyID string) string {
	slug := strings.Trim(strings.Join([]string{
		address.Slugify(parish),
		address.Slugify(city),
		address.Slugify(street),
	}, "-"), "-")
	return strings.Join([]string{c24PublicBaseURL, "apartments-for-sale", slug, friendlyID}, "/")
}

func joinAddressLevels(levels ...string) string {
	kept := levels[:0:0]
	for _, level := range levels {
		if level != "" {
			kept = append(kept, level)
		}
	}
	return strings.Join(kept, ", ")
}

// dig walks nested JSON objects along path.
func dig(record map[string]any, path ...string) (any, error) {
	var current any = record
	for i, key := range path {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s is not an object", strings.Join(path[:i], "."))
		}
		current, ok = node[key]
		if !ok {
			return nil, fmt.Errorf("missing key %s", strings.Join(path[:i+1], "."))
		}
	}
	return current, nil
}

func digString(record map[string]any, path ...string) (string, error) {
	v, err := dig(record, path...)
	if err != nil {
		return "", err
	}
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("%s has unexpected type %T", strings.Join(path, "."), v)
	}
}

func digFloat(record map[string]any, path ...string) (float64, error) {
	v, err := dig(record, path...)
	if err != nil {
		return 0, err
	}
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return t, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("%s is not numeric: %q", strings.Join(path, "."), t)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%s has unexpected type %T", strings.Join(path, "."), v)
	}
}

func digInt(record map[string]any, path ...string) (int, error) {
	f, err := digFloat(record, path...)
	return int(f), err
}
