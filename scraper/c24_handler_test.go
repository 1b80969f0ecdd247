package scraper

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/martroben/apartmentbot/config"
	"github.com/martroben/apartmentbot/identity"
	"github.com/martroben/apartmentbot/models"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("load fixture %s: %v", name, err)
	}
	return data
}

func newTestC24Handler() *C24Handler {
	h := NewC24Handler(&config.PortalConfig{
		ID:      models.PortalC24,
		BaseURL: "https://api.city24.ee/et_EE/search/realties",
		Areas:   []string{"3166"},
	}, nil, nil)
	h.now = func() time.Time { return time.Unix(1700000000, 0) }
	return h
}

func TestC24Parse(t *testing.T) {
	h := newTestC24Handler()

	listings, err := h.Parse(loadFixture(t, "c24_listings.json"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(listings) != 2 {
		t.Fatalf("got %d listings, want 2", len(listings))
	}

	l := listings[0]
	if l.ID != "2960653" {
		t.Errorf("id = %q, want 2960653", l.ID)
	}
	if l.Portal != models.PortalC24 {
		t.Errorf("portal = %q", l.Portal)
	}
	if !l.Active {
		t.Error("listing not active")
	}
	if l.Address != "Kopli tn 64-5, Tallinn, Põhja-Tallinna linnaosa, Harju maakond" {
		t.Errorf("address = %q", l.Address)
	}
	if l.City != "Tallinn" || l.Street != "Kopli tn" || l.HouseNumber != "64" || l.ApartmentNumber != "5" {
		t.Errorf("address components = %q %q %q %q", l.City, l.Street, l.HouseNumber, l.ApartmentNumber)
	}
	if l.NRooms != 2 || l.AreaM2 != 57.3 || l.Price != 85000 {
		t.Errorf("numbers = %d rooms, %v m2, %v eur", l.NRooms, l.AreaM2, l.Price)
	}
	if l.ConstructionYear != 1958 {
		t.Errorf("construction_year = %d", l.ConstructionYear)
	}
	if l.ImageURL != "https://c24ee.img-bcg.eu/object/11/1468/1096481468.jpg" {
		t.Errorf("image size placeholder not substituted: %q", l.ImageURL)
	}
	wantURL := "https://www.city24.ee/real-estate/apartments-for-sale/pohja-tallinna-linnaosa-tallinn-kopli-tn/2960653"
	if l.URL != wantURL {
		t.Errorf("url = %q, want %q", l.URL, wantURL)
	}
	// 2023-09-01T12:30:00+03:00
	if l.DateListed != 1693560600 {
		t.Errorf("date_listed = %v", l.DateListed)
	}
	if l.DateScraped != 1700000000 {
		t.Errorf("date_scraped = %v", l.DateScraped)
	}
}

func TestC24ParseGeneratesIDWhenMissing(t *testing.T) {
	h := newTestC24Handler()

	listings, err := h.Parse(loadFixture(t, "c24_listings.json"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	l := listings[1]
	if !identity.IsGenerated(l.ID) {
		t.Fatalf("listing without portal id got non-generated id %q", l.ID)
	}
	if l.ID != identity.Generate(l.AreaM2, l.Address) {
		t.Fatalf("generated id %q is not deterministic", l.ID)
	}
	if l.ConstructionYear != 0 {
		t.Fatalf("missing construction year should stay zero, got %d", l.ConstructionYear)
	}
}

func TestC24ParseRejectsMalformedResponse(t *testing.T) {
	h := newTestC24Handler()
	if _, err := h.Parse([]byte(`{"error": "rate limited"}`)); err == nil {
		t.Fatal("non-array response accepted")
	}
}

func TestC24SearchURL(t *testing.T) {
	h := NewC24Handler(&config.PortalConfig{
		ID:         models.PortalC24,
		BaseURL:    "https://api.city24.ee/et_EE/search/realties",
		Areas:      []string{"3166", "540"},
		RoomCounts: []int{3, 4, 6},
	}, nil, nil)

	u := h.searchURL()
	for _, want := range []string{
		"tsType=sale",
		"unitType=Apartment",
		"itemsPerPage=500",
		"address%5Bcity%5D%5B0%5D=3166",
		"address%5Bcity%5D%5B1%5D=540",
		"roomCount=3",
		"roomCount=4",
		"roomCount=5%2B",
	} {
		if !strings.Contains(u, want) {
			t.Errorf("search URL missing %s: %s", want, u)
		}
	}
}

func TestDetectBlocking(t *testing.T) {
	blocked := []byte(`<html>Captcha required. We are having trouble verifying you.
		Solve the captcha below. Another captcha mention.</html>`)
	if !DetectBlocking(blocked) {
		t.Fatal("block page not detected")
	}

	normal := loadFixture(t, "kv_search.html")
	if DetectBlocking(normal) {
		t.Fatal("regular result page flagged as block page")
	}
}
