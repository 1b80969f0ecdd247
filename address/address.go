// Package address normalizes Estonian street addresses: diacritic folding,
// decomposition of portal formatted address strings into components, and
// fuzzy matching of user supplied search terms against listing addresses.
package address

import (
	"log"
	"regexp"
	"strings"
)

// Diacritic folding used for URL slugs and matching. ö maps to u rather
// than o; matching stays consistent as long as both sides go through the
// same table.
var diacriticReplacer = strings.NewReplacer(
	"ä", "a",
	"õ", "o",
	"ü", "u",
	"ö", "u",
)

// NormalizeDiacritics lowercases s and folds Estonian diacritics to ASCII.
func NormalizeDiacritics(s string) string {
	return diacriticReplacer.Replace(strings.ToLower(s))
}

// Slugify turns an address component into a URL path segment.
func Slugify(s string) string {
	return strings.ReplaceAll(NormalizeDiacritics(s), " ", "-")
}

// CombineStreetAddress joins street, house number and apartment number into
// the "<street> <house>-<apartment>" display form. Missing components drop
// out together with their separator.
func CombineStreetAddress(street, houseNumber, apartmentNumber string) string {
	houseApartment := joinNonEmpty("-", houseNumber, apartmentNumber)
	return joinNonEmpty(" ", street, houseApartment)
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

// Parsed holds the components recovered from a free text address.
type Parsed struct {
	City            string
	Street          string
	HouseNumber     string
	ApartmentNumber string
}

var (
	commaSpacingRe     = regexp.MustCompile(` ?, ?`)
	streetAbbrevRe     = regexp.MustCompile(` tn\b`)
	apartmentRe        = regexp.MustCompile(`-([\p{L}\d_]+)$`)
	apartmentCleanupRe = regexp.MustCompile(`-[^-]{0,3}$`)
	houseNumberRe      = regexp.MustCompile(` ([\p{L}\d/_]+)$`)
)

// ParseFreeTextAddress decomposes a portal formatted address of the shape
// "<county>, <city>, <district>, <street> <house>-<apartment>".
//
// The city is the token between the first and second comma. The street
// segment is everything after the last comma that is not preceded by a
// digit; commas left inside it (house number ranges like "21, 23") become
// "/". Parsing is best effort: components that cannot be recovered stay
// empty, and more than one empty component logs a warning.
func ParseFreeTextAddress(addr string) Parsed {
	var p Parsed

	if parts := strings.Split(addr, ","); len(parts) >= 3 {
		p.City = strings.TrimSpace(parts[1])
	}

	segment := commaSpacingRe.ReplaceAllString(streetSegment(addr), "/")
	segment = strings.TrimSpace(streetAbbrevRe.ReplaceAllString(segment, ""))

	if m := apartmentRe.FindStringSubmatch(segment); m != nil {
		p.ApartmentNumber = m[1]
	}
	// The apartment suffix is assumed to be at most three characters;
	// longer dash suffixes belong to the street name itself.
	truncated := apartmentCleanupRe.ReplaceAllString(segment, "")
	if m := houseNumberRe.FindStringSubmatch(truncated); m != nil {
		p.HouseNumber = m[1]
	}
	p.Street = strings.TrimSpace(houseNumberRe.ReplaceAllString(truncated, ""))

	if missing := p.missingFields(); len(missing) > 1 {
		log.Printf("Warning: address %q parsed with missing fields: %s", addr, strings.Join(missing, ", "))
	}
	return p
}

// streetSegment returns everything after the last comma that is not
// preceded by a digit. Commas after digits separate house number ranges,
// not address levels.
func streetSegment(addr string) string {
	for i := len(addr) - 1; i >= 0; i-- {
		if addr[i] != ',' {
			continue
		}
		if i > 0 && addr[i-1] >= '0' && addr[i-1] <= '9' {
			continue
		}
		return addr[i+1:]
	}
	return ""
}

func (p Parsed) missingFields() []string {
	var missing []string
	if p.City == "" {
		missing = append(missing, "city")
	}
	if p.Street == "" {
		missing = append(missing, "street")
	}
	if p.HouseNumber == "" {
		missing = append(missing, "house_number")
	}
	if p.ApartmentNumber == "" {
		missing = append(missing, "apartment_number")
	}
	return missing
}
