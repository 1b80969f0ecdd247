// Package identity assigns stable ids to listings that arrive without one.
//
// Portal ids are always kept verbatim. When a portal omits the id, a
// deterministic surrogate is derived from the listing's area and address, so
// the same physical unit maps to the same id across scrape runs.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// GeneratedPrefix marks surrogate ids. Portal ids are numeric on every portal
// we scrape, so a leading letter cannot collide with a real id.
const GeneratedPrefix = "X"

const generatedHexLen = 6

// Generate derives a surrogate id from the listing's area and address.
func Generate(areaM2 float64, address string) string {
	seed := strconv.FormatFloat(areaM2, 'f', -1, 64) + " " + address
	sum := sha256.Sum256([]byte(seed))
	return GeneratedPrefix + strings.ToUpper(hex.EncodeToString(sum[:]))[:generatedHexLen]
}

// Resolve returns the portal id when present, otherwise a generated one.
func Resolve(portalID string, areaM2 float64, address string) string {
	if portalID != "" {
		return portalID
	}
	return Generate(areaM2, address)
}

// IsGenerated reports whether id was produced by Generate.
func IsGenerated(id string) bool {
	return strings.HasPrefix(id, GeneratedPrefix)
}
