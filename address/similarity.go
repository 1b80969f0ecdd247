package address

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/martroben/apartmentbot/models"
)

// DefaultSimilarityThreshold is the score above which two address words are
// considered the same. Tuned on Tallinn street names.
const DefaultSimilarityThreshold = 0.88

// Trailing tokens that carry no identity: street type abbreviations and
// administrative suffixes in Estonian and English.
var disposableTokens = []*regexp.Regexp{
	regexp.MustCompile(`\stn$`),
	regexp.MustCompile(`\spst$`),
	regexp.MustCompile(`\stänav$`),
	regexp.MustCompile(`\spuiestee$`),
	regexp.MustCompile(`\slinn$`),
	regexp.MustCompile(`\slinnaosa$`),
	regexp.MustCompile(`\sst$`),
	regexp.MustCompile(`\save$`),
	regexp.MustCompile(`\sblvd$`),
}

// NormalizeAddressWord strips trailing street type and administrative
// tokens plus surrounding punctuation, so "Kopli tn" and "Kopli" compare
// equal.
func NormalizeAddressWord(word string) string {
	w := strings.Trim(word, ". ")
	for _, re := range disposableTokens {
		w = re.ReplaceAllString(w, "")
	}
	return strings.Trim(w, ". ")
}

// matchLength returns the length in runes of the longest substring of
// searchTerm that occurs in word.
func matchLength(searchTerm, word string) int {
	runes := []rune(searchTerm)
	for span := len(runes); span > 0; span-- {
		for start := 0; start+span <= len(runes); start++ {
			if strings.Contains(word, string(runes[start:start+span])) {
				return span
			}
		}
	}
	return 0
}

// SimilarityScore rates how well searchTerm matches word on a 0..1 scale.
// The score averages the match coverage of both strings, so a short term
// buried in a long word scores low and vice versa.
func SimilarityScore(searchTerm, word string) float64 {
	a := strings.ToLower(searchTerm)
	b := strings.ToLower(word)
	lenA := len([]rune(a))
	lenB := len([]rune(b))
	if lenA == 0 || lenB == 0 {
		return 0
	}
	m := float64(matchLength(a, b))
	return 0.5*m/float64(lenA) + 0.5*m/float64(lenB)
}

// Criteria describes one address of interest: a street in a city plus the
// house numbers that belong to the building.
type Criteria struct {
	City         string      `json:"city"`
	Street       string      `json:"street"`
	HouseNumbers FlexStrings `json:"house_number"`
}

// Match reports whether the listing's address satisfies the criteria. The
// city check is skipped when the criteria has no city; street and house
// number always apply.
func (c Criteria) Match(l *models.Listing, threshold float64) bool {
	cityTerm := NormalizeAddressWord(c.City)
	if cityTerm != "" && SimilarityScore(cityTerm, NormalizeAddressWord(l.City)) < threshold {
		return false
	}
	if SimilarityScore(NormalizeAddressWord(c.Street), NormalizeAddressWord(l.Street)) < threshold {
		return false
	}
	for _, h := range c.HouseNumbers {
		if h == l.HouseNumber {
			return true
		}
	}
	return false
}

// ParseCriteria reads newline delimited JSON criteria, one object per line.
func ParseCriteria(data []byte) ([]Criteria, error) {
	var criteria []Criteria
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var c Criteria
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			return nil, fmt.Errorf("criteria line %d: %w", i+1, err)
		}
		criteria = append(criteria, c)
	}
	return criteria, nil
}

// FlexStrings accepts a JSON scalar or array and normalizes it to a string
// slice. Numbers are kept in their literal form.
type FlexStrings []string

func (f *FlexStrings) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case nil:
		*f = nil
		return nil
	case []any:
		out := make(FlexStrings, 0, len(v))
		for _, item := range v {
			s, err := flexString(item)
			if err != nil {
				return err
			}
			out = append(out, s)
		}
		*f = out
		return nil
	default:
		s, err := flexString(v)
		if err != nil {
			return err
		}
		*f = FlexStrings{s}
		return nil
	}
}

func flexString(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return fmt.Sprintf("%t", t), nil
	default:
		return "", fmt.Errorf("unsupported house number value %v", v)
	}
}
