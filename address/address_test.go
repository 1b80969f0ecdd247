package address

import "testing"

func TestNormalizeDiacritics(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Põhja-Tallinn", "pohja-tallinn"},
		{"Ülemiste", "ulemiste"},
		{"Mustamäe", "mustamae"},
		{"Sõpruse pst", "sopruse pst"},
		{"ÖÄÜÕ", "uaou"},
	}
	for _, c := range cases {
		if got := NormalizeDiacritics(c.in); got != c.want {
			t.Errorf("NormalizeDiacritics(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSlugify(t *testing.T) {
	if got := Slugify("Põhja-Tallinna linnaosa"); got != "pohja-tallinna-linnaosa" {
		t.Fatalf("Slugify = %q", got)
	}
}

func TestCombineStreetAddress(t *testing.T) {
	cases := []struct {
		street, house, apartment, want string
	}{
		{"Main St", "5", "12", "Main St 5-12"},
		{"Main St", "5", "", "Main St 5"},
		{"Main St", "", "", "Main St"},
		{"", "5", "12", "5-12"},
		{"", "", "", ""},
	}
	for _, c := range cases {
		if got := CombineStreetAddress(c.street, c.house, c.apartment); got != c.want {
			t.Errorf("CombineStreetAddress(%q, %q, %q) = %q, want %q", c.street, c.house, c.apartment, got, c.want)
		}
	}
}

func TestParseFreeTextAddress(t *testing.T) {
	cases := []struct {
		in   string
		want Parsed
	}{
		{
			"Harju maakond, Tallinn, Põhja-Tallinna linnaosa, Kopli tn 64-5",
			Parsed{City: "Tallinn", Street: "Kopli", HouseNumber: "64", ApartmentNumber: "5"},
		},
		{
			// A comma after a digit separates house numbers, not address levels.
			"Harju maakond, Tallinn, Põhja-Tallinna linnaosa, Kalaranna 21, 23-49",
			Parsed{City: "Tallinn", Street: "Kalaranna", HouseNumber: "21/23", ApartmentNumber: "49"},
		},
		{
			"Harju maakond, Tallinn, Kesklinna linnaosa, Pikk 70",
			Parsed{City: "Tallinn", Street: "Pikk", HouseNumber: "70"},
		},
		{
			"Tartu maakond, Tartu, Ülejõe, Raatuse tn 22-15a",
			Parsed{City: "Tartu", Street: "Raatuse", HouseNumber: "22", ApartmentNumber: "15a"},
		},
	}
	for _, c := range cases {
		if got := ParseFreeTextAddress(c.in); got != c.want {
			t.Errorf("ParseFreeTextAddress(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestParseFreeTextAddressPartial(t *testing.T) {
	got := ParseFreeTextAddress("Kopli tn 64")
	if got.City != "" {
		t.Fatalf("city = %q, want empty for a two level address", got.City)
	}
}

func TestNormalizeAddressWord(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Kopli tn", "Kopli"},
		{"Sõpruse pst", "Sõpruse"},
		{"Tallinna linn", "Tallinna"},
		{"Kesklinna linnaosa", "Kesklinna"},
		{"Main St. ", "Main"},
		{"Kopli", "Kopli"},
	}
	for _, c := range cases {
		if got := NormalizeAddressWord(c.in); got != c.want {
			t.Errorf("NormalizeAddressWord(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSimilarityScore(t *testing.T) {
	if got := SimilarityScore("Kopli", "kopli"); got != 1 {
		t.Fatalf("identical words score %v, want 1", got)
	}
	if got := SimilarityScore("", "kopli"); got != 0 {
		t.Fatalf("empty search term scores %v, want 0", got)
	}
	// "opli" is the longest shared substring: 4 runes of 5 and 5.
	if got := SimilarityScore("Oplik", "kopli"); got != 0.8 {
		t.Fatalf("partial match scores %v, want 0.8", got)
	}
	if SimilarityScore("Kopli", "Sõpruse") > 0.5 {
		t.Fatal("unrelated streets scored as similar")
	}
}
