package models

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/martroben/apartmentbot/identity"
)

// Portal ids as stored in the listings table.
const (
	PortalC24 = "c24"
	PortalKV  = "kv"
)

// Listing is the canonical record every portal adapter normalizes into.
// Field names double as SQL column names.
type Listing struct {
	ID               string  `json:"id" db:"id"`
	Portal           string  `json:"portal" db:"portal"`
	Active           bool    `json:"active" db:"active"`
	Reported         bool    `json:"reported" db:"reported"`
	URL              string  `json:"url" db:"url"`
	ImageURL         string  `json:"image_url" db:"image_url"`
	Address          string  `json:"address" db:"address"`
	City             string  `json:"city" db:"city"`
	Street           string  `json:"street" db:"street"`
	HouseNumber      string  `json:"house_number" db:"house_number"`
	ApartmentNumber  string  `json:"apartment_number" db:"apartment_number"`
	NRooms           int     `json:"n_rooms" db:"n_rooms"`
	AreaM2           float64 `json:"area_m2" db:"area_m2"`
	Price            float64 `json:"price" db:"price"`
	ConstructionYear int     `json:"construction_year" db:"construction_year"`
	DateListed       float64 `json:"date_listed" db:"date_listed"`
	DateScraped      float64 `json:"date_scraped" db:"date_scraped"`
	DateUnlisted     float64 `json:"date_unlisted" db:"date_unlisted"`
}

var listingFields = []string{
	"id",
	"portal",
	"active",
	"reported",
	"url",
	"image_url",
	"address",
	"city",
	"street",
	"house_number",
	"apartment_number",
	"n_rooms",
	"area_m2",
	"price",
	"construction_year",
	"date_listed",
	"date_scraped",
	"date_unlisted",
}

// FieldNames returns the canonical field names in column order.
func FieldNames() []string {
	names := make([]string, len(listingFields))
	copy(names, listingFields)
	return names
}

// InvalidFieldError is returned when a field name is not part of the
// canonical registry or its value cannot be coerced to the declared type.
type InvalidFieldError struct {
	Field  string
	Reason string
}

func (e *InvalidFieldError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid listing field %q", e.Field)
	}
	return fmt.Sprintf("invalid listing field %q: %s", e.Field, e.Reason)
}

// SetField assigns a dynamically typed value to the named field, coercing it
// to the field's declared type. Nil values leave the zero value in place.
func (l *Listing) SetField(name string, value any) error {
	set := func(dst *string) error {
		s, err := coerceString(value)
		if err != nil {
			return &InvalidFieldError{Field: name, Reason: err.Error()}
		}
		*dst = s
		return nil
	}
	setInt := func(dst *int) error {
		n, err := coerceInt(value)
		if err != nil {
			return &InvalidFieldError{Field: name, Reason: err.Error()}
		}
		*dst = n
		return nil
	}
	setFloat := func(dst *float64) error {
		f, err := coerceFloat(value)
		if err != nil {
			return &InvalidFieldError{Field: name, Reason: err.Error()}
		}
		*dst = f
		return nil
	}
	setBool := func(dst *bool) error {
		b, err := coerceBool(value)
		if err != nil {
			return &InvalidFieldError{Field: name, Reason: err.Error()}
		}
		*dst = b
		return nil
	}

	switch name {
	case "id":
		return set(&l.ID)
	case "portal":
		return set(&l.Portal)
	case "active":
		return setBool(&l.Active)
	case "reported":
		return setBool(&l.Reported)
	case "url":
		return set(&l.URL)
	case "image_url":
		return set(&l.ImageURL)
	case "address":
		return set(&l.Address)
	case "city":
		return set(&l.City)
	case "street":
		return set(&l.Street)
	case "house_number":
		return set(&l.HouseNumber)
	case "apartment_number":
		return set(&l.ApartmentNumber)
	case "n_rooms":
		return setInt(&l.NRooms)
	case "area_m2":
		return setFloat(&l.AreaM2)
	case "price":
		return setFloat(&l.Price)
	case "construction_year":
		return setInt(&l.ConstructionYear)
	case "date_listed":
		return setFloat(&l.DateListed)
	case "date_scraped":
		return setFloat(&l.DateScraped)
	case "date_unlisted":
		return setFloat(&l.DateUnlisted)
	default:
		return &InvalidFieldError{Field: name, Reason: "unknown field"}
	}
}

// Value returns the named field's current value.
func (l *Listing) Value(name string) (any, error) {
	switch name {
	case "id":
		return l.ID, nil
	case "portal":
		return l.Portal, nil
	case "active":
		return l.Active, nil
	case "reported":
		return l.Reported, nil
	case "url":
		return l.URL, nil
	case "image_url":
		return l.ImageURL, nil
	case "address":
		return l.Address, nil
	case "city":
		return l.City, nil
	case "street":
		return l.Street, nil
	case "house_number":
		return l.HouseNumber, nil
	case "apartment_number":
		return l.ApartmentNumber, nil
	case "n_rooms":
		return l.NRooms, nil
	case "area_m2":
		return l.AreaM2, nil
	case "price":
		return l.Price, nil
	case "construction_year":
		return l.ConstructionYear, nil
	case "date_listed":
		return l.DateListed, nil
	case "date_scraped":
		return l.DateScraped, nil
	case "date_unlisted":
		return l.DateUnlisted, nil
	default:
		return nil, &InvalidFieldError{Field: name, Reason: "unknown field"}
	}
}

// Fields returns a field name to value map covering the whole registry.
func (l *Listing) Fields() map[string]any {
	fields := make(map[string]any, len(listingFields))
	for _, name := range listingFields {
		v, _ := l.Value(name)
		fields[name] = v
	}
	return fields
}

// FromMap builds a listing from a field map, rejecting unknown names.
func FromMap(fields map[string]any) (*Listing, error) {
	l := &Listing{}
	for name, value := range fields {
		if err := l.SetField(name, value); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// ContentKey identifies a listing by what it advertises rather than by id.
// Two records with the same content key describe the same unit even when
// their portal ids differ.
type ContentKey struct {
	Portal  string
	Address string
	AreaM2  float64
	Price   float64
}

func (l *Listing) ContentKey() ContentKey {
	return ContentKey{
		Portal:  l.Portal,
		Address: l.Address,
		AreaM2:  l.AreaM2,
		Price:   l.Price,
	}
}

// ContentEqual reports whether two listings advertise the same unit.
func (l *Listing) ContentEqual(other *Listing) bool {
	return other != nil && l.ContentKey() == other.ContentKey()
}

// Key is the set membership identity of a listing. Generated ids are left
// out so that hash drift between runs cannot split one unit into two
// distinct records.
type Key struct {
	ID      string
	Content ContentKey
}

func (l *Listing) Key() Key {
	k := Key{Content: l.ContentKey()}
	if !identity.IsGenerated(l.ID) {
		k.ID = l.ID
	}
	return k
}

func (l *Listing) String() string {
	return fmt.Sprintf("%s | %s | %.0f eur", l.ID, l.Address, l.Price)
}

func coerceString(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("cannot coerce %T to string", value)
	}
}

func coerceInt(value any) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("cannot coerce %q to int", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("cannot coerce %T to int", value)
	}
}

func coerceFloat(value any) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot coerce %q to float", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot coerce %T to float", value)
	}
}

func coerceBool(value any) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "", "0", "false":
			return false, nil
		case "1", "true":
			return true, nil
		default:
			return false, fmt.Errorf("cannot coerce %q to bool", v)
		}
	default:
		return false, fmt.Errorf("cannot coerce %T to bool", value)
	}
}
