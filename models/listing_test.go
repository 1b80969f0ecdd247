package models

import (
	"errors"
	"testing"
)

func TestSetFieldCoercion(t *testing.T) {
	l := &Listing{}

	if err := l.SetField("price", "85000"); err != nil {
		t.Fatalf("SetField price: %v", err)
	}
	if l.Price != 85000 {
		t.Fatalf("price = %v, want 85000", l.Price)
	}

	if err := l.SetField("n_rooms", 3.0); err != nil {
		t.Fatalf("SetField n_rooms: %v", err)
	}
	if l.NRooms != 3 {
		t.Fatalf("n_rooms = %d, want 3", l.NRooms)
	}

	if err := l.SetField("active", 1); err != nil {
		t.Fatalf("SetField active: %v", err)
	}
	if !l.Active {
		t.Fatal("active = false, want true")
	}
}

func TestSetFieldNilLeavesZeroValue(t *testing.T) {
	l := &Listing{}
	for _, name := range FieldNames() {
		if err := l.SetField(name, nil); err != nil {
			t.Fatalf("SetField(%s, nil): %v", name, err)
		}
	}
	if l.Price != 0 || l.Address != "" || l.NRooms != 0 || l.Active {
		t.Fatalf("nil assignment did not leave zero values: %+v", l)
	}
}

func TestSetFieldUnknownName(t *testing.T) {
	l := &Listing{}
	err := l.SetField("floor", 2)
	var fieldErr *InvalidFieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("expected InvalidFieldError, got %v", err)
	}
	if fieldErr.Field != "floor" {
		t.Fatalf("error names field %q, want floor", fieldErr.Field)
	}
}

func TestSetFieldBadValue(t *testing.T) {
	l := &Listing{}
	err := l.SetField("price", "not a number")
	var fieldErr *InvalidFieldError
	if !errors.As(err, &fieldErr) {
		t.Fatalf("expected InvalidFieldError, got %v", err)
	}
}

func TestFromMapRoundTrip(t *testing.T) {
	in := map[string]any{
		"id":      "2960653",
		"portal":  PortalC24,
		"active":  true,
		"address": "Kopli 64-5, Tallinn, Põhja-Tallinna linnaosa, Harju maakond",
		"area_m2": 57.3,
		"price":   85000.0,
		"n_rooms": 2,
	}
	l, err := FromMap(in)
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	out := l.Fields()
	if out["id"] != "2960653" || out["area_m2"] != 57.3 || out["n_rooms"] != 2 {
		t.Fatalf("round trip mismatch: %v", out)
	}
	if len(out) != len(FieldNames()) {
		t.Fatalf("Fields() has %d entries, want %d", len(out), len(FieldNames()))
	}

	if _, err := FromMap(map[string]any{"floor": 2}); err == nil {
		t.Fatal("FromMap accepted an unknown field")
	}
}

func TestContentEqualIgnoresID(t *testing.T) {
	a := &Listing{ID: "111", Portal: PortalKV, Address: "Kopli 64-5, Tallinn", AreaM2: 57.3, Price: 85000}
	b := &Listing{ID: "222", Portal: PortalKV, Address: "Kopli 64-5, Tallinn", AreaM2: 57.3, Price: 85000}
	if !a.ContentEqual(b) {
		t.Fatal("listings differing only by id were not content-equal")
	}
	b.Price = 86000
	if a.ContentEqual(b) {
		t.Fatal("listings with different prices were content-equal")
	}
}

func TestKeyDropsGeneratedID(t *testing.T) {
	a := &Listing{ID: "X1A2B3C", Portal: PortalC24, Address: "Kopli 64-5", AreaM2: 57.3, Price: 85000}
	b := &Listing{ID: "X9F8E7D", Portal: PortalC24, Address: "Kopli 64-5", AreaM2: 57.3, Price: 85000}
	if a.Key() != b.Key() {
		t.Fatal("generated ids leaked into set membership keys")
	}

	c := &Listing{ID: "111", Portal: PortalC24, Address: "Kopli 64-5", AreaM2: 57.3, Price: 85000}
	d := &Listing{ID: "222", Portal: PortalC24, Address: "Kopli 64-5", AreaM2: 57.3, Price: 85000}
	if c.Key() == d.Key() {
		t.Fatal("distinct portal ids collapsed into one key")
	}
}
