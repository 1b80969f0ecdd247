package identity

import "testing"

func TestGenerateDeterministic(t *testing.T) {
	a := Generate(57.3, "Kopli 64-5, Tallinn")
	b := Generate(57.3, "Kopli 64-5, Tallinn")
	if a != b {
		t.Fatalf("same inputs produced different ids: %q vs %q", a, b)
	}
	if len(a) != 7 {
		t.Fatalf("expected 7 character id, got %q", a)
	}
	if !IsGenerated(a) {
		t.Fatalf("generated id %q not recognized as generated", a)
	}
}

func TestGenerateVariesWithInput(t *testing.T) {
	a := Generate(57.3, "Kopli 64-5, Tallinn")
	b := Generate(57.4, "Kopli 64-5, Tallinn")
	if a == b {
		t.Fatalf("different areas produced the same id %q", a)
	}
	c := Generate(57.3, "Kopli 64-6, Tallinn")
	if a == c {
		t.Fatalf("different addresses produced the same id %q", a)
	}
}

func TestResolveKeepsPortalID(t *testing.T) {
	if got := Resolve("2960653", 57.3, "Kopli 64-5, Tallinn"); got != "2960653" {
		t.Fatalf("Resolve replaced portal id, got %q", got)
	}
	if got := Resolve("", 57.3, "Kopli 64-5, Tallinn"); !IsGenerated(got) {
		t.Fatalf("Resolve without portal id returned non-generated %q", got)
	}
}

func TestIsGenerated(t *testing.T) {
	if IsGenerated("2960653") {
		t.Fatal("numeric portal id flagged as generated")
	}
	if IsGenerated("") {
		t.Fatal("empty id flagged as generated")
	}
}
