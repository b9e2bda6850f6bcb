package knowledge

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	s := NewStore(discardLogger())
	s.Load(filepath.Join(t.TempDir(), "nope.json"))

	if s.Size() != 6 {
		t.Fatalf("Size() = %d, want 6 default passages", s.Size())
	}
	categories := map[string]bool{}
	for _, p := range s.All() {
		categories[p.Category] = true
	}
	for _, want := range []string{"grading", "evaluation", "revaluation", "supplementary", "conduct", "attendance"} {
		if !categories[want] {
			t.Errorf("default set missing category %q", want)
		}
	}
}

func TestLoadMalformedFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(discardLogger())
	s.Load(path)
	if s.Size() != 6 {
		t.Fatalf("Size() = %d, want 6 after malformed file", s.Size())
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.json")
	body := `[
		{"id":"p1","content":"Grading uses a ten point scale.","category":"grading","source":"handbook"},
		{"id":"p2","content":"Attendance must be above 75 percent.","category":"attendance","source":"handbook"}
	]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(discardLogger())
	s.Load(path)
	if s.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", s.Size())
	}
	if s.All()[0].ID != "p1" {
		t.Fatalf("unexpected first passage %q", s.All()[0].ID)
	}
}

func TestRetrieveByContentToken(t *testing.T) {
	s := NewStore(discardLogger())
	s.Load("does-not-exist")

	matches := s.Retrieve("How is CGPA calculated?", 5)
	if len(matches) == 0 {
		t.Fatal("expected at least one match")
	}
	if matches[0].Passage.Category != "grading" {
		t.Fatalf("first match category = %q, want grading", matches[0].Passage.Category)
	}
}

func TestRetrieveByCategoryKeyword(t *testing.T) {
	passages := []Passage{
		{ID: "a", Content: "completely unrelated text", Category: "revaluation"},
		{ID: "b", Content: "other text", Category: "grading"},
	}
	matches := RetrieveFrom(passages, "recheck", 5)
	if len(matches) != 1 || matches[0].Passage.ID != "a" {
		t.Fatalf("expected category-keyword match on passage a, got %+v", matches)
	}
}

func TestRetrieveNeverEmpty(t *testing.T) {
	s := NewStore(discardLogger())
	s.Load("does-not-exist")

	matches := s.Retrieve("zxqvw completely unrelated gibberish", 3)
	if len(matches) != 3 {
		t.Fatalf("fallback returned %d matches, want 3", len(matches))
	}
	// Fallback preserves collection order.
	if matches[0].Passage.ID != s.All()[0].ID {
		t.Fatalf("fallback order broken: %q", matches[0].Passage.ID)
	}
}

func TestRetrievePreservesOrderAndLimit(t *testing.T) {
	passages := []Passage{
		{ID: "1", Content: "exam one", Category: "conduct"},
		{ID: "2", Content: "exam two", Category: "conduct"},
		{ID: "3", Content: "exam three", Category: "conduct"},
	}
	matches := RetrieveFrom(passages, "exam", 2)
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].Passage.ID != "1" || matches[1].Passage.ID != "2" {
		t.Fatalf("order not preserved: %q, %q", matches[0].Passage.ID, matches[1].Passage.ID)
	}
}

func TestRetrieveShortTokensIgnored(t *testing.T) {
	passages := []Passage{
		{ID: "1", Content: "an ox is in it", Category: ""},
	}
	// All tokens are shorter than 3 chars, so nothing matches and the
	// fallback prefix is returned.
	matches := RetrieveFrom(passages, "an ox it", 5)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want fallback of 1", len(matches))
	}
}
