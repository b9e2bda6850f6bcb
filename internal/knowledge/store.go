package knowledge

import (
	"encoding/json"
	"log/slog"
	"os"
	"strings"
)

// Store is the in-memory passage collection. Load populates it from a JSON
// file or the built-in defaults; after that it is read-only.
type Store struct {
	passages []Passage
	logger   *slog.Logger
}

// NewStore returns an empty store. Call Load before serving queries.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger}
}

// Load reads the passage file at path. A missing or malformed file is logged
// and replaced by the built-in default regulation set, so the store is never
// left empty. Load is idempotent: calling it again replaces the collection.
func (s *Store) Load(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		s.logger.Warn("knowledge file unavailable, using built-in defaults",
			"path", path, "error", err)
		s.passages = defaultPassages()
		return
	}

	var passages []Passage
	if err := json.Unmarshal(data, &passages); err != nil {
		s.logger.Warn("knowledge file malformed, using built-in defaults",
			"path", path, "error", err)
		s.passages = defaultPassages()
		return
	}
	if len(passages) == 0 {
		s.logger.Warn("knowledge file empty, using built-in defaults", "path", path)
		s.passages = defaultPassages()
		return
	}

	s.passages = passages
	s.logger.Info("knowledge base loaded", "path", path, "passages", len(passages))
}

// Size reports the number of loaded passages.
func (s *Store) Size() int { return len(s.passages) }

// All returns the loaded collection. Callers must treat it as read-only.
func (s *Store) All() []Passage { return s.passages }

// Retrieve selects up to limit passages relevant to the query. See
// RetrieveFrom for the matching contract.
func (s *Store) Retrieve(query string, limit int) []Match {
	return RetrieveFrom(s.passages, query, limit)
}

// RetrieveFrom matches query against an arbitrary passage slice. A passage is
// a candidate when any whitespace token of at least 3 characters appears in
// its content, or when the query contains a keyword of its category.
// Candidates keep collection order and are truncated to limit. When nothing
// matches, the first limit passages are returned instead so the model always
// receives grounding text from a non-empty collection.
func RetrieveFrom(passages []Passage, query string, limit int) []Match {
	if limit <= 0 {
		limit = 5
	}

	lower := strings.ToLower(query)
	tokens := make([]string, 0, 8)
	for _, tok := range strings.Fields(lower) {
		if len(tok) >= 3 {
			tokens = append(tokens, tok)
		}
	}

	matches := make([]Match, 0, limit)
	for _, p := range passages {
		if len(matches) >= limit {
			break
		}
		if passageMatches(p, lower, tokens) {
			matches = append(matches, Match{Passage: p, Relevance: keywordRelevance})
		}
	}
	if len(matches) > 0 {
		return matches
	}

	// Fallback: bounded prefix of the whole collection.
	n := limit
	if n > len(passages) {
		n = len(passages)
	}
	for _, p := range passages[:n] {
		matches = append(matches, Match{Passage: p, Relevance: keywordRelevance})
	}
	return matches
}

func passageMatches(p Passage, lowerQuery string, tokens []string) bool {
	content := strings.ToLower(p.Content)
	for _, tok := range tokens {
		if strings.Contains(content, tok) {
			return true
		}
	}
	for _, kw := range categoryKeywords[p.Category] {
		if strings.Contains(lowerQuery, kw) {
			return true
		}
	}
	return false
}
