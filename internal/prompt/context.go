// Package prompt assembles the grounding context block and the final system
// instruction sent to the model: guardrails first, grounding context second,
// language directive third. The user question is appended last by the
// gateway. That ordering is load-bearing for consistent model behavior.
package prompt

import (
	"fmt"
	"strings"

	"github.com/studysensei/exambot/internal/knowledge"
)

// NoGroundingMarker is emitted instead of an empty context block when
// retrieval returned nothing. The builder switches to the general-guidance
// template when it sees this marker.
const NoGroundingMarker = "[no contextual grounding available]"

// previewLen caps citation previews so footnotes stay compact.
const previewLen = 100

// Citation points an answer back at a passage that informed it.
type Citation struct {
	PassageID string  `json:"passage_id"`
	Preview   string  `json:"preview"`
	Relevance float64 `json:"relevance"`
}

// BuildContext renders retrieved passages into one context block, each
// prefixed with a source index so the model can attribute claims, and
// returns the parallel citation records.
func BuildContext(matches []knowledge.Match) (string, []Citation) {
	if len(matches) == 0 {
		return NoGroundingMarker, nil
	}

	parts := make([]string, 0, len(matches))
	citations := make([]Citation, 0, len(matches))
	for i, m := range matches {
		parts = append(parts, fmt.Sprintf("[Source %d]: %s", i+1, m.Passage.Content))
		citations = append(citations, Citation{
			PassageID: m.Passage.ID,
			Preview:   truncatePreview(m.Passage.Content),
			Relevance: m.Relevance,
		})
	}
	return strings.Join(parts, "\n\n"), citations
}

// truncatePreview cuts at a rune boundary; character-count truncation may
// split a word, which is accepted as cosmetic.
func truncatePreview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLen {
		return content
	}
	return string(runes[:previewLen]) + "..."
}
