// Package knowledge holds the policy passage collection and keyword-scored
// retrieval over it. The collection is loaded once at startup and never
// mutated afterwards, so concurrent reads need no locking.
package knowledge

// Passage is one retrievable unit of policy text.
type Passage struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Category string `json:"category"`
	Source   string `json:"source"`
}

// Match pairs a passage with a display-only relevance marker. The marker is
// a placeholder, not a computed similarity; it must never be used to rank.
type Match struct {
	Passage   Passage
	Relevance float64
}

// keywordRelevance is attached to every keyword match for display.
const keywordRelevance = 0.8

// categoryKeywords associates each passage category with the query keywords
// that select it, mirroring the reference regulation sections.
var categoryKeywords = map[string][]string{
	"grading":       {"grade", "cgpa", "gpa", "marks", "percentage", "point", "score"},
	"evaluation":    {"internal", "external", "evaluation", "assessment", "continuous", "semester"},
	"revaluation":   {"revaluation", "re-evaluation", "recheck", "photocopy", "recorrection"},
	"supplementary": {"supplementary", "supply", "backlog", "failed", "arrear", "repeat"},
	"conduct":       {"rules", "conduct", "malpractice", "cheating", "prohibited", "hall ticket"},
	"attendance":    {"attendance", "detained", "condonation", "absent", "leave"},
}
