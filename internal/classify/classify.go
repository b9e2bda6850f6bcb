// Package classify maps free-text queries to a coarse topic label and to
// policy verdicts (prohibited / off-topic). Matching is deliberately plain
// lower-cased substring lookup against fixed tables so the behavior is
// auditable without an NLP dependency.
package classify

import "strings"

// Result is the outcome of classifying a single query. It is derived purely
// from the query text; classification is total and deterministic.
type Result struct {
	Topic      string
	Prohibited bool
	OffTopic   bool
}

// Classifier decides topic and policy verdicts for a query. The keyword
// implementation below can be swapped for an embedding-based one without
// touching callers.
type Classifier interface {
	Classify(text string) Result
}

// DefaultTopic is returned when no topic keywords match.
const DefaultTopic = "General"

type topicEntry struct {
	label    string
	keywords []string
}

// Ordered: earlier entries win when a query matches several topics.
var topicTable = []topicEntry{
	{"Grading System", []string{"grade", "cgpa", "gpa", "marks", "percentage", "point", "score"}},
	{"Internal/External Evaluation", []string{"internal", "external", "evaluation", "assessment", "continuous"}},
	{"Revaluation", []string{"revaluation", "re-evaluation", "recheck", "photocopy"}},
	{"Supplementary Exam", []string{"supplementary", "supply", "backlog", "failed", "arrear"}},
	{"Exam Rules", []string{"rules", "conduct", "malpractice", "cheating", "prohibited"}},
	{"Attendance", []string{"attendance", "detained", "condonation", "absent"}},
}

var prohibitedPhrases = []string{
	"predict my grade",
	"predict my marks",
	"will i pass",
	"what will be my score",
	"solve this question",
	"answer this question",
	"give me answers",
	"solve my assignment",
	"write my assignment",
	"do my homework",
	"question paper leak",
	"give me question paper",
	"previous year answers",
}

var offTopicPhrases = []string{
	"write code",
	"write a program",
	"debug my",
	"fix my code",
	"tell me a joke",
	"recommend a movie",
	"weather today",
	"traffic rules",
	"income tax",
	"visa rules",
}

// Keyword is a Classifier backed by the static tables above.
type Keyword struct{}

// NewKeyword returns the keyword-table classifier.
func NewKeyword() *Keyword { return &Keyword{} }

func (k *Keyword) Classify(text string) Result {
	lower := strings.ToLower(text)
	return Result{
		Topic:      detectTopic(lower),
		Prohibited: matchAny(lower, prohibitedPhrases),
		OffTopic:   matchAny(lower, offTopicPhrases),
	}
}

func detectTopic(lower string) string {
	for _, entry := range topicTable {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.label
			}
		}
	}
	return DefaultTopic
}

func matchAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Topics returns the closed set of topic labels, in table order, with the
// default topic last.
func Topics() []string {
	out := make([]string, 0, len(topicTable)+1)
	for _, entry := range topicTable {
		out = append(out, entry.label)
	}
	return append(out, DefaultTopic)
}
