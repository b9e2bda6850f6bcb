package chat

import (
	"sync"
	"time"

	"github.com/studysensei/exambot/internal/classify"
)

// SessionAnalytics tracks per-session counters in memory. It is a derived
// summary, reset when a new session begins; the turn log stays the
// authoritative record.
type SessionAnalytics struct {
	mu             sync.Mutex
	start          time.Time
	questionsAsked int
	topicsExplored []string
	languagesUsed  []string
	refusedQueries int
}

func NewSessionAnalytics() *SessionAnalytics {
	return &SessionAnalytics{start: time.Now()}
}

func (a *SessionAnalytics) RecordQuestion(topic, language string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.questionsAsked++
	if topic != "" && !contains(a.topicsExplored, topic) {
		a.topicsExplored = append(a.topicsExplored, topic)
	}
	if language != "" && !contains(a.languagesUsed, language) {
		a.languagesUsed = append(a.languagesUsed, language)
	}
}

func (a *SessionAnalytics) RecordRefusal() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refusedQueries++
}

// Summary is the analytics snapshot returned to callers.
type Summary struct {
	QuestionsAsked  int      `json:"questions_asked"`
	TopicsExplored  []string `json:"topics_explored"`
	LanguagesUsed   []string `json:"languages_used"`
	RefusedQueries  int      `json:"refused_queries"`
	DurationMinutes float64  `json:"session_duration_minutes"`
}

func (a *SessionAnalytics) Summary() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Summary{
		QuestionsAsked:  a.questionsAsked,
		TopicsExplored:  append([]string(nil), a.topicsExplored...),
		LanguagesUsed:   append([]string(nil), a.languagesUsed...),
		RefusedQueries:  a.refusedQueries,
		DurationMinutes: time.Since(a.start).Minutes(),
	}
}

// RecomputeSummary rebuilds the counters from a turn log, for verifying the
// in-memory summary. Languages are not recoverable from turns (turns store
// content only), so that field is left empty.
func RecomputeSummary(turns []Turn, classifier classify.Classifier) Summary {
	var s Summary
	for _, t := range turns {
		switch t.Role {
		case RoleUser:
			s.QuestionsAsked++
			topic := classifier.Classify(t.Content).Topic
			if !contains(s.TopicsExplored, topic) {
				s.TopicsExplored = append(s.TopicsExplored, topic)
			}
		case RoleAssistant:
			if t.Content == DeclineMessage {
				s.RefusedQueries++
			}
		}
	}
	return s
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
