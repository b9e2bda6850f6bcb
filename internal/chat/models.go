// Package chat owns the conversation ledger (sessions, turns, jobs) and the
// question-answering pipeline that writes to it.
package chat

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultTitle is assigned to new sessions until the first user turn
// derives a real one.
const DefaultTitle = "New conversation"

// titleBudget caps auto-derived session titles.
const titleBudget = 40

// Session is one persisted conversation thread owned by a user.
type Session struct {
	ID        string    `gorm:"type:varchar(36);primaryKey" json:"session_id"`
	OwnerID   uint64    `gorm:"index;not null" json:"-"`
	Title     string    `gorm:"type:varchar(120);not null" json:"title"`
	Language  string    `gorm:"type:varchar(24);not null" json:"language"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Session) TableName() string { return "chat_sessions" }

// CitationList stores passage ids as a JSON text column.
type CitationList []string

func (c CitationList) Value() (driver.Value, error) {
	if len(c) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]string(c))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *CitationList) Scan(v any) error {
	switch src := v.(type) {
	case nil:
		*c = nil
		return nil
	case []byte:
		return json.Unmarshal(src, (*[]string)(c))
	case string:
		return json.Unmarshal([]byte(src), (*[]string)(c))
	default:
		return fmt.Errorf("chat: cannot scan %T into CitationList", v)
	}
}

// Turn is one appended transcript entry. Turns are never mutated; they are
// removed only when their session is deleted. The numeric primary key gives
// a stable insertion order even when timestamps collide.
type Turn struct {
	ID        uint64       `gorm:"primaryKey;autoIncrement" json:"-"`
	TurnID    string       `gorm:"type:varchar(36);uniqueIndex;not null" json:"turn_id"`
	SessionID string       `gorm:"type:varchar(36);index;not null" json:"session_id"`
	Role      string       `gorm:"type:varchar(16);not null" json:"role"`
	Content   string       `gorm:"type:text;not null" json:"content"`
	Citations CitationList `gorm:"type:text" json:"citations"`
	CreatedAt time.Time    `json:"created_at"`
}

func (Turn) TableName() string { return "chat_turns" }

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DeriveTitle truncates the first user query into a session title.
func DeriveTitle(query string) string {
	q := strings.TrimSpace(query)
	if q == "" {
		return DefaultTitle
	}
	runes := []rune(q)
	if len(runes) <= titleBudget {
		return q
	}
	return string(runes[:titleBudget]) + "..."
}
