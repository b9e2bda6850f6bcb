// Package models holds account-level persisted entities.
package models

import "time"

// User owns chat sessions. PreferredLanguage is the default response
// language applied when a query does not name one.
type User struct {
	ID                uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Email             string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Username          string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"username"`
	PasswordHash      string    `gorm:"type:varchar(255);not null" json:"-"`
	PreferredLanguage string    `gorm:"type:varchar(24);not null;default:English" json:"preferred_language"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"-"`
}

func (User) TableName() string { return "users" }
