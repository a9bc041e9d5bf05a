package models

import (
	"strings"
	"time"
)

// User is an end user of the bot, keyed by the messaging platform's numeric id.
type User struct {
	ID        int64   `gorm:"primaryKey;autoIncrement:false"`
	FirstName string  `gorm:"size:128"`
	LastName  string  `gorm:"size:128"`
	Username  string  `gorm:"size:64"`
	Phone     *string `gorm:"size:32"`
	BirthDate *string `gorm:"size:16"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullName joins the non-empty name parts.
func (u *User) FullName() string {
	return strings.TrimSpace(strings.Join([]string{u.FirstName, u.LastName}, " "))
}
