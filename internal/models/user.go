package models

import (
	"time"
)

type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	RealmID   uint      `json:"realm_id" gorm:"not null;index"`
	FullName  string    `json:"full_name" gorm:"not null"`
	Email     string    `json:"email" gorm:"unique;not null"`
	Password  string    `json:"-" gorm:"not null"`
	APIKey    string    `json:"api_key,omitempty" gorm:"uniqueIndex;size:64;not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Identity is the resolved requester. A nil *Identity means anonymous.
type Identity struct {
	UserID  uint
	RealmID uint
}
