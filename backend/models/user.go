package models

import "time"

// User is a verified account. Rows are only created once the owner has proved
// control of Email with an OTP.
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	Name      string    `json:"name" gorm:"not null"`
	Email     string    `json:"email" gorm:"uniqueIndex;size:255;not null"`
	Password  string    `json:"-" gorm:"not null"` // bcrypt hash, never serialize
}
