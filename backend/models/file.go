package models

import "time"

// File is the metadata row for one stored blob.
type File struct {
	FileID       string    `json:"file_id" gorm:"primaryKey;size:36"`
	OwnerEmail   string    `json:"-" gorm:"index;size:255;not null"`
	OriginalName string    `json:"original_name" gorm:"size:255;not null"`
	CloudPath    string    `json:"-" gorm:"size:512;not null"`
	FileSize     int64     `json:"file_size"`
	CreatedAt    time.Time `json:"created_at" gorm:"index"`
}
