package models

import (
	"time"

	"github.com/sefazor/thumbgate/pkg/thumbor"
)

// Backend tags. They double as the renderer's source_type values.
const (
	BackendLocalFile = thumbor.SourceTypeLocalFile
	BackendS3        = thumbor.SourceTypeS3
)

type Upload struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	RealmID     uint      `json:"realm_id" gorm:"not null;index"`
	OwnerID     uint      `json:"owner_id" gorm:"not null;index"`
	Path        string    `json:"path" gorm:"uniqueIndex;not null"`
	FileName    string    `json:"file_name" gorm:"not null"`
	FileSize    int64     `json:"file_size" gorm:"not null"`
	MimeType    string    `json:"mime_type"`
	Backend     string    `json:"backend" gorm:"not null"`
	RealmPublic bool      `json:"realm_public" gorm:"default:false"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type UploadResponse struct {
	URI      string `json:"uri"`
	FileName string `json:"file_name"`
	FileSize int64  `json:"file_size"`
}
