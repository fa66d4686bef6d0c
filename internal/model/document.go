package model

import (
	"time"

	"gorm.io/datatypes"
)

// Document is an ingested media attachment (CRLV photo, CNH scan, contract
// PDF) stored in documentos. A row is written even when the download or
// upload partially failed; fields that could not be produced stay zero.
type Document struct {
	ID              int64          `json:"id" gorm:"column:id;primaryKey;autoIncrement"`
	Phone           string         `json:"phone" gorm:"column:phone;index"`
	SourceMessageID string         `json:"message_id" gorm:"column:message_id"`
	DocType         string         `json:"tipo" gorm:"column:tipo"`
	MimeType        string         `json:"mime_type" gorm:"column:mime_type"`
	FileName        string         `json:"file_name" gorm:"column:file_name"`
	ByteSize        int64          `json:"file_size" gorm:"column:file_size"`
	ContentHash     string         `json:"file_hash,omitempty" gorm:"column:file_hash"`
	StorageLocator  string         `json:"storage_url,omitempty" gorm:"column:storage_url"`
	Analysis        datatypes.JSON `json:"analysis,omitempty" gorm:"column:analysis"`
	Status          string         `json:"status" gorm:"column:status"`
	CreatedAt       time.Time      `json:"created_at,omitempty" gorm:"column:created_at;autoCreateTime"`
}

// TableName keeps the original Portuguese table name.
func (Document) TableName() string {
	return "documentos"
}
