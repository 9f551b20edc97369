package domain

import (
	"time"
)

// FileMetadata describes a stored file as reported by the file store
type FileMetadata struct {
	ID          int64
	OwnerID     int64
	Name        string
	ContentType string
	Size        int64
	ModifiedAt  *time.Time
}

// IsOwnedBy returns true if userID owns the file
func (f *FileMetadata) IsOwnedBy(userID int64) bool {
	return f.OwnerID == userID
}

// GetContentType returns the content type, falling back to octet-stream
func (f *FileMetadata) GetContentType() string {
	if f.ContentType == "" {
		return "application/octet-stream"
	}
	return f.ContentType
}
