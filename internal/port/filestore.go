package port

import (
	"context"
	"io"

	"github.com/vertextoedge/sharelink/internal/domain"
)

// FileStore defines the interface to the file storage collaborator.
// Upload, deletion and path safety are the store's own business.
type FileStore interface {
	// GetFileMetadata returns metadata for a file
	// Returns domain.ErrFileNotFound if the file does not exist
	GetFileMetadata(ctx context.Context, fileID int64) (*domain.FileMetadata, error)

	// ReadFileStream opens the file content for reading
	// The caller must close the returned reader
	ReadFileStream(ctx context.Context, fileID int64) (io.ReadCloser, error)
}
