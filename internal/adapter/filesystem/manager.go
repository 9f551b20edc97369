package filesystem

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/vertextoedge/sharelink/internal/adapter/metacache"
	"github.com/vertextoedge/sharelink/internal/domain"
	"github.com/vertextoedge/sharelink/internal/port"
)

const (
	dataFile = "data"
	metaFile = "meta.json"
)

// Manager serves shared files from a local directory. Every file lives in
// its own directory named after the file id, holding the content and a
// JSON sidecar with its metadata.
type Manager struct {
	rootDir    string
	bufferSize int
	cache      *metacache.Cache
}

// Ensure Manager implements port.FileStore
var _ port.FileStore = (*Manager)(nil)

// sidecar is the on-disk metadata document
type sidecar struct {
	OwnerID     int64  `json:"owner_id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
}

// NewManager creates a new filesystem manager. cache may be nil.
func NewManager(rootDir string, cache *metacache.Cache) (*Manager, error) {
	return NewManagerWithBufferSize(rootDir, 1024*1024, cache)
}

// NewManagerWithBufferSize creates a new filesystem manager with custom copy buffer size
func NewManagerWithBufferSize(rootDir string, bufferSize int, cache *metacache.Cache) (*Manager, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root dir: %w", err)
	}

	if bufferSize <= 0 {
		bufferSize = 1024 * 1024
	}

	return &Manager{
		rootDir:    rootDir,
		bufferSize: bufferSize,
		cache:      cache,
	}, nil
}

// RootDir returns the storage root directory
func (m *Manager) RootDir() string {
	return m.rootDir
}

func (m *Manager) fileDir(fileID int64) string {
	return filepath.Join(m.rootDir, strconv.FormatInt(fileID, 10))
}

// GetFileMetadata returns the metadata of fileID
func (m *Manager) GetFileMetadata(ctx context.Context, fileID int64) (*domain.FileMetadata, error) {
	if fileID <= 0 {
		return nil, domain.ErrFileNotFound
	}
	if m.cache != nil {
		if meta, ok := m.cache.Get(fileID); ok {
			return meta, nil
		}
	}

	dir := m.fileDir(fileID)
	raw, err := os.ReadFile(filepath.Join(dir, metaFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var sc sidecar
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("failed to decode metadata of file %d: %w", fileID, err)
	}

	info, err := os.Stat(filepath.Join(dir, dataFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	modTime := info.ModTime().UTC()
	meta := &domain.FileMetadata{
		ID:          fileID,
		OwnerID:     sc.OwnerID,
		Name:        sc.Name,
		ContentType: sc.ContentType,
		Size:        info.Size(),
		ModifiedAt:  &modTime,
	}
	if m.cache != nil {
		m.cache.Set(meta)
	}
	return meta, nil
}

// ReadFileStream opens the content of fileID. The caller must close it.
func (m *Manager) ReadFileStream(ctx context.Context, fileID int64) (io.ReadCloser, error) {
	if fileID <= 0 {
		return nil, domain.ErrFileNotFound
	}
	f, err := os.Open(filepath.Join(m.fileDir(fileID), dataFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return f, nil
}

// PutFile stores content and metadata under meta.ID, replacing any previous
// version. Content is written to a temp file and renamed into place.
func (m *Manager) PutFile(ctx context.Context, meta *domain.FileMetadata, reader io.Reader) (int64, error) {
	if meta.ID <= 0 {
		return 0, domain.NewValidationError("file_id", "must be positive")
	}
	if meta.OwnerID <= 0 {
		return 0, domain.NewValidationError("owner_id", "must be positive")
	}

	dir := m.fileDir(meta.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create file dir: %w", err)
	}

	dataPath := filepath.Join(dir, dataFile)
	tempPath := dataPath + ".uploading"

	f, err := os.Create(tempPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}

	buf := make([]byte, m.bufferSize)
	written, err := io.CopyBuffer(f, reader, buf)
	if err != nil {
		f.Close()
		os.Remove(tempPath)
		return 0, fmt.Errorf("failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return 0, fmt.Errorf("failed to close file: %w", err)
	}

	raw, err := json.Marshal(sidecar{OwnerID: meta.OwnerID, Name: meta.Name, ContentType: meta.ContentType})
	if err != nil {
		os.Remove(tempPath)
		return 0, fmt.Errorf("failed to encode metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metaFile), raw, 0644); err != nil {
		os.Remove(tempPath)
		return 0, fmt.Errorf("failed to write metadata: %w", err)
	}

	if err := os.Rename(tempPath, dataPath); err != nil {
		return 0, fmt.Errorf("failed to rename temp file: %w", err)
	}

	if m.cache != nil {
		m.cache.Delete(meta.ID)
	}
	return written, nil
}

// CleanOldTempFiles removes interrupted uploads older than the specified duration
func (m *Manager) CleanOldTempFiles(olderThan time.Duration) (int, error) {
	count := 0
	threshold := time.Now().Add(-olderThan)

	err := filepath.WalkDir(m.rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".uploading" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(threshold) {
			if removeErr := os.Remove(path); removeErr == nil {
				count++
			}
		}
		return nil
	})
	return count, err
}
