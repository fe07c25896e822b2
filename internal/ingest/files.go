package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FileStore keeps accepted uploads until a worker ingests them.
type FileStore interface {
	Save(ctx context.Context, id uuid.UUID, data []byte) error
	Load(ctx context.Context, id uuid.UUID) ([]byte, error)
	Remove(ctx context.Context, id uuid.UUID) error
}

// DirStore is a FileStore backed by a local directory shared by the API
// and the worker.
type DirStore struct {
	dir string
}

// NewDirStore constructs a DirStore rooted at dir.
func NewDirStore(dir string) *DirStore {
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Join(os.TempDir(), "uploads")
	}
	return &DirStore{dir: dir}
}

func (s *DirStore) path(id uuid.UUID) string {
	return filepath.Join(s.dir, fmt.Sprintf("upload-%s.bin", id))
}

// Save writes the upload atomically via a temp file rename.
func (s *DirStore) Save(_ context.Context, id uuid.UUID, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, "upload-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(id))
}

// Load reads a stored upload.
func (s *DirStore) Load(_ context.Context, id uuid.UUID) ([]byte, error) {
	return os.ReadFile(s.path(id))
}

// Remove deletes a stored upload; a missing file is not an error.
func (s *DirStore) Remove(_ context.Context, id uuid.UUID) error {
	err := os.Remove(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
