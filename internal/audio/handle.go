package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Handle refers to a playable copy of an encoded recording
type Handle struct {
	ID   string
	Path string
	Size int
}

// HandleStore creates and revokes playable handles for finalized recordings
type HandleStore interface {
	Create(asset Asset) (*Handle, error)
	Revoke(h *Handle) error
}

// TempHandles materializes handles as files in a directory so any local
// player can open them. Revoking a handle removes its file.
type TempHandles struct {
	dir string

	live map[string]*Handle
	mu   sync.Mutex
}

// NewTempHandles creates a handle store rooted at dir; an empty dir uses the
// system temp directory.
func NewTempHandles(dir string) (*TempHandles, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create preview directory %s: %w", dir, err)
	}
	return &TempHandles{
		dir:  dir,
		live: make(map[string]*Handle),
	}, nil
}

// Create writes the asset bytes to a new file and returns its handle
func (s *TempHandles) Create(asset Asset) (*Handle, error) {
	id := uuid.NewString()
	path := filepath.Join(s.dir, id+"-"+filepath.Base(asset.Name))

	if err := os.WriteFile(path, asset.Data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write preview %s: %w", path, err)
	}

	h := &Handle{ID: id, Path: path, Size: len(asset.Data)}

	s.mu.Lock()
	s.live[id] = h
	s.mu.Unlock()

	return h, nil
}

// Revoke deletes the handle's file. Revoking twice is a no-op.
func (s *TempHandles) Revoke(h *Handle) error {
	if h == nil {
		return nil
	}

	s.mu.Lock()
	_, ok := s.live[h.ID]
	delete(s.live, h.ID)
	s.mu.Unlock()

	if !ok {
		return nil
	}

	if err := os.Remove(h.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove preview %s: %w", h.Path, err)
	}
	return nil
}

// Live returns the number of handles not yet revoked
func (s *TempHandles) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}
