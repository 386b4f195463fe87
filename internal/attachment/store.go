// Package attachment stores campaign attachment files and loads them back
// when a dispatch run assembles messages.
package attachment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a storage reference resolves to nothing.
var ErrNotFound = errors.New("attachment not found")

// Store saves and loads attachment bytes by storage reference.
type Store interface {
	// Put stores data and returns the reference to keep on the campaign.
	Put(ctx context.Context, ownerID, filename, contentType string, data []byte) (string, error)
	// Load returns the bytes behind ref.
	Load(ctx context.Context, ref string) ([]byte, error)
}

// objectKey builds an owner-scoped, collision-free key that keeps the
// original file extension.
func objectKey(ownerID, filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" {
		name = "file"
	}
	return fmt.Sprintf("%s/%s-%s", ownerID, uuid.NewString(), name)
}

// LocalStore keeps attachments under a directory on disk.
type LocalStore struct {
	root string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create attachment dir: %w", err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) Put(_ context.Context, ownerID, filename, _ string, data []byte) (string, error) {
	key := objectKey(ownerID, filename)
	path := filepath.Join(s.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create owner dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write attachment: %w", err)
	}
	return key, nil
}

// Load accepts a key relative to the root. References escaping the root
// are rejected.
func (s *LocalStore) Load(_ context.Context, ref string) ([]byte, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	data, err := os.ReadFile(filepath.Join(s.root, clean))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	return data, nil
}
