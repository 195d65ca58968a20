// SPDX-License-Identifier: MIT

// Package storage persists photo bytes and their metadata index.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/ManuGH/camwatch/internal/log"
)

// Store is the photo byte sink.
type Store interface {
	// Save writes data under name. The write is atomic: readers never
	// observe a partial file.
	Save(ctx context.Context, data []byte, name string) error
}

// FileStore writes photos into a single directory using atomic
// replace-on-rename.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("storage directory is empty")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory photos are saved into.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) Save(ctx context.Context, data []byte, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	logger := log.FromContext(ctx)

	pending, err := renameio.NewPendingFile(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("create pending photo file: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			logger.Debug().Err(err).Msg("cleanup pending photo file")
		}
	}()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write photo data: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace photo file: %w", err)
	}
	return nil
}

// validateName keeps saved files inside the storage directory. Names
// arrive from the coordinator as uuid-suffixed basenames; anything with
// path structure is rejected.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("photo name is empty")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("photo name %q contains path elements", name)
	}
	if filepath.Base(name) != name {
		return fmt.Errorf("photo name %q contains path elements", name)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
