package dedup

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// FileStore is the durable, single-node implementation of Store. Identifiers
// are kept one per line in an append-only file; the full file is loaded into
// memory at startup and is the complete dedup set at any point in time.
type FileStore struct {
	mu     sync.Mutex
	path   string
	file   *os.File
	ids    map[string]struct{}
	logger zerolog.Logger
}

// NewFileStore opens (creating if necessary) the dedup file at path and loads
// every recorded identifier into memory.
func NewFileStore(path string, logger zerolog.Logger) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("dedup file path cannot be empty")
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open dedup file %s: %w", path, err)
	}

	ids := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		ids[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to read dedup file %s: %w", path, err)
	}

	logger.Info().Str("path", path).Int("loaded_ids", len(ids)).Msg("Dedup file store loaded.")

	return &FileStore{
		path:   path,
		file:   file,
		ids:    ids,
		logger: logger.With().Str("component", "FileStore").Logger(),
	}, nil
}

// Seen reports whether the identifier has been marked.
func (s *FileStore) Seen(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok, nil
}

// Mark appends the identifier to the file, syncs it to stable storage, and
// only then records it in memory. The append must not be skipped: a crash
// before the durable write causes redelivery, which the pipeline accepts, but
// a skipped write would silently break the dedup guarantee.
func (s *FileStore) Mark(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return nil
	}

	if _, err := fmt.Fprintln(s.file, id); err != nil {
		return fmt.Errorf("failed to append id to dedup file: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync dedup file: %w", err)
	}

	s.ids[id] = struct{}{}
	return nil
}

// Len returns the number of identifiers currently held.
func (s *FileStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Close closes the underlying file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
