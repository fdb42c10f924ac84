package store

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore is the last-resort fallback: one JSON file per session, named by
// session id, under a single directory. It only ever sees full snapshots, so
// save is a plain overwrite.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".json")
}

func (s *FileStore) ensureDir() error {
	return os.MkdirAll(s.dir, 0o755)
}

// Save writes the serialized session snapshot, overwriting any previous one.
func (s *FileStore) Save(sessionID string, data []byte) error {
	if err := s.ensureDir(); err != nil {
		return fmt.Errorf("file store: create dir: %w", err)
	}
	if err := os.WriteFile(s.path(sessionID), data, 0o644); err != nil {
		return fmt.Errorf("file store: save session %s: %w", sessionID, err)
	}
	return nil
}

// Load reads a session snapshot. A missing file is (nil, nil).
func (s *FileStore) Load(sessionID string) ([]byte, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("file store: load session %s: %w", sessionID, err)
	}
	return data, nil
}

// Delete removes a session file. Missing files are a no-op.
func (s *FileStore) Delete(sessionID string) error {
	if err := os.Remove(s.path(sessionID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("file store: delete session %s: %w", sessionID, err)
	}
	return nil
}

// CleanupExpired deletes session files whose last modification is older than
// maxAge, returning how many were removed.
func (s *FileStore) CleanupExpired(maxAge time.Duration) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[FileStore] cleanup: %v", err)
		}
		return 0
	}

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil {
				log.Printf("[FileStore] cleanup remove %s: %v", entry.Name(), err)
				continue
			}
			removed++
		}
	}
	return removed
}
