package storage

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// unusedPrefix marks archived payloads that were rejected before
// reconciliation, so bad scrapes can be inspected or replayed later.
const unusedPrefix = "NOT_USED_"

// FileArchive keeps raw scraped payloads on disk, one file per response,
// capped to a total size per portal directory.
type FileArchive struct {
	root      string
	maxSizeMB float64
}

func NewFileArchive(root string, maxSizeMB float64) *FileArchive {
	return &FileArchive{root: root, maxSizeMB: maxSizeMB}
}

// Save writes one raw payload under a unique name and culls the portal's
// directory back under the size cap. Returns the path written.
func (a *FileArchive) Save(portal string, payload []byte, used bool) (string, error) {
	dir := filepath.Join(a.root, portal)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create archive directory: %w", err)
	}

	name := uuid.NewString() + "_" + portal
	if !used {
		name = unusedPrefix + name
	}
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, payload, 0644); err != nil {
		return "", fmt.Errorf("archive payload: %w", err)
	}

	if err := a.cull(dir); err != nil {
		log.Printf("Warning: could not cull archive %s: %v", dir, err)
	}
	return path, nil
}

// cull removes oldest files first until the directory fits the cap.
func (a *FileArchive) cull(dir string) error {
	for {
		size, err := dirSizeMB(dir)
		if err != nil {
			return err
		}
		if size <= a.maxSizeMB {
			return nil
		}
		if err := removeOldestFile(dir); err != nil {
			return err
		}
	}
}

func dirSizeMB(dir string) (float64, error) {
	var total int64
	err := filepath.Walk(dir, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return float64(total) / (1024 * 1024), err
}

func removeOldestFile(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var oldest string
	var oldestMod int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if oldest == "" || info.ModTime().UnixNano() < oldestMod {
			oldest = entry.Name()
			oldestMod = info.ModTime().UnixNano()
		}
	}
	if oldest == "" {
		return fmt.Errorf("directory %s over size cap but has no files", dir)
	}
	return os.Remove(filepath.Join(dir, oldest))
}
