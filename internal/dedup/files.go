package dedup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// CurrentVersion is the current file ledger format version
	CurrentVersion = 1
)

// FileLedger records source files already consumed, keyed by content hash.
type FileLedger struct {
	Version int                    `json:"version"`
	Files   map[string]*FileRecord `json:"files"`
}

// FileRecord is where and when a file's content was first consumed.
type FileRecord struct {
	Path      string    `json:"path"`
	FirstSeen time.Time `json:"firstSeen"`
}

// NewFileLedger creates an empty file ledger.
func NewFileLedger() *FileLedger {
	return &FileLedger{
		Version: CurrentVersion,
		Files:   make(map[string]*FileRecord),
	}
}

// LoadFileLedger loads a file ledger from disk.
// Returns os.IsNotExist error if file doesn't exist (caller should handle).
func LoadFileLedger(filePath string) (*FileLedger, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err // Preserve os.IsNotExist for caller
	}

	var fl FileLedger
	if err := json.Unmarshal(data, &fl); err != nil {
		return nil, fmt.Errorf("%w: failed to parse file ledger %s: %v", ErrMalformedLedger, filePath, err)
	}
	if fl.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported file ledger version %d (current version: %d)", fl.Version, CurrentVersion)
	}
	if fl.Files == nil {
		fl.Files = make(map[string]*FileRecord)
	}
	return &fl, nil
}

// SaveFileLedger atomically writes the file ledger to disk.
func SaveFileLedger(fl *FileLedger, filePath string) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(fl, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal file ledger: %w", err)
	}

	tempFile := filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tempFile, filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Contains reports whether content with this hash was consumed before.
func (fl *FileLedger) Contains(hash string) bool {
	_, ok := fl.Files[hash]
	return ok
}

// Record marks a file's content as consumed. The first path and time are kept.
func (fl *FileLedger) Record(hash, path string, seen time.Time) error {
	if !IsFingerprint(hash) {
		return fmt.Errorf("invalid file hash %q", truncate(hash, 80))
	}
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if _, exists := fl.Files[hash]; exists {
		return nil
	}
	fl.Files[hash] = &FileRecord{Path: path, FirstSeen: seen.UTC()}
	return nil
}

// Len returns the number of consumed files.
func (fl *FileLedger) Len() int {
	return len(fl.Files)
}
