// Package scanner enumerates the statement files of one institution directory.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/parser"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/transform"
)

// Scanner lists the files of a single source directory. The directory's base
// name identifies the institution.
type Scanner struct {
	dir          string
	institutions map[string]int64
	now          func() time.Time
}

// New creates a scanner for dir. institutions maps institution slugs (see
// transform.SlugifyInstitution) to ids; a nil map leaves every id at 0.
func New(dir string, institutions map[string]int64) *Scanner {
	return &Scanner{dir: dir, institutions: institutions, now: time.Now}
}

// ScanResult represents a found file with metadata
type ScanResult struct {
	Path     string
	Metadata *parser.Metadata
}

// Dir returns the source directory with ~ expanded.
func (s *Scanner) Dir() (string, error) {
	return ExpandHome(s.dir)
}

// Institution returns the directory base name and its mapped id. Unmapped
// names return id 0.
func (s *Scanner) Institution() (string, int64) {
	dir, err := s.Dir()
	if err != nil {
		dir = s.dir
	}
	name := filepath.Base(filepath.Clean(dir))
	return name, LookupInstitution(s.institutions, name)
}

// Scan lists regular files in the directory, sorted by name. Subdirectories
// and dotfiles are skipped.
func (s *Scanner) Scan() ([]ScanResult, error) {
	dir, err := s.Dir()
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan failed: error accessing %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	name, id := s.Institution()
	results := make([]ScanResult, 0, len(entries))
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if !isCandidate(path, entry) {
			continue
		}

		meta, err := parser.NewMetadata(path, s.now())
		if err != nil {
			return nil, fmt.Errorf("invalid metadata for %s (processed %d files so far): %w", path, len(results), err)
		}
		meta.SetInstitution(name, id)

		results = append(results, ScanResult{Path: path, Metadata: meta})
	}

	return results, nil
}

func isCandidate(path string, entry os.DirEntry) bool {
	if strings.HasPrefix(entry.Name(), ".") {
		return false
	}
	if entry.Type()&os.ModeSymlink != 0 {
		info, err := os.Stat(path)
		return err == nil && info.Mode().IsRegular()
	}
	return entry.Type().IsRegular()
}

// LookupInstitution maps a directory name to its id through its slug.
func LookupInstitution(institutions map[string]int64, dirName string) int64 {
	if len(institutions) == 0 {
		return 0
	}
	slug, err := transform.SlugifyInstitution(dirName)
	if err != nil {
		return 0
	}
	return institutions[slug]
}

// ExpandHome expands a leading ~/ to the user's home directory.
func ExpandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}
