package parser

import (
	"fmt"
	"time"
)

// Metadata contains context about the file being parsed.
// Extracted from directory structure: {source dir}/file
//
// Create instances using NewMetadata(filePath, detectedAt). Institution data is
// optional and set after construction; an unmapped directory leaves institutionID at 0.
type Metadata struct {
	filePath      string
	institution   string // directory base name, e.g. "american_express"
	institutionID int64  // mapped id, 0 when the directory is not configured
	detectedAt    time.Time
}

// NewMetadata creates a new Metadata instance with validated required fields.
// Returns an error if filePath is empty or detectedAt is zero.
func NewMetadata(filePath string, detectedAt time.Time) (*Metadata, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}
	if detectedAt.IsZero() {
		return nil, fmt.Errorf("detected time cannot be zero")
	}
	return &Metadata{
		filePath:   filePath,
		detectedAt: detectedAt,
	}, nil
}

// FilePath returns the file path
func (m *Metadata) FilePath() string {
	return m.filePath
}

// Institution returns the institution directory name.
func (m *Metadata) Institution() string {
	return m.institution
}

// InstitutionID returns the mapped institution id (0 when unknown).
func (m *Metadata) InstitutionID() int64 {
	return m.institutionID
}

// DetectedAt returns the timestamp when the file was detected
func (m *Metadata) DetectedAt() time.Time {
	return m.detectedAt
}

// SetInstitution sets the institution directory name and its mapped id
func (m *Metadata) SetInstitution(name string, id int64) {
	m.institution = name
	m.institutionID = id
}

// FileInfo returns " from <path>" for error messages, or "" when meta is nil
func FileInfo(meta *Metadata) string {
	if meta != nil && meta.FilePath() != "" {
		return fmt.Sprintf(" from %s", meta.FilePath())
	}
	return ""
}
