package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Rhymond/go-money"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/domain"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/pipeline"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/upload"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/validate"
)

// Currency of every amount the statement service stores.
const Currency = money.USD

// Report is the JSON record of one ingest run.
type Report struct {
	RunID        string                        `json:"runId"`
	StartedAt    time.Time                     `json:"startedAt"`
	DryRun       bool                          `json:"dryRun"`
	Summary      []InstitutionSummary          `json:"summary"`
	Institutions []domain.InstitutionBatch     `json:"institutions"`
	Skipped      []pipeline.FileFailure        `json:"skipped,omitempty"`
	Failed       []pipeline.InstitutionFailure `json:"failed,omitempty"`
	Validation   *validate.ValidationResult    `json:"validation,omitempty"`
	Delivery     *upload.DeliveryReport        `json:"delivery,omitempty"`
}

// InstitutionSummary totals one institution's new transactions.
type InstitutionSummary struct {
	Institution   string `json:"institution"`
	InstitutionID int64  `json:"institutionId"`
	Files         int    `json:"files"`
	Redundant     int    `json:"redundant"`
	New           int    `json:"new"`
	Duplicates    int    `json:"duplicates"`
	// Debits and Credits are minor units; the Display fields format them.
	Debits         int64  `json:"debits"`
	Credits        int64  `json:"credits"`
	DebitsDisplay  string `json:"debitsDisplay"`
	CreditsDisplay string `json:"creditsDisplay"`
	NetDisplay     string `json:"netDisplay"`
}

// NewReport assembles a report from a pipeline result. Delivery and
// validation are attached by the caller as the run progresses.
func NewReport(runID string, startedAt time.Time, dryRun bool, result *pipeline.Result) *Report {
	r := &Report{
		RunID:     runID,
		StartedAt: startedAt.UTC(),
		DryRun:    dryRun,
	}
	if result == nil {
		return r
	}
	r.Institutions = result.Institutions
	r.Skipped = result.Skipped
	r.Failed = result.Failed
	r.Summary = Summarize(result.Institutions)
	return r
}

// Summarize totals each institution's batches.
func Summarize(institutions []domain.InstitutionBatch) []InstitutionSummary {
	out := make([]InstitutionSummary, 0, len(institutions))
	for _, inst := range institutions {
		s := InstitutionSummary{
			Institution:   inst.Institution,
			InstitutionID: inst.InstitutionID,
			Files:         len(inst.Batches),
		}
		for _, b := range inst.Batches {
			if b.AllRedundant {
				s.Redundant++
			}
			s.New += len(b.Transactions)
			s.Duplicates += b.Duplicates
			for _, txn := range b.Transactions {
				if txn.Amount < 0 {
					s.Debits += txn.Amount
				} else {
					s.Credits += txn.Amount
				}
			}
		}
		s.DebitsDisplay = FormatAmount(s.Debits)
		s.CreditsDisplay = FormatAmount(s.Credits)
		s.NetDisplay = FormatAmount(s.Debits + s.Credits)
		out = append(out, s)
	}
	return out
}

// FormatAmount renders minor units as dollars, e.g. -245050 as "-$2,450.50".
func FormatAmount(minor int64) string {
	return money.New(minor, Currency).Display()
}

// WriteOptions configures where the report goes
type WriteOptions struct {
	FilePath string // Output path (empty = stdout)
}

// WriteReport serializes the report to JSON with 2-space indentation
func WriteReport(report *Report, w io.Writer) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report as JSON: %w", err)
	}

	return nil
}

// WriteReportToFile writes the report to a file or stdout based on options
func WriteReportToFile(report *Report, opts WriteOptions) (err error) {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}

	if opts.FilePath == "" {
		return WriteReport(report, os.Stdout)
	}

	if dir := filepath.Dir(opts.FilePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}

	f, err := os.Create(opts.FilePath)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", opts.FilePath, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close output file %s: %w", opts.FilePath, closeErr)
		}
	}()

	if err = WriteReport(report, f); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", opts.FilePath, err)
	}

	return nil
}
