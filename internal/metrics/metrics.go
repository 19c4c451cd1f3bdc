// Package metrics holds the per-run prometheus counters.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

// File outcomes.
const (
	OutcomeParsed    = "parsed"
	OutcomeRedundant = "redundant"
	OutcomeKnownFile = "known_file"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Transaction outcomes.
const (
	OutcomeNew       = "new"
	OutcomeDuplicate = "duplicate"
)

// Delivery outcomes.
const (
	OutcomeDelivered    = "delivered"
	OutcomeAcknowledged = "acknowledged"
	OutcomeEmpty        = "empty"
)

// Recorder collects counters for one run on its own registry.
// A nil *Recorder discards everything.
type Recorder struct {
	registry     *prometheus.Registry
	files        *prometheus.CounterVec
	transactions *prometheus.CounterVec
	strategies   *prometheus.CounterVec
	batches      *prometheus.CounterVec
}

// New creates a recorder with all counters registered.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ofxingest_files_total",
			Help: "Statement files processed, by institution and outcome.",
		}, []string{"institution", "outcome"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ofxingest_transactions_total",
			Help: "Transactions seen, by institution and whether they were new.",
		}, []string{"institution", "outcome"}),
		strategies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ofxingest_parse_strategy_total",
			Help: "Files parsed, by the strategy or parser that produced their transactions.",
		}, []string{"strategy"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ofxingest_batches_delivered_total",
			Help: "Batches handed to the upload sink, by outcome.",
		}, []string{"outcome"}),
	}
	r.registry.MustRegister(r.files, r.transactions, r.strategies, r.batches)
	return r
}

// File counts one processed file.
func (r *Recorder) File(institution, outcome string) {
	if r == nil {
		return
	}
	r.files.WithLabelValues(institution, outcome).Inc()
}

// Transactions adds n transactions with the given outcome.
func (r *Recorder) Transactions(institution, outcome string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.transactions.WithLabelValues(institution, outcome).Add(float64(n))
}

// Strategy counts one file parsed by strategy.
func (r *Recorder) Strategy(strategy string) {
	if r == nil || strategy == "" {
		return
	}
	r.strategies.WithLabelValues(strategy).Inc()
}

// Batch counts one batch delivery outcome.
func (r *Recorder) Batch(outcome string) {
	if r == nil {
		return
	}
	r.batches.WithLabelValues(outcome).Inc()
}

// Gatherer exposes the run registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes the counters in the text exposition format for the
// node_exporter textfile collector. The write is atomic.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
