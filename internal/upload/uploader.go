package upload

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/dedup"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/domain"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/metrics"
)

// Delivery outcomes reported per batch.
const (
	OutcomeDelivered    = metrics.OutcomeDelivered
	OutcomeAcknowledged = metrics.OutcomeAcknowledged
	OutcomeEmpty        = metrics.OutcomeEmpty
	OutcomeFailed       = metrics.OutcomeFailed
)

// Options configures an Uploader.
type Options struct {
	UserID int64
	// RequestsPerSecond throttles sink calls. Zero means unthrottled.
	RequestsPerSecond float64

	// Ledger receives the fingerprints of every delivered batch and is
	// rewritten to LedgerPath after each one.
	Ledger     *dedup.Ledger
	LedgerPath string

	// FileLedger, when set, records the content hash of every delivered or
	// acknowledged file and is saved to FileLedgerPath.
	FileLedger     *dedup.FileLedger
	FileLedgerPath string

	Metrics *metrics.Recorder
	Logger  zerolog.Logger
	Now     func() time.Time
	// NewKey generates per-batch idempotency keys. Defaults to random UUIDs.
	NewKey func() string
}

// Delivery is what happened to one batch.
type Delivery struct {
	Institution    string `json:"institution"`
	Source         string `json:"source"`
	Outcome        string `json:"outcome"`
	StatementID    int64  `json:"statementId,omitempty"`
	Transactions   int    `json:"transactions"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
	Error          string `json:"error,omitempty"`
}

// DeliveryReport summarizes a Deliver call.
type DeliveryReport struct {
	Deliveries   []Delivery `json:"deliveries"`
	Delivered    int        `json:"delivered"`
	Acknowledged int        `json:"acknowledged"`
	Empty        int        `json:"empty"`
	Transactions int        `json:"transactions"`
}

func (r *DeliveryReport) add(d Delivery) {
	r.Deliveries = append(r.Deliveries, d)
	switch d.Outcome {
	case OutcomeDelivered:
		r.Delivered++
		r.Transactions += d.Transactions
	case OutcomeAcknowledged:
		r.Acknowledged++
	case OutcomeEmpty:
		r.Empty++
	}
}

// Uploader delivers batches to a Sink one at a time.
type Uploader struct {
	sink    Sink
	opts    Options
	limiter *rate.Limiter
}

// NewUploader creates an Uploader. The ledger and its path are required.
func NewUploader(sink Sink, opts Options) (*Uploader, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink cannot be nil")
	}
	if opts.Ledger == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if opts.LedgerPath == "" {
		return nil, fmt.Errorf("ledger path cannot be empty")
	}
	if opts.FileLedger != nil && opts.FileLedgerPath == "" {
		return nil, fmt.Errorf("file ledger path cannot be empty")
	}
	if opts.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests per second cannot be negative")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewKey == nil {
		opts.NewKey = func() string { return uuid.New().String() }
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Uploader{
		sink:    sink,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

// Deliver walks the batches in order. Redundant batches are acknowledged
// without contacting the sink; empty ones are skipped. Each delivered batch
// is committed to the ledger before the next one starts. The first failure
// stops delivery and is returned with the report so far; nothing from the
// failed batch reaches the ledger.
func (u *Uploader) Deliver(ctx context.Context, institutions []domain.InstitutionBatch) (*DeliveryReport, error) {
	report := &DeliveryReport{}

	for i := range institutions {
		inst := &institutions[i]
		log := u.opts.Logger.With().Str("component", "upload").Str("institution", inst.Institution).Logger()

		for j := range inst.Batches {
			if err := ctx.Err(); err != nil {
				return report, err
			}

			batch := &inst.Batches[j]
			d := Delivery{Institution: inst.Institution, Source: batch.Source}

			switch {
			case batch.AllRedundant:
				d.Outcome = OutcomeAcknowledged
				if err := u.recordFile(batch); err != nil {
					return report, err
				}
				log.Debug().Str("file", batch.Source).Msg("batch redundant, acknowledged")

			case len(batch.Transactions) == 0:
				d.Outcome = OutcomeEmpty
				log.Debug().Str("file", batch.Source).Msg("batch empty, skipped")

			default:
				d.IdempotencyKey = u.opts.NewKey()
				id, err := u.deliverBatch(WithIdempotencyKey(ctx, d.IdempotencyKey), inst.InstitutionID, batch)
				if err != nil {
					d.Outcome = OutcomeFailed
					d.Error = err.Error()
					report.Deliveries = append(report.Deliveries, d)
					u.opts.Metrics.Batch(OutcomeFailed)
					log.Error().Err(err).Str("file", batch.Source).Msg("delivery failed")
					return report, fmt.Errorf("failed to deliver %s: %w", batch.Source, err)
				}
				d.Outcome = OutcomeDelivered
				d.StatementID = id
				d.Transactions = len(batch.Transactions)

				if err := u.commit(batch); err != nil {
					report.add(d)
					return report, err
				}
				log.Info().
					Str("file", batch.Source).
					Int64("statement_id", id).
					Int("transactions", d.Transactions).
					Msg("batch delivered")
			}

			u.opts.Metrics.Batch(d.Outcome)
			report.add(d)
		}
	}

	return report, nil
}

func (u *Uploader) deliverBatch(ctx context.Context, institutionID int64, batch *domain.TransactionBatch) (int64, error) {
	period, ok := batch.StatementPeriodOrDerived()
	if !ok {
		today := u.opts.Now().UTC().Truncate(24 * time.Hour)
		period = domain.StatementPeriod{Start: today, End: today}
	}

	if err := u.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	statementID, err := u.sink.CreateStatement(ctx, NewStatementRequest(u.opts.UserID, institutionID, period))
	if err != nil {
		return 0, err
	}

	txns := make([]domain.Transaction, len(batch.Transactions))
	for i, txn := range batch.Transactions {
		txns[i] = txn.WithStatement(statementID)
	}

	if err := u.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	if err := u.sink.CreateTransactions(ctx, statementID, txns); err != nil {
		return 0, err
	}

	batch.Transactions = txns
	return statementID, nil
}

// commit adds a delivered batch's fingerprints to the ledger and rewrites it.
func (u *Uploader) commit(batch *domain.TransactionBatch) error {
	if _, err := u.opts.Ledger.Add(batch.Fingerprints...); err != nil {
		return fmt.Errorf("failed to record fingerprints for %s: %w", batch.Source, err)
	}
	if err := dedup.SaveLedger(u.opts.Ledger, u.opts.LedgerPath); err != nil {
		return fmt.Errorf("delivered %s but failed to save ledger: %w", batch.Source, err)
	}
	return u.recordFile(batch)
}

func (u *Uploader) recordFile(batch *domain.TransactionBatch) error {
	fl := u.opts.FileLedger
	if fl == nil || batch.SourceFingerprint == "" || fl.Contains(batch.SourceFingerprint) {
		return nil
	}
	if err := fl.Record(batch.SourceFingerprint, batch.Source, u.opts.Now()); err != nil {
		return fmt.Errorf("failed to record consumed file %s: %w", batch.Source, err)
	}
	if err := dedup.SaveFileLedger(fl, u.opts.FileLedgerPath); err != nil {
		return fmt.Errorf("failed to save file ledger: %w", err)
	}
	return nil
}
