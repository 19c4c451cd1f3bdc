// Package pipeline turns institution directories into per-file transaction
// batches, filtered against the hash ledger.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/config"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/dedup"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/domain"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/metrics"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/parser"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/registry"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/scanner"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/transform"
)

// Options configures an Assembler. Zero values are usable.
type Options struct {
	// FileLedger skips files whose content was already consumed. Optional.
	FileLedger *dedup.FileLedger
	// Institutions maps institution slugs to ids.
	Institutions map[string]int64
	// SkipParseFailures records unparseable files and carries on instead of
	// aborting the run.
	SkipParseFailures bool
	Metrics           *metrics.Recorder
	Logger            zerolog.Logger
	Now               func() time.Time
}

// Assembler builds transaction batches. It holds run state (the pending
// fingerprint set), so use one Assembler per run. Not safe for concurrent use.
type Assembler struct {
	registry   *registry.Registry
	normalizer *transform.Normalizer
	ledger     *dedup.Ledger
	opts       Options

	// pending holds fingerprints batched earlier in this run but not yet
	// delivered, so overlapping exports are not uploaded twice.
	pending map[string]struct{}
}

// FileFailure is a file skipped because it could not be parsed.
type FileFailure struct {
	Institution string
	Path        string
	Err         error
}

// MarshalJSON renders the error as its message.
func (f FileFailure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Institution string `json:"institution"`
		Path        string `json:"path"`
		Error       string `json:"error"`
	}{f.Institution, f.Path, f.Err.Error()})
}

// InstitutionFailure is an institution dropped from the run by an I/O error.
type InstitutionFailure struct {
	Institution string
	Dir         string
	Err         error
}

// MarshalJSON renders the error as its message.
func (f InstitutionFailure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Institution string `json:"institution"`
		Dir         string `json:"dir"`
		Error       string `json:"error"`
	}{f.Institution, f.Dir, f.Err.Error()})
}

// Result is everything one Assemble call produced.
type Result struct {
	Institutions []domain.InstitutionBatch `json:"institutions"`
	Skipped      []FileFailure             `json:"skipped,omitempty"`
	Failed       []InstitutionFailure      `json:"failed,omitempty"`
}

// NewTransactions counts new transactions across every institution.
func (r *Result) NewTransactions() int {
	n := 0
	for i := range r.Institutions {
		n += r.Institutions[i].NewTransactions()
	}
	return n
}

// New creates an Assembler.
func New(reg *registry.Registry, normalizer *transform.Normalizer, ledger *dedup.Ledger, opts Options) (*Assembler, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if normalizer == nil {
		return nil, fmt.Errorf("normalizer cannot be nil")
	}
	if ledger == nil {
		return nil, fmt.Errorf("ledger cannot be nil")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Assembler{
		registry:   reg,
		normalizer: normalizer,
		ledger:     ledger,
		opts:       opts,
		pending:    make(map[string]struct{}),
	}, nil
}

// Assemble processes every source in order. A directory or file I/O failure
// drops that institution (recorded in Result.Failed) and moves on. An
// unparseable file aborts the run with a *StageError unless
// SkipParseFailures is set. The partial result is returned with any error.
func (a *Assembler) Assemble(ctx context.Context, sources []config.Source) (*Result, error) {
	result := &Result{}
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch, skipped, err := a.AssembleInstitution(ctx, src)
		result.Skipped = append(result.Skipped, skipped...)
		if err != nil {
			if IsIOError(err) {
				a.opts.Logger.Error().Err(err).Str("dir", src.Dir).Msg("institution dropped")
				result.Failed = append(result.Failed, InstitutionFailure{
					Institution: batch.Institution,
					Dir:         src.Dir,
					Err:         err,
				})
				continue
			}
			return result, err
		}
		result.Institutions = append(result.Institutions, *batch)
	}
	return result, nil
}

// AssembleInstitution builds one batch per file in src.Dir. Fingerprints it
// batches join the run's pending set only when the whole institution succeeds.
// The returned InstitutionBatch is never nil.
func (a *Assembler) AssembleInstitution(ctx context.Context, src config.Source) (*domain.InstitutionBatch, []FileFailure, error) {
	sc := scanner.New(src.Dir, a.opts.Institutions)
	name, id := sc.Institution()
	out := &domain.InstitutionBatch{InstitutionID: id, Institution: name, Dir: src.Dir}
	log := a.opts.Logger.With().Str("component", "pipeline").Str("institution", name).Logger()

	files, err := sc.Scan()
	if err != nil {
		return out, nil, &StageError{Stage: StageList, Path: src.Dir, Err: err}
	}
	log.Debug().Int("files", len(files)).Msg("scanned source directory")

	fixed, err := a.registry.ForFormat(src.Format)
	if err != nil {
		return out, nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	local := make(map[string]struct{})
	var skipped []FileFailure
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return out, skipped, err
		}

		batch, err := a.assembleFile(ctx, f, fixed, local)
		if err != nil {
			if IsDataError(err) && a.opts.SkipParseFailures {
				log.Warn().Err(err).Str("file", f.Path).Msg("skipping unparseable file")
				a.opts.Metrics.File(name, metrics.OutcomeSkipped)
				skipped = append(skipped, FileFailure{Institution: name, Path: f.Path, Err: err})
				continue
			}
			if IsDataError(err) {
				a.opts.Metrics.File(name, metrics.OutcomeFailed)
			}
			return out, skipped, err
		}

		a.record(name, batch)
		log.Info().
			Str("file", f.Path).
			Str("strategy", batch.Parser).
			Int("parsed", batch.Parsed).
			Int("new", len(batch.Transactions)).
			Int("duplicates", batch.Duplicates).
			Bool("all_redundant", batch.AllRedundant).
			Msg("assembled batch")
		out.Batches = append(out.Batches, *batch)
	}

	for fp := range local {
		a.pending[fp] = struct{}{}
	}
	return out, skipped, nil
}

func (a *Assembler) assembleFile(ctx context.Context, f scanner.ScanResult, fixed parser.Parser, local map[string]struct{}) (*domain.TransactionBatch, error) {
	content, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, &StageError{Stage: StageRead, Path: f.Path, Err: err}
	}
	fileHash, err := dedup.FileFingerprint(bytes.NewReader(content))
	if err != nil {
		return nil, &StageError{Stage: StageHash, Path: f.Path, Err: err}
	}

	batch := &domain.TransactionBatch{Source: f.Path, SourceFingerprint: fileHash}
	if a.opts.FileLedger != nil && a.opts.FileLedger.Contains(fileHash) {
		batch.AllRedundant = true
		batch.FileKnown = true
		return batch, nil
	}

	p := fixed
	if p == nil {
		p = a.registry.Detect(f.Path, content)
	}
	batch.Parser = p.Name()

	raw, err := p.Parse(ctx, bytes.NewReader(content), f.Metadata)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &StageError{Stage: StageParse, Path: f.Path, Err: err}
	}
	if raw.Strategy != "" {
		batch.Parser = raw.Strategy
	}
	batch.AccountID = raw.Account.AccountID()
	if raw.Period != nil {
		batch.Period = &domain.StatementPeriod{Start: raw.Period.Start(), End: raw.Period.End()}
	}

	txns, err := a.normalizer.TransformStatement(raw)
	if err != nil {
		return nil, &StageError{Stage: StageParse, Path: f.Path, Err: err}
	}

	for _, txn := range txns {
		fp := dedup.Fingerprint(txn)
		batch.Parsed++
		if a.known(fp, local) {
			batch.Duplicates++
			continue
		}
		local[fp] = struct{}{}
		batch.Add(txn, fp)
	}
	batch.AllRedundant = batch.Parsed > 0 && len(batch.Transactions) == 0
	return batch, nil
}

func (a *Assembler) known(fp string, local map[string]struct{}) bool {
	if a.ledger.Contains(fp) {
		return true
	}
	if _, ok := a.pending[fp]; ok {
		return true
	}
	_, ok := local[fp]
	return ok
}

func (a *Assembler) record(institution string, batch *domain.TransactionBatch) {
	m := a.opts.Metrics
	switch {
	case batch.FileKnown:
		m.File(institution, metrics.OutcomeKnownFile)
	case batch.AllRedundant:
		m.File(institution, metrics.OutcomeRedundant)
	default:
		m.File(institution, metrics.OutcomeParsed)
	}
	if !batch.FileKnown {
		m.Strategy(batch.Parser)
	}
	m.Transactions(institution, metrics.OutcomeNew, len(batch.Transactions))
	m.Transactions(institution, metrics.OutcomeDuplicate, batch.Duplicates)
}
