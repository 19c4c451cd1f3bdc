package pipeline

import (
	"errors"
	"fmt"

	"github.com/rumor-ml/commons.systems/ofxingest/internal/dedup"
	"github.com/rumor-ml/commons.systems/ofxingest/internal/parsers/ofx"
)

var (
	// ErrIO marks I/O failures: listing a directory, reading or hashing a file.
	ErrIO = errors.New("i/o error")
	// ErrData marks content no parser could turn into transactions.
	ErrData = errors.New("data error")
)

// Pipeline stages named in StageError.
const (
	StageList  = "list"
	StageRead  = "read"
	StageHash  = "hash"
	StageParse = "parse"
)

// StageError reports which stage failed for which path.
// errors.Is matches ErrData for StageParse and ErrIO for every other stage.
type StageError struct {
	Stage string
	Path  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Path, e.Err)
}

func (e *StageError) Unwrap() []error {
	kind := ErrIO
	if e.Stage == StageParse {
		kind = ErrData
	}
	return []error{kind, e.Err}
}

// IsDataError reports a data-quality failure (no strategy or parser could
// read the content).
func IsDataError(err error) bool {
	return errors.Is(err, ErrData) || errors.Is(err, ofx.ErrUnparseable)
}

// IsIOError reports an I/O or configuration failure, including a malformed
// ledger.
func IsIOError(err error) bool {
	return errors.Is(err, ErrIO) || errors.Is(err, dedup.ErrMalformedLedger)
}
