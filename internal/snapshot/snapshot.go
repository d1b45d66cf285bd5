// Package snapshot contains the dated price table and the builder that
// produces a new one from the catalog and the previous table.
package snapshot

import (
	"bgprices/internal/annotate"
	"bgprices/internal/extract"
	"bgprices/internal/fetch"
	"bgprices/internal/pricing"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Cell is the value of one source for one game.
type Cell struct {
	Price        *pricing.Price
	Availability pricing.Availability
	Annotation   annotate.Annotation
	// Gap is set when nothing could be read this run, Price and
	// Availability are then carried forward from the previous snapshot.
	Gap       bool
	GapReason string
}

func (c Cell) Total() decimal.NullDecimal {
	return pricing.TotalOf(c.Price)
}

// Row is one game, rows are in catalog order.
type Row struct {
	Game        string
	Identifiers map[pricing.Source]string
	Cells       map[pricing.Source]Cell
}

func (r Row) Cell(src pricing.Source) (Cell, bool) {
	c, ok := r.Cells[src]
	return c, ok
}

// Snapshot is immutable once it has been appended to a store.
type Snapshot struct {
	Label   string
	TakenAt time.Time
	RunID   string
	Sources []pricing.Source
	Rows    []Row
}

// Empty is true when there is nothing to diff against, eg. on the first run.
func (s Snapshot) Empty() bool {
	return len(s.Rows) == 0
}

// Baseline returns row i if it belongs to the given game. Rows are compared
// by position, the name only guards against a reordered catalog.
func (s Snapshot) Baseline(i int, game string) (row Row, ok bool, mismatch bool) {
	if i < 0 || i >= len(s.Rows) {
		return Row{}, false, false
	}
	if s.Rows[i].Game != game {
		return Row{}, false, true
	}
	return s.Rows[i], true, false
}

type FailureKind string

const (
	FailureFetch      FailureKind = "fetch"
	FailureExtraction FailureKind = "extraction"
	FailureOther      FailureKind = "other"
)

// Failure is a recoverable per game, per source error.
type Failure struct {
	Game   string
	Source pricing.Source
	Kind   FailureKind
	Err    error
}

func (f Failure) Reason() string {
	if f.Err == nil {
		return string(f.Kind)
	}
	return f.Err.Error()
}

func classifyFailure(err error) FailureKind {
	var fetchErr *fetch.Error
	if errors.As(err, &fetchErr) {
		return FailureFetch
	}
	var extractErr *extract.Error
	if errors.As(err, &extractErr) {
		return FailureExtraction
	}
	return FailureOther
}

// Report lists what went wrong during a run without stopping it.
type Report struct {
	RunID    string
	Rows     int
	Failures []Failure
}

// GapCount is the number of cells left unfilled, failures included.
func (s Snapshot) GapCount() int {
	n := 0
	for _, row := range s.Rows {
		for _, cell := range row.Cells {
			if cell.Gap {
				n++
			}
		}
	}
	return n
}
