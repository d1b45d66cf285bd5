package snapshot

import (
	"bgprices/internal/annotate"
	"bgprices/internal/catalog"
	"bgprices/internal/components/assert"
	"bgprices/internal/components/chrono"
	"bgprices/internal/components/telemetry"
	"bgprices/internal/extract"
	"bgprices/internal/fetch"
	"bgprices/internal/pricing"
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("bgprices/internal/snapshot")

const (
	report_builder_fetch        = "builder.fetch"
	report_builder_extract      = "builder.extract"
	report_builder_row_mismatch = "builder.row-mismatch"
	report_builder_gaps         = "builder.gaps"
	report_builder_failures     = "builder.failures"
)

const gapReasonNotListed = "not listed on this source"

// Source pairs an extractor with the url prefix of its product pages.
type Source struct {
	Extractor extract.Extractor
	// BaseURL is concatenated with the catalog identifier.
	BaseURL string
}

// Builder produces a new snapshot out of the catalog, the previous snapshot
// and whatever the sites return right now.
type Builder struct {
	sources   []Source
	fetcher   fetch.Fetcher
	annotator annotate.Annotator
	time      chrono.API
	tel       telemetry.API
	workers   int
}

type BuilderOption func(b *Builder)

// WithWorkers fetches up to n games at once, output order is unaffected.
func WithWorkers(n int) BuilderOption {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

func NewBuilder(
	fetcher fetch.Fetcher,
	annotator annotate.Annotator,
	sources []Source,
	time chrono.API,
	tel telemetry.API,
	options ...BuilderOption,
) Builder {
	assert.NotNil(fetcher, "fetcher")
	assert.NotNil(time, "time")
	assert.NotNil(tel, "tel")
	for _, src := range sources {
		assert.NotNil(src.Extractor, "extractor")
	}

	b := Builder{
		sources:   sources,
		fetcher:   fetcher,
		annotator: annotator,
		time:      time,
		tel:       tel,
		workers:   1,
	}
	for _, opt := range options {
		opt(&b)
	}
	return b
}

// Sources lists the sources in column order.
func (b Builder) Sources() []pricing.Source {
	out := make([]pricing.Source, len(b.sources))
	for i, src := range b.sources {
		out[i] = src.Extractor.Source()
	}
	return out
}

// Build never fails as a whole, every per game error becomes a gap in the
// snapshot and an entry in the report. The snapshot always has one row per
// catalog entry, in catalog order.
func (b Builder) Build(ctx context.Context, cat catalog.Catalog, previous Snapshot) (Snapshot, Report) {
	ctx, span := tracer.Start(ctx, "Build")
	defer span.End()

	runID := uuid.NewString()
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.Int("games", len(cat)),
	)

	rows := make([]Row, len(cat))
	failures := make([][]Failure, len(cat))

	var group errgroup.Group
	group.SetLimit(b.workers)
	for i, entry := range cat {
		group.Go(func() error {
			rows[i], failures[i] = b.buildRow(ctx, i, entry, previous)
			return nil
		})
	}
	group.Wait()

	snap := Snapshot{
		TakenAt: b.time.Now(),
		RunID:   runID,
		Sources: b.Sources(),
		Rows:    rows,
	}
	report := Report{RunID: runID, Rows: len(rows)}
	for _, f := range failures {
		report.Failures = append(report.Failures, f...)
	}

	b.tel.ReportCount(report_builder_gaps, int64(snap.GapCount()))
	b.tel.ReportCount(report_builder_failures, int64(len(report.Failures)))

	return snap, report
}

func (b Builder) buildRow(ctx context.Context, i int, entry catalog.Entry, previous Snapshot) (Row, []Failure) {
	ctx, span := tracer.Start(ctx, "buildRow", trace.WithAttributes(
		attribute.String("game", entry.Name),
		attribute.Int("row", i),
	))
	defer span.End()

	baseline, hasBaseline, mismatch := previous.Baseline(i, entry.Name)
	if mismatch {
		b.tel.ReportWarning(
			report_builder_row_mismatch,
			telemetry.KV{Key: "row", Value: i},
			telemetry.KV{Key: "game", Value: entry.Name},
			telemetry.KV{Key: "previous", Value: previous.Rows[i].Game},
		)
	}

	row := Row{
		Game:        entry.Name,
		Identifiers: make(map[pricing.Source]string, len(b.sources)),
		Cells:       make(map[pricing.Source]Cell, len(b.sources)),
	}

	var failures []Failure
	for _, src := range b.sources {
		source := src.Extractor.Source()
		row.Identifiers[source] = entry.Identifier(source)

		var old Cell
		if hasBaseline {
			old, _ = baseline.Cell(source)
		}

		cell, err := b.buildCell(ctx, src, entry, old)
		if err != nil {
			failures = append(failures, Failure{
				Game:   entry.Name,
				Source: source,
				Kind:   classifyFailure(err),
				Err:    err,
			})
		}
		row.Cells[source] = cell
	}

	return row, failures
}

// gap carries the previous value forward without a classification.
func gap(old Cell, reason string) Cell {
	return Cell{
		Price:        old.Price,
		Availability: old.Availability,
		Annotation:   annotate.Neutral(),
		Gap:          true,
		GapReason:    reason,
	}
}

func (b Builder) buildCell(ctx context.Context, src Source, entry catalog.Entry, old Cell) (Cell, error) {
	source := src.Extractor.Source()

	id := entry.Identifier(source)
	if id == "" {
		b.tel.ReportDebug("skip unlisted game", entry.Name, string(source))
		return gap(old, gapReasonNotListed), nil
	}

	url := src.BaseURL + id
	doc, err := b.fetcher.Fetch(ctx, url)
	if err != nil {
		var fetchErr *fetch.Error
		if !errors.As(err, &fetchErr) {
			err = &fetch.Error{URL: url, Err: err}
		}
		b.tel.ReportBroken(
			report_builder_fetch,
			err,
			telemetry.KV{Key: "game", Value: entry.Name},
			telemetry.KV{Key: "source", Value: string(source)},
		)
		return gap(old, fmt.Sprintf("fetch failed: %v", err)), err
	}

	record, err := src.Extractor.Extract(ctx, doc, entry)
	if err != nil {
		b.tel.ReportBroken(
			report_builder_extract,
			err,
			telemetry.KV{Key: "game", Value: entry.Name},
			telemetry.KV{Key: "source", Value: string(source)},
		)
		return gap(old, fmt.Sprintf("extraction failed: %v", err)), err
	}

	annotation := b.annotator.AnnotateRecord(record, old.Total())
	b.tel.ReportDebug(
		"annotated",
		entry.Name,
		string(source),
		record.Price,
		annotation.Classification.String(),
	)

	return Cell{
		Price:        record.Price,
		Availability: record.Availability,
		Annotation:   annotation,
	}, nil
}
