// Package tracker runs one pass of the pipeline: read the baseline, build a
// new snapshot and append it.
package tracker

import (
	"bgprices/internal/catalog"
	"bgprices/internal/components/assert"
	"bgprices/internal/components/chrono"
	"bgprices/internal/components/telemetry"
	"bgprices/internal/snapshot"
	"bgprices/internal/store"
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("bgprices/internal/tracker")

const (
	report_tracker_baseline = "tracker.baseline"
	report_tracker_append   = "tracker.append"
	report_tracker_sources  = "tracker.sources"
)

// ConfigurationError aborts a run before anything is fetched.
type ConfigurationError struct {
	Err error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

type Result struct {
	// Label is the label the snapshot was stored under.
	Label    string
	Previous snapshot.Snapshot
	Snapshot snapshot.Snapshot
	Report   snapshot.Report
}

type Tracker struct {
	catalog catalog.Catalog
	builder snapshot.Builder
	store   store.Store
	time    chrono.API
	tel     telemetry.API
}

func NewTracker(
	cat catalog.Catalog,
	builder snapshot.Builder,
	st store.Store,
	time chrono.API,
	tel telemetry.API,
) Tracker {
	assert.NotNil(st, "store")
	assert.NotNil(time, "time")
	assert.NotNil(tel, "tel")
	return Tracker{
		catalog: cat,
		builder: builder,
		store:   st,
		time:    time,
		tel:     tel,
	}
}

// Run uses the year and month of the current time as the label.
func (t Tracker) Run(ctx context.Context) (Result, error) {
	return t.RunWithLabel(ctx, store.DefaultLabel(t.time.Now()))
}

func (t Tracker) RunWithLabel(ctx context.Context, label string) (Result, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()

	if len(t.catalog) == 0 {
		return Result{}, &ConfigurationError{Err: fmt.Errorf("catalog is empty")}
	}

	previous, err := t.store.ReadLatest(ctx)
	if err != nil {
		t.tel.ReportBroken(report_tracker_baseline, err)
		return Result{}, &ConfigurationError{Err: fmt.Errorf("read previous snapshot: %w", err)}
	}
	if !previous.Empty() && len(previous.Rows) != len(t.catalog) {
		t.tel.ReportWarning(
			report_tracker_baseline,
			telemetry.KV{Key: "previous", Value: previous.Label},
			telemetry.KV{Key: "previous_rows", Value: len(previous.Rows)},
			telemetry.KV{Key: "catalog", Value: len(t.catalog)},
		)
	}
	if !previous.Empty() && !sameSources(previous, t.builder) {
		t.tel.ReportWarning(
			report_tracker_sources,
			telemetry.KV{Key: "previous", Value: previous.Sources},
			telemetry.KV{Key: "current", Value: t.builder.Sources()},
		)
	}

	snap, report := t.builder.Build(ctx, t.catalog, previous)
	span.SetAttributes(
		attribute.String("run_id", report.RunID),
		attribute.Int("failures", len(report.Failures)),
	)

	stored, err := t.store.Append(ctx, snap, label)
	if err != nil {
		t.tel.ReportBroken(report_tracker_append, err, report.RunID)
		return Result{}, fmt.Errorf("append snapshot: %w", err)
	}
	snap.Label = stored

	return Result{
		Label:    stored,
		Previous: previous,
		Snapshot: snap,
		Report:   report,
	}, nil
}

func sameSources(previous snapshot.Snapshot, builder snapshot.Builder) bool {
	current := builder.Sources()
	if len(previous.Sources) != len(current) {
		return false
	}
	for i := range current {
		if previous.Sources[i] != current[i] {
			return false
		}
	}
	return true
}
