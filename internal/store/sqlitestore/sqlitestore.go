// Package sqlitestore keeps snapshots in a local sqlite file or a remote
// libsql database.
package sqlitestore

import (
	"bgprices/internal/annotate"
	"bgprices/internal/components/assert"
	"bgprices/internal/components/db"
	"bgprices/internal/components/telemetry"
	"bgprices/internal/pricing"
	"bgprices/internal/snapshot"
	"bgprices/internal/store"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "embed"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

//go:embed schema.sql
var Schema string

var tracer = otel.Tracer("bgprices/internal/store/sqlitestore")

const (
	report_sqlite_append = "sqlite.append"
	report_sqlite_source = "sqlite.source"
)

type Store struct {
	db     *sql.DB
	makeTx db.MakeTx
	tel    telemetry.API
}

var _ store.Store = Store{}

// Open opens (creating it if needed) the database at path, see db.OpenDB.
func Open(path string, tel telemetry.API) (Store, error) {
	assert.NotNil(tel, "tel")
	database, err := db.OpenDB(Schema, path)
	if err != nil {
		return Store{}, err
	}
	return New(database, tel), nil
}

func New(database *sql.DB, tel telemetry.API) Store {
	assert.NotNil(database, "database")
	assert.NotNil(tel, "tel")
	return Store{
		db:     database,
		makeTx: db.NewMakeTx(database),
		tel:    tel,
	}
}

func (s Store) Close() error {
	return s.db.Close()
}

func (s Store) Labels(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "select label from snapshot order by id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		err = rows.Scan(&label)
		if err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

type snapshotRow struct {
	id      int64
	label   string
	takenAt int64
	runID   string
	sources string
}

const selectSnapshot = "select id, label, taken_at, run_id, sources from snapshot"

func (s Store) ReadLatest(ctx context.Context) (snapshot.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "ReadLatest")
	defer span.End()

	var row snapshotRow
	err := s.db.QueryRowContext(ctx, selectSnapshot+" order by current desc, id desc limit 1").
		Scan(&row.id, &row.label, &row.takenAt, &row.runID, &row.sources)
	if errors.Is(err, sql.ErrNoRows) {
		return snapshot.Snapshot{}, nil
	}
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	return s.readCells(ctx, row)
}

func (s Store) Read(ctx context.Context, label string) (snapshot.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "Read")
	defer span.End()

	var row snapshotRow
	err := s.db.QueryRowContext(ctx, selectSnapshot+" where label = ?", label).
		Scan(&row.id, &row.label, &row.takenAt, &row.runID, &row.sources)
	if errors.Is(err, sql.ErrNoRows) {
		return snapshot.Snapshot{}, store.ErrNotFound{Label: label}
	}
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	return s.readCells(ctx, row)
}

func nullText(d decimal.Decimal) sql.NullString {
	return sql.NullString{String: d.String(), Valid: true}
}

func (s Store) Append(ctx context.Context, snap snapshot.Snapshot, label string) (string, error) {
	ctx, span := tracer.Start(ctx, "Append")
	defer span.End()

	if label == "" {
		return "", fmt.Errorf("label must not be empty")
	}

	tx, discard, commit, err := s.makeTx(ctx)
	if err != nil {
		return "", err
	}
	defer discard()

	existing, err := labelsIn(ctx, tx)
	if err != nil {
		return "", err
	}
	label = store.Disambiguate(label, existing)
	span.SetAttributes(attribute.String("label", label))

	_, err = tx.ExecContext(ctx, "update snapshot set current = 0 where current = 1")
	if err != nil {
		return "", err
	}

	sources := make([]string, len(snap.Sources))
	for i, src := range snap.Sources {
		sources[i] = string(src)
	}
	res, err := tx.ExecContext(
		ctx,
		"insert into snapshot(label, taken_at, run_id, sources, current) values (?, ?, ?, ?, 1)",
		label,
		snap.TakenAt.Unix(),
		snap.RunID,
		strings.Join(sources, ","),
	)
	if err != nil {
		return "", err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", err
	}

	stmt, err := tx.PrepareContext(ctx, `insert into snapshot_cell(
		snapshot_id, row_index, game, source, identifier,
		base, fee, availability, classification, gap, gap_reason
	) values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()

	for i, row := range snap.Rows {
		for _, src := range snap.Sources {
			cell, _ := row.Cell(src)

			var base, fee sql.NullString
			if cell.Price != nil {
				base = nullText(cell.Price.Base)
				fee = nullText(cell.Price.Fee)
			}
			_, err = stmt.ExecContext(
				ctx,
				id,
				i,
				row.Game,
				string(src),
				row.Identifiers[src],
				base,
				fee,
				cell.Availability.String(),
				cell.Annotation.Classification.String(),
				cell.Gap,
				cell.GapReason,
			)
			if err != nil {
				s.tel.ReportBroken(report_sqlite_append, err, label, row.Game, string(src))
				return "", err
			}
		}
	}

	err = commit()
	if err != nil {
		return "", err
	}
	s.tel.ReportDebug("appended snapshot", label, len(snap.Rows))
	return label, nil
}

func labelsIn(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, "select label from snapshot")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		err = rows.Scan(&label)
		if err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

func parseNullDecimal(s sql.NullString) (decimal.Decimal, bool, error) {
	if !s.Valid || s.String == "" {
		return decimal.Decimal{}, false, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	return d, true, nil
}

func (s Store) readCells(ctx context.Context, header snapshotRow) (snapshot.Snapshot, error) {
	snap := snapshot.Snapshot{
		Label:   header.label,
		TakenAt: time.Unix(header.takenAt, 0).UTC(),
		RunID:   header.runID,
	}
	if header.sources != "" {
		for _, name := range strings.Split(header.sources, ",") {
			src, err := pricing.ParseSource(name)
			if err != nil {
				s.tel.ReportWarning(report_sqlite_source, err, header.label)
				continue
			}
			snap.Sources = append(snap.Sources, src)
		}
	}

	rows, err := s.db.QueryContext(ctx, `select
		row_index, game, source, identifier, base, fee,
		availability, classification, gap, gap_reason
	from snapshot_cell
	where snapshot_id = ?
	order by row_index`, header.id)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			index          int
			game           string
			source         string
			identifier     string
			base           sql.NullString
			fee            sql.NullString
			availability   string
			classification string
			gap            bool
			gapReason      string
		)
		err = rows.Scan(&index, &game, &source, &identifier, &base, &fee, &availability, &classification, &gap, &gapReason)
		if err != nil {
			return snapshot.Snapshot{}, err
		}

		for len(snap.Rows) <= index {
			snap.Rows = append(snap.Rows, snapshot.Row{
				Identifiers: map[pricing.Source]string{},
				Cells:       map[pricing.Source]snapshot.Cell{},
			})
		}
		row := &snap.Rows[index]
		row.Game = game

		src := pricing.Source(source)
		row.Identifiers[src] = identifier

		a := pricing.ParseAvailability(availability)
		cell := snapshot.Cell{
			Availability: a,
			Annotation:   annotate.Restore(annotate.ParseClassification(classification), a),
			Gap:          gap,
			GapReason:    gapReason,
		}

		b, ok, err := parseNullDecimal(base)
		if err != nil {
			return snapshot.Snapshot{}, fmt.Errorf("parse base of '%s': %w", game, err)
		}
		if ok {
			f, _, err := parseNullDecimal(fee)
			if err != nil {
				return snapshot.Snapshot{}, fmt.Errorf("parse fee of '%s': %w", game, err)
			}
			cell.Price = pricing.NewPrice(b, f)
		}
		row.Cells[src] = cell
	}

	return snap, rows.Err()
}
