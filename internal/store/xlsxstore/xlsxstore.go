// Package xlsxstore keeps every snapshot as a sheet of a single workbook, the
// sheet order is the append order.
package xlsxstore

import (
	"bgprices/internal/annotate"
	"bgprices/internal/components/assert"
	"bgprices/internal/components/telemetry"
	"bgprices/internal/pricing"
	"bgprices/internal/snapshot"
	"bgprices/internal/store"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("bgprices/internal/store/xlsxstore")

const (
	report_xlsx_append    = "xlsx.append"
	report_xlsx_read_cell = "xlsx.read-cell"
)

const (
	// runsSheet is hidden, it holds the run id and time of every snapshot.
	runsSheet     = "_runs"
	defaultSheet  = "Sheet1"
	commentAuthor = "bgprices"

	colGame = "Game"
)

const (
	fillRaised    = "F2DCDB"
	fillLowered   = "EBF1DE"
	fontFlagged   = "FF0000"
	maxLabelChars = 31
)

func idHeader(src pricing.Source) string           { return src.DisplayName() + " id" }
func priceHeader(src pricing.Source) string        { return src.DisplayName() + " price" }
func baseHeader(src pricing.Source) string         { return src.DisplayName() + " base" }
func feeHeader(src pricing.Source) string          { return src.DisplayName() + " fee" }
func availabilityHeader(src pricing.Source) string { return src.DisplayName() + " availability" }
func changeHeader(src pricing.Source) string       { return src.DisplayName() + " change" }

// Header returns the first row of a snapshot sheet.
func Header(sources []pricing.Source) []string {
	header := []string{colGame}
	for _, src := range sources {
		header = append(header, idHeader(src))
	}
	for _, src := range sources {
		header = append(header,
			priceHeader(src),
			baseHeader(src),
			feeHeader(src),
			availabilityHeader(src),
		)
	}
	// hidden, the fill alone cannot tell unchanged from not compared
	for _, src := range sources {
		header = append(header, changeHeader(src))
	}
	return header
}

type Store struct {
	path  string
	tel   telemetry.API
	mutex sync.Mutex
}

var _ store.Store = (*Store)(nil)

func New(path string, tel telemetry.API) *Store {
	assert.NotEmptyStr(path, "path")
	assert.NotNil(tel, "tel")
	return &Store{path: path, tel: tel}
}

func (s *Store) Close() error {
	return nil
}

// open returns nil, nil when the workbook does not exist yet.
func (s *Store) open() (*excelize.File, error) {
	f, err := excelize.OpenFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open workbook '%s': %w", s.path, err)
	}
	return f, nil
}

func snapshotSheets(f *excelize.File) []string {
	var labels []string
	for _, name := range f.GetSheetList() {
		if name == runsSheet {
			continue
		}
		labels = append(labels, name)
	}
	return labels
}

func (s *Store) Labels(ctx context.Context) ([]string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	f, err := s.open()
	if err != nil || f == nil {
		return nil, err
	}
	defer f.Close()
	return snapshotSheets(f), nil
}

func (s *Store) ReadLatest(ctx context.Context) (snapshot.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "ReadLatest")
	defer span.End()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	f, err := s.open()
	if err != nil || f == nil {
		return snapshot.Snapshot{}, err
	}
	defer f.Close()

	labels := snapshotSheets(f)
	if len(labels) == 0 {
		return snapshot.Snapshot{}, nil
	}
	return s.readSheet(f, labels[len(labels)-1])
}

func (s *Store) Read(ctx context.Context, label string) (snapshot.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "Read")
	defer span.End()

	s.mutex.Lock()
	defer s.mutex.Unlock()

	f, err := s.open()
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	if f == nil {
		return snapshot.Snapshot{}, store.ErrNotFound{Label: label}
	}
	defer f.Close()

	idx, err := f.GetSheetIndex(label)
	if err != nil || idx < 0 || label == runsSheet {
		return snapshot.Snapshot{}, store.ErrNotFound{Label: label}
	}
	return s.readSheet(f, label)
}

func validateLabel(label string) error {
	if label == "" || label == runsSheet {
		return fmt.Errorf("invalid label '%s'", label)
	}
	// leave room for the "(n)" suffix
	if len([]rune(label)) > maxLabelChars-4 {
		return fmt.Errorf("label '%s' is too long for a sheet name", label)
	}
	if strings.ContainsAny(label, `[]:*?/\`) {
		return fmt.Errorf("label '%s' contains characters not allowed in a sheet name", label)
	}
	return nil
}

func (s *Store) Append(ctx context.Context, snap snapshot.Snapshot, label string) (string, error) {
	ctx, span := tracer.Start(ctx, "Append")
	defer span.End()

	err := validateLabel(label)
	if err != nil {
		return "", err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	f, err := s.open()
	if err != nil {
		return "", err
	}
	created := f == nil
	if created {
		f = excelize.NewFile()
	}
	defer f.Close()

	label = store.Disambiguate(label, snapshotSheets(f))
	span.SetAttributes(attribute.String("label", label))

	idx, err := f.NewSheet(label)
	if err != nil {
		return "", fmt.Errorf("create sheet '%s': %w", label, err)
	}
	err = newSheetWriter(f, label).write(snap)
	if err != nil {
		return "", err
	}
	err = writeRun(f, label, snap)
	if err != nil {
		return "", err
	}

	if created {
		err = f.DeleteSheet(defaultSheet)
		if err != nil {
			return "", err
		}
		// indices shift once the default sheet is gone
		idx, err = f.GetSheetIndex(label)
		if err != nil {
			return "", err
		}
	}
	f.SetActiveSheet(idx)

	if created {
		err = f.SaveAs(s.path)
	} else {
		err = f.Save()
	}
	if err != nil {
		s.tel.ReportBroken(report_xlsx_append, err, s.path)
		return "", fmt.Errorf("save workbook '%s': %w", s.path, err)
	}

	s.tel.ReportDebug("appended snapshot", label, len(snap.Rows))
	return label, nil
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

type styleKey struct {
	style        annotate.Style
	availability annotate.Style
}

type sheetWriter struct {
	f      *excelize.File
	sheet  string
	styles map[styleKey]int
}

func newSheetWriter(f *excelize.File, sheet string) sheetWriter {
	return sheetWriter{f: f, sheet: sheet, styles: map[styleKey]int{}}
}

func (w sheetWriter) style(key styleKey) (int, error) {
	id, ok := w.styles[key]
	if ok {
		return id, nil
	}

	style := &excelize.Style{}
	switch key.style {
	case annotate.StyleRaised:
		style.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{fillRaised}}
	case annotate.StyleLowered:
		style.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{fillLowered}}
	}
	if key.availability == annotate.StyleFlagged {
		style.Font = &excelize.Font{Color: fontFlagged}
	}

	id, err := w.f.NewStyle(style)
	if err != nil {
		return 0, err
	}
	w.styles[key] = id
	return id, nil
}

func decimalValue(d decimal.Decimal) any {
	f, _ := d.Float64()
	return f
}

func (w sheetWriter) write(snap snapshot.Snapshot) error {
	header := Header(snap.Sources)
	headerRow := make([]any, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	err := w.f.SetSheetRow(w.sheet, "A1", &headerRow)
	if err != nil {
		return err
	}
	if len(snap.Sources) > 0 {
		first, _ := excelize.ColumnNumberToName(len(header) - len(snap.Sources) + 1)
		last, _ := excelize.ColumnNumberToName(len(header))
		err = w.f.SetColVisible(w.sheet, first+":"+last, false)
		if err != nil {
			return err
		}
	}

	for i, row := range snap.Rows {
		r := i + 2

		values := []any{row.Game}
		for _, src := range snap.Sources {
			values = append(values, row.Identifiers[src])
		}
		for _, src := range snap.Sources {
			cell, _ := row.Cell(src)
			if cell.Price != nil {
				values = append(values,
					decimalValue(cell.Price.Total()),
					decimalValue(cell.Price.Base),
					decimalValue(cell.Price.Fee),
				)
			} else {
				values = append(values, nil, nil, nil)
			}
			values = append(values, cell.Availability.String())
		}
		for _, src := range snap.Sources {
			cell, _ := row.Cell(src)
			values = append(values, cell.Annotation.Classification.String())
		}
		err = w.f.SetSheetRow(w.sheet, cellName(1, r), &values)
		if err != nil {
			return err
		}

		for j, src := range snap.Sources {
			cell, _ := row.Cell(src)
			priceCol := 2 + len(snap.Sources) + j*4
			availabilityCol := priceCol + 3

			priceStyle, err := w.style(styleKey{style: cell.Annotation.Style, availability: cell.Annotation.AvailabilityStyle})
			if err != nil {
				return err
			}
			err = w.f.SetCellStyle(w.sheet, cellName(priceCol, r), cellName(priceCol, r), priceStyle)
			if err != nil {
				return err
			}
			availabilityStyle, err := w.style(styleKey{availability: cell.Annotation.AvailabilityStyle})
			if err != nil {
				return err
			}
			err = w.f.SetCellStyle(w.sheet, cellName(availabilityCol, r), cellName(availabilityCol, r), availabilityStyle)
			if err != nil {
				return err
			}

			if cell.Gap {
				err = w.f.AddComment(w.sheet, excelize.Comment{
					Cell:      cellName(priceCol, r),
					Author:    commentAuthor,
					Paragraph: []excelize.RichTextRun{{Text: cell.GapReason}},
				})
				if err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func writeRun(f *excelize.File, label string, snap snapshot.Snapshot) error {
	idx, err := f.GetSheetIndex(runsSheet)
	if err != nil {
		return err
	}
	if idx < 0 {
		_, err = f.NewSheet(runsSheet)
		if err != nil {
			return err
		}
		err = f.SetSheetRow(runsSheet, "A1", &[]any{"label", "taken_at", "run_id"})
		if err != nil {
			return err
		}
		err = f.SetSheetVisible(runsSheet, false)
		if err != nil {
			return err
		}
	}

	rows, err := f.GetRows(runsSheet)
	if err != nil {
		return err
	}
	return f.SetSheetRow(runsSheet, cellName(1, len(rows)+1), &[]any{
		label,
		snap.TakenAt.Format(time.RFC3339),
		snap.RunID,
	})
}

func readRun(f *excelize.File, label string) (takenAt time.Time, runID string) {
	rows, err := f.GetRows(runsSheet)
	if err != nil {
		return time.Time{}, ""
	}
	for _, row := range rows {
		if len(row) < 3 || row[0] != label {
			continue
		}
		takenAt, _ = time.Parse(time.RFC3339, row[1])
		return takenAt, row[2]
	}
	return time.Time{}, ""
}

func commentText(c excelize.Comment) string {
	text := c.Text
	for _, run := range c.Paragraph {
		text += run.Text
	}
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, c.Author+":")
	return strings.TrimSpace(text)
}

func (s *Store) readSheet(f *excelize.File, label string) (snapshot.Snapshot, error) {
	rows, err := f.GetRows(label)
	if err != nil {
		return snapshot.Snapshot{}, fmt.Errorf("read sheet '%s': %w", label, err)
	}

	snap := snapshot.Snapshot{Label: label}
	snap.TakenAt, snap.RunID = readRun(f, label)
	if len(rows) == 0 {
		return snap, nil
	}

	columns := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		columns[strings.TrimSpace(h)] = i
	}
	gameCol, ok := columns[colGame]
	if !ok {
		return snapshot.Snapshot{}, fmt.Errorf("sheet '%s' has no '%s' column", label, colGame)
	}
	for _, src := range pricing.Sources {
		if _, ok := columns[priceHeader(src)]; ok {
			snap.Sources = append(snap.Sources, src)
		}
	}

	comments, err := f.GetComments(label)
	if err != nil {
		return snapshot.Snapshot{}, err
	}
	gaps := make(map[string]string, len(comments))
	for _, c := range comments {
		gaps[c.Cell] = commentText(c)
	}

	get := func(row []string, header string) string {
		i, ok := columns[header]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	for i, values := range rows[1:] {
		if gameCol >= len(values) || strings.TrimSpace(values[gameCol]) == "" {
			continue
		}
		r := i + 2

		row := snapshot.Row{
			Game:        strings.TrimSpace(values[gameCol]),
			Identifiers: make(map[pricing.Source]string, len(snap.Sources)),
			Cells:       make(map[pricing.Source]snapshot.Cell, len(snap.Sources)),
		}
		for _, src := range snap.Sources {
			row.Identifiers[src] = get(values, idHeader(src))

			cell := snapshot.Cell{
				Availability: pricing.ParseAvailability(get(values, availabilityHeader(src))),
			}
			priceCell := cellName(columns[priceHeader(src)]+1, r)
			cell.Price, err = readPrice(get(values, baseHeader(src)), get(values, feeHeader(src)), get(values, priceHeader(src)))
			if err != nil {
				s.tel.ReportWarning(
					report_xlsx_read_cell,
					err,
					telemetry.KV{Key: "sheet", Value: label},
					telemetry.KV{Key: "game", Value: row.Game},
				)
			}

			reason, ok := gaps[priceCell]
			if ok {
				cell.Gap = true
				cell.GapReason = reason
			}

			classification := annotate.ParseClassification(get(values, changeHeader(src)))
			if _, ok := columns[changeHeader(src)]; !ok && cell.Price != nil && !cell.Gap {
				classification = classificationFromFill(f, label, priceCell)
			}
			cell.Annotation = annotate.Restore(classification, cell.Availability)
			row.Cells[src] = cell
		}
		snap.Rows = append(snap.Rows, row)
	}

	return snap, nil
}

// classificationFromFill reads sheets written without the change columns,
// an unfilled cell is taken as unchanged.
func classificationFromFill(f *excelize.File, sheet, cell string) annotate.Classification {
	id, err := f.GetCellStyle(sheet, cell)
	if err != nil {
		return annotate.ClassificationNone
	}
	style, err := f.GetStyle(id)
	if err != nil || style == nil {
		return annotate.ClassificationNone
	}
	fill := strings.ToUpper(strings.Join(style.Fill.Color, ","))
	switch {
	case strings.Contains(fill, fillRaised):
		return annotate.ClassificationIncreased
	case strings.Contains(fill, fillLowered):
		return annotate.ClassificationDecreased
	}
	return annotate.ClassificationUnchanged
}

// readPrice prefers the structured base and fee, sheets edited by hand may
// only have the total.
func readPrice(base, fee, total string) (*pricing.Price, error) {
	if base == "" && total == "" {
		return nil, nil
	}
	if base == "" {
		t, err := decimal.NewFromString(total)
		if err != nil {
			return nil, fmt.Errorf("parse total '%s': %w", total, err)
		}
		return pricing.NewPrice(t, decimal.Zero), nil
	}

	b, err := decimal.NewFromString(base)
	if err != nil {
		return nil, fmt.Errorf("parse base '%s': %w", base, err)
	}
	f := decimal.Zero
	if fee != "" {
		f, err = decimal.NewFromString(fee)
		if err != nil {
			return nil, fmt.Errorf("parse fee '%s': %w", fee, err)
		}
	}
	return pricing.NewPrice(b, f), nil
}
