package xlsxstore

import (
	"bgprices/internal/annotate"
	"bgprices/internal/components/telemetry"
	"bgprices/internal/pricing"
	"bgprices/internal/snapshot"
	"bgprices/internal/store"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func price(base, fee string) *pricing.Price {
	return pricing.NewPrice(decimal.RequireFromString(base), decimal.RequireFromString(fee))
}

func testSnapshot(runID string, azulBase string) snapshot.Snapshot {
	return snapshot.Snapshot{
		TakenAt: time.Date(2024, time.July, 14, 9, 0, 0, 0, time.UTC),
		RunID:   runID,
		Sources: []pricing.Source{pricing.SourceBoardGamePrices, pricing.SourceZatu},
		Rows: []snapshot.Row{
			{
				Game: "Azul",
				Identifiers: map[pricing.Source]string{
					pricing.SourceBoardGamePrices: "1234",
					pricing.SourceZatu:            "azul",
				},
				Cells: map[pricing.Source]snapshot.Cell{
					pricing.SourceBoardGamePrices: {
						Price:        price(azulBase, "2.99"),
						Availability: pricing.AvailabilityUnavailable,
						Annotation: annotate.Annotation{
							Classification:    annotate.ClassificationIncreased,
							Style:             annotate.StyleRaised,
							AvailabilityStyle: annotate.StyleFlagged,
						},
					},
					pricing.SourceZatu: {
						Price:        price("28.75", "0"),
						Availability: pricing.AvailabilityAvailable,
						Annotation:   annotate.Neutral(),
						Gap:          true,
						GapReason:    "fetch failed: timeout",
					},
				},
			},
			{
				Game: "Carcassonne",
				Identifiers: map[pricing.Source]string{
					pricing.SourceBoardGamePrices: "99",
					pricing.SourceZatu:            "",
				},
				Cells: map[pricing.Source]snapshot.Cell{
					pricing.SourceBoardGamePrices: {
						Price:        price("19.00", "0"),
						Availability: pricing.AvailabilityAvailable,
						Annotation: annotate.Annotation{
							Classification:    annotate.ClassificationDecreased,
							Style:             annotate.StyleLowered,
							AvailabilityStyle: annotate.StyleDefault,
						},
					},
					pricing.SourceZatu: {
						Annotation: annotate.Neutral(),
						Gap:        true,
						GapReason:  "not listed on this source",
					},
				},
			},
		},
	}
}

func requirePrice(t *testing.T, expected string, p *pricing.Price) {
	t.Helper()
	require.NotNil(t, p)
	require.True(t, decimal.RequireFromString(expected).Equal(p.Total()), "expected %s, got %s", expected, p.Total())
}

func TestAppendAndRead(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prices.xlsx")
	s := New(path, telemetry.NewRecorder())

	latest, err := s.ReadLatest(ctx)
	require.NoError(t, err)
	require.True(t, latest.Empty())

	labels, err := s.Labels(ctx)
	require.NoError(t, err)
	require.Empty(t, labels)

	label, err := s.Append(ctx, testSnapshot("run-1", "27.49"), "2024-07")
	require.NoError(t, err)
	require.Equal(t, "2024-07", label)

	snap, err := s.ReadLatest(ctx)
	require.NoError(t, err)
	require.Equal(t, "2024-07", snap.Label)
	require.Equal(t, "run-1", snap.RunID)
	require.True(t, snap.TakenAt.Equal(time.Date(2024, time.July, 14, 9, 0, 0, 0, time.UTC)))
	require.Equal(t, []pricing.Source{pricing.SourceBoardGamePrices, pricing.SourceZatu}, snap.Sources)
	require.Len(t, snap.Rows, 2)

	azul := snap.Rows[0]
	require.Equal(t, "Azul", azul.Game)
	require.Equal(t, "1234", azul.Identifiers[pricing.SourceBoardGamePrices])
	require.Equal(t, "azul", azul.Identifiers[pricing.SourceZatu])

	bgp := azul.Cells[pricing.SourceBoardGamePrices]
	requirePrice(t, "30.48", bgp.Price)
	require.True(t, decimal.RequireFromString("2.99").Equal(bgp.Price.Fee))
	require.Equal(t, pricing.AvailabilityUnavailable, bgp.Availability)
	require.Equal(t, annotate.StyleFlagged, bgp.Annotation.AvailabilityStyle)
	require.Equal(t, annotate.ClassificationIncreased, bgp.Annotation.Classification)
	require.Equal(t, annotate.StyleRaised, bgp.Annotation.Style)
	require.False(t, bgp.Gap)

	zatu := azul.Cells[pricing.SourceZatu]
	requirePrice(t, "28.75", zatu.Price)
	require.True(t, zatu.Gap)
	require.Contains(t, zatu.GapReason, "fetch failed: timeout")
	require.Equal(t, annotate.ClassificationNone, zatu.Annotation.Classification)
	require.Equal(t, annotate.StyleNone, zatu.Annotation.Style)

	carcassonne := snap.Rows[1]
	require.Equal(t, "Carcassonne", carcassonne.Game)
	require.Nil(t, carcassonne.Cells[pricing.SourceZatu].Price)
	require.True(t, carcassonne.Cells[pricing.SourceZatu].Gap)
	require.Equal(t, annotate.ClassificationDecreased, carcassonne.Cells[pricing.SourceBoardGamePrices].Annotation.Classification)
	require.Equal(t, annotate.StyleLowered, carcassonne.Cells[pricing.SourceBoardGamePrices].Annotation.Style)
}

func TestAppendDisambiguatesAndKeepsHistory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prices.xlsx")
	s := New(path, telemetry.NewRecorder())

	_, err := s.Append(ctx, testSnapshot("run-1", "27.49"), "2024-07")
	require.NoError(t, err)
	label, err := s.Append(ctx, testSnapshot("run-2", "31.00"), "2024-07")
	require.NoError(t, err)
	require.Equal(t, "2024-07(1)", label)

	labels, err := s.Labels(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"2024-07", "2024-07(1)"}, labels)

	latest, err := s.ReadLatest(ctx)
	require.NoError(t, err)
	require.Equal(t, "2024-07(1)", latest.Label)
	require.Equal(t, "run-2", latest.RunID)
	requirePrice(t, "33.99", latest.Rows[0].Cells[pricing.SourceBoardGamePrices].Price)

	first, err := s.Read(ctx, "2024-07")
	require.NoError(t, err)
	requirePrice(t, "30.48", first.Rows[0].Cells[pricing.SourceBoardGamePrices].Price)

	_, err = s.Read(ctx, "1999-01")
	var notFound store.ErrNotFound
	require.True(t, errors.As(err, &notFound))
}

func TestWorkbookLayout(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "prices.xlsx")
	s := New(path, telemetry.NewRecorder())

	_, err := s.Append(ctx, testSnapshot("run-1", "27.49"), "2024-06")
	require.NoError(t, err)
	_, err = s.Append(ctx, testSnapshot("run-2", "27.49"), "2024-07")
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	require.NotContains(t, f.GetSheetList(), defaultSheet)
	require.Equal(t, "2024-07", f.GetSheetName(f.GetActiveSheetIndex()))

	rows, err := f.GetRows("2024-07")
	require.NoError(t, err)
	require.Equal(t, []string{
		"Game",
		"BoardGamePrices id",
		"Zatu id",
		"BoardGamePrices price",
		"BoardGamePrices base",
		"BoardGamePrices fee",
		"BoardGamePrices availability",
		"Zatu price",
		"Zatu base",
		"Zatu fee",
		"Zatu availability",
		"BoardGamePrices change",
		"Zatu change",
	}, rows[0])
	require.Len(t, rows, 3)
	require.Equal(t, "increased", rows[1][11])

	for _, col := range []string{"L", "M"} {
		visible, err := f.GetColVisible("2024-07", col)
		require.NoError(t, err)
		require.False(t, visible, col)
	}
	visible, err := f.GetColVisible("2024-07", "K")
	require.NoError(t, err)
	require.True(t, visible)

	styleOf := func(cell string) *excelize.Style {
		id, err := f.GetCellStyle("2024-07", cell)
		require.NoError(t, err)
		style, err := f.GetStyle(id)
		require.NoError(t, err)
		return style
	}

	raised := styleOf("D2")
	require.Contains(t, strings.ToUpper(strings.Join(raised.Fill.Color, ",")), fillRaised)
	require.NotNil(t, raised.Font)
	require.Contains(t, strings.ToUpper(raised.Font.Color), fontFlagged)

	lowered := styleOf("D3")
	require.Contains(t, strings.ToUpper(strings.Join(lowered.Fill.Color, ",")), fillLowered)

	comments, err := f.GetComments("2024-07")
	require.NoError(t, err)
	require.Len(t, comments, 2)
}

func TestAppendRejectsBadLabel(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "prices.xlsx"), telemetry.NewRecorder())
	for _, label := range []string{"", runsSheet, "2024/07", strings.Repeat("x", 30)} {
		_, err := s.Append(context.Background(), testSnapshot("run", "1"), label)
		require.Error(t, err, label)
	}
}

func TestReadSheetWithoutChangeColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName(defaultSheet, "2024-05"))
	rows := [][]any{
		{"Game", "Zatu id", "Zatu price", "Zatu base", "Zatu fee", "Zatu availability"},
		{"Azul", "azul", 31.5, 31.5, 0, "available"},
		{"Catan", "catan", 40, 40, 0, "unavailable"},
		{"Carcassonne", "", nil, nil, nil, "unknown"},
	}
	for i, row := range rows {
		require.NoError(t, f.SetSheetRow("2024-05", cellName(1, i+1), &row))
	}
	raised, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{fillRaised}},
	})
	require.NoError(t, err)
	require.NoError(t, f.SetCellStyle("2024-05", "C2", "C2", raised))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	s := New(path, telemetry.NewRecorder())
	snap, err := s.Read(context.Background(), "2024-05")
	require.NoError(t, err)
	require.Len(t, snap.Rows, 3)

	testCases := []struct {
		classification annotate.Classification
		style          annotate.Style
	}{
		{classification: annotate.ClassificationIncreased, style: annotate.StyleRaised},
		{classification: annotate.ClassificationUnchanged, style: annotate.StyleDefault},
		{classification: annotate.ClassificationNone, style: annotate.StyleNone},
	}
	for i, test := range testCases {
		cell := snap.Rows[i].Cells[pricing.SourceZatu]
		require.Equal(t, test.classification, cell.Annotation.Classification, snap.Rows[i].Game)
		require.Equal(t, test.style, cell.Annotation.Style, snap.Rows[i].Game)
	}
	require.Equal(t, annotate.StyleFlagged, snap.Rows[1].Cells[pricing.SourceZatu].Annotation.AvailabilityStyle)
}
