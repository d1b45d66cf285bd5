package tracker

import (
	"bgprices/internal/annotate"
	"bgprices/internal/catalog"
	"bgprices/internal/components/chrono"
	"bgprices/internal/components/telemetry"
	"bgprices/internal/extract"
	"bgprices/internal/fetch"
	"bgprices/internal/pricing"
	"bgprices/internal/snapshot"
	"bgprices/internal/store"
	"bgprices/internal/store/sqlitestore"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const zatuURL = "https://www.board-game.co.uk/product/"

type pageFetcher map[string]string

func (p pageFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	page, ok := p[url]
	if !ok {
		return nil, &fetch.Error{URL: url, StatusCode: 404}
	}
	return []byte(page), nil
}

func zatuPage(title, price, button string) string {
	return fmt.Sprintf(`<html><body>
<h1 class="product_title">%s</h1>
<p class="price"><span class="woocommerce-Price-amount amount">£%s</span></p>
<form class="cart"><button class="single_add_to_cart_button">%s</button></form>
</body></html>`, title, price, button)
}

var testCatalog = catalog.Catalog{
	{Name: "Azul", Identifiers: map[pricing.Source]string{pricing.SourceZatu: "azul"}},
	{Name: "Carcassonne", Identifiers: map[pricing.Source]string{pricing.SourceZatu: "carcassonne"}},
}

func newTracker(t *testing.T, st store.Store, fetcher fetch.Fetcher, now time.Time) Tracker {
	tel := telemetry.NewRecorder()
	clock := chrono.FixedImpl{Time: now}
	annotator, err := annotate.NewAnnotator(annotate.ModePercentage, decimal.NewFromInt(20))
	require.NoError(t, err)

	builder := snapshot.NewBuilder(
		fetcher,
		annotator,
		[]snapshot.Source{{Extractor: extract.NewZatu(tel), BaseURL: zatuURL}},
		clock,
		tel,
	)
	return NewTracker(testCatalog, builder, st, clock, tel)
}

func TestRunTwiceAgainstSqlite(t *testing.T) {
	ctx := context.Background()
	st, err := sqlitestore.Open(":memory:", telemetry.NewRecorder())
	require.NoError(t, err)
	defer st.Close()

	june := time.Date(2024, time.June, 2, 8, 0, 0, 0, time.UTC)
	july := time.Date(2024, time.July, 2, 8, 0, 0, 0, time.UTC)

	first, err := newTracker(t, st, pageFetcher{
		zatuURL + "azul":        zatuPage("Azul", "20.00", "Add to basket"),
		zatuURL + "carcassonne": zatuPage("Carcassonne", "50.00", "Add to basket"),
	}, june).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, "2024-06", first.Label)
	require.True(t, first.Previous.Empty())
	require.Empty(t, first.Report.Failures)

	secondFetcher := pageFetcher{
		zatuURL + "azul":        zatuPage("Azul", "25.00", "Notify Me"),
		zatuURL + "carcassonne": zatuPage("Carcassonne", "51.00", "Add to basket"),
	}
	second, err := newTracker(t, st, secondFetcher, july).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, "2024-07", second.Label)
	require.Equal(t, "2024-06", second.Previous.Label)

	azul := second.Snapshot.Rows[0].Cells[pricing.SourceZatu]
	require.Equal(t, annotate.ClassificationIncreased, azul.Annotation.Classification)
	require.Equal(t, annotate.StyleFlagged, azul.Annotation.AvailabilityStyle)
	carcassonne := second.Snapshot.Rows[1].Cells[pricing.SourceZatu]
	require.Equal(t, annotate.ClassificationUnchanged, carcassonne.Annotation.Classification)
	require.Equal(t, annotate.StyleDefault, carcassonne.Annotation.AvailabilityStyle)

	third, err := newTracker(t, st, secondFetcher, july).Run(ctx)
	require.NoError(t, err)
	require.Equal(t, "2024-07(1)", third.Label)
	require.Equal(t, "2024-07", third.Previous.Label)

	labels, err := st.Labels(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"2024-06", "2024-07", "2024-07(1)"}, labels)

	stored, err := st.Read(ctx, "2024-07")
	require.NoError(t, err)
	require.Equal(t, annotate.ClassificationIncreased, stored.Rows[0].Cells[pricing.SourceZatu].Annotation.Classification)
}

type fakeStore struct {
	latest    snapshot.Snapshot
	readErr   error
	appendErr error
	appended  []snapshot.Snapshot
}

func (f *fakeStore) ReadLatest(ctx context.Context) (snapshot.Snapshot, error) {
	return f.latest, f.readErr
}

func (f *fakeStore) Read(ctx context.Context, label string) (snapshot.Snapshot, error) {
	return snapshot.Snapshot{}, store.ErrNotFound{Label: label}
}

func (f *fakeStore) Append(ctx context.Context, snap snapshot.Snapshot, label string) (string, error) {
	if f.appendErr != nil {
		return "", f.appendErr
	}
	f.appended = append(f.appended, snap)
	return label, nil
}

func (f *fakeStore) Labels(ctx context.Context) ([]string, error) {
	return nil, nil
}

func (f *fakeStore) Close() error {
	return nil
}

func TestBaselineFailureIsConfigurationError(t *testing.T) {
	st := &fakeStore{readErr: errors.New("corrupt workbook")}
	_, err := newTracker(t, st, pageFetcher{}, time.Now()).Run(context.Background())

	var configErr *ConfigurationError
	require.True(t, errors.As(err, &configErr))
	require.ErrorContains(t, err, "corrupt workbook")
	require.Empty(t, st.appended)
}

func TestEmptyCatalogIsConfigurationError(t *testing.T) {
	st := &fakeStore{}
	tr := newTracker(t, st, pageFetcher{}, time.Now())
	tr.catalog = nil

	_, err := tr.Run(context.Background())
	var configErr *ConfigurationError
	require.True(t, errors.As(err, &configErr))
}

func TestFailuresStillAppend(t *testing.T) {
	st := &fakeStore{}
	result, err := newTracker(t, st, pageFetcher{
		zatuURL + "azul": zatuPage("Azul", "20.00", "Out of stock"),
	}, time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, st.appended, 1)
	require.Equal(t, "2024-07", result.Label)
	require.Len(t, result.Report.Failures, 2)
	require.Equal(t, snapshot.FailureExtraction, result.Report.Failures[0].Kind)
	require.Equal(t, snapshot.FailureFetch, result.Report.Failures[1].Kind)
	require.Len(t, result.Snapshot.Rows, 2)
}

func TestAppendFailureIsNotConfigurationError(t *testing.T) {
	st := &fakeStore{appendErr: errors.New("disk full")}
	_, err := newTracker(t, st, pageFetcher{}, time.Now()).Run(context.Background())
	require.Error(t, err)

	var configErr *ConfigurationError
	require.False(t, errors.As(err, &configErr))
}
