package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopedAPI(t *testing.T) {
	rec := NewRecorder()
	tel := NewScopedAPI("builder", NewScopedAPI("tracker", rec))

	tel.ReportBroken("fetch", "err")
	tel.ReportWarning("row-mismatch")
	tel.ReportCount("gaps", 3)
	tel.ReportDebug("hello", 1)

	broken := rec.Reports(KindBroken)
	require.Len(t, broken, 1)
	require.Equal(t, "tracker.builder.fetch", broken[0].ID)
	require.Equal(t, []any{"err"}, broken[0].Params)

	warnings := rec.Reports(KindWarning)
	require.Len(t, warnings, 1)
	require.Equal(t, "tracker.builder.row-mismatch", warnings[0].ID)

	counts := rec.Reports(KindCount)
	require.Len(t, counts, 1)
	require.Equal(t, []any{int64(3)}, counts[0].Params)

	debug := rec.Reports(KindDebug)
	require.Equal(t, "tracker: builder: hello", debug[0].ID)

	require.Len(t, rec.Reports(""), 4)
}

func TestSlogFormatParams(t *testing.T) {
	var out []any
	SlogAPI{}.formatParams(&out, []any{"a", KV{Key: "game", Value: "Azul"}, 3})
	require.Equal(t, []any{"params.0", "a", "game", "Azul", "params.2", 3}, out)
}
