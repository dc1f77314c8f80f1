package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScopedAPINests(t *testing.T) {
	rec := NewRecorder()
	tel := NewScopedAPI("reconciler", NewScopedAPI("ingest", rec))

	tel.ReportBroken("upsert-vote", "s1")
	tel.ReportCount("sessions", 3)

	reports := rec.Reports()
	require.Len(t, reports, 2)
	require.Equal(t, "ingest.reconciler: upsert-vote", reports[0].ID)
	require.Equal(t, []any{"s1"}, reports[0].Params)
	require.Equal(t, Report{Level: LEVEL_COUNT, ID: "ingest.reconciler: sessions", Count: 3}, reports[1])

	require.Len(t, rec.Find(LEVEL_BROKEN, "upsert-vote"), 1)
	require.Empty(t, rec.Find(LEVEL_WARNING, "upsert-vote"))
}

func TestDiscard(t *testing.T) {
	var tel API = NewScopedAPI("quiet", Discard{})
	require.NotPanics(t, func() {
		tel.ReportBroken("x")
		tel.ReportWarning("x")
		tel.ReportDebug("x")
		tel.ReportCount("x", 1)
	})
}
