package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sortline/internal/sorter"
	"github.com/roach88/sortline/internal/store"
)

func seedLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sortline.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	for _, lane := range []uint16{10, 10, 8} {
		err := st.WriteDecision(ctx, sorter.Decision{
			ID:       uuid.NewString(),
			Time:     time.Date(2025, 6, 1, 12, 0, 42, 0, time.UTC),
			Channel:  "A",
			Sequence: 1,
			Position: 104,
			Weight:   600,
			Lane:     lane,
			Cause:    sorter.CauseRange,
		})
		require.NoError(t, err)
	}
	require.NoError(t, st.WriteStats(ctx, time.Now(), sorter.Stats{Cycles: 10, WeightSorted: 3, BatchWrites: 3}))
	return path
}

func TestStats_TextReport(t *testing.T) {
	out, err := executeCommand("stats", seedLog(t))
	require.NoError(t, err)

	assert.Contains(t, out, "Total decisions: 3")
	assert.Contains(t, out, "lane 10")
	assert.Contains(t, out, "weight sorted    3")
}

func TestStats_RecentDecisions(t *testing.T) {
	out, err := executeCommand("stats", seedLog(t), "--recent", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Recent decisions:")
	assert.Contains(t, out, "ch=A pos=104")
}

func TestStats_JSONFormat(t *testing.T) {
	out, err := executeCommand("--format", "json", "stats", seedLog(t))
	require.NoError(t, err)
	assert.Contains(t, out, `"total_decisions":3`)
	assert.Contains(t, out, `"status":"ok"`)
}

func TestStats_EmptyLogStillReports(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	out, err := executeCommand("stats", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Total decisions: 0")
	assert.Contains(t, out, "No run statistics recorded yet.")
}
