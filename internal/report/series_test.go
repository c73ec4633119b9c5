package report

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linemon-backend/internal/model"
)

func TestRangeWindow(t *testing.T) {
	testCases := []struct {
		sel      string
		wantSel  string
		expected time.Duration
	}{
		{"realtime", "realtime", 5 * time.Minute},
		{"5m", "5m", 5 * time.Minute},
		{"15m", "15m", 15 * time.Minute},
		{"30m", "30m", 30 * time.Minute},
		{"1h", "1h", time.Hour},
		{"6h", "6h", 6 * time.Hour},
		{"12h", "12h", 12 * time.Hour},
		{"24h", "24h", 24 * time.Hour},
		{"7d", "7d", 7 * 24 * time.Hour},
		{"", "5m", 5 * time.Minute},
		{"2y", "5m", 5 * time.Minute},
	}
	for _, tc := range testCases {
		sel, d := RangeWindow(tc.sel)
		assert.Equal(t, tc.wantSel, sel, tc.sel)
		assert.Equal(t, tc.expected, d, tc.sel)
	}
}

func TestService_SeriesRealtimeEmptyStore(t *testing.T) {
	svc, _ := newTestService(t)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	series, err := svc.Series(context.Background(), now, "realtime", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []Point{{Ts: now, Production: 0}}, series.Total)
	assert.Empty(t, series.ByEquipment)
	assert.True(t, series.Fallback)
}

func TestService_SeriesOtherRangeEmptyStore(t *testing.T) {
	svc, _ := newTestService(t)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	series, err := svc.Series(context.Background(), now, "1h", time.Time{})
	require.NoError(t, err)
	assert.NotNil(t, series.Total)
	assert.Empty(t, series.Total)
	assert.Empty(t, series.ByEquipment)
}

func TestService_SeriesWindow(t *testing.T) {
	ctx := context.Background()
	svc, s := newTestService(t)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	// One old tick outside every short window and three recent ones.
	require.NoError(t, s.AppendTick(ctx, []model.Metric{rec("M1", now.Add(-2*time.Hour), "RUN", 1), rec("M2", now.Add(-2*time.Hour), "RUN", 2)}))
	for i := 3; i >= 1; i-- {
		at := now.Add(-time.Duration(i) * 5 * time.Second)
		require.NoError(t, s.AppendTick(ctx, []model.Metric{rec("M2", at, "RUN", 20-i), rec("M1", at, "RUN", 10-i)}))
	}

	series, err := svc.Series(ctx, now, "bogus", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "5m", series.Range)
	assert.False(t, series.Fallback)

	require.Len(t, series.Total, 3)
	assert.Equal(t, Point{Ts: now.Add(-15 * time.Second), Production: 7 + 17}, series.Total[0])
	assert.Equal(t, Point{Ts: now.Add(-5 * time.Second), Production: 9 + 19}, series.Total[2])

	require.Len(t, series.ByEquipment, 2)
	assert.Equal(t, "M1", series.ByEquipment[0].EquipmentID)
	assert.Equal(t, "M2", series.ByEquipment[1].EquipmentID)
	assert.Len(t, series.ByEquipment[0].Points, 3)

	// An explicit since widens the window.
	series, err = svc.Series(ctx, now, "5m", now.Add(-3*time.Hour))
	require.NoError(t, err)
	assert.Len(t, series.Total, 4)
}

func TestService_SeriesFallsBackToRecentRows(t *testing.T) {
	ctx := context.Background()
	svc, s := newTestService(t)
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	old := now.Add(-3 * time.Hour)
	for i := 0; i < 3; i++ {
		at := old.Add(time.Duration(i) * 5 * time.Second)
		require.NoError(t, s.AppendTick(ctx, []model.Metric{rec("M1", at, "RUN", i), rec("M2", at, "RUN", 10+i)}))
	}

	series, err := svc.Series(ctx, now, "realtime", time.Time{})
	require.NoError(t, err)
	assert.True(t, series.Fallback)

	// The fallback holds the newest 4 rows: two full ticks.
	require.Len(t, series.Total, 2)
	assert.Equal(t, old.Add(5*time.Second), series.Total[0].Ts)
	assert.Equal(t, 1+11, series.Total[0].Production)
	assert.Equal(t, 2+12, series.Total[1].Production)
}
