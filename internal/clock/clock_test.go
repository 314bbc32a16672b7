package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/clock"
)

func TestInWindow_SimpleDaytimeWindow(t *testing.T) {
	loc := time.UTC
	inside := time.Date(2026, 3, 1, 10, 0, 0, 0, loc)
	outside := time.Date(2026, 3, 1, 20, 0, 0, 0, loc)

	ok, err := clock.InWindow(inside, loc, "09:00", "17:00")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = clock.InWindow(outside, loc, "09:00", "17:00")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInWindow_MidnightWrappingWindow(t *testing.T) {
	loc := time.UTC
	lateNight := time.Date(2026, 3, 1, 23, 30, 0, 0, loc)
	earlyMorning := time.Date(2026, 3, 1, 1, 0, 0, 0, loc)
	midday := time.Date(2026, 3, 1, 12, 0, 0, 0, loc)

	ok, err := clock.InWindow(lateNight, loc, "22:00", "06:00")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = clock.InWindow(earlyMorning, loc, "22:00", "06:00")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = clock.InWindow(midday, loc, "22:00", "06:00")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInWindow_RejectsMalformedHHMM(t *testing.T) {
	_, err := clock.InWindow(time.Now(), time.UTC, "9am", "17:00")
	assert.Error(t, err)

	_, err = clock.InWindow(time.Now(), time.UTC, "09:00", "25:00")
	assert.Error(t, err)
}

func TestNextFireTimes_WalksForwardUntilBoundary(t *testing.T) {
	sched, err := clock.ParseCron("0 * * * *") // top of every hour
	require.NoError(t, err)

	after := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)

	fires := clock.NextFireTimes(sched, time.UTC, after, until)

	require.Len(t, fires, 3)
	assert.Equal(t, time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC), fires[0])
	assert.Equal(t, time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC), fires[1])
	assert.Equal(t, time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC), fires[2])
}

func TestNextFireTimes_NoneDueReturnsEmpty(t *testing.T) {
	sched, err := clock.ParseCron("0 0 1 1 *") // once a year
	require.NoError(t, err)

	after := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	fires := clock.NextFireTimes(sched, time.UTC, after, until)
	assert.Empty(t, fires)
}

func TestParseCron_RejectsInvalidExpression(t *testing.T) {
	_, err := clock.ParseCron("not a cron expr")
	assert.Error(t, err)
}
