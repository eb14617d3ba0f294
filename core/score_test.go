package core

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserScoreSeedsTargets(t *testing.T) {
	s := NewUserScore("u", DefaultCatalog(), time.Now())
	assert.Equal(t, 1, s.Level)
	assert.Equal(t, "Beginner Farmer", s.LevelName)
	assert.Equal(t, int64(20), s.Achievements.DiseaseDetector.Target)
	assert.Equal(t, int64(5), s.Achievements.SoilExpert.Target)
	assert.NotNil(t, s.Badges)
	assert.NotNil(t, s.RecentActivities)
}

func TestPrependActivityTrimsOldest(t *testing.T) {
	s := NewUserScore("u", DefaultCatalog(), time.Now())
	for i := 1; i <= 51; i++ {
		PrependActivity(&s, ActivityEntry{ID: fmt.Sprint(i)}, 50)
	}
	require.Len(t, s.RecentActivities, 50)
	assert.Equal(t, "51", s.RecentActivities[0].ID)
	assert.Equal(t, "2", s.RecentActivities[49].ID)
}

func TestDailyPointsWindow(t *testing.T) {
	s := NewUserScore("u", DefaultCatalog(), time.Now())
	start := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 40; i++ {
		d := start.AddDate(0, 0, i).Format("2006-01-02")
		require.NoError(t, AddDailyPoints(&s, d, 10))
	}
	require.NoError(t, AddDailyPoints(&s, "2026-02-09", 5))

	assert.Len(t, s.DailyPoints, DailyPointsWindow)
	assert.Equal(t, "2026-02-09", s.DailyPoints[0].Day)
	assert.Equal(t, int64(15), s.DailyPoints[0].Points)

	assert.Equal(t, int64(15+6*10), s.PointsSince("2026-02-09", 7))
	assert.Equal(t, int64(15+29*10), s.PointsSince("2026-02-09", 30))

	s.TotalPoints = 999
	assert.Equal(t, int64(999), s.PointsSince("2026-02-09", 0))
}

func TestAddDailyPointsRejectsBadDay(t *testing.T) {
	s := NewUserScore("u", DefaultCatalog(), time.Now())
	assert.Error(t, AddDailyPoints(&s, "yesterday", 1))
}
