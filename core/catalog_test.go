package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	cat := DefaultCatalog()
	require.NoError(t, cat.Validate())
	assert.Len(t, cat.Levels, 8)
	assert.Len(t, cat.Badges, 7)
	assert.Len(t, cat.Achievements, 6)
}

func TestDefaultCatalogPoints(t *testing.T) {
	want := map[ActivityType]int64{
		ActivityLogin:         5,
		ActivityTaskCompleted: 15,
		ActivityDiseaseUpload: 20,
		ActivitySoilUpload:    30,
		ActivityWeatherCheck:  3,
		ActivityForumPost:     10,
		ActivityForumReply:    8,
		ActivityHelpfulReply:  15,
		ActivityNewsRead:      2,
	}
	cat := DefaultCatalog()
	for typ, pts := range want {
		got, ok := cat.PointsFor(typ)
		require.True(t, ok, typ)
		assert.Equal(t, pts, got, typ)
	}
}

func TestCatalogValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Catalog)
	}{
		{"missing points", func(c *Catalog) { delete(c.Points, ActivityNewsRead) }},
		{"negative points", func(c *Catalog) { c.Points[ActivityLogin] = -1 }},
		{"unknown activity", func(c *Catalog) { c.Points["harvest"] = 4 }},
		{"first level not zero", func(c *Catalog) { c.Levels[0].MinPoints = 10 }},
		{"unordered levels", func(c *Catalog) { c.Levels[3].MinPoints = 50 }},
		{"duplicate badge", func(c *Catalog) { c.Badges[1].ID = c.Badges[0].ID }},
		{"unknown badge counter", func(c *Catalog) { c.Badges[0].Counter = "rainfall" }},
		{"missing achievement", func(c *Catalog) { c.Achievements = c.Achievements[1:] }},
		{"zero achievement target", func(c *Catalog) { c.Achievements[0].Target = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat := DefaultCatalog()
			tt.mutate(&cat)
			err := cat.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidCatalog))
		})
	}
}

func TestCatalogCloneIsIndependent(t *testing.T) {
	cat := DefaultCatalog()
	cp := cat.Clone()
	cp.Points[ActivityLogin] = 100
	cp.Levels[0].Name = "changed"
	assert.Equal(t, int64(5), cat.Points[ActivityLogin])
	assert.Equal(t, "Beginner Farmer", cat.Levels[0].Name)
}

func TestLevelFor(t *testing.T) {
	levels := DefaultCatalog().Levels
	tests := []struct {
		points int64
		level  int
		name   string
	}{
		{0, 1, "Beginner Farmer"},
		{99, 1, "Beginner Farmer"},
		{100, 2, "Learning Farmer"},
		{249, 2, "Learning Farmer"},
		{250, 3, "Growing Farmer"},
		{4999, 7, "Master Farmer"},
		{5000, 8, "Farming Legend"},
		{1_000_000, 8, "Farming Legend"},
	}
	for _, tt := range tests {
		got := LevelFor(levels, tt.points)
		assert.Equal(t, tt.level, got.Level, "points=%d", tt.points)
		assert.Equal(t, tt.name, got.Name, "points=%d", tt.points)
	}
}

func TestLevelForIsMonotonic(t *testing.T) {
	levels := DefaultCatalog().Levels
	prev := 0
	for p := int64(0); p <= 6000; p++ {
		l := LevelFor(levels, p).Level
		if l < prev {
			t.Fatalf("level decreased at %d: %d < %d", p, l, prev)
		}
		prev = l
	}
}

func TestNextLevel(t *testing.T) {
	levels := DefaultCatalog().Levels
	next, ok := NextLevel(levels, 1)
	require.True(t, ok)
	assert.Equal(t, int64(100), next.MinPoints)
	_, ok = NextLevel(levels, 8)
	assert.False(t, ok)
}
