package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"starlore/internal/analytics"
)

var fixedNow = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func TestMirrorRecord(t *testing.T) {
	m := NewMirror(NewMemoryStorage())

	events := []Event{
		{VisitorID: "v1", SessionID: "s1", Page: analytics.PageHome},
		{VisitorID: "v1", SessionID: "s1", Page: analytics.PageHome},
		{VisitorID: "v1", SessionID: "s1", Page: analytics.PageStories},
		{VisitorID: "v2", SessionID: "s2", Page: analytics.PageArt},
	}
	for i, e := range events {
		require.NoError(t, m.Record(e, fixedNow.Add(time.Duration(i)*time.Second)))
	}

	assert.Equal(t, int64(4), m.TotalVisits())
	assert.Equal(t, int64(4), m.DailyVisits(fixedNow))
	assert.Equal(t, int64(2), m.PageViews(analytics.PageHome))
	assert.Equal(t, int64(2), m.UniqueVisitors())

	recent := m.RecentVisits()
	require.Len(t, recent, 4)
	assert.Equal(t, analytics.PageArt, recent[0].Page)

	sessions := m.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, []analytics.Page{analytics.PageHome, analytics.PageStories}, sessions[0].Pages)
	assert.Equal(t, []analytics.Page{analytics.PageArt}, sessions[1].Pages)
}

func TestMirrorRecentCapped(t *testing.T) {
	m := NewMirror(NewMemoryStorage())
	for i := 0; i < analytics.RecentLimit+5; i++ {
		require.NoError(t, m.Record(Event{VisitorID: "v", SessionID: "s", Page: analytics.PageAbout}, fixedNow))
	}
	assert.Len(t, m.RecentVisits(), analytics.RecentLimit)
}

func TestMirrorCorruptListStartsOver(t *testing.T) {
	s := NewMemoryStorage()
	require.NoError(t, s.Set(keyRecentVisits, "{not json"))
	m := NewMirror(s)

	require.NoError(t, m.Record(Event{VisitorID: "v", SessionID: "s", Page: analytics.PageHome}, fixedNow))
	assert.Len(t, m.RecentVisits(), 1)
}

func TestMirrorPrune(t *testing.T) {
	s := NewMemoryStorage()
	require.NoError(t, s.Set("visits_2026-08-01", "5"))
	require.NoError(t, s.Set("visits_2026-10-10", "2"))
	require.NoError(t, s.Set("visits_garbage", "1"))

	require.NoError(t, NewMirror(s).Prune(fixedNow))

	keys, err := s.Keys(dailyKeyPrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{"visits_2026-10-10", "visits_garbage"}, keys)
}

func TestMirrorStorageErrorsJoined(t *testing.T) {
	m := NewMirror(failingStorage{})
	err := m.Record(Event{VisitorID: "v", SessionID: "s", Page: analytics.PageHome}, fixedNow)
	assert.ErrorIs(t, err, errStorage)
	assert.ErrorIs(t, m.Prune(fixedNow), errStorage)
	assert.Zero(t, m.TotalVisits())
}
