package tracker

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"starlore/internal/analytics"
)

// Local mirror keys.
const (
	keyVisitorID      = "visitorId"
	keySessionID      = "sessionId"
	keySiteVisits     = "siteVisits"
	keyRecentVisits   = "recentVisits"
	keySessions       = "sessions"
	keyUniqueVisitors = "uniqueVisitors"
	dailyKeyPrefix    = "visits_"
	pageKeyPrefix     = "pageView_"
)

// LocalRetention is how long local daily counters are kept.
const LocalRetention = 30 * 24 * time.Hour

// LocalSession is a session record kept in the local mirror.
type LocalSession struct {
	ID        string           `json:"id"`
	StartTime int64            `json:"startTime"`
	Pages     []analytics.Page `json:"pages"`
}

// Mirror keeps local copies of the analytics counters so a dashboard can
// still show something when the shared store is unreachable.
type Mirror struct {
	s Storage
}

// NewMirror wraps persistent storage.
func NewMirror(s Storage) Mirror {
	return Mirror{s: s}
}

// Record folds one event into the local counters. Every write is attempted;
// failures are joined into the returned error.
func (m Mirror) Record(e Event, now time.Time) error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(m.incr(keySiteVisits))
	add(m.incr(dailyKeyPrefix + analytics.DayKey(now)))
	add(m.incr(pageKeyPrefix + string(e.Page)))

	add(m.update(keyRecentVisits, func(raw []byte) any {
		var list []analytics.RecentVisit
		decodeList(raw, &list)
		list = append([]analytics.RecentVisit{{Timestamp: now.UnixMilli(), Page: e.Page, SessionID: e.SessionID}}, list...)
		if len(list) > analytics.RecentLimit {
			list = list[:analytics.RecentLimit]
		}
		return list
	}))

	add(m.update(keySessions, func(raw []byte) any {
		var sessions []LocalSession
		decodeList(raw, &sessions)
		for i := range sessions {
			if sessions[i].ID == e.SessionID {
				if !containsPage(sessions[i].Pages, e.Page) {
					sessions[i].Pages = append(sessions[i].Pages, e.Page)
				}
				return sessions
			}
		}
		sessions = append(sessions, LocalSession{ID: e.SessionID, StartTime: now.UnixMilli(), Pages: []analytics.Page{e.Page}})
		if len(sessions) > analytics.SessionSampleLimit {
			sessions = sessions[len(sessions)-analytics.SessionSampleLimit:]
		}
		return sessions
	}))

	add(m.update(keyUniqueVisitors, func(raw []byte) any {
		var ids []string
		decodeList(raw, &ids)
		for _, id := range ids {
			if id == e.VisitorID {
				return ids
			}
		}
		return append(ids, e.VisitorID)
	}))

	return errors.Join(errs...)
}

// Prune removes local daily counters older than LocalRetention.
func (m Mirror) Prune(now time.Time) error {
	keys, err := m.s.Keys(dailyKeyPrefix)
	if err != nil {
		return fmt.Errorf("list daily keys: %w", err)
	}
	cutoff := now.Add(-LocalRetention)
	var errs []error
	for _, k := range keys {
		day, err := time.Parse("2006-01-02", strings.TrimPrefix(k, dailyKeyPrefix))
		if err != nil {
			continue
		}
		if day.Before(cutoff) {
			if err := m.s.Delete(k); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// TotalVisits returns the local total visit counter.
func (m Mirror) TotalVisits() int64 { return m.counter(keySiteVisits) }

// DailyVisits returns the local counter for the UTC day of t.
func (m Mirror) DailyVisits(t time.Time) int64 {
	return m.counter(dailyKeyPrefix + analytics.DayKey(t))
}

// PageViews returns the local per-page counter.
func (m Mirror) PageViews(p analytics.Page) int64 { return m.counter(pageKeyPrefix + string(p)) }

// RecentVisits returns locally recorded visits, most recent first.
func (m Mirror) RecentVisits() []analytics.RecentVisit {
	var list []analytics.RecentVisit
	m.decode(keyRecentVisits, &list)
	return list
}

// Sessions returns locally recorded sessions.
func (m Mirror) Sessions() []LocalSession {
	var list []LocalSession
	m.decode(keySessions, &list)
	return list
}

// UniqueVisitors returns the number of distinct visitor ids seen locally.
func (m Mirror) UniqueVisitors() int64 {
	var ids []string
	m.decode(keyUniqueVisitors, &ids)
	return int64(len(ids))
}

func (m Mirror) counter(key string) int64 {
	v, ok, err := m.s.Get(key)
	if err != nil || !ok {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (m Mirror) incr(key string) error {
	return m.s.Set(key, strconv.FormatInt(m.counter(key)+1, 10))
}

func (m Mirror) decode(key string, out any) {
	v, ok, err := m.s.Get(key)
	if err != nil || !ok {
		return
	}
	_ = json.Unmarshal([]byte(v), out)
}

func (m Mirror) update(key string, fn func(raw []byte) any) error {
	v, _, err := m.s.Get(key)
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	data, err := json.Marshal(fn([]byte(v)))
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return m.s.Set(key, string(data))
}

// decodeList decodes a JSON list. Corrupt data starts the list over.
func decodeList[T any](raw []byte, out *[]T) {
	if len(raw) == 0 {
		return
	}
	if err := json.Unmarshal(raw, out); err != nil {
		*out = nil
	}
}

func containsPage(pages []analytics.Page, p analytics.Page) bool {
	for _, x := range pages {
		if x == p {
			return true
		}
	}
	return false
}
