package analytics

import (
	"math"
	"sort"
	"time"
)

const (
	// SeriesDays is the length of the daily visit series.
	SeriesDays = 7
	// RecentLimit caps the recent-visit list kept in the store.
	RecentLimit = 100
	// RecentReadLimit is how many recent visits the stats side reads.
	RecentReadLimit = 50
	// RecentResponseLimit caps recent visits returned to clients.
	RecentResponseLimit = 20
	// SessionSampleLimit bounds the sessions read for the bounce rate.
	SessionSampleLimit = 100
	// SessionTTL is how long a session record lives without activity.
	SessionTTL = 30 * 24 * time.Hour
	// DailyTTL is how long per-day counters are kept.
	DailyTTL = 30 * 24 * time.Hour
)

// Visit is one page-view event reported by a tracker.
type Visit struct {
	VisitorID    string `json:"visitorId" validate:"required"`
	SessionID    string `json:"sessionId" validate:"required"`
	Page         string `json:"page" validate:"required"`
	IsNewSession *bool  `json:"isNewSession" validate:"required"`
	IsNewVisitor *bool  `json:"isNewVisitor,omitempty"`
}

// NewSession reports the isNewSession flag, treating a missing flag as false.
func (v Visit) NewSession() bool {
	return v.IsNewSession != nil && *v.IsNewSession
}

// CountVisitor reports whether the visitor id should be added to the unique
// visitor set. A missing flag counts: set membership is idempotent.
func (v Visit) CountVisitor() bool {
	return v.IsNewVisitor == nil || *v.IsNewVisitor
}

// RecentVisit is an entry of the live activity feed.
type RecentVisit struct {
	Timestamp int64  `json:"timestamp"`
	Page      Page   `json:"page"`
	SessionID string `json:"sessionId,omitempty"`
}

// DailyPoint is one day of the visit series.
type DailyPoint struct {
	Date   string `json:"date"`
	Label  string `json:"label"`
	Visits int64  `json:"visits"`
}

// PageViews holds the per-page counters shown on the dashboard.
type PageViews struct {
	Home    int64 `json:"home"`
	Stories int64 `json:"stories"`
	Art     int64 `json:"art"`
	About   int64 `json:"about"`
	Contact int64 `json:"contact"`
}

// Get returns the counter for p. PageOther is not tracked here and reads as 0.
func (pv PageViews) Get(p Page) int64 {
	switch p {
	case PageHome:
		return pv.Home
	case PageStories:
		return pv.Stories
	case PageArt:
		return pv.Art
	case PageAbout:
		return pv.About
	case PageContact:
		return pv.Contact
	}
	return 0
}

// Set stores n as the counter for p.
func (pv *PageViews) Set(p Page, n int64) {
	switch p {
	case PageHome:
		pv.Home = n
	case PageStories:
		pv.Stories = n
	case PageArt:
		pv.Art = n
	case PageAbout:
		pv.About = n
	case PageContact:
		pv.Contact = n
	}
}

// Total sums the dashboard page counters.
func (pv PageViews) Total() int64 {
	return pv.Home + pv.Stories + pv.Art + pv.About + pv.Contact
}

// PageShare is one slice of the page-view distribution.
type PageShare struct {
	Page       Page    `json:"page"`
	Views      int64   `json:"views"`
	Percentage float64 `json:"percentage"`
}

// Stats is the payload served by the stats endpoint.
type Stats struct {
	TotalVisits    int64         `json:"totalVisits"`
	UniqueVisitors int64         `json:"uniqueVisitors"`
	TodayVisits    int64         `json:"todayVisits"`
	BounceRate     float64       `json:"bounceRate"`
	PageViews      PageViews     `json:"pageViews"`
	PageViewShare  []PageShare   `json:"pageViewShare"`
	DailyStats     []DailyPoint  `json:"dailyStats"`
	RecentVisits   []RecentVisit `json:"recentVisits"`
}

// EmptyStats returns the all-zero shape used when no store is available.
func EmptyStats(now time.Time) Stats {
	days := LastDays(now, SeriesDays)
	daily := make([]DailyPoint, len(days))
	for i, d := range days {
		daily[i] = DailyPoint{Date: DayKey(d), Label: DayLabel(d)}
	}
	return Stats{
		PageViewShare: Distribution(PageViews{}),
		DailyStats:    daily,
		RecentVisits:  []RecentVisit{},
	}
}

// DayKey is the UTC calendar date used to key daily counters.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// LastDays returns n UTC midnights ending with the day of now, oldest first.
func LastDays(now time.Time, n int) []time.Time {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := 0; i < n; i++ {
		out[i] = today.AddDate(0, 0, -(n - 1 - i))
	}
	return out
}

var trMonths = [...]string{"Oca", "Şub", "Mar", "Nis", "May", "Haz", "Tem", "Ağu", "Eyl", "Eki", "Kas", "Ara"}

// DayLabel renders a chart label such as "05 Eki".
func DayLabel(t time.Time) string {
	t = t.UTC()
	return t.Format("02") + " " + trMonths[t.Month()-1]
}

// IsBounce reports whether a session with the given number of distinct pages bounced.
func IsBounce(distinctPages int64) bool {
	return distinctPages == 1
}

// BounceRate computes the bounce percentage over sessions, given each
// session's distinct page count. Sessions without pages are ignored.
func BounceRate(distinctPages []int64) float64 {
	var total, bounced int
	for _, n := range distinctPages {
		if n <= 0 {
			continue
		}
		total++
		if IsBounce(n) {
			bounced++
		}
	}
	if total == 0 {
		return 0
	}
	return Round1(float64(bounced) / float64(total) * 100)
}

// Distribution normalises page counters to percentages of their sum, largest first.
// Percentages are all zero when nothing was viewed.
func Distribution(pv PageViews) []PageShare {
	total := pv.Total()
	out := make([]PageShare, 0, len(DashboardPages))
	for _, p := range DashboardPages {
		share := PageShare{Page: p, Views: pv.Get(p)}
		if total > 0 {
			share.Percentage = float64(share.Views) / float64(total) * 100
		}
		out = append(out, share)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Views > out[j].Views })
	return out
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
