package dashboard

import (
	"math"

	"starlore/internal/analytics"
)

// AnimationSteps is the number of frames a counter takes to reach its value.
const AnimationSteps = 30

// Animate returns the frames a counter shows while counting up from zero to
// target. Integer counters advance by ceil(target/steps) per frame, decimal
// ones by target/steps and are rounded to one decimal. The last frame is
// always target.
func Animate(target float64, steps int, decimal bool) []float64 {
	if target <= 0 || steps <= 0 {
		return []float64{target}
	}

	inc := target / float64(steps)
	if !decimal {
		inc = math.Ceil(inc)
	}

	frames := make([]float64, 0, steps)
	for current := 0.0; ; {
		current += inc
		if current >= target {
			current = target
		}
		if decimal {
			frames = append(frames, analytics.Round1(current))
		} else {
			frames = append(frames, math.Round(current))
		}
		if current >= target {
			return frames
		}
	}
}

// BarHeights scales each day's visits to a percentage of the busiest day.
// The scale never drops below one visit, so an empty week draws flat bars.
func BarHeights(daily []analytics.DailyPoint) []float64 {
	maxVisits := int64(1)
	for _, d := range daily {
		if d.Visits > maxVisits {
			maxVisits = d.Visits
		}
	}
	out := make([]float64, len(daily))
	for i, d := range daily {
		out[i] = float64(d.Visits) / float64(maxVisits) * 100
	}
	return out
}

// PageLabel is the Turkish display name of a page category.
func PageLabel(p analytics.Page) string {
	switch p {
	case analytics.PageHome:
		return "Ana Sayfa"
	case analytics.PageStories:
		return "Hikayeler"
	case analytics.PageArt:
		return "Sanat Galerisi"
	case analytics.PageAbout:
		return "Hakkında"
	case analytics.PageContact:
		return "İletişim"
	default:
		return "Diğer"
	}
}

// Summary holds the secondary figures shown under the charts.
type Summary struct {
	WeekTotal       int64
	DailyAverage    int64
	PeakDay         int64
	PagesPerVisitor float64
	TopPage         analytics.Page
	TopPageViews    int64
}

// Summarize derives the week totals, pages per visitor and the most viewed
// page. TopPage is empty when nothing has been viewed yet.
func Summarize(s analytics.Stats) Summary {
	var sum Summary
	for _, d := range s.DailyStats {
		sum.WeekTotal += d.Visits
		if d.Visits > sum.PeakDay {
			sum.PeakDay = d.Visits
		}
	}
	if n := len(s.DailyStats); n > 0 {
		sum.DailyAverage = int64(math.Round(float64(sum.WeekTotal) / float64(n)))
	}

	views := s.PageViews.Total()
	if views > 0 {
		sum.PagesPerVisitor = analytics.Round1(float64(views) / float64(max(s.UniqueVisitors, 1)))
	}

	share := s.PageViewShare
	if share == nil {
		share = analytics.Distribution(s.PageViews)
	}
	if len(share) > 0 && share[0].Views > 0 {
		sum.TopPage = share[0].Page
		sum.TopPageViews = share[0].Views
	}
	return sum
}
