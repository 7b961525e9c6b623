package kv

import "starlore/internal/analytics"

const (
	keyTotalVisits    = "analytics:total_visits"
	keyUniqueVisitors = "analytics:unique_visitors"
	keyRecentVisits   = "analytics:recent_visits"

	dailyPrefix        = "analytics:daily:"
	pagePrefix         = "analytics:page:"
	sessionPrefix      = "analytics:session:"
	sessionPagesPrefix = "analytics:session_pages:"
)

func dailyKey(day string) string { return dailyPrefix + day }

func pageKey(p analytics.Page) string { return pagePrefix + string(p) }

// sessionKey holds the session hash {visitorId, startTime}.
func sessionKey(id string) string { return sessionPrefix + id }

// sessionPagesKey holds the set of distinct pages seen in a session.
func sessionPagesKey(id string) string { return sessionPagesPrefix + id }
