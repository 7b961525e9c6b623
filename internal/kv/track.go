package kv

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/goccy/go-json"

	"starlore/internal/analytics"
)

// Track folds one visit into the store as a single pipelined batch. It is not
// idempotent: tracking the same visit twice counts it twice.
//
// Session pages live in a redis set so concurrent page views of one session
// cannot lose each other's updates. Both session keys slide to a fresh
// 30-day expiry on every view.
func (s *Store) Track(ctx context.Context, v analytics.Visit) (analytics.Page, error) {
	page := analytics.ParsePage(v.Page)
	if !s.Enabled() {
		return page, ErrDisabled
	}

	now := s.clock()
	entry, err := json.Marshal(analytics.RecentVisit{
		Timestamp: now.UnixMilli(),
		Page:      page,
		SessionID: v.SessionID,
	})
	if err != nil {
		return page, fmt.Errorf("encode recent visit: %w", err)
	}

	day := dailyKey(analytics.DayKey(now))
	sess := sessionKey(v.SessionID)
	pages := sessionPagesKey(v.SessionID)

	err = s.do(func() error {
		_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Incr(ctx, keyTotalVisits)
			if v.CountVisitor() {
				pipe.SAdd(ctx, keyUniqueVisitors, v.VisitorID)
			}

			pipe.Incr(ctx, day)
			pipe.Expire(ctx, day, analytics.DailyTTL)

			pipe.Incr(ctx, pageKey(page))

			if v.NewSession() {
				pipe.HSet(ctx, sess, "visitorId", v.VisitorID, "startTime", now.UnixMilli())
			}
			pipe.SAdd(ctx, pages, string(page))
			pipe.Expire(ctx, sess, analytics.SessionTTL)
			pipe.Expire(ctx, pages, analytics.SessionTTL)

			pipe.LPush(ctx, keyRecentVisits, entry)
			pipe.LTrim(ctx, keyRecentVisits, 0, analytics.RecentLimit-1)
			return nil
		})
		return err
	})
	if err != nil {
		return page, fmt.Errorf("track pipeline: %w", err)
	}
	return page, nil
}
