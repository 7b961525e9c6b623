package db

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"starlore/internal/analytics"
	"starlore/internal/config"
	"starlore/internal/kv"
)

// Snapshotter reads the live counters for one day.
type Snapshotter interface {
	Snapshot(ctx context.Context, day time.Time) (kv.Snapshot, error)
}

// runRollupOnce archives the counters of day. An existing rollup of an open
// day is replaced; for a closed day only its visits are refreshed, so the
// site-wide counters keep their value from the day's last open rollup.
func runRollupOnce(ctx context.Context, db *gorm.DB, src Snapshotter, day time.Time, closed bool) error {
	snap, err := src.Snapshot(ctx, day)
	if err != nil {
		return err
	}

	pages := datatypes.JSONMap{}
	for _, p := range analytics.Pages {
		pages[string(p)] = snap.Pages[p]
	}

	row := DailyRollup{
		Day:            snap.Day,
		Visits:         snap.Visits,
		TotalVisits:    snap.TotalVisits,
		UniqueVisitors: snap.UniqueVisitors,
		PageViews:      pages,
	}
	updates := []string{"updated_at", "visits"}
	if !closed {
		updates = append(updates, "total_visits", "unique_visitors", "page_views")
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "day"}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(&row).Error
}

// rollupRecent archives yesterday and today. Yesterday is repeated so the
// last hours of a day are captured after midnight UTC.
func rollupRecent(db *gorm.DB, src Snapshotter, now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	days := analytics.LastDays(now, 2)
	for i, day := range days {
		if err := runRollupOnce(ctx, db, src, day, i < len(days)-1); err != nil {
			logrus.WithError(err).WithField("day", analytics.DayKey(day)).Error("rollup failed")
		}
	}
}

// StartWorkers runs a rollup at startup, then schedules rollups on
// cfg.RollupSchedule and retention cleanup once a day. The caller stops the
// returned cron.
func StartWorkers(db *gorm.DB, src Snapshotter, cfg *config.Config) (*cron.Cron, error) {
	c := cron.New()

	if _, err := c.AddFunc(cfg.RollupSchedule, func() {
		rollupRecent(db, src, time.Now())
	}); err != nil {
		return nil, err
	}

	if _, err := c.AddFunc("@daily", func() {
		if err := runRetentionOnce(db, cfg.RetentionDays, time.Now()); err != nil {
			logrus.WithError(err).Error("retention cleanup failed")
		}
	}); err != nil {
		return nil, err
	}

	go func() {
		rollupRecent(db, src, time.Now())
		if err := runRetentionOnce(db, cfg.RetentionDays, time.Now()); err != nil {
			logrus.WithError(err).Error("retention cleanup failed (startup)")
		}
	}()

	c.Start()
	return c, nil
}

// History returns the archived rollups of the last days days, oldest first.
func History(ctx context.Context, db *gorm.DB, days int, now time.Time) ([]DailyRollup, error) {
	if days < 1 {
		days = 1
	}
	cutoff := analytics.LastDays(now, days)[0]
	var rows []DailyRollup
	err := db.WithContext(ctx).
		Where("day >= ?", cutoff).
		Order("day").
		Find(&rows).Error
	return rows, err
}
