package db

import (
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"starlore/internal/analytics"
)

// runRetentionOnce deletes rollups older than retentionDays.
func runRetentionOnce(db *gorm.DB, retentionDays int, now time.Time) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := analytics.LastDays(now, retentionDays)[0]
	res := db.Where("day < ?", cutoff).Delete(&DailyRollup{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		logrus.WithFields(logrus.Fields{
			"deleted": res.RowsAffected,
			"cutoff":  analytics.DayKey(cutoff),
		}).Info("retention cleanup removed rollups")
	}
	return nil
}
