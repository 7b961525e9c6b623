package db

import (
	"time"

	"gorm.io/datatypes"
)

// DailyRollup is an archived copy of one UTC day's counters. Daily counters
// expire from the key-value store after 30 days; rollups keep the history.
type DailyRollup struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Day time.Time `gorm:"type:date;uniqueIndex;not null"`

	Visits int64 `gorm:"not null"` // visits on Day

	// Site-wide cumulative counters as of the last rollup taken while Day
	// was still today (or the first rollup of Day, if it was taken later).
	// Only Visits is a per-day value.
	TotalVisits    int64 `gorm:"not null"`
	UniqueVisitors int64 `gorm:"not null"`

	// PageViews maps page category to its cumulative view counter.
	PageViews datatypes.JSONMap `gorm:"type:jsonb"`
}
