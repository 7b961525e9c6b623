package handlers

import (
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// visitTimeLayout matches the tr-TR short date-time form, e.g. 19.10.2026 14:05.
const visitTimeLayout = "02.01.2006 15:04"

var trPrinter = message.NewPrinter(language.Turkish)

// FormatVisitTime formats a recent-visit timestamp (unix milliseconds) in loc.
func FormatVisitTime(ms int64, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return time.UnixMilli(ms).In(loc).Format(visitTimeLayout)
}

// FormatCount groups thousands the Turkish way, e.g. 12.345.
func FormatCount(n int64) string {
	return trPrinter.Sprintf("%d", n)
}
