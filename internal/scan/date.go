package scan

import (
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
	"2006/01/02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDate reads a calendar date in any supported layout and truncates it
// to midnight UTC.
func ParseDate(raw string) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, trimmed)
		if err != nil {
			continue
		}
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// IsDateValid excludes a record only when both dates parse and the record
// was filed before the monitored mark. Missing or unreadable dates pass.
func IsDateValid(hitDate, filingDate string) bool {
	hit, hitOK := ParseDate(hitDate)
	filing, filingOK := ParseDate(filingDate)
	return dateAllows(hit, hitOK, filing, filingOK)
}

func dateAllows(hit time.Time, hitOK bool, filing time.Time, filingOK bool) bool {
	if !hitOK || !filingOK {
		return true
	}
	return !hit.Before(filing)
}
