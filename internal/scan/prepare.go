package scan

import (
	"strings"
	"time"

	"horse.fit/markwatch/internal/nice"
	"horse.fit/markwatch/internal/textnorm"
)

// PreparedMark is a monitored mark with everything a record comparison
// needs computed once per invocation.
type PreparedMark struct {
	ID            string
	Terms         []textnorm.Forms
	Classes       nice.Filter
	FilingDate    time.Time
	HasFilingDate bool
}

func PrepareMarks(marks []MonitoredMark) []PreparedMark {
	out := make([]PreparedMark, 0, len(marks))
	for _, m := range marks {
		out = append(out, prepareMark(m))
	}
	return out
}

func prepareMark(m MonitoredMark) PreparedMark {
	primary := strings.TrimSpace(m.PrimaryName)
	if primary == "" {
		primary = UnnamedMark
	}

	names := make([]string, 0, 1+len(m.AlternativeNames))
	names = append(names, primary)
	names = append(names, m.AlternativeNames...)

	terms := make([]textnorm.Forms, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		forms := textnorm.Prepare(strings.TrimSpace(name))
		if forms.Normalized == "" {
			continue
		}
		if _, dup := seen[forms.Normalized]; dup {
			continue
		}
		seen[forms.Normalized] = struct{}{}
		terms = append(terms, forms)
	}

	filing, ok := ParseDate(m.FilingDate)
	return PreparedMark{
		ID:            m.ID.String(),
		Terms:         terms,
		Classes:       nice.NewFilter(m.OwnClasses, m.WatchedClasses),
		FilingDate:    filing,
		HasFilingDate: ok,
	}
}
