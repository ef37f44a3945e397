package scan

import (
	"strings"
	"time"
	"unicode/utf8"

	"horse.fit/markwatch/internal/db"
	"horse.fit/markwatch/internal/nice"
	"horse.fit/markwatch/internal/similarity"
	"horse.fit/markwatch/internal/textnorm"
)

const (
	AcceptThreshold     = 0.5
	PositionalThreshold = 0.5
	minSubstringRunes   = 3
)

// Accept applies the three independent acceptance paths: a similarity
// score at or above AcceptThreshold, a positional prefix match, or the
// search term appearing verbatim inside the record name.
func Accept(score, positional float64, termLight, hitLight string) bool {
	if score >= AcceptThreshold || positional >= PositionalThreshold {
		return true
	}
	if utf8.RuneCountInString(termLight) < minSubstringRunes {
		return false
	}
	return strings.Contains(hitLight, termLight)
}

// candidate is a bulletin record with its derived forms computed once.
type candidate struct {
	record  db.BulletinRecord
	name    textnorm.Forms
	classes nice.ClassSet
	date    time.Time
	hasDate bool
}

func newCandidate(rec db.BulletinRecord) candidate {
	date, ok := ParseDate(rec.ApplicationDate)
	return candidate{
		record:  rec,
		name:    textnorm.Prepare(rec.MarkName),
		classes: nice.ParseString(rec.NiceClasses),
		date:    date,
		hasDate: ok,
	}
}

// matchRecord compares one record against every prepared mark and returns
// at most one hit per mark: the first accepted search term wins.
func matchRecord(jobID string, marks []PreparedMark, c candidate) []db.SimilarityHit {
	var hits []db.SimilarityHit
	for _, mark := range marks {
		if !dateAllows(c.date, c.hasDate, mark.FilingDate, mark.HasFilingDate) {
			continue
		}
		tier, ok := mark.Classes.Match(c.classes)
		if !ok {
			continue
		}

		for _, term := range mark.Terms {
			score, positional := similarity.Score(term.Raw, c.name.Raw, term.Normalized, c.name.Normalized)
			if !Accept(score, positional, term.Light, c.name.Light) {
				continue
			}
			hits = append(hits, db.SimilarityHit{
				JobID:                     jobID,
				BulletinRecordID:          c.record.BulletinRecordID,
				BulletinNo:                c.record.BulletinNo,
				MonitoredMarkID:           mark.ID,
				MatchedTerm:               term.Raw,
				SimilarMarkName:           c.record.MarkName,
				SimilarApplicationNo:      c.record.ApplicationNo,
				SimilarityScore:           score,
				PositionalExactMatchScore: positional,
				Holders:                   normalizeHolders(c.record.Holders),
				NiceClasses:               c.classes.String(),
				ImagePath:                 c.record.ImagePath,
				ClassTier:                 string(tier),
			})
			break
		}
	}
	return hits
}

// normalizeHolders turns a holder list in any delimiter style into
// "A, B, C".
func normalizeHolders(raw string) string {
	parts := strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ';' || r == '\n' })
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return strings.Join(out, ", ")
}
