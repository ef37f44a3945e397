package db

import (
	"context"
	"fmt"
	"strings"
)

// hitInsertChunk keeps each statement well under the Postgres parameter limit.
const hitInsertChunk = 500

const hitInsertColumns = 13

// UpsertSimilarityHits writes hits in chunks and returns how many rows were
// inserted or refreshed.
func (p *Pool) UpsertSimilarityHits(ctx context.Context, hits []SimilarityHit) (int, error) {
	written := 0
	for start := 0; start < len(hits); start += hitInsertChunk {
		end := min(start+hitInsertChunk, len(hits))
		n, err := p.upsertHitChunk(ctx, hits[start:end])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func (p *Pool) upsertHitChunk(ctx context.Context, hits []SimilarityHit) (int, error) {
	if len(hits) == 0 {
		return 0, nil
	}

	var b strings.Builder
	b.WriteString(`
INSERT INTO markwatch.similarity_hits (
	job_id,
	bulletin_record_id,
	bulletin_no,
	monitored_mark_id,
	matched_term,
	similar_mark_name,
	similar_application_no,
	similarity_score,
	positional_exact_match_score,
	holders,
	nice_classes,
	image_path,
	class_tier,
	created_at,
	updated_at
)
VALUES `)

	args := make([]any, 0, len(hits)*hitInsertColumns)
	for i, h := range hits {
		if i > 0 {
			b.WriteString(",\n\t")
		}
		base := i * hitInsertColumns
		b.WriteString("(")
		for col := 1; col <= hitInsertColumns; col++ {
			fmt.Fprintf(&b, "$%d, ", base+col)
		}
		b.WriteString("now(), now())")

		args = append(args,
			h.JobID,
			h.BulletinRecordID,
			h.BulletinNo,
			h.MonitoredMarkID,
			h.MatchedTerm,
			h.SimilarMarkName,
			h.SimilarApplicationNo,
			h.SimilarityScore,
			h.PositionalExactMatchScore,
			h.Holders,
			h.NiceClasses,
			h.ImagePath,
			h.ClassTier,
		)
	}
	b.WriteString(`
ON CONFLICT (bulletin_record_id, monitored_mark_id, matched_term) DO UPDATE
SET
	job_id = EXCLUDED.job_id,
	similarity_score = EXCLUDED.similarity_score,
	positional_exact_match_score = EXCLUDED.positional_exact_match_score,
	class_tier = EXCLUDED.class_tier,
	updated_at = now()
`)

	tag, err := p.Exec(ctx, b.String(), args...)
	if err != nil {
		return 0, fmt.Errorf("upsert %d similarity_hits: %w", len(hits), err)
	}
	return int(tag.RowsAffected()), nil
}

// ListSimilarityHits pages a job's hits, best score first.
func (p *Pool) ListSimilarityHits(ctx context.Context, jobID string, limit, offset int) ([]SimilarityHit, int64, error) {
	const countQ = `SELECT COUNT(*) FROM markwatch.similarity_hits WHERE job_id = $1`
	const q = `
SELECT
	hit_id,
	job_id,
	bulletin_record_id,
	bulletin_no,
	monitored_mark_id,
	matched_term,
	similar_mark_name,
	similar_application_no,
	similarity_score,
	positional_exact_match_score,
	holders,
	nice_classes,
	image_path,
	class_tier,
	created_at,
	updated_at
FROM markwatch.similarity_hits
WHERE job_id = $1
ORDER BY similarity_score DESC, hit_id
LIMIT $2 OFFSET $3
`

	var total int64
	if err := p.QueryRow(ctx, countQ, jobID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count similarity_hits job_id=%s: %w", jobID, err)
	}

	rows, err := p.Query(ctx, q, jobID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query similarity_hits job_id=%s: %w", jobID, err)
	}
	defer rows.Close()

	hits := make([]SimilarityHit, 0, limit)
	for rows.Next() {
		var h SimilarityHit
		if err := rows.Scan(
			&h.HitID,
			&h.JobID,
			&h.BulletinRecordID,
			&h.BulletinNo,
			&h.MonitoredMarkID,
			&h.MatchedTerm,
			&h.SimilarMarkName,
			&h.SimilarApplicationNo,
			&h.SimilarityScore,
			&h.PositionalExactMatchScore,
			&h.Holders,
			&h.NiceClasses,
			&h.ImagePath,
			&h.ClassTier,
			&h.CreatedAt,
			&h.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan similarity_hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate similarity_hits: %w", err)
	}
	return hits, total, nil
}
