package db

import (
	"context"
	"fmt"
	"strings"
)

func (p *Pool) CountBulletinRecords(ctx context.Context, bulletinNo string) (int64, error) {
	const q = `SELECT COUNT(*) FROM markwatch.bulletin_records WHERE bulletin_no = $1`

	var count int64
	if err := p.QueryRow(ctx, q, strings.TrimSpace(bulletinNo)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count bulletin_records bulletin_no=%s: %w", bulletinNo, err)
	}
	return count, nil
}

// ListBulletinRecordsAfter returns up to limit records of one bulletin with
// an id strictly greater than afterID, in id order.
func (p *Pool) ListBulletinRecordsAfter(ctx context.Context, bulletinNo string, afterID int64, limit int) ([]BulletinRecord, error) {
	const q = `
SELECT
	bulletin_record_id,
	bulletin_no,
	application_no,
	mark_name,
	nice_classes,
	holders,
	application_date,
	image_path
FROM markwatch.bulletin_records
WHERE bulletin_no = $1
	AND bulletin_record_id > $2
ORDER BY bulletin_record_id
LIMIT $3
`

	if limit <= 0 {
		return nil, nil
	}

	rows, err := p.Query(ctx, q, strings.TrimSpace(bulletinNo), afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query bulletin_records after id=%d: %w", afterID, err)
	}
	defer rows.Close()

	records := make([]BulletinRecord, 0, limit)
	for rows.Next() {
		var rec BulletinRecord
		if err := rows.Scan(
			&rec.BulletinRecordID,
			&rec.BulletinNo,
			&rec.ApplicationNo,
			&rec.MarkName,
			&rec.NiceClasses,
			&rec.Holders,
			&rec.ApplicationDate,
			&rec.ImagePath,
		); err != nil {
			return nil, fmt.Errorf("scan bulletin_record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bulletin_records: %w", err)
	}
	return records, nil
}
