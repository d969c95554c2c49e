package store

import (
	"context"
	"database/sql"
	"errors"

	"scanstudents/internal/model"
)

// InsertRecording writes a finalized course recording.
func (r *Repository) InsertRecording(ctx context.Context, rec model.CourseRecording) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO course_recordings (id, timestamp, video)
		VALUES ($1,$2,$3)
	`, rec.ID, rec.Timestamp, rec.Video)
	return err
}

// ListRecordings returns recording metadata newest first; the video blob is
// not loaded.
func (r *Repository) ListRecordings(ctx context.Context) ([]model.CourseRecording, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, timestamp, OCTET_LENGTH(video)
		FROM course_recordings
		ORDER BY timestamp DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.CourseRecording
	for rows.Next() {
		var rec model.CourseRecording
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Size); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// GetRecording returns one recording with its video blob, or nil when
// absent.
func (r *Repository) GetRecording(ctx context.Context, id string) (*model.CourseRecording, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, timestamp, video FROM course_recordings WHERE id = $1
	`, id)
	var rec model.CourseRecording
	if err := row.Scan(&rec.ID, &rec.Timestamp, &rec.Video); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.Size = int64(len(rec.Video))
	return &rec, nil
}

// DeleteRecording removes a recording by id.
func (r *Repository) DeleteRecording(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM course_recordings WHERE id = $1`, id)
	return err
}
