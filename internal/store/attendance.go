package store

import (
	"context"
	"database/sql"
	"errors"

	"scanstudents/internal/model"
)

// InsertAttendance writes a new attendance record. Records are immutable
// once written, except for the snapshot offload rewriting the photo.
func (r *Repository) InsertAttendance(ctx context.Context, rec model.AttendanceRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, student_id, timestamp, photo)
		VALUES ($1,$2,$3,$4)
	`, rec.ID, rec.StudentID, rec.Timestamp, rec.Photo)
	return err
}

// GetAttendance returns a single record by id, or nil when absent.
func (r *Repository) GetAttendance(ctx context.Context, id string) (*model.AttendanceRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, timestamp, photo FROM attendance_records WHERE id = $1
	`, id)
	var rec model.AttendanceRecord
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.Timestamp, &rec.Photo); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// ListAttendance returns records newest first.
func (r *Repository) ListAttendance(ctx context.Context, limit, offset int) ([]model.AttendanceRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, timestamp, photo
		FROM attendance_records
		ORDER BY timestamp DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAttendance(rows)
}

// ListAttendanceByDay returns every record whose timestamp falls on the
// given UTC calendar day (formatted 2006-01-02).
func (r *Repository) ListAttendanceByDay(ctx context.Context, day string) ([]model.AttendanceRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, timestamp, photo
		FROM attendance_records
		WHERE (timestamp AT TIME ZONE 'UTC')::date = $1::date
		ORDER BY timestamp
	`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAttendance(rows)
}

// UpdateAttendancePhoto swaps the inline snapshot for a hosted URL.
func (r *Repository) UpdateAttendancePhoto(ctx context.Context, id, photoURL string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attendance_records SET photo = $2 WHERE id = $1
	`, id, photoURL)
	return err
}

func scanAttendance(rows *sql.Rows) ([]model.AttendanceRecord, error) {
	var res []model.AttendanceRecord
	for rows.Next() {
		var rec model.AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.Timestamp, &rec.Photo); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}
