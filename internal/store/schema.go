package store

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS students (
	id          TEXT PRIMARY KEY,
	last_name   TEXT NOT NULL,
	first_name  TEXT NOT NULL,
	level       TEXT NOT NULL DEFAULT '',
	dob         TEXT NOT NULL DEFAULT '',
	phone       TEXT NOT NULL DEFAULT '',
	email       TEXT NOT NULL DEFAULT '',
	photo       TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS attendance_records (
	id          TEXT PRIMARY KEY,
	student_id  TEXT NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL,
	photo       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_attendance_student ON attendance_records(student_id);
CREATE INDEX IF NOT EXISTS idx_attendance_time    ON attendance_records(timestamp);

CREATE TABLE IF NOT EXISTS course_recordings (
	id          TEXT PRIMARY KEY,
	timestamp   TIMESTAMPTZ NOT NULL,
	video       BYTEA NOT NULL
);
`

// EnsureSchema creates the tables if they do not exist. Attendance keeps no
// foreign key to students: records outlive student deletion and render with
// a placeholder name.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}
