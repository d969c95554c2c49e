package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"scanstudents/internal/model"
)

// ErrDuplicateID is returned when adding a student whose matricule exists.
var ErrDuplicateID = errors.New("student id already exists")

// Repository persists students, attendance records and course recordings in
// Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// AddStudent inserts a new student. The matricule is chosen by the caller
// and immutable; a duplicate fails with ErrDuplicateID.
func (r *Repository) AddStudent(ctx context.Context, s model.Student) error {
	if s.ID == "" {
		return errors.New("student id required")
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO students (id, last_name, first_name, level, dob, phone, email, photo, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO NOTHING
	`, s.ID, s.LastName, s.FirstName, string(s.Level), s.DOB, s.Phone, s.Email, s.Photo, s.CreatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDuplicateID
	}
	return nil
}

// UpdateStudent replaces every mutable field of the student.
func (r *Repository) UpdateStudent(ctx context.Context, s model.Student) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE students
		SET last_name = $2, first_name = $3, level = $4, dob = $5, phone = $6, email = $7, photo = $8
		WHERE id = $1
	`, s.ID, s.LastName, s.FirstName, string(s.Level), s.DOB, s.Phone, s.Email, s.Photo)
	return err
}

// DeleteStudent removes a student. Attendance records are not cascaded.
func (r *Repository) DeleteStudent(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	return err
}

// GetStudent returns a student by matricule, or nil when absent.
func (r *Repository) GetStudent(ctx context.Context, id string) (*model.Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, last_name, first_name, level, dob, phone, email, photo, created_at
		FROM students WHERE id = $1
	`, id)
	var s model.Student
	var level string
	if err := row.Scan(&s.ID, &s.LastName, &s.FirstName, &level, &s.DOB, &s.Phone, &s.Email, &s.Photo, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.Level = model.Level(level)
	return &s, nil
}

// ListStudents returns students filtered by a search term (matched against
// matricule and names) and a program level; empty/"all" filters match all.
func (r *Repository) ListStudents(ctx context.Context, search string, level model.Level) ([]model.Student, error) {
	query := `SELECT id, last_name, first_name, level, dob, phone, email, photo, created_at FROM students`
	args := []any{}
	clauses := []string{}
	if search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		n := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, "(LOWER(id) LIKE "+n+" OR LOWER(last_name) LIKE "+n+" OR LOWER(first_name) LIKE "+n+")")
	}
	if level != "" && level != model.LevelAll {
		args = append(args, string(level))
		clauses = append(clauses, fmt.Sprintf("level = $%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY last_name, first_name"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.Student
	for rows.Next() {
		var s model.Student
		var lvl string
		if err := rows.Scan(&s.ID, &s.LastName, &s.FirstName, &lvl, &s.DOB, &s.Phone, &s.Email, &s.Photo, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.Level = model.Level(lvl)
		res = append(res, s)
	}
	return res, rows.Err()
}
