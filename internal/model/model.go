package model

import "time"

// Level is a program level a student is enrolled in.
type Level string

const (
	LevelAll      Level = "all"
	LevelLicence1 Level = "licence1"
	LevelLicence2 Level = "licence2"
	LevelLicence3 Level = "licence3"
)

// Valid reports whether l is a known filterable level.
func (l Level) Valid() bool {
	switch l {
	case LevelAll, LevelLicence1, LevelLicence2, LevelLicence3:
		return true
	}
	return false
}

// Student represents a registered student. ID is the matricule and is
// immutable after creation.
type Student struct {
	ID        string    `json:"id"`
	LastName  string    `json:"last_name"`
	FirstName string    `json:"first_name"`
	Level     Level     `json:"level"`
	DOB       string    `json:"dob"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	Photo     string    `json:"photo,omitempty"` // data URL or hosted URL of the reference image
	CreatedAt time.Time `json:"created_at"`
}

// AttendanceRecord is one recognition event. Created at most once per
// (student, calendar day) and never mutated afterwards, except for the
// snapshot being swapped for a hosted URL by the offload worker.
type AttendanceRecord struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Timestamp time.Time `json:"timestamp"`
	Photo     string    `json:"photo,omitempty"` // snapshot at detection time
}

// Day returns the calendar day the record belongs to.
func (r AttendanceRecord) Day() string {
	return r.Timestamp.UTC().Format("2006-01-02")
}

// CourseRecording is a finalized surveillance video session.
type CourseRecording struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"` // session start
	Video     []byte    `json:"-"`
	Size      int64     `json:"size"`
}
