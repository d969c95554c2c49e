package attendance

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"scanstudents/internal/metrics"
	"scanstudents/internal/model"
)

// Store is the slice of the persistence layer the registry needs.
type Store interface {
	InsertAttendance(ctx context.Context, rec model.AttendanceRecord) error
	ListAttendanceByDay(ctx context.Context, day string) ([]model.AttendanceRecord, error)
}

// Registry enforces at-most-once attendance marking per student per calendar
// day. It is the sole mutator of the recognized-today set; offers are
// serialized relative to each other, so two students recognized in the same
// detection cycle cannot race past the membership check.
type Registry struct {
	mu     sync.Mutex
	store  Store
	day    string
	seen   map[string]struct{}
	notify func(model.AttendanceRecord)
}

// NewRegistry creates a registry over the given store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store, seen: make(map[string]struct{})}
}

// OnRecord registers a hook invoked after each successfully persisted
// record. The hook runs under the registry lock; keep it cheap (publish to
// a queue, bump a counter).
func (r *Registry) OnRecord(fn func(model.AttendanceRecord)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notify = fn
}

// Offer marks studentID present for the calendar day of ts. If the student
// is already recorded for that day this is a no-op. The persistence write
// happens before the in-memory insert: a failed write leaves the set
// untouched so the same offer can be retried.
func (r *Registry) Offer(ctx context.Context, studentID string, ts time.Time, snapshot []byte) error {
	if studentID == "" {
		return fmt.Errorf("student id required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	day := ts.UTC().Format("2006-01-02")
	if day != r.day {
		// implicit day rollover: derive the set fresh from the source of
		// truth instead of patching it incrementally
		if err := r.rebuildLocked(ctx, day); err != nil {
			return fmt.Errorf("rebuild recognized set: %w", err)
		}
	}
	if _, ok := r.seen[studentID]; ok {
		return nil
	}

	rec := model.AttendanceRecord{
		ID:        uuid.NewString(),
		StudentID: studentID,
		Timestamp: ts.UTC(),
	}
	if len(snapshot) > 0 {
		rec.Photo = dataURL(snapshot)
	}
	if err := r.store.InsertAttendance(ctx, rec); err != nil {
		return fmt.Errorf("persist attendance: %w", err)
	}

	r.seen[studentID] = struct{}{}
	metrics.AttendanceMarked.Inc()
	if r.notify != nil {
		r.notify(rec)
	}
	return nil
}

// Rebuild re-derives the recognized-today set from persisted records. Called
// at startup and whenever the persisted attendance collection changes
// outside the registry.
func (r *Registry) Rebuild(ctx context.Context, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rebuildLocked(ctx, now.UTC().Format("2006-01-02"))
}

func (r *Registry) rebuildLocked(ctx context.Context, day string) error {
	records, err := r.store.ListAttendanceByDay(ctx, day)
	if err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		seen[rec.StudentID] = struct{}{}
	}
	r.day = day
	r.seen = seen
	return nil
}

// RecognizedToday reports whether studentID has already been marked for the
// registry's current day.
func (r *Registry) RecognizedToday(studentID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seen[studentID]
	return ok
}

// Count returns the size of the recognized-today set.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func dataURL(snapshot []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(snapshot)
}
