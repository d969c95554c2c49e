package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"scanstudents/internal/attendance"
	"scanstudents/internal/camera"
	"scanstudents/internal/command"
	"scanstudents/internal/faceclient"
	"scanstudents/internal/model"
	"scanstudents/internal/recording"
)

type fakeStore struct {
	mu         sync.Mutex
	students   []model.Student
	records    []model.AttendanceRecord
	recordings []model.CourseRecording
}

func (s *fakeStore) ListStudents(_ context.Context, _ string, _ model.Level) ([]model.Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Student(nil), s.students...), nil
}

func (s *fakeStore) ListAttendance(_ context.Context, _, _ int) ([]model.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AttendanceRecord(nil), s.records...), nil
}

func (s *fakeStore) InsertAttendance(_ context.Context, rec model.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeStore) ListAttendanceByDay(_ context.Context, day string) ([]model.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res []model.AttendanceRecord
	for _, rec := range s.records {
		if rec.Day() == day {
			res = append(res, rec)
		}
	}
	return res, nil
}

func (s *fakeStore) InsertRecording(_ context.Context, rec model.CourseRecording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordings = append(s.recordings, rec)
	return nil
}

func (s *fakeStore) recordingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recordings)
}

type fakeFace struct {
	mu         sync.Mutex
	buildCalls int
	noPhotos   bool
	matches    []faceclient.Match
}

func (f *fakeFace) BuildModel(_ context.Context, students []model.Student) (*faceclient.Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buildCalls++
	if f.noPhotos {
		return nil, nil
	}
	return &faceclient.Model{ID: "m1", Size: len(students)}, nil
}

func (f *fakeFace) DetectAndMatch(_ context.Context, _ []byte, _ *faceclient.Model) ([]faceclient.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.matches, nil
}

func (f *fakeFace) builds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buildCalls
}

type fakeStream struct {
	chunks chan []byte
	mu     sync.Mutex
	closed bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{chunks: make(chan []byte)}
}

func (s *fakeStream) Capture(context.Context) ([]byte, error) { return []byte("frame"), nil }
func (s *fakeStream) Chunks() <-chan []byte                   { return s.chunks }

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.chunks)
	}
	return nil
}

type fakeDevice struct {
	stream  *fakeStream
	openErr error
}

func (d *fakeDevice) Open(context.Context) (camera.Stream, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	d.stream = newFakeStream()
	return d.stream, nil
}

func newTestEngine(store *fakeStore, face *fakeFace, dev *fakeDevice) *Engine {
	registry := attendance.NewRegistry(store)
	cam := camera.NewManager(dev)
	rec := recording.NewSession(store)
	// long interval keeps the scheduler quiet during tests
	return New(store, face, registry, cam, rec, time.Hour)
}

func navigate(t *testing.T, e *Engine, page command.Page) {
	t.Helper()
	_, _ = e.Execute(context.Background(), command.Command{
		Action:  command.ActionNavigate,
		Payload: &command.Payload{Page: page},
	})
}

func TestExecuteCameraGuardedOffSurveillance(t *testing.T) {
	store := &fakeStore{}
	e := newTestEngine(store, &fakeFace{}, &fakeDevice{})

	st, feedback := e.Execute(context.Background(), command.Command{
		Action:  command.ActionCamera,
		Payload: &command.Payload{Operation: command.OpStart},
	})
	if feedback != command.MsgGoToSurveillance {
		t.Fatalf("feedback = %q, want redirect to surveillance", feedback)
	}
	if e.CameraActive() {
		t.Fatal("camera started despite guard")
	}
	if st.CameraIntent.Pending {
		t.Fatal("camera intent armed despite guard")
	}
}

func TestExecuteStartCamera(t *testing.T) {
	store := &fakeStore{students: []model.Student{
		{ID: "AB123", LastName: "Dupont", FirstName: "Jean", Level: model.LevelLicence1, Photo: "data:image/jpeg;base64,xxx"},
	}}
	face := &fakeFace{}
	e := newTestEngine(store, face, &fakeDevice{})
	defer e.Shutdown()

	navigate(t, e, command.PageSurveillance)
	st, feedback := e.Execute(context.Background(), command.Command{
		Action:   command.ActionCamera,
		Payload:  &command.Payload{Operation: command.OpStart},
		Feedback: "Caméra activée.",
	})
	if feedback != "Caméra activée." {
		t.Fatalf("feedback = %q", feedback)
	}
	if !e.CameraActive() {
		t.Fatal("camera not active after start")
	}
	if !e.ModelReady() {
		t.Fatal("face model not built on camera start")
	}
	if face.builds() != 1 {
		t.Fatalf("BuildModel called %d times, want 1", face.builds())
	}
	if st.CameraIntent.Pending {
		t.Fatal("camera intent not consumed")
	}

	// a second start reuses the live session and the cached model
	e.Execute(context.Background(), command.Command{
		Action:  command.ActionCamera,
		Payload: &command.Payload{Operation: command.OpStart},
	})
	if face.builds() != 1 {
		t.Fatalf("BuildModel called %d times after restart, want 1", face.builds())
	}
}

func TestExecuteStartCameraDeviceDenied(t *testing.T) {
	dev := &fakeDevice{openErr: &camera.Error{Reason: camera.ReasonPermissionDenied, Err: errors.New("denied")}}
	e := newTestEngine(&fakeStore{}, &fakeFace{}, dev)

	navigate(t, e, command.PageSurveillance)
	_, feedback := e.Execute(context.Background(), command.Command{
		Action:  command.ActionCamera,
		Payload: &command.Payload{Operation: command.OpStart},
	})
	if feedback != msgCameraDenied {
		t.Fatalf("feedback = %q, want permission message", feedback)
	}
	if e.CameraActive() {
		t.Fatal("camera active after failed start")
	}
}

func TestExecuteStartCameraWithoutPhotos(t *testing.T) {
	e := newTestEngine(&fakeStore{}, &fakeFace{noPhotos: true}, &fakeDevice{})
	defer e.Shutdown()

	navigate(t, e, command.PageSurveillance)
	e.Execute(context.Background(), command.Command{
		Action:  command.ActionCamera,
		Payload: &command.Payload{Operation: command.OpStart},
	})
	if !e.CameraActive() {
		t.Fatal("camera should run even without a face model")
	}
	if e.ModelReady() {
		t.Fatal("model reported ready with no enrolled photos")
	}
}

func TestExecuteRecordLifecycle(t *testing.T) {
	store := &fakeStore{}
	dev := &fakeDevice{}
	e := newTestEngine(store, &fakeFace{}, dev)
	defer e.Shutdown()

	navigate(t, e, command.PageSurveillance)
	e.Execute(context.Background(), command.Command{
		Action:  command.ActionCamera,
		Payload: &command.Payload{Operation: command.OpStart},
	})
	e.Execute(context.Background(), command.Command{
		Action:  command.ActionRecord,
		Payload: &command.Payload{Operation: command.OpStart},
	})
	if !e.RecordingActive() {
		t.Fatal("recording not active after start")
	}

	dev.stream.chunks <- []byte("ab")
	dev.stream.chunks <- []byte("cd")
	dev.stream.chunks <- []byte("tail")

	e.Execute(context.Background(), command.Command{
		Action:  command.ActionRecord,
		Payload: &command.Payload{Operation: command.OpStop},
	})
	if e.RecordingActive() {
		t.Fatal("recording still active after stop")
	}
	if store.recordingCount() != 1 {
		t.Fatalf("recordings = %d, want 1", store.recordingCount())
	}
	if !strings.HasPrefix(string(store.recordings[0].Video), "abcd") {
		t.Fatalf("video = %q, want buffered chunks", store.recordings[0].Video)
	}
}

func TestExecuteStopCameraFinalizesRecording(t *testing.T) {
	store := &fakeStore{}
	dev := &fakeDevice{}
	e := newTestEngine(store, &fakeFace{}, dev)

	navigate(t, e, command.PageSurveillance)
	e.Execute(context.Background(), command.Command{
		Action:  command.ActionCamera,
		Payload: &command.Payload{Operation: command.OpStart},
	})
	e.Execute(context.Background(), command.Command{
		Action:  command.ActionRecord,
		Payload: &command.Payload{Operation: command.OpStart},
	})

	e.Execute(context.Background(), command.Command{
		Action:  command.ActionCamera,
		Payload: &command.Payload{Operation: command.OpStop},
	})
	if e.CameraActive() {
		t.Fatal("camera still active after stop")
	}
	if e.RecordingActive() {
		t.Fatal("recording survived camera stop")
	}
	if store.recordingCount() != 1 {
		t.Fatalf("recordings = %d, want exactly one finalized", store.recordingCount())
	}
}

func TestExecuteExportRendersSheet(t *testing.T) {
	store := &fakeStore{
		students: []model.Student{{ID: "AB123", LastName: "Dupont", FirstName: "Jean", Level: model.LevelLicence1}},
		records: []model.AttendanceRecord{
			{ID: "r1", StudentID: "AB123", Timestamp: time.Date(2025, 3, 10, 8, 30, 0, 0, time.UTC)},
		},
	}
	e := newTestEngine(store, &fakeFace{}, &fakeDevice{})

	navigate(t, e, command.PageAdmin)
	st, _ := e.Execute(context.Background(), command.Command{Action: command.ActionExport})
	if st.ExportPending {
		t.Fatal("export intent not consumed")
	}
	if st.AdminView != command.ViewAttendance {
		t.Fatalf("admin view = %q, want attendance", st.AdminView)
	}
	sheet, at := e.LastExport()
	if len(sheet) == 0 {
		t.Fatal("no sheet rendered")
	}
	if !strings.Contains(string(sheet), "Dupont") {
		t.Fatalf("sheet missing student row:\n%s", sheet)
	}
	if at.IsZero() {
		t.Fatal("export timestamp not set")
	}
}

func TestInvalidateModelWhileActive(t *testing.T) {
	store := &fakeStore{students: []model.Student{{ID: "AB123", Photo: "data:image/jpeg;base64,xxx"}}}
	face := &fakeFace{}
	e := newTestEngine(store, face, &fakeDevice{})
	defer e.Shutdown()

	navigate(t, e, command.PageSurveillance)
	e.Execute(context.Background(), command.Command{
		Action:  command.ActionCamera,
		Payload: &command.Payload{Operation: command.OpStart},
	})
	if face.builds() != 1 {
		t.Fatalf("builds = %d, want 1", face.builds())
	}

	e.InvalidateModel(context.Background())
	if face.builds() != 2 {
		t.Fatalf("builds = %d after invalidation, want 2", face.builds())
	}
	if !e.ModelReady() {
		t.Fatal("model not rebuilt while camera active")
	}
	if !e.CameraActive() {
		t.Fatal("camera dropped by model invalidation")
	}
}

func TestInvalidateModelWhileIdle(t *testing.T) {
	face := &fakeFace{}
	e := newTestEngine(&fakeStore{}, face, &fakeDevice{})

	e.InvalidateModel(context.Background())
	if face.builds() != 0 {
		t.Fatalf("builds = %d while idle, want 0 (lazy rebuild)", face.builds())
	}
}
