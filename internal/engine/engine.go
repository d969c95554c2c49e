package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"scanstudents/internal/attendance"
	"scanstudents/internal/camera"
	"scanstudents/internal/command"
	"scanstudents/internal/detection"
	"scanstudents/internal/export"
	"scanstudents/internal/faceclient"
	"scanstudents/internal/metrics"
	"scanstudents/internal/model"
	"scanstudents/internal/recording"
)

// Device failure feedback, in the assistant locale.
const (
	msgCameraDenied      = "Accès à la caméra ou au micro refusé. Veuillez autoriser les permissions."
	msgCameraUnavailable = "Caméra indisponible. Vérifiez le branchement de la caméra."
	msgCameraUnsupported = "Capture non supportée par cet environnement."
)

// FaceService is the slice of the face client the engine needs.
type FaceService interface {
	BuildModel(ctx context.Context, students []model.Student) (*faceclient.Model, error)
	DetectAndMatch(ctx context.Context, frame []byte, m *faceclient.Model) ([]faceclient.Match, error)
}

// Store is the slice of the persistence layer the engine needs.
type Store interface {
	ListStudents(ctx context.Context, search string, level model.Level) ([]model.Student, error)
	ListAttendance(ctx context.Context, limit, offset int) ([]model.AttendanceRecord, error)
}

// Engine owns the application state and drives the camera, scheduler and
// recorder from dispatched commands. It is the single mutator of the state;
// everything else receives snapshots.
type Engine struct {
	mu        sync.Mutex
	state     command.State
	store     Store
	face      FaceService
	camera    *camera.Manager
	recorder  *recording.Session
	scheduler *detection.Scheduler
	model     *faceclient.Model

	overlayMu    sync.Mutex
	overlay      []faceclient.Match
	lastExport   []byte
	lastExportAt time.Time
}

// New wires the engine. The recorder is registered as the camera's
// finalizer so stopping the camera can never strand a recording.
func New(store Store, face FaceService, registry *attendance.Registry, cam *camera.Manager, rec *recording.Session, interval time.Duration) *Engine {
	e := &Engine{
		state:    command.NewState(),
		store:    store,
		face:     face,
		camera:   cam,
		recorder: rec,
	}
	e.scheduler = detection.NewScheduler(interval, face, registry, e.setOverlay)
	cam.SetFinalizer(rec)
	return e
}

// Execute dispatches one structured command against the current state,
// consumes any intents it armed, and returns the resulting state snapshot
// plus the feedback to surface.
func (e *Engine) Execute(ctx context.Context, cmd command.Command) (command.State, string) {
	metrics.CommandsTotal.WithLabelValues(string(cmd.Action)).Inc()

	e.mu.Lock()
	defer e.mu.Unlock()

	next, feedback := command.Dispatch(e.state, cmd)
	e.state = next
	if override := e.consumeIntents(ctx); override != "" {
		feedback = override
	}
	return e.state, feedback
}

// consumeIntents reacts to pending one-shot intents. Runs under e.mu. The
// returned string, when non-empty, replaces the command feedback (device
// failures are worth telling the operator about immediately).
func (e *Engine) consumeIntents(ctx context.Context) string {
	var override string

	if op, ok := e.state.CameraIntent.Take(); ok {
		switch op {
		case command.OpStart:
			override = e.startCamera(ctx)
		case command.OpStop:
			e.stopCamera()
		}
	}

	if op, ok := e.state.RecordingIntent.Take(); ok {
		switch op {
		case command.OpStart:
			// a start without an active camera is a guarded no-op
			e.recorder.Start(e.camera.Stream())
		case command.OpStop:
			if err := e.recorder.Stop(ctx); err != nil {
				log.Printf("engine: recording finalize failed: %v", err)
			}
		}
	}

	if e.state.ExportPending {
		e.state.ExportPending = false
		e.renderExport(ctx)
	}

	return override
}

func (e *Engine) startCamera(ctx context.Context) string {
	if e.camera.Active() {
		return ""
	}
	if e.model == nil {
		e.buildModel(ctx)
	}
	stream, err := e.camera.Start(ctx)
	if err != nil {
		var camErr *camera.Error
		if errors.As(err, &camErr) {
			switch camErr.Reason {
			case camera.ReasonPermissionDenied:
				return msgCameraDenied
			case camera.ReasonUnsupported:
				return msgCameraUnsupported
			}
		}
		log.Printf("engine: camera start failed: %v", err)
		return msgCameraUnavailable
	}
	// without a model the camera still runs; recognition stays disabled
	// until a usable photo shows up
	e.scheduler.Start(stream, e.model)
	return ""
}

func (e *Engine) stopCamera() {
	e.scheduler.Stop()
	e.camera.Stop()
	e.setOverlay(nil)
}

func (e *Engine) buildModel(ctx context.Context) {
	students, err := e.store.ListStudents(ctx, "", model.LevelAll)
	if err != nil {
		log.Printf("engine: listing students for model failed: %v", err)
		return
	}
	m, err := e.face.BuildModel(ctx, students)
	if err != nil {
		log.Printf("engine: face model not ready: %v", err)
		return
	}
	if m == nil {
		log.Printf("engine: no usable student photos, recognition disabled")
		return
	}
	e.model = m
}

// InvalidateModel drops the face model, rebuilding it (and bouncing the
// scheduler) when a camera session is live. Call it whenever a student
// photo is added, changed or removed.
func (e *Engine) InvalidateModel(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.model = nil
	if !e.camera.Active() {
		return
	}
	e.scheduler.Stop()
	e.buildModel(ctx)
	e.scheduler.Start(e.camera.Stream(), e.model)
}

func (e *Engine) renderExport(ctx context.Context) {
	records, err := e.store.ListAttendance(ctx, 1000, 0)
	if err != nil {
		log.Printf("engine: export: listing attendance failed: %v", err)
		return
	}
	students, err := e.store.ListStudents(ctx, "", model.LevelAll)
	if err != nil {
		log.Printf("engine: export: listing students failed: %v", err)
		return
	}
	sheet := export.AttendanceSheet(records, students, export.FormatText)

	e.overlayMu.Lock()
	e.lastExport = sheet
	e.lastExportAt = time.Now().UTC()
	e.overlayMu.Unlock()
}

func (e *Engine) setOverlay(matches []faceclient.Match) {
	e.overlayMu.Lock()
	e.overlay = matches
	e.overlayMu.Unlock()
}

// State returns a snapshot of the application state.
func (e *Engine) State() command.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Overlay returns the matches of the most recent detection cycle.
func (e *Engine) Overlay() []faceclient.Match {
	e.overlayMu.Lock()
	defer e.overlayMu.Unlock()
	return append([]faceclient.Match(nil), e.overlay...)
}

// LastExport returns the most recently rendered attendance sheet.
func (e *Engine) LastExport() ([]byte, time.Time) {
	e.overlayMu.Lock()
	defer e.overlayMu.Unlock()
	return e.lastExport, e.lastExportAt
}

// CameraActive reports whether a camera session is live.
func (e *Engine) CameraActive() bool { return e.camera.Active() }

// RecordingActive reports whether a recording session is in progress.
func (e *Engine) RecordingActive() bool { return e.recorder.Recording() }

// ModelReady reports whether recognition is enabled.
func (e *Engine) ModelReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model != nil
}

// Shutdown stops recognition and releases the camera, finalizing any
// in-progress recording on the way down.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopCamera()
}
