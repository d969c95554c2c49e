package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommandsTotal counts dispatched voice commands by action.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scanstudents_commands_total",
		Help: "Structured commands dispatched, by action.",
	}, []string{"action"})

	// FramesScanned counts detection cycles that captured a frame.
	FramesScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scanstudents_frames_scanned_total",
		Help: "Frames sampled by the detection scheduler.",
	})

	// FacesMatched counts detected faces by match result (known/unknown).
	FacesMatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scanstudents_faces_matched_total",
		Help: "Detected faces, by match result.",
	}, []string{"result"})

	// AttendanceMarked counts first-of-the-day attendance records created.
	AttendanceMarked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scanstudents_attendance_marked_total",
		Help: "Attendance records created by the dedup registry.",
	})

	// CyclesSkipped counts detection ticks coalesced because the previous
	// cycle was still running, plus cycles abandoned on errors.
	CyclesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scanstudents_detection_cycles_skipped_total",
		Help: "Detection cycles skipped or abandoned, by reason.",
	}, []string{"reason"})
)
