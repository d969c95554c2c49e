package command

import "scanstudents/internal/model"

// Page is a top-level application page.
type Page string

const (
	PageLanding      Page = "landing"
	PageAdmin        Page = "admin"
	PageSurveillance Page = "surveillance"
)

// AdminView is a view within the admin panel.
type AdminView string

const (
	ViewDashboard  AdminView = "dashboard"
	ViewStudents   AdminView = "students"
	ViewAttendance AdminView = "attendance"
	ViewCourses    AdminView = "courses"
)

// Op is a start/stop operation requested for the camera or the recorder.
type Op string

const (
	OpStart Op = "start"
	OpStop  Op = "stop"
)

// Action classifies a structured voice command.
type Action string

const (
	ActionNavigate   Action = "navigate"
	ActionView       Action = "view"
	ActionCamera     Action = "camera"
	ActionRecord     Action = "record"
	ActionSearch     Action = "search"
	ActionFilter     Action = "filter"
	ActionExport     Action = "export"
	ActionAddStudent Action = "add_student"
	ActionUnknown    Action = "unknown"
)

// Payload carries the action-specific data of a command. Fields are only
// interpreted for their corresponding action; stray fields are ignored.
type Payload struct {
	Page       Page        `json:"page,omitempty"`
	View       AdminView   `json:"view,omitempty"`
	Operation  Op          `json:"operation,omitempty"`
	SearchTerm string      `json:"searchTerm,omitempty"`
	Level      model.Level `json:"level,omitempty"`
}

// Command is one structured action produced by the interpreter. Feedback is
// the user-facing confirmation to speak or display.
type Command struct {
	Action   Action   `json:"action"`
	Payload  *Payload `json:"payload,omitempty"`
	Feedback string   `json:"feedback"`
}

// Intent is a one-shot pending request. It is set by the dispatcher and
// consumed exactly once by the component that owns the operation; the
// dispatcher never clears it, so repeated identical commands keep firing.
type Intent struct {
	Op      Op   `json:"op,omitempty"`
	Pending bool `json:"pending"`
}

// Set arms the intent with the given operation.
func (i *Intent) Set(op Op) {
	i.Op = op
	i.Pending = true
}

// Take consumes the pending operation, if any, and clears the intent.
func (i *Intent) Take() (Op, bool) {
	if !i.Pending {
		return "", false
	}
	op := i.Op
	i.Op = ""
	i.Pending = false
	return op, true
}

// State is the process-wide application state the dispatcher operates on.
// One controller owns it; everything else sees snapshots.
type State struct {
	Page                Page        `json:"page"`
	AdminView           AdminView   `json:"admin_view"`
	CameraIntent        Intent      `json:"camera_intent"`
	RecordingIntent     Intent      `json:"recording_intent"`
	SearchTerm          string      `json:"search_term"`
	LevelFilter         model.Level `json:"level_filter"`
	AddStudentModalOpen bool        `json:"add_student_modal_open"`
	ExportPending       bool        `json:"export_pending"`
}

// NewState returns the state a fresh application session starts in.
func NewState() State {
	return State{
		Page:        PageLanding,
		AdminView:   ViewDashboard,
		LevelFilter: model.LevelAll,
	}
}
