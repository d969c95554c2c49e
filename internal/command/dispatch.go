package command

// Feedback returned when a command's precondition is violated. The messages
// match the spoken-assistant locale of the product (French).
const (
	MsgGoToSurveillance = "Veuillez d'abord aller sur la page de surveillance."
	MsgGoToStudents     = "Veuillez d'abord aller sur la page de gestion des étudiants."
	MsgGoToAdmin        = "Veuillez d'abord aller sur la page d'administration."
	MsgGoToAttendance   = "Veuillez d'abord aller à la liste de présence pour exporter."
)

// Dispatch applies cmd to st and returns the new state plus the feedback to
// surface. It is a pure function: guarded transitions only, no side effects.
// When a precondition fails the state is returned unchanged and the redirect
// message overrides the command's own feedback.
func Dispatch(st State, cmd Command) (State, string) {
	p := cmd.Payload
	if p == nil {
		p = &Payload{}
	}

	switch cmd.Action {
	case ActionNavigate:
		if p.Page != "" {
			st.Page = p.Page
		}

	case ActionView:
		if p.View != "" {
			st.Page = PageAdmin
			st.AdminView = p.View
		}

	case ActionCamera:
		if st.Page != PageSurveillance {
			return st, MsgGoToSurveillance
		}
		if p.Operation != "" {
			st.CameraIntent.Set(p.Operation)
		}

	case ActionRecord:
		if st.Page != PageSurveillance {
			return st, MsgGoToSurveillance
		}
		if p.Operation != "" {
			st.RecordingIntent.Set(p.Operation)
		}

	case ActionSearch:
		if st.Page != PageAdmin {
			return st, MsgGoToStudents
		}
		st.AdminView = ViewStudents
		if p.SearchTerm != "" {
			st.SearchTerm = p.SearchTerm
		}

	case ActionFilter:
		if st.Page != PageAdmin {
			return st, MsgGoToStudents
		}
		st.AdminView = ViewStudents
		if p.Level != "" {
			st.LevelFilter = p.Level
		}

	case ActionAddStudent:
		if st.Page != PageAdmin {
			return st, MsgGoToAdmin
		}
		st.AdminView = ViewStudents
		st.AddStudentModalOpen = true

	case ActionExport:
		if st.Page != PageAdmin {
			return st, MsgGoToAttendance
		}
		st.AdminView = ViewAttendance
		st.ExportPending = true

	case ActionUnknown:
		// no state change
	}

	return st, cmd.Feedback
}
