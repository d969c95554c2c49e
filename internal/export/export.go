package export

import (
	"github.com/jedib0t/go-pretty/v6/table"

	"scanstudents/internal/model"
)

// Format selects the rendering of the attendance sheet.
type Format string

const (
	FormatText Format = "text"
	FormatCSV  Format = "csv"
)

// AttendanceSheet renders the attendance list as a printable table. Students
// are resolved by matricule; a record whose student has since been deleted
// is rendered with its raw matricule and a placeholder name.
func AttendanceSheet(records []model.AttendanceRecord, students []model.Student, format Format) []byte {
	byID := make(map[string]model.Student, len(students))
	for _, s := range students {
		byID[s.ID] = s
	}

	t := table.NewWriter()
	t.SetTitle("Liste de présence")
	t.AppendHeader(table.Row{"Matricule", "Nom", "Prénom", "Niveau", "Horodatage"})

	for _, r := range records {
		s, ok := byID[r.StudentID]
		if !ok {
			t.AppendRow(table.Row{r.StudentID, "(étudiant supprimé)", "", "", r.Timestamp.Format("2006-01-02 15:04:05")})
			continue
		}
		t.AppendRow(table.Row{s.ID, s.LastName, s.FirstName, string(s.Level), r.Timestamp.Format("2006-01-02 15:04:05")})
	}

	if format == FormatCSV {
		return []byte(t.RenderCSV())
	}
	return []byte(t.Render())
}
