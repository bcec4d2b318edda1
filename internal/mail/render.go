// Package mail renders the pipeline's outbound emails from embedded Go
// templates: the periodic clinic activity report and the appointment
// reminder. Rendering happens in-process; providers transmit the content
// as-is with no server-side templating.
package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	texttemplate "text/template"
	"time"

	"clinicpulse/internal/types"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// Rendered holds pre-rendered email content ready for transmission.
type Rendered struct {
	Subject  string
	BodyHTML string
	BodyText string
}

// reportData is the struct passed into the report templates.
type reportData struct {
	OrganizationName string
	PeriodDays       int
	Stats            types.ReportPeriodStats
}

// reminderData is the struct passed into the reminder templates.
type reminderData struct {
	PatientName     string
	AppointmentTime string
}

// Renderer parses the embedded templates once and renders emails from them.
type Renderer struct {
	reportHTML   *template.Template
	reportText   *texttemplate.Template
	reminderHTML *template.Template
	reminderText *texttemplate.Template
}

// NewRenderer parses the embedded templates. Returns an error if any
// template fails to parse; callers should treat that as a startup failure.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{}

	var err error
	if r.reportHTML, err = template.ParseFS(templateFS, "templates/report.html"); err != nil {
		return nil, fmt.Errorf("mail: parsing report.html: %w", err)
	}
	if r.reportText, err = texttemplate.ParseFS(templateFS, "templates/report.txt"); err != nil {
		return nil, fmt.Errorf("mail: parsing report.txt: %w", err)
	}
	if r.reminderHTML, err = template.ParseFS(templateFS, "templates/reminder.html"); err != nil {
		return nil, fmt.Errorf("mail: parsing reminder.html: %w", err)
	}
	if r.reminderText, err = texttemplate.ParseFS(templateFS, "templates/reminder.txt"); err != nil {
		return nil, fmt.Errorf("mail: parsing reminder.txt: %w", err)
	}

	return r, nil
}

// RenderReport renders the periodic activity report for an organization.
func (r *Renderer) RenderReport(orgName string, stats types.ReportPeriodStats) (Rendered, error) {
	data := reportData{
		OrganizationName: orgName,
		PeriodDays:       stats.PeriodDays,
		Stats:            stats,
	}

	var htmlBuf, textBuf bytes.Buffer
	if err := r.reportHTML.Execute(&htmlBuf, data); err != nil {
		return Rendered{}, fmt.Errorf("mail: rendering report html: %w", err)
	}
	if err := r.reportText.Execute(&textBuf, data); err != nil {
		return Rendered{}, fmt.Errorf("mail: rendering report text: %w", err)
	}

	return Rendered{
		Subject:  fmt.Sprintf("Clinic Activity Report: %s (last %d days)", orgName, stats.PeriodDays),
		BodyHTML: htmlBuf.String(),
		BodyText: textBuf.String(),
	}, nil
}

// RenderReminder renders an appointment reminder for a patient.
func (r *Renderer) RenderReminder(c types.ReminderCandidate) (Rendered, error) {
	data := reminderData{
		PatientName:     c.PatientName,
		AppointmentTime: c.StartsAt.Format(time.RFC1123),
	}

	var htmlBuf, textBuf bytes.Buffer
	if err := r.reminderHTML.Execute(&htmlBuf, data); err != nil {
		return Rendered{}, fmt.Errorf("mail: rendering reminder html: %w", err)
	}
	if err := r.reminderText.Execute(&textBuf, data); err != nil {
		return Rendered{}, fmt.Errorf("mail: rendering reminder text: %w", err)
	}

	return Rendered{
		Subject:  fmt.Sprintf("Appointment reminder: %s", data.AppointmentTime),
		BodyHTML: htmlBuf.String(),
		BodyText: textBuf.String(),
	}, nil
}
