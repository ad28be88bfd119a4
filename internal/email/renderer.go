// Package email renders the reminder messages and provides the small
// PII-redaction helper used wherever parent addresses reach a log line.
// Rendering is a pure "data in, strings out" operation; transport lives in
// internal/external.
package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	texttemplate "text/template"

	"seasonmail/internal/types"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// RenderedEmail holds pre-rendered email content ready for transmission.
type RenderedEmail struct {
	Subject  string
	BodyHTML string
	BodyText string
}

// ReminderData is the input to season reminder rendering.
type ReminderData struct {
	ParentName  string
	TeamName    string
	Occurrences []types.Occurrence
}

// templateData is the struct passed into the Go templates.
type templateData struct {
	ParentName   string
	TeamName     string
	WhenEN       string
	WhenES       string
	StartLabel   string
	StartLabelES string
	CoachName    string
	Occurrences  []types.Occurrence
}

// Renderer renders the season reminder templates embedded in the binary.
// Both campaigns share one template pair; the wording that differs ("starts
// tomorrow" vs "starts in one week") is data, not structure.
type Renderer struct {
	html *template.Template
	text *texttemplate.Template
}

// NewRenderer parses the embedded templates. Returns an error if any
// template fails to parse, which makes a broken template a startup failure
// rather than a mid-batch one.
func NewRenderer() (*Renderer, error) {
	htmlTmpl, err := template.ParseFS(templateFS, "templates/season_reminder.html")
	if err != nil {
		return nil, fmt.Errorf("parsing html template: %w", err)
	}
	textTmpl, err := texttemplate.ParseFS(templateFS, "templates/season_reminder.txt")
	if err != nil {
		return nil, fmt.Errorf("parsing text template: %w", err)
	}
	return &Renderer{html: htmlTmpl, text: textTmpl}, nil
}

// RenderSeasonReminder renders the subject, HTML body, and plaintext body
// for the given campaign. The first occurrence supplies the start-date
// labels; an empty occurrence list is tolerated (the schedule table is
// simply omitted) so a rendering quirk never blocks a send.
func (r *Renderer) RenderSeasonReminder(emailType types.EmailType, data ReminderData) (*RenderedEmail, error) {
	td := templateData{
		ParentName:  data.ParentName,
		TeamName:    data.TeamName,
		Occurrences: data.Occurrences,
	}

	switch emailType {
	case types.EmailSeasonWeek:
		td.WhenEN = "in one week"
		td.WhenES = "en una semana"
	default:
		td.WhenEN = "tomorrow"
		td.WhenES = "mañana"
	}

	if len(data.Occurrences) > 0 {
		first := data.Occurrences[0]
		td.StartLabel = first.DateLabel
		td.StartLabelES = first.DateLabelES
		td.CoachName = first.CoachName
	}

	var htmlBuf bytes.Buffer
	if err := r.html.Execute(&htmlBuf, td); err != nil {
		return nil, fmt.Errorf("rendering html body: %w", err)
	}
	var textBuf bytes.Buffer
	if err := r.text.Execute(&textBuf, td); err != nil {
		return nil, fmt.Errorf("rendering text body: %w", err)
	}

	subject := fmt.Sprintf("Your season starts %s - %s", td.WhenEN, data.TeamName)
	if emailType == types.EmailSeasonStart {
		subject = fmt.Sprintf("Your season starts tomorrow - %s", data.TeamName)
	}

	return &RenderedEmail{
		Subject:  subject,
		BodyHTML: htmlBuf.String(),
		BodyText: textBuf.String(),
	}, nil
}
