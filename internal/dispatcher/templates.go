// internal/dispatcher/templates.go
package dispatcher

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"jobboard-notifier/internal/models"
)

const (
	excerptLength         = 200
	relatedJobsSubject    = "Jobs you might be interested in"
	jobAlertFailedTitle   = "Job Alert Failed"
	relatedJobFailedTitle = "Related Jobs Failed"
)

const jobAlertTemplate = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #2563eb;">New Job Alert: {{.AlertName}}</h2>
  <p>Hi {{.Name}}!</p>
  <p>We found {{.Count}} new job{{if ne .Count 1}}s{{end}} matching your alert criteria:</p>
  {{range .Jobs}}{{template "job" .}}{{end}}
  <p style="margin-top: 30px; color: #666; font-size: 14px;">
    You're receiving this because you have an active job alert.
    <a href="{{.AlertsURL}}">Manage your alerts</a>
  </p>
</div>`

const relatedJobsTemplate = `<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #059669;">Jobs You Might Like</h2>
  <p>Hi {{.Name}}!</p>
  <p>Based on your recent searches, we found some jobs that might interest you:</p>
  {{range .Jobs}}{{template "job" .}}{{end}}
  <p style="margin-top: 30px; color: #666; font-size: 14px;">
    These recommendations are based on your search history.
    <a href="{{.AlertsURL}}">Create job alerts</a> to get notified about specific jobs.
  </p>
</div>`

const jobCardTemplate = `{{define "job"}}
  <div style="border: 1px solid #e5e7eb; border-radius: 8px; padding: 16px; margin: 16px 0;">
    <h3 style="margin: 0 0 8px 0; color: #1f2937;">{{.Title}}</h3>
    <p style="margin: 4px 0; color: #6b7280;"><strong>{{.Company}}</strong></p>
    <p style="margin: 4px 0; color: #6b7280;">{{.City}}, {{.Country}}</p>
    <p style="margin: 4px 0; color: #6b7280;">{{.Preference}}</p>
    {{if .Excerpt}}<p style="margin: 8px 0 0 0; color: #374151;">{{.Excerpt}}</p>{{end}}
    <a href="{{.URL}}" style="display: inline-block; margin-top: 12px; padding: 8px 16px; background-color: #2563eb; color: white; text-decoration: none; border-radius: 4px;">View Job</a>
  </div>
{{end}}`

type jobView struct {
	Title      string
	Company    string
	City       string
	Country    string
	Preference string
	Excerpt    string
	URL        string
}

type emailView struct {
	Name      string
	AlertName string
	Count     int
	Jobs      []jobView
	AlertsURL string
}

// Renderer produces subjects and HTML bodies for notification batches.
type Renderer struct {
	frontendURL string
	jobAlert    *template.Template
	related     *template.Template
}

func NewRenderer(frontendURL string) *Renderer {
	return &Renderer{
		frontendURL: strings.TrimRight(frontendURL, "/"),
		jobAlert:    template.Must(template.Must(template.New("job_alert").Parse(jobCardTemplate)).Parse(jobAlertTemplate)),
		related:     template.Must(template.Must(template.New("related_job").Parse(jobCardTemplate)).Parse(relatedJobsTemplate)),
	}
}

// Subject returns the subject line for a batch.
func (r *Renderer) Subject(n Notification) string {
	if n.Type == models.NotificationTypeRelatedJob {
		return relatedJobsSubject
	}
	plural := ""
	if len(n.Jobs) != 1 {
		plural = "s"
	}
	name := ""
	if n.Alert != nil {
		name = n.Alert.AlertName
	}
	return fmt.Sprintf("%d new job%s matching \"%s\"", len(n.Jobs), plural, name)
}

func (r *Renderer) Body(n Notification) (string, error) {
	view := emailView{
		Name:      n.Recipient.Name,
		Count:     len(n.Jobs),
		AlertsURL: r.frontendURL + "/profile/alerts",
	}
	if n.Alert != nil {
		view.AlertName = n.Alert.AlertName
	}
	for _, j := range n.Jobs {
		view.Jobs = append(view.Jobs, jobView{
			Title:      j.Title,
			Company:    j.Company,
			City:       j.City,
			Country:    j.Country,
			Preference: string(j.Preference),
			Excerpt:    excerpt(j.Description, excerptLength),
			URL:        fmt.Sprintf("%s/jobs/%d", r.frontendURL, j.ID),
		})
	}

	tmpl := r.jobAlert
	if n.Type == models.NotificationTypeRelatedJob {
		tmpl = r.related
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render %s body: %w", n.Type, err)
	}
	return buf.String(), nil
}

// excerpt cuts s to at most n runes, marking the cut with "...".
func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n])) + "..."
}

func logMessage(t models.NotificationType, job models.Job) string {
	if t == models.NotificationTypeRelatedJob {
		return "Related job recommendation: " + job.Title
	}
	return "Job alert notification for " + job.Title
}

func failedTitle(t models.NotificationType) string {
	if t == models.NotificationTypeRelatedJob {
		return relatedJobFailedTitle
	}
	return jobAlertFailedTitle
}

func failedMessage(t models.NotificationType) string {
	if t == models.NotificationTypeRelatedJob {
		return "Failed to send related job notification"
	}
	return "Failed to send job alert notification"
}
