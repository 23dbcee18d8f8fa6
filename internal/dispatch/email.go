package dispatch

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/soulxhy/tubewatch/internal/feed"
)

var emailTmpl = template.Must(template.New("notify").Parse(`A new video was published.

Title:     {{.Title}}
Author:    {{.Author}}
Published: {{.PublishedAt}}
Video:     {{.VideoURL}}
{{- if .Description}}

{{.Description}}
{{- end}}

Downloaded to: {{.OutputPath}}
`))

type emailData struct {
	feed.Event
	OutputPath string
}

// ComposeEmail renders the notification subject and body for a dispatched
// event and its downloaded artifact path.
func ComposeEmail(ev feed.Event, outputPath string) (subject, body string, err error) {
	subject = fmt.Sprintf("New video: %s", ev.Title)

	var b strings.Builder
	if err := emailTmpl.Execute(&b, emailData{Event: ev, OutputPath: outputPath}); err != nil {
		return "", "", fmt.Errorf("render email template: %w", err)
	}
	return subject, b.String(), nil
}
