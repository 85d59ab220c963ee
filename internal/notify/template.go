// internal/notify/template.go
package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/roelvdh/marktwatch/pkg/models"
)

// emailTemplate renders the new-listings digest. Listings without an image
// get an initial-letter placeholder block so the layout stays aligned.
var emailTemplate = template.Must(template.New("email").Funcs(template.FuncMap{
	"initial": initialLetter,
}).Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; background: #f5f5f5; padding: 16px;">
  <h2 style="color: #333;">{{ .Count }} new listing{{ if ne .Count 1 }}s{{ end }} for {{ .Target }}</h2>
  {{ range .Items }}
  <div style="background: #fff; border-radius: 8px; padding: 12px; margin-bottom: 12px; display: flex;">
    {{ if .ImageURL }}
    <img src="{{ .ImageURL }}" alt="" style="width: 120px; height: 90px; object-fit: cover; border-radius: 4px; margin-right: 12px;">
    {{ else }}
    <div style="width: 120px; height: 90px; background: #ddd; border-radius: 4px; margin-right: 12px; text-align: center; line-height: 90px; font-size: 36px; color: #888;">{{ initial .Title }}</div>
    {{ end }}
    <div>
      <h3 style="margin: 0 0 4px 0;">{{ if .URL }}<a href="{{ .URL }}" style="color: #1a73e8; text-decoration: none;">{{ .Title }}</a>{{ else }}{{ .Title }}{{ end }}</h3>
      <p style="margin: 0 0 4px 0; font-weight: bold;">{{ .Price }}</p>
      {{ if .Description }}<p style="margin: 0 0 4px 0; color: #555;">{{ .Description }}</p>{{ end }}
      <p style="margin: 0; color: #888; font-size: 12px;">
        {{ if .Posted }}{{ .Posted }}{{ end }}
        {{ if .Location }} &middot; {{ .Location }}{{ end }}
        {{ if .Seller }} &middot; {{ .Seller }}{{ end }}
      </p>
      {{ if .Attributes }}
      <p style="margin: 4px 0 0 0;">
        {{ range .Attributes }}<span style="background: #eee; border-radius: 4px; padding: 2px 6px; margin-right: 4px; font-size: 11px;">{{ . }}</span>{{ end }}
      </p>
      {{ end }}
    </div>
  </div>
  {{ end }}
</body>
</html>`))

type emailData struct {
	Target string
	Count  int
	Items  []models.Listing
}

// RenderHTML builds the HTML body for a new-listings notification.
func RenderHTML(target string, items []models.Listing) (string, error) {
	var buf bytes.Buffer
	err := emailTemplate.Execute(&buf, emailData{
		Target: target,
		Count:  len(items),
		Items:  items,
	})
	if err != nil {
		return "", fmt.Errorf("render email template: %w", err)
	}
	return buf.String(), nil
}

// initialLetter returns the uppercased first rune of s, or "?" when empty.
func initialLetter(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "?"
	}
	return strings.ToUpper(string([]rune(s)[0]))
}
