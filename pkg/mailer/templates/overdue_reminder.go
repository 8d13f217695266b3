package templates

import (
	"net/url"
	"strings"

	"key-service/pkg/mailer/registry"
)

type OverdueReminderContext struct {
	SiteName     string
	KeyName      string
	Location     string
	HolderID     string
	DueDate      string
	DaysOverdue  int
	Tier         string
	Attempt      int
	DashboardURL string
}

func OverdueReminderTemplate() (*TypedTemplate[OverdueReminderContext], error) {
	subjectTmpl := `[{{.Tier}}] Key overdue: {{.KeyName}} ({{.DaysOverdue}} days)`

	htmlTmpl := `
<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<title>Key Overdue</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
	<div style="max-width: 600px; margin: 0 auto; padding: 20px;">
		<h2>{{.SiteName}}</h2>
		<p>The key <strong>{{.KeyName}}</strong>{{if .Location}} ({{.Location}}){{end}} was due back on {{.DueDate}}.</p>
		<p>It is now <strong>{{.DaysOverdue}} day{{if ne .DaysOverdue 1}}s{{end}}</strong> overdue (severity: {{.Tier}}).</p>
		<p>Holder: {{.HolderID}}</p>
		{{if gt .Attempt 1}}<p>This is reminder number {{.Attempt}}.</p>{{end}}
		{{if .DashboardURL}}
		<div style="text-align: center; margin: 30px 0;">
			<a href="{{.DashboardURL}}" style="background-color: #c0392b; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">
				Open Dashboard
			</a>
		</div>
		{{end}}
		<p>Please return the key to the security desk as soon as possible.</p>
	</div>
</body>
</html>
`

	textTmpl := `
Key Overdue

The key {{.KeyName}}{{if .Location}} ({{.Location}}){{end}} was due back on {{.DueDate}}.
It is now {{.DaysOverdue}} day(s) overdue (severity: {{.Tier}}).
Holder: {{.HolderID}}
{{if gt .Attempt 1}}
This is reminder number {{.Attempt}}.
{{end}}{{if .DashboardURL}}
{{.DashboardURL}}
{{end}}
Please return the key to the security desk as soon as possible.

{{.SiteName}}
`

	parser := func(context OverdueReminderContext) (OverdueReminderContext, error) {
		context.SiteName = strings.TrimSpace(context.SiteName)
		context.KeyName = strings.TrimSpace(context.KeyName)
		context.DashboardURL = strings.TrimSpace(context.DashboardURL)

		if context.SiteName == "" {
			return context, registry.ErrSiteNameRequired
		}
		if context.KeyName == "" {
			return context, registry.ErrKeyNameRequired
		}
		if context.DaysOverdue <= 0 {
			return context, registry.ErrDaysOverdueInvalid
		}
		if context.Attempt <= 0 {
			context.Attempt = 1
		}

		if context.DashboardURL != "" {
			parsed, err := url.Parse(context.DashboardURL)
			if err != nil || !parsed.IsAbs() {
				return context, registry.ErrDashboardURLAbsolute
			}
			if parsed.Scheme != registry.URLSchemeHTTP && parsed.Scheme != registry.URLSchemeHTTPS {
				return context, registry.ErrDashboardURLScheme
			}
		}

		return context, nil
	}

	return NewTemplate(registry.TemplateNameOverdueReminder, Source{
		Subject: subjectTmpl,
		HTML:    htmlTmpl,
		Text:    textTmpl,
	}, parser)
}
