package mailer

import "html/template"

type Template string

const (
	Welcome               Template = "welcome"
	SubscriptionActivated Template = "subscription_activated"
	SubscriptionRenewed   Template = "subscription_renewed"
	ClassCompleted        Template = "class_completed"
	ClassReminder         Template = "class_reminder"
)

type tpl struct {
	subject string
	body    *template.Template
}

func mustParse(name, subject, body string) tpl {
	return tpl{subject: subject, body: template.Must(template.New(name).Parse(body))}
}

var templates = map[Template]tpl{
	Welcome: mustParse("welcome", "Welcome aboard",
		`<p>Hi {{.Name}},</p><p>your account is ready. Pick a package to book your first class.</p>`),
	SubscriptionActivated: mustParse("activated", "Your subscription is active",
		`<p>Hi {{.Name}},</p><p>your <b>{{.Package}}</b> subscription is active until {{.EndDate}}.</p>`),
	SubscriptionRenewed: mustParse("renewed", "Subscription renewed",
		`<p>Hi {{.Name}},</p><p>your subscription was renewed: {{.StartDate}} to {{.EndDate}}.</p>`),
	ClassCompleted: mustParse("completed", "Class summary",
		`<p>Hi {{.Name}},</p><p>your class with {{.Teacher}} lasted {{.Minutes}} min.</p>{{if .Notes}}<p>Notes: {{.Notes}}</p>{{end}}`),
	ClassReminder: mustParse("reminder", "Upcoming class",
		`<p>Hi {{.Name}},</p><p>reminder: class with {{.Teacher}} at {{.StartTime}}.</p>`),
}

// Data for every template. Unused fields are left empty.
type Data struct {
	Name      string
	Package   string
	Teacher   string
	Minutes   int
	Notes     string
	StartDate string
	EndDate   string
	StartTime string
}
