package notification

import (
	"fmt"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/lead-router/internal/pkg/logger"
)

// Built-in Liquid templates for the notification bodies. These ship with the
// binary; the render data is assembled in service.go.
const (
	assignedSubjectTmpl = `New lead{{ lead_zip | zip_area }} for {{ org_name | default: "your team" }}`

	assignedHTMLTmpl = `<h2>New lead assigned</h2>
<p>Hi {{ recipient_name | default: "there" }},</p>
<p>A new lead in <strong>{{ funnel_id | titlecase }}</strong>{{ lead_zip | zip_area }} was just assigned to {{ org_name | default: "your organization" }}.</p>
<ul>
  <li>Lead: {{ lead_id }}</li>
  <li>Zip: {{ lead_zip | default: "unknown" }}</li>
  <li>Rule: {{ rule_id }}</li>
</ul>
{% if dashboard_url != "" %}<p><a href="{{ dashboard_url }}">Open the lead</a></p>{% endif %}
<p>Respond quickly: fresh leads convert best in the first hour.</p>`

	assignedTextTmpl = `New lead assigned to {{ org_name | default: "your organization" }}.
Lead: {{ lead_id }}
Funnel: {{ funnel_id }}
Zip: {{ lead_zip | default: "unknown" }}
{% if dashboard_url != "" %}Open: {{ dashboard_url }}{% endif %}`

	assignedSMSTmpl = `IGNITE: new {{ funnel_id }} lead{{ lead_zip | zip_area }} assigned to {{ org_name | default: "your team" }}.{% if dashboard_url != "" %} {{ dashboard_url }}{% endif %}`

	unassignedSubjectTmpl = `Unrouted lead in {{ funnel_id | titlecase }} ({{ reason }})`

	unassignedHTMLTmpl = `<h2>Lead could not be routed</h2>
<p>Lead <strong>{{ lead_id }}</strong> in funnel <strong>{{ funnel_id }}</strong> ended unassigned.</p>
<ul>
  <li>Reason: {{ reason }}</li>
  <li>Zip: {{ lead_zip | default: "unknown" }}</li>
</ul>
<p>Check the assignment rules for this funnel.</p>`

	unassignedTextTmpl = `Lead {{ lead_id }} ({{ funnel_id }}) ended unassigned: {{ reason }}. Zip: {{ lead_zip | default: "unknown" }}.`
)

// templateRenderer renders the built-in Liquid templates with a small custom
// filter set. Parsed templates are cached per source string.
type templateRenderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

func newTemplateRenderer() *templateRenderer {
	engine := liquid.NewEngine()

	// {{ first_name | default: "Friend" }}
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		s := fmt.Sprintf("%v", value)
		if s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})

	// {{ funnel_id | titlecase }} — "storm-roofing" → "Storm Roofing"
	engine.RegisterFilter("titlecase", func(s string) string {
		words := strings.FieldsFunc(s, func(r rune) bool {
			return r == ' ' || r == '-' || r == '_'
		})
		for i, w := range words {
			words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
		}
		return strings.Join(words, " ")
	})

	// {{ lead_zip | zip_area }} — " in 33101" or "" when the zip is empty,
	// for splicing into sentences.
	engine.RegisterFilter("zip_area", func(zip string) string {
		if zip == "" {
			return ""
		}
		return " in " + zip
	})

	return &templateRenderer{engine: engine}
}

// render parses (cached) and renders one template. On any error it returns
// the fallback string: a broken template must degrade the body, never block
// the dispatch.
func (tr *templateRenderer) render(source string, data map[string]interface{}, fallback string) string {
	tpl, err := tr.parse(source)
	if err != nil {
		logger.Error("template parse failed, using fallback body", "error", err.Error())
		return fallback
	}
	out, err := tpl.RenderString(data)
	if err != nil {
		logger.Error("template render failed, using fallback body", "error", err.Error())
		return fallback
	}
	return out
}

func (tr *templateRenderer) parse(source string) (*liquid.Template, error) {
	if cached, ok := tr.cache.Load(source); ok {
		return cached.(*liquid.Template), nil
	}
	tpl, err := tr.engine.ParseString(source)
	if err != nil {
		return nil, err
	}
	tr.cache.Store(source, tpl)
	return tpl, nil
}
