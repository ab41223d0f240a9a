package notification

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderAssignedSubject(t *testing.T) {
	tr := newTemplateRenderer()

	out := tr.render(assignedSubjectTmpl, map[string]interface{}{
		"lead_zip": "33101",
		"org_name": "Acme Roofing",
	}, "fallback")
	assert.Equal(t, "New lead in 33101 for Acme Roofing", out)
}

func TestRenderDefaultsApply(t *testing.T) {
	tr := newTemplateRenderer()

	out := tr.render(assignedSubjectTmpl, map[string]interface{}{
		"lead_zip": "",
		"org_name": "",
	}, "fallback")
	assert.Equal(t, "New lead for your team", out)
}

func TestTitlecaseFilter(t *testing.T) {
	tr := newTemplateRenderer()

	out := tr.render(`{{ v | titlecase }}`, map[string]interface{}{"v": "storm-roofing"}, "")
	assert.Equal(t, "Storm Roofing", out)
}

func TestRenderBadTemplateFallsBack(t *testing.T) {
	tr := newTemplateRenderer()

	out := tr.render(`{% broken`, map[string]interface{}{}, "plain body")
	assert.Equal(t, "plain body", out)
}

func TestAssignedSMSStaysShort(t *testing.T) {
	tr := newTemplateRenderer()

	out := tr.render(assignedSMSTmpl, map[string]interface{}{
		"funnel_id":     "roofing",
		"lead_zip":      "33101",
		"org_name":      "Acme",
		"dashboard_url": "",
	}, "")
	assert.True(t, strings.HasPrefix(out, "IGNITE:"))
	assert.Less(t, len(out), 160, "single SMS segment")
}
