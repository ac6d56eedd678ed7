package prompt

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/lioth/strataforge/internal/config"
	"github.com/lioth/strataforge/pkg/models"
)

// Library holds the variable pools and the parsed prompt template for every
// format. Parsing happens once at construction so malformed template
// overrides fail at startup, not mid-run.
type Library struct {
	pools     config.PoolsConfig
	templates map[string]*template.Template
}

// Template directives that allow code-like behavior are rejected outright;
// prompt templates are data, not programs.
var forbiddenDirectives = []string{"{{call", "{{define", "{{template", "{{block"}

// NewLibrary validates and parses all configured templates.
func NewLibrary(cfg *config.Config) (*Library, error) {
	lib := &Library{
		pools:     cfg.Pools,
		templates: make(map[string]*template.Template, len(cfg.Templates)),
	}
	for format, text := range cfg.Templates {
		for _, directive := range forbiddenDirectives {
			if strings.Contains(text, directive) {
				return nil, &config.ConfigError{
					Field:  "templates." + format,
					Reason: fmt.Sprintf("contains forbidden directive %s", directive),
				}
			}
		}
		t, err := template.New(format).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, &config.ConfigError{
				Field:  "templates." + format,
				Reason: fmt.Sprintf("failed to parse: %v", err),
			}
		}
		lib.templates[format] = t
	}
	return lib, nil
}

// Render produces the complete prompt for a task from its format template
// and sampled variables. The trailing uniqueness line carries the slot index
// within the cell, mirroring how each example in a batch was asked to differ
// from the previous ones.
func (l *Library) Render(task models.GenerationTask) (string, error) {
	tmpl, ok := l.templates[task.Key.Format]
	if !ok {
		return "", fmt.Errorf("no template for format %q", task.Key.Format)
	}

	var secondary1, secondary2 string
	if len(task.Vars.SecondaryCategories) > 0 {
		secondary1 = l.pools.Categories[task.Vars.SecondaryCategories[0]]
	}
	if len(task.Vars.SecondaryCategories) > 1 {
		secondary2 = l.pools.Categories[task.Vars.SecondaryCategories[1]]
	}

	data := map[string]any{
		"Category":       task.Key.Category,
		"CategoryDesc":   l.pools.Categories[task.Key.Category],
		"Subject":        task.Vars.Subject,
		"Domain":         task.Vars.Domain,
		"Trigger":        task.Vars.Trigger,
		"EmotionalState": task.Vars.EmotionalState,
		"LanguageStyle":  task.Vars.LanguageStyle,
		"UniqueAngle":    task.Vars.UniqueAngle,
		"Perspective":    task.Perspective,
		"Complexity":     task.Complexity,
		"ComplexityDesc": l.pools.Complexity[task.Complexity],
		"Secondary1Desc": secondary1,
		"Secondary2Desc": secondary2,
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s template: %w", task.Key.Format, err)
	}

	fmt.Fprintf(&buf, "\n\nExample #%d. Make this distinctly different from previous examples.", task.Key.Index+1)
	return buf.String(), nil
}
