// Package prompt manages the templates that turn campaign state into LLM
// prompts. Built-in defaults cover every template; a template directory can
// override any of them with a <name>.tmpl file, and the watcher hot-reloads
// edits without a restart.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"adforge/internal/logging"
)

// Template names. Each maps to a <name>.tmpl override file.
const (
	TemplateBusinessAnalysis = "business_analysis"
	TemplateContentStrategy  = "content_strategy"
	TemplateVisualPrompt     = "visual_prompt"
)

const businessAnalysisDefault = `Analyze the following business for a marketing campaign and respond with a single JSON object.

Company: {{.CompanyName}}
Industry: {{.Industry}}
Description: {{.Description}}
{{- if .Goals}}
Stated goals: {{join .Goals ", "}}
{{- end}}
{{- if .TargetMarket}}
Target market: {{.TargetMarket}}
{{- end}}

Return JSON with exactly these fields:
{
  "company": {"name": "", "industry": "", "description": "", "unique_value": ""},
  "audience": {"primary": "", "segments": [{"name": "", "age_range": "", "interests": [], "pain_points": []}]},
  "brand": {"voice": "", "tone": "", "keywords": [], "palette": [], "avoid": []},
  "competitive": {"competitors": [{"name": "", "positioning": ""}], "differentiators": []},
  "objectives": {"primary": "", "secondary": [], "call_to_action": ""}
}

Every field must be grounded in the business description above. Respond with JSON only, no commentary.`

const contentStrategyDefault = `You are planning a social media campaign. Using the business analysis below, produce a content strategy as a single JSON object.

Business analysis:
{{.AnalysisJSON}}

Return JSON with exactly these fields:
{
  "theme": "",
  "posts": [
    {
      "platform": "",
      "headline": "",
      "copy": "",
      "visual_brief": "",
      "requires_image": false,
      "requires_video": false
    }
  ]
}

Rules:
- Plan {{.PostCount}} posts. Choose each platform from: instagram, linkedin, x, tiktok, facebook, matching the audience segments.
- copy is the complete post text, hashtags included, in the brand voice and tone from the analysis.
- visual_brief describes the image or video to produce, in concrete visual terms.
- Set requires_video true only for posts where motion adds real value.
Respond with JSON only, no commentary.`

const visualPromptDefault = `{{.VisualBrief}}
{{- if .Theme}}
Campaign theme: {{.Theme}}.
{{- end}}
Style: professional marketing {{.Kind}} for {{.Platform}}, suitable for a brand post.`

var defaults = map[string]string{
	TemplateBusinessAnalysis: businessAnalysisDefault,
	TemplateContentStrategy:  contentStrategyDefault,
	TemplateVisualPrompt:     visualPromptDefault,
}

var funcMap = template.FuncMap{
	"join": strings.Join,
}

// Registry holds the active set of parsed templates. Safe for concurrent
// use; the watcher swaps templates in under the write lock.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
	dir       string
}

// NewRegistry builds a registry from the built-in defaults, then applies any
// overrides found in dir. Pass an empty dir to use defaults only.
func NewRegistry(dir string) (*Registry, error) {
	r := &Registry{
		templates: make(map[string]*template.Template, len(defaults)),
		dir:       dir,
	}
	for name, text := range defaults {
		tmpl, err := template.New(name).Funcs(funcMap).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("built-in template %s is invalid: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	if dir != "" {
		if err := r.loadOverrides(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Dir returns the override directory, empty when running on defaults only.
func (r *Registry) Dir() string { return r.dir }

// Render executes the named template with data.
func (r *Registry) Render(name string, data any) (string, error) {
	r.mu.RLock()
	tmpl, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown template %q", name)
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return sb.String(), nil
}

// Reload re-parses one override file. A broken file leaves the previous
// template active. Removing the file restores the built-in default.
func (r *Registry) Reload(path string) error {
	name := strings.TrimSuffix(filepath.Base(path), ".tmpl")
	if _, known := defaults[name]; !known {
		return fmt.Errorf("no template named %q", name)
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		tmpl, _ := template.New(name).Funcs(funcMap).Parse(defaults[name])
		r.mu.Lock()
		r.templates[name] = tmpl
		r.mu.Unlock()
		logging.Get(logging.CategoryPrompt).Info("template %s override removed, default restored", name)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read template %s: %w", path, err)
	}

	tmpl, err := template.New(name).Funcs(funcMap).Parse(string(data))
	if err != nil {
		return fmt.Errorf("failed to parse template %s: %w", path, err)
	}
	r.mu.Lock()
	r.templates[name] = tmpl
	r.mu.Unlock()
	logging.Get(logging.CategoryPrompt).Info("template %s reloaded from %s", name, path)
	return nil
}

// loadOverrides applies every recognized .tmpl file in the override dir.
func (r *Registry) loadOverrides() error {
	entries, err := os.ReadDir(r.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read template directory %s: %w", r.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".tmpl") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".tmpl")
		if _, known := defaults[name]; !known {
			logging.Get(logging.CategoryPrompt).Warn("ignoring unrecognized template file %s", e.Name())
			continue
		}
		if err := r.Reload(filepath.Join(r.dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

// WriteDefaults materializes the built-in templates into dir so operators
// have a starting point for customization. Existing files are not touched.
func WriteDefaults(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create template directory: %w", err)
	}
	for name, text := range defaults {
		path := filepath.Join(dir, name+".tmpl")
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(text+"\n"), 0644); err != nil {
			return fmt.Errorf("failed to write template %s: %w", name, err)
		}
	}
	return nil
}
