// Package prompt renders classification prompts from user supplied templates.
package prompt

import (
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/spigell/commandjobs/internal/listing"
)

// Variables available to the templates.
const (
	VarJobText           = "job_text"
	VarJobHTML           = "job_html"
	VarResume            = "resume"
	VarRoles             = "roles"
	VarIdealJobQuestions = "ideal_job_questions"
	VarExclusions        = "job_requirement_exclusions"
	VarOutputFormat      = "output_format"
)

var errMissing = errors.New("must be configured")

// ConfigError reports a template that cannot be parsed or rendered.
type ConfigError struct {
	Template string
	Err      error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("prompt template %q: %v", e.Template, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Config holds the template texts. Prompt and OutputFormat are required.
type Config struct {
	Prompt            string `mapstructure:"prompt" validate:"required"`
	Roles             string `mapstructure:"roles"`
	Exclusions        string `mapstructure:"exclusions"`
	IdealJobQuestions string `mapstructure:"ideal-job-questions"`
	OutputFormat      string `mapstructure:"output-format" validate:"required"`
}

// Template renders one prompt per listing.
type Template struct {
	prompt       *template.Template
	questions    string
	roles        string
	exclusions   string
	outputFormat string
}

// New parses the templates and renders them once against placeholder values
// so that unknown variables fail here instead of in the middle of a batch.
func New(cfg Config) (*Template, error) {
	if strings.TrimSpace(cfg.Prompt) == "" {
		return nil, &ConfigError{Template: "prompt", Err: errMissing}
	}
	if strings.TrimSpace(cfg.OutputFormat) == "" {
		return nil, &ConfigError{Template: "output_format", Err: errMissing}
	}

	questions, err := renderQuestions(cfg.IdealJobQuestions, cfg.Exclusions)
	if err != nil {
		return nil, err
	}

	promptTmpl, err := parse("prompt", cfg.Prompt)
	if err != nil {
		return nil, err
	}

	t := &Template{
		prompt:       promptTmpl,
		questions:    questions,
		roles:        strings.TrimSpace(cfg.Roles),
		exclusions:   strings.TrimSpace(cfg.Exclusions),
		outputFormat: strings.TrimSpace(cfg.OutputFormat),
	}

	if _, err := t.Render("resume", listing.Pending{OriginalText: "text", OriginalHTML: "<p>html</p>"}); err != nil {
		return nil, err
	}

	return t, nil
}

// Render builds the prompt for a single listing.
func (t *Template) Render(resume string, job listing.Pending) (string, error) {
	vars := map[string]string{
		VarJobText:           job.OriginalText,
		VarJobHTML:           job.OriginalHTML,
		VarResume:            resume,
		VarRoles:             t.roles,
		VarIdealJobQuestions: t.questions,
		VarExclusions:        t.exclusions,
		VarOutputFormat:      t.outputFormat,
	}

	var b strings.Builder
	if err := t.prompt.Execute(&b, vars); err != nil {
		return "", &ConfigError{Template: "prompt", Err: err}
	}

	return strings.TrimSpace(b.String()), nil
}

func parse(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, &ConfigError{Template: name, Err: err}
	}
	return tmpl, nil
}

// renderQuestions expands the exclusions into the optional questions
// template.
func renderQuestions(text, exclusions string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	tmpl, err := parse("ideal_job_questions", text)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, map[string]string{
		VarExclusions: strings.TrimSpace(exclusions),
	}); err != nil {
		return "", &ConfigError{Template: "ideal_job_questions", Err: err}
	}

	return strings.TrimSpace(b.String()), nil
}
