package cmd

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func completeConfig() map[string]any {
	return map[string]any{
		"resume-file":                         "resume.md",
		"classification.listings-per-batch":   5,
		"classification.prompt.prompt":        "{{.job_text}}",
		"classification.prompt.output-format": "{}",
		"ai.gemini.model":                     "gemini-2.5-flash",
	}
}

func useConfig(t *testing.T, values map[string]any) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	setDefaults()
	for key, value := range values {
		viper.Set(key, value)
	}
}

func TestGetConfig(t *testing.T) {
	useConfig(t, completeConfig())

	config, err := getConfig()
	if err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	if config.Classification.ListingsPerBatch != 5 {
		t.Fatalf("unexpected batch size: %d", config.Classification.ListingsPerBatch)
	}
	if config.AI.Gemini.Model != "gemini-2.5-flash" {
		t.Fatalf("unexpected model: %q", config.AI.Gemini.Model)
	}
}

func TestGetConfigRequiredSettings(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		value  any
		expect string
	}{
		{name: "no batch size", key: "classification.listings-per-batch", expect: "ListingsPerBatch"},
		{name: "zero batch size", key: "classification.listings-per-batch", value: 0, expect: "ListingsPerBatch"},
		{name: "no resume file", key: "resume-file", expect: "ResumeFile"},
		{name: "no model", key: "ai.gemini.model", expect: "Model"},
		{name: "no prompt", key: "classification.prompt.prompt", expect: "Prompt"},
		{name: "no output format", key: "classification.prompt.output-format", expect: "OutputFormat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := completeConfig()
			delete(values, tt.key)
			if tt.value != nil {
				values[tt.key] = tt.value
			}
			useConfig(t, values)

			_, err := getConfig()
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.expect) {
				t.Fatalf("expected error about %s, got %v", tt.expect, err)
			}
		})
	}
}

func TestGetConfigWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	useConfig(t, nil)

	cfgFile = ""
	initConfig()

	_, err := getConfig()
	if err == nil {
		t.Fatal("expected an error without any configuration")
	}
	for _, field := range []string{"ListingsPerBatch", "ResumeFile", "Model", "Prompt", "OutputFormat"} {
		if !strings.Contains(err.Error(), field) {
			t.Fatalf("expected %s in %v", field, err)
		}
	}
}
