// Package verdict turns the free-form answers of the language model into
// structured fit verdicts.
package verdict

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spigell/commandjobs/internal/listing"
	"github.com/xeipuuv/gojsonschema"
)

const (
	Yes = "Yes"
	No  = "No"
)

// Keys of the answer object.
const (
	FieldFitForResume         = "fit_for_resume"
	FieldCompanyName          = "company_name"
	FieldAvailablePositions   = "available_positions"
	FieldSmallSummary         = "small_summary"
	FieldFitJustification     = "fit_justification"
	FieldHowToApply           = "how_to_apply"
	FieldRemotePositions      = "remote_positions"
	FieldHiringInUS           = "hiring_in_us"
	FieldTechStackDescription = "tech_stack_description"
)

// ErrNotObject is returned when an answer does not contain a JSON object.
var ErrNotObject = errors.New("answer is not a json object")

//go:embed schema.json
var schemaJSON string

var schema = gojsonschema.NewStringLoader(schemaJSON)

// Verdict is the structured judgement of one listing against the resume.
type Verdict struct {
	FitForResume         string             `json:"fit_for_resume" mapstructure:"fit_for_resume"`
	CompanyName          string             `json:"company_name" mapstructure:"company_name"`
	AvailablePositions   []listing.Position `json:"available_positions" mapstructure:"-"`
	SmallSummary         string             `json:"small_summary" mapstructure:"small_summary"`
	FitJustification     string             `json:"fit_justification" mapstructure:"fit_justification"`
	HowToApply           string             `json:"how_to_apply" mapstructure:"how_to_apply"`
	RemotePositions      string             `json:"remote_positions" mapstructure:"remote_positions"`
	HiringInUS           string             `json:"hiring_in_us" mapstructure:"hiring_in_us"`
	TechStackDescription string             `json:"tech_stack_description" mapstructure:"tech_stack_description"`
}

// Fit reports whether the model judged the listing a fit.
func (v Verdict) Fit() bool {
	return v.FitForResume == Yes
}

// Parse extracts the answer object and decodes it into a Verdict. Yes/no
// fields are canonicalized, unknown keys are ignored and missing keys are
// left empty.
func Parse(answer string) (Verdict, error) {
	data, err := decodeObject(answer)
	if err != nil {
		return Verdict{}, err
	}

	for _, key := range []string{FieldFitForResume, FieldRemotePositions, FieldHiringInUS} {
		if value, ok := data[key]; ok {
			data[key] = coerceYesNo(value)
		}
	}
	for _, key := range []string{FieldCompanyName, FieldSmallSummary, FieldFitJustification, FieldHowToApply, FieldTechStackDescription} {
		if value, ok := data[key]; ok {
			data[key] = coerceString(value)
		}
	}

	var v Verdict
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &v,
	})
	if err != nil {
		return Verdict{}, err
	}
	if err := decoder.Decode(data); err != nil {
		return Verdict{}, fmt.Errorf("decode answer: %w", err)
	}

	v.AvailablePositions = Positions(data[FieldAvailablePositions])
	v.trim()

	return v, nil
}

// Normalize returns the canonical JSON form of the answer, or false when the
// answer cannot be parsed.
func Normalize(answer string) (string, bool) {
	v, err := Parse(answer)
	if err != nil {
		return "", false
	}

	out, err := json.Marshal(v)
	if err != nil {
		return "", false
	}

	return string(out), true
}

// Check validates the answer against the expected output schema and returns
// the violations. It never fails on a parseable answer; violations are
// advisory.
func Check(answer string) ([]string, error) {
	cleaned, err := extractObject(answer)
	if err != nil {
		return nil, err
	}

	result, err := gojsonschema.Validate(schema, gojsonschema.NewStringLoader(cleaned))
	if err != nil {
		return nil, fmt.Errorf("validate answer: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	issues := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		issues = append(issues, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}

	return issues, nil
}

// Positions decodes a loosely shaped position list. Anything that is not a
// list of objects, or a JSON string holding one, yields an empty list.
func Positions(raw any) []listing.Position {
	positions := []listing.Position{}

	if s, ok := raw.(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return positions
		}
		raw = decoded
	}

	items, ok := raw.([]any)
	if !ok {
		return positions
	}

	for _, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		var p listing.Position
		if err := mapstructure.WeakDecode(fields, &p); err != nil {
			continue
		}
		p.Position = strings.TrimSpace(p.Position)
		p.Link = strings.TrimSpace(p.Link)
		if p.Position == "" && p.Link == "" {
			continue
		}
		positions = append(positions, p)
	}

	return positions
}

func (v *Verdict) trim() {
	v.CompanyName = strings.TrimSpace(v.CompanyName)
	v.SmallSummary = strings.TrimSpace(v.SmallSummary)
	v.FitJustification = strings.TrimSpace(v.FitJustification)
	v.HowToApply = strings.TrimSpace(v.HowToApply)
	v.TechStackDescription = strings.TrimSpace(v.TechStackDescription)
}

func decodeObject(answer string) (map[string]any, error) {
	cleaned, err := extractObject(answer)
	if err != nil {
		return nil, err
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	if data == nil {
		return nil, ErrNotObject
	}

	return data, nil
}

// extractObject strips markdown fences and any prose around the outermost
// braces.
func extractObject(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
		raw = strings.TrimSpace(raw)
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end < start {
		return "", ErrNotObject
	}

	return raw[start : end+1], nil
}

func coerceYesNo(v any) any {
	switch val := v.(type) {
	case bool:
		if val {
			return Yes
		}
		return No
	case string:
		trimmed := strings.TrimSpace(val)
		switch strings.ToLower(trimmed) {
		case "yes", "y", "true":
			return Yes
		case "no", "n", "false":
			return No
		}
		return trimmed
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case nil:
		return ""
	default:
		return coerceString(v)
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case nil:
		return ""
	default:
		out, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(out)
	}
}
