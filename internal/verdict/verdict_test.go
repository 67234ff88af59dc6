package verdict

import (
	"encoding/json"
	"testing"

	"github.com/spigell/commandjobs/internal/listing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const codeweavers = `{
  "small_summary": "Wine and Open Source developers for C-language systems programming",
  "company_name": "CodeWeavers",
  "available_positions": [
    {"position": "Wine and General Open Source Developers", "link": "https://www.codeweavers.com/about/jobs"}
  ],
  "tech_stack_description": "C-language systems programming",
  "remote_positions": "Yes",
  "hiring_in_us": "Yes",
  "how_to_apply": "Apply through our website",
  "fit_for_resume": "No",
  "fit_justification": "No Wine experience"
}`

func TestParse(t *testing.T) {
	v, err := Parse(codeweavers)
	require.NoError(t, err)

	assert.Equal(t, "CodeWeavers", v.CompanyName)
	assert.Equal(t, No, v.FitForResume)
	assert.Equal(t, Yes, v.RemotePositions)
	assert.False(t, v.Fit())
	require.Len(t, v.AvailablePositions, 1)
	assert.Equal(t, "https://www.codeweavers.com/about/jobs", v.AvailablePositions[0].Link)
}

func TestParseTolerance(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		check  func(t *testing.T, v Verdict)
	}{
		{
			name:   "markdown fence",
			answer: "```json\n{\"fit_for_resume\": \"yes\", \"company_name\": \"Acme\"}\n```",
			check: func(t *testing.T, v Verdict) {
				assert.Equal(t, Yes, v.FitForResume)
				assert.Equal(t, "Acme", v.CompanyName)
			},
		},
		{
			name:   "prose around object",
			answer: "Here is the result:\n{\"fit_for_resume\": true, \"remote_positions\": false}\nThanks",
			check: func(t *testing.T, v Verdict) {
				assert.Equal(t, Yes, v.FitForResume)
				assert.Equal(t, No, v.RemotePositions)
			},
		},
		{
			name:   "missing keys stay empty",
			answer: `{"company_name": "Acme"}`,
			check: func(t *testing.T, v Verdict) {
				assert.Empty(t, v.HiringInUS)
				assert.Empty(t, v.FitForResume)
				assert.NotNil(t, v.AvailablePositions)
				assert.Empty(t, v.AvailablePositions)
			},
		},
		{
			name:   "unknown hiring value kept",
			answer: `{"hiring_in_us": "Unknown"}`,
			check: func(t *testing.T, v Verdict) {
				assert.Equal(t, "Unknown", v.HiringInUS)
			},
		},
		{
			name:   "malformed positions",
			answer: `{"available_positions": "see website"}`,
			check: func(t *testing.T, v Verdict) {
				assert.Empty(t, v.AvailablePositions)
			},
		},
		{
			name:   "positions encoded as string",
			answer: `{"available_positions": "[{\"position\": \"SRE\"}]"}`,
			check: func(t *testing.T, v Verdict) {
				require.Len(t, v.AvailablePositions, 1)
				assert.Equal(t, "SRE", v.AvailablePositions[0].Position)
			},
		},
		{
			name:   "non string summary",
			answer: `{"small_summary": {"text": "nested"}}`,
			check: func(t *testing.T, v Verdict) {
				assert.JSONEq(t, `{"text": "nested"}`, v.SmallSummary)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Parse(tt.answer)
			require.NoError(t, err)
			tt.check(t, v)
		})
	}
}

func TestParseRejectsNonObjects(t *testing.T) {
	for _, answer := range []string{"", "not json at all", "[1, 2, 3]", "{broken", "} {"} {
		_, err := Parse(answer)
		assert.ErrorIs(t, err, ErrNotObject, "answer %q", answer)
	}
}

func TestNormalize(t *testing.T) {
	out, ok := Normalize(`{"fit_for_resume": "YES", "hiring_in_us": "no"}`)
	require.True(t, ok)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, Yes, decoded[FieldFitForResume])
	assert.Equal(t, No, decoded[FieldHiringInUS])
	assert.Equal(t, "", decoded[FieldRemotePositions])
	assert.Equal(t, []any{}, decoded[FieldAvailablePositions])

	_, ok = Normalize("Sorry, I cannot help with that.")
	assert.False(t, ok)
}

func TestCheck(t *testing.T) {
	issues, err := Check(codeweavers)
	require.NoError(t, err)
	assert.Empty(t, issues)

	issues, err = Check(`{"company_name": 42}`)
	require.NoError(t, err)
	assert.NotEmpty(t, issues)

	_, err = Check("plain text")
	assert.ErrorIs(t, err, ErrNotObject)
}

func TestPositions(t *testing.T) {
	assert.Equal(t, []listing.Position{}, Positions(nil))
	assert.Equal(t, []listing.Position{}, Positions(42.0))
	assert.Equal(t,
		[]listing.Position{{Position: "Backend", Link: "https://acme.test/jobs/1"}},
		Positions([]any{
			map[string]any{"position": " Backend ", "link": "https://acme.test/jobs/1"},
			"garbage",
			map[string]any{},
		}),
	)
}
