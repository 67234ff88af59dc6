package jsonl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spigell/commandjobs/internal/listing"
	"github.com/spigell/commandjobs/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	input := strings.Join([]string{
		`{"original_text": "Acme is hiring", "original_html": "<p>Acme is hiring</p>", "external_id": "acme-1"}`,
		``,
		`{"original_text": "broken"`,
		`{"original_text": "no id"}`,
		`{"original_text": "Globex", "source": "Referral", "external_id": "globex-1"}`,
	}, "\n")

	var (
		items []listing.Raw
		refs  []string
	)
	for raw, err := range Decode(context.Background(), strings.NewReader(input)) {
		if err != nil {
			var itemErr *source.ItemError
			require.True(t, errors.As(err, &itemErr))
			refs = append(refs, itemErr.Ref)
			continue
		}
		items = append(items, raw)
	}

	require.Len(t, items, 2)
	assert.Equal(t, "acme-1", items[0].ExternalID)
	assert.Equal(t, "<p>Acme is hiring</p>", items[0].OriginalHTML)
	assert.Equal(t, "Referral", items[1].Source)
	assert.Equal(t, []string{"line 3", "line 4"}, refs)
}

func TestListings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"external_id": "a"}`+"\n"+`{"external_id": "b"}`+"\n"), 0o600))

	src := New(path, "")
	assert.Equal(t, Name, src.Name())

	var ids []string
	for raw, err := range src.Listings(context.Background(), nil) {
		require.NoError(t, err)
		ids = append(ids, raw.ExternalID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestListingsMissingFile(t *testing.T) {
	var errs []error
	for _, err := range New(filepath.Join(t.TempDir(), "missing.jsonl"), "import").Listings(context.Background(), nil) {
		errs = append(errs, err)
	}

	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], os.ErrNotExist)
}
