package cmd

import (
	"runtime/debug"
	"strings"
	"testing"
	"time"

	"github.com/spigell/commandjobs/internal/classify"
	"github.com/spigell/commandjobs/internal/ingest"
	"github.com/spigell/commandjobs/internal/listing"
)

func TestSummary(t *testing.T) {
	tests := []struct {
		name   string
		result ingest.Result
		expect string
	}{
		{
			name:   "completed",
			result: ingest.Result{Source: "Hacker News", New: 3, Seen: 10},
			expect: "Hacker News: 3 new listings, 10 seen",
		},
		{
			name:   "stopped",
			result: ingest.Result{Source: "Hacker News", New: 1, Seen: 1, Skipped: 2, Stopped: true, Reason: "request timed out, try again later"},
			expect: "Hacker News: 1 new listings, 1 seen, 2 skipped (stopped: request timed out, try again later)",
		},
		{
			name:   "interrupted",
			result: ingest.Result{Source: "jsonl", Interrupted: true},
			expect: "jsonl: 0 new listings, 0 seen (interrupted)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := summary(tt.result); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestClassifySummary(t *testing.T) {
	got := classifySummary(classify.BatchResult{Requested: 10, Saved: 9, Malformed: 1, Failed: 1})
	expect := "classified 9 of 10 listings, 1 failed, 1 answers could not be read"
	if got != expect {
		t.Fatalf("expected %q, got %q", expect, got)
	}
}

func TestParseID(t *testing.T) {
	tests := []struct {
		arg     string
		want    int64
		wantErr bool
	}{
		{arg: "42", want: 42},
		{arg: " 7 ", want: 7},
		{arg: "0", wantErr: true},
		{arg: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := parseID(tt.arg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestAppliedDate(t *testing.T) {
	at, err := appliedDate("2024-06-03")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if at.Year() != 2024 || at.Month() != time.June || at.Day() != 3 {
		t.Fatalf("unexpected date: %v", at)
	}

	if _, err := appliedDate("03/06/2024"); err == nil {
		t.Fatal("expected error for bad date")
	}

	if now, err := appliedDate(""); err != nil || time.Since(now) > time.Minute {
		t.Fatalf("expected current time, got %v (%v)", now, err)
	}
}

func TestRenderListing(t *testing.T) {
	applied := time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)
	out := renderListing(listing.Listing{
		ID:           5,
		Source:       "Hacker News",
		ExternalID:   "https://news.ycombinator.com/item?id=5",
		OriginalText: "Acme is hiring",
		OriginalHTML: "<p>Acme is hiring <b>Go</b> engineers</p>",
		ScrapedAt:    applied,
		Applied:      true,
		AppliedDate:  &applied,
	})

	if !strings.Contains(out, "# Listing 5 (Hacker News)") {
		t.Fatalf("missing header: %s", out)
	}
	if !strings.Contains(out, "**Go**") {
		t.Fatalf("expected markdown body: %s", out)
	}
	if !strings.Contains(out, "applied 2024-06-03") {
		t.Fatalf("expected applied date: %s", out)
	}

	plain := renderListing(listing.Listing{ID: 6, OriginalText: "plain text only"})
	if !strings.HasSuffix(plain, "plain text only") {
		t.Fatalf("expected text fallback: %s", plain)
	}
}

func TestPositions(t *testing.T) {
	got := positions([]listing.Position{{Position: "Backend"}, {Link: "https://example.com"}, {Position: "SRE"}})
	if got != "Backend, SRE" {
		t.Fatalf("unexpected positions: %q", got)
	}
}

func TestNewSourceRejectsUnknown(t *testing.T) {
	e := &env{config: &Config{}}

	if _, err := newSource(e, "workday", "", ""); err == nil {
		t.Fatal("expected error for unknown source")
	}
	if _, err := newSource(e, sourceFile, "", ""); err == nil {
		t.Fatal("expected error for file source without a path")
	}
	src, err := newSource(e, sourceFile, "jobs.jsonl", "import")
	if err != nil || src.Name() != "import" {
		t.Fatalf("unexpected file source: %v %v", src, err)
	}
}

func TestCurrentVersion(t *testing.T) {
	installed := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Main: debug.Module{Version: "v0.3.1"}}, true
	}
	devel := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}, true
	}
	missing := func() (*debug.BuildInfo, bool) { return nil, false }

	tests := []struct {
		name      string
		set       string
		buildInfo func() (*debug.BuildInfo, bool)
		expect    string
	}{
		{name: "set at build time", set: "v1.2.0", buildInfo: installed, expect: "v1.2.0"},
		{name: "go install", set: "unknown", buildInfo: installed, expect: "v0.3.1"},
		{name: "local build", set: "unknown", buildInfo: devel, expect: "unknown"},
		{name: "no build info", set: "unknown", buildInfo: missing, expect: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := currentVersion(tt.set, tt.buildInfo)
			if info.Version != tt.expect {
				t.Fatalf("expected version %q, got %q", tt.expect, info.Version)
			}
			if !strings.HasPrefix(info.String(), app+" "+tt.expect+" (go") {
				t.Fatalf("unexpected string: %q", info.String())
			}
		})
	}
}
