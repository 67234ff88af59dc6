// Package listing holds the job listing records shared by sources, the store
// and the classification pipeline.
package listing

import (
	"strings"
	"time"
)

// Raw is a listing as produced by a source, before it is stored.
type Raw struct {
	OriginalText string `json:"original_text"`
	OriginalHTML string `json:"original_html"`
	Source       string `json:"source"`
	ExternalID   string `json:"external_id"`
}

// Normalize trims every field and falls back to the given source label.
func (r Raw) Normalize(source string) Raw {
	r.OriginalText = strings.TrimSpace(r.OriginalText)
	r.OriginalHTML = strings.TrimSpace(r.OriginalHTML)
	r.ExternalID = strings.TrimSpace(r.ExternalID)
	r.Source = strings.TrimSpace(r.Source)
	if r.Source == "" {
		r.Source = strings.TrimSpace(source)
	}
	return r
}

// Listing is a stored job posting.
type Listing struct {
	ID           int64
	OriginalText string
	OriginalHTML string
	Source       string
	ExternalID   string
	ScrapedAt    time.Time
	Discarded    bool
	Applied      bool
	AppliedDate  *time.Time
}

// Pending is a listing that has no classification yet.
type Pending struct {
	ID           int64
	OriginalText string
	OriginalHTML string
}

// Position is a single opening mentioned in a posting.
type Position struct {
	Position string `json:"position" mapstructure:"position"`
	Link     string `json:"link" mapstructure:"link"`
}

// Match is a classified listing that satisfied a match predicate.
type Match struct {
	JobID                int64      `json:"job_id"`
	ExternalID           string     `json:"external_id"`
	Source               string     `json:"source"`
	OriginalText         string     `json:"original_text"`
	ScrapedAt            time.Time  `json:"scraped_at"`
	CompanyName          string     `json:"company_name"`
	AvailablePositions   []Position `json:"available_positions"`
	SmallSummary         string     `json:"small_summary"`
	FitJustification     string     `json:"fit_justification"`
	HowToApply           string     `json:"how_to_apply"`
	RemotePositions      string     `json:"remote_positions"`
	HiringInUS           string     `json:"hiring_in_us"`
	TechStackDescription string     `json:"tech_stack_description"`
}

// Stats summarizes the store contents.
type Stats struct {
	Listings   int `json:"listings"`
	Classified int `json:"classified"`
	Malformed  int `json:"malformed"`
	Pending    int `json:"pending"`
	Applied    int `json:"applied"`
	Discarded  int `json:"discarded"`
}
