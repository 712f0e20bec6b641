// Package scholar defines core types shared across subsystems.
package scholar

import (
	"net/http"
	"time"
)

// ProfileStatus represents the terminal state of one profile scrape.
type ProfileStatus string

// Profile status values recorded on a ProfileResult.
const (
	ProfileStatusSucceeded ProfileStatus = "succeeded"
	ProfileStatusFailed    ProfileStatus = "failed"
)

// Identity is the user-agent/proxy pair presented for one fetch attempt.
// Values are borrowed from the identity pool per attempt and never mutated.
type Identity struct {
	UserAgent string
	Proxy     string
}

// Proxied reports whether the identity routes through a proxy endpoint.
func (id Identity) Proxied() bool {
	return id.Proxy != ""
}

// FetchRequest captures everything needed to fetch a URL once.
type FetchRequest struct {
	URL      string
	Identity Identity
	Timeout  time.Duration
}

// FetchResponse is the raw result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// PublicationEntry is the listing-row view of a publication. Detail fetches
// enrich it into a full PublicationRecord.
type PublicationEntry struct {
	Title       string
	Authors     []string
	CitedBy     string
	Year        string
	Venue       string
	CitationURL string
}

// PublicationRecord carries every field scraped for one publication. The
// JSON field names match the files the original pipeline consumers expect.
type PublicationRecord struct {
	Title           string   `json:"title"`
	Authors         []string `json:"authors"`
	CitedBy         string   `json:"cited_by"`
	Year            string   `json:"year"`
	Venue           string   `json:"venue"`
	CitationURL     string   `json:"citation_url"`
	PublicationDate string   `json:"publication_date,omitempty"`
	Abstract        string   `json:"abstract,omitempty"`
	TotalCitations  string   `json:"total_citations,omitempty"`
	PDFLink         string   `json:"pdf_link,omitempty"`
	// DetailError notes that the detail page was abandoned and the record
	// carries listing-only data.
	DetailError string `json:"detail_error,omitempty"`
}

// ProfileResult is the outcome of scraping one profile. Records preserve
// listing order regardless of detail-fetch completion order.
type ProfileResult struct {
	UserID        string              `json:"user_id"`
	Name          string              `json:"name,omitempty"`
	Status        ProfileStatus       `json:"status"`
	FailureReason string              `json:"failure_reason,omitempty"`
	ScrapedAt     time.Time           `json:"scraped_at"`
	Records       []PublicationRecord `json:"publications"`
}

// Succeeded reports whether the profile scrape produced usable data.
func (r ProfileResult) Succeeded() bool {
	return r.Status == ProfileStatusSucceeded
}

// Author is one CSV input row: a display label plus the profile user ID.
type Author struct {
	Name   string
	UserID string
}
