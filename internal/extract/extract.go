// Package extract parses Scholar profile markup into structured records.
// Parsing is best-effort: malformed markup yields partial data, never a
// panic, and missing fields fall back to placeholders.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/citemetric/scholarcrawl/internal/scholar"
)

// venueIndicators flag text that looks like a publication venue.
var venueIndicators = []string{
	"journal", "conference", "proceedings", "transactions", "letters", "review",
}

// detailFieldNames are the venue-bearing field labels scanned on detail pages.
var venueFieldNames = []string{"journal", "conference", "publisher", "source", "venue"}

// Extractor implements scholar.Extractor with goquery selectors.
type Extractor struct{}

// New returns an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// ListingEntries parses publication rows from a profile listing page.
func (e *Extractor) ListingEntries(body []byte) ([]scholar.PublicationEntry, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse listing page: %w", err)
	}

	var entries []scholar.PublicationEntry
	doc.Find("tr.gsc_a_tr").Each(func(_ int, row *goquery.Selection) {
		title := row.Find("a.gsc_a_at")
		if title.Length() == 0 {
			return
		}
		entry := scholar.PublicationEntry{
			Title:   strings.TrimSpace(title.Text()),
			CitedBy: "0",
			Year:    "N/A",
			Venue:   "N/A",
		}
		if href, ok := title.Attr("href"); ok {
			entry.CitationURL = scholar.AbsoluteCitationURL(href)
		}
		gray := row.Find("div.gs_gray")
		if gray.Length() > 0 {
			entry.Authors = SplitAuthors(strings.TrimSpace(gray.Eq(0).Text()))
		}
		if gray.Length() > 1 {
			venue := strings.TrimSpace(gray.Eq(1).Text())
			if venue != "" {
				entry.Venue = venue
			}
		} else if looksLikeVenue(strings.TrimSpace(gray.Eq(0).Text())) {
			entry.Venue = strings.TrimSpace(gray.Eq(0).Text())
		}
		if cited := strings.TrimSpace(row.Find("a.gsc_a_ac").Text()); cited != "" {
			entry.CitedBy = cited
		}
		if year := strings.TrimSpace(row.Find("span.gsc_a_h").Text()); year != "" {
			entry.Year = year
		}
		entries = append(entries, entry)
	})
	return entries, nil
}

// DetailFields parses the per-publication detail page into record fields.
// Only detail-page fields are populated; listing fields stay zero.
func (e *Extractor) DetailFields(body []byte) (scholar.PublicationRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return scholar.PublicationRecord{}, fmt.Errorf("parse detail page: %w", err)
	}

	var rec scholar.PublicationRecord
	rec.Title = strings.TrimSpace(doc.Find("#gsc_oci_title").Text())

	doc.Find("div.gs_scl").Each(func(_ int, field *goquery.Selection) {
		name := strings.ToLower(strings.TrimSpace(field.Find("div.gsc_oci_field").Text()))
		value := strings.TrimSpace(field.Find("div.gsc_oci_value").Text())
		if name == "" || value == "" {
			return
		}
		switch name {
		case "authors":
			rec.Authors = SplitAuthors(value)
		case "publication date":
			rec.PublicationDate = value
		case "description":
			rec.Abstract = value
		case "total citations":
			if link := strings.TrimSpace(field.Find("a").First().Text()); link != "" {
				rec.TotalCitations = link
			}
		}
	})

	rec.Venue = detailVenue(doc)
	rec.PDFLink = pdfLink(doc)
	return rec, nil
}

func detailVenue(doc *goquery.Document) string {
	venue := ""
	doc.Find("div.gs_scl").EachWithBreak(func(_ int, field *goquery.Selection) bool {
		name := strings.ToLower(strings.TrimSpace(field.Find("div.gsc_oci_field").Text()))
		value := strings.TrimSpace(field.Find("div.gsc_oci_value").Text())
		if name == "" || value == "" {
			return true
		}
		for _, known := range venueFieldNames {
			if strings.Contains(name, known) {
				venue = value
				return false
			}
		}
		return true
	})
	if venue != "" {
		return venue
	}
	// No labeled venue field; fall back to any value that reads like one.
	doc.Find("div.gs_scl").EachWithBreak(func(_ int, field *goquery.Selection) bool {
		name := strings.ToLower(strings.TrimSpace(field.Find("div.gsc_oci_field").Text()))
		switch name {
		case "authors", "publication date", "description", "total citations":
			return true
		}
		value := strings.TrimSpace(field.Find("div.gsc_oci_value").Text())
		if looksLikeVenue(value) {
			venue = value
			return false
		}
		return true
	})
	if venue == "" {
		return "N/A"
	}
	return venue
}

func pdfLink(doc *goquery.Document) string {
	href, ok := doc.Find("#gsc_oci_title_gg a").First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return "N/A"
	}
	return strings.TrimSpace(href)
}

func looksLikeVenue(text string) bool {
	lower := strings.ToLower(text)
	for _, ind := range venueIndicators {
		if strings.Contains(lower, ind) {
			return true
		}
	}
	return false
}

// SplitAuthors converts an author string into individual names, handling
// semicolons, "Last, First" comma pairs, and " and " separators.
func SplitAuthors(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "N/A" {
		return nil
	}
	var authors []string
	switch {
	case strings.Contains(raw, ";"):
		authors = splitTrim(raw, ";")
	case strings.Contains(raw, ","):
		authors = splitCommaNames(raw)
	case strings.Contains(raw, " and "):
		authors = splitTrim(raw, " and ")
	default:
		authors = []string{raw}
	}
	out := authors[:0]
	for _, a := range authors {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func splitTrim(raw, sep string) []string {
	parts := strings.Split(raw, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

// splitCommaNames splits a comma-separated author list while keeping
// "Last, First" pairs together when the token after a comma is a lone word.
func splitCommaNames(raw string) []string {
	parts := splitTrim(raw, ",")
	var out []string
	for i := 0; i < len(parts); i++ {
		if i+1 < len(parts) && len(strings.Fields(parts[i+1])) == 1 {
			out = append(out, parts[i]+", "+parts[i+1])
			i++
			continue
		}
		out = append(out, parts[i])
	}
	return out
}
