package scholar

import (
	"fmt"
	"net/url"
	"strings"
)

const profileBase = "https://scholar.google.com"

// ListingURL builds the paginated profile listing URL. cstart is the
// zero-based offset of the first row, pageSize the number of rows requested.
func ListingURL(userID string, cstart, pageSize int) string {
	return fmt.Sprintf("%s/citations?user=%s&hl=en&cstart=%d&pagesize=%d",
		profileBase, url.QueryEscape(userID), cstart, pageSize)
}

// AbsoluteCitationURL resolves the relative href found on a listing row.
func AbsoluteCitationURL(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return profileBase + href
}
