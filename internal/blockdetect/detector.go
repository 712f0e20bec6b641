// Package blockdetect classifies raw fetch results into success, soft-block,
// or hard-failure outcomes.
package blockdetect

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/citemetric/scholarcrawl/internal/scholar"
)

// defaultSignatures match the block interstitials Google Scholar serves with
// a 200 status. The set is a tunable, not a protocol; override via config.
var defaultSignatures = []string{
	"unusual traffic from your computer network",
	"please show you're not a robot",
	"our systems have detected unusual traffic",
	"id=\"gs_captcha_ccl\"",
	"g-recaptcha",
}

// blockRedirectPaths are URL fragments of known block-notice redirects.
var blockRedirectPaths = []string{
	"/sorry/",
	"/httpservice/retry",
}

// Detector implements scholar.Classifier with injectable signatures.
type Detector struct {
	signatures [][]byte
}

// New builds a Detector. An empty signature list selects the defaults.
func New(signatures []string) *Detector {
	if len(signatures) == 0 {
		signatures = defaultSignatures
	}
	lowered := make([][]byte, 0, len(signatures))
	for _, s := range signatures {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		lowered = append(lowered, bytes.ToLower([]byte(s)))
	}
	return &Detector{signatures: lowered}
}

// Classify applies the priority rules: transport errors first, then
// soft-block signals, then hard-failure statuses, else success.
func (d *Detector) Classify(resp scholar.FetchResponse, err error) scholar.FetchOutcome {
	// Transports surface 4xx/5xx as errors while still carrying the
	// response; prefer the status rules whenever a code is present.
	if err != nil && resp.StatusCode == 0 {
		return classifyError(err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return scholar.FetchOutcome{
			Kind:       scholar.OutcomeSoftBlock,
			Reason:     "status 429",
			StatusCode: resp.StatusCode,
		}
	}
	if reason, blocked := d.blockSignal(resp); blocked {
		return scholar.FetchOutcome{
			Kind:       scholar.OutcomeSoftBlock,
			Reason:     reason,
			StatusCode: resp.StatusCode,
		}
	}

	switch {
	case resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound,
		resp.StatusCode >= 500:
		return scholar.FetchOutcome{
			Kind:       scholar.OutcomeHardFailure,
			Reason:     fmt.Sprintf("status %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	return scholar.FetchOutcome{
		Kind:       scholar.OutcomeSuccess,
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
	}
}

func (d *Detector) blockSignal(resp scholar.FetchResponse) (string, bool) {
	for _, path := range blockRedirectPaths {
		if resp.URL != "" && strings.Contains(resp.URL, path) {
			return "block-notice redirect to " + path, true
		}
	}
	if len(resp.Body) == 0 {
		return "", false
	}
	body := bytes.ToLower(resp.Body)
	for _, sig := range d.signatures {
		if bytes.Contains(body, sig) {
			return "block signature: " + string(sig), true
		}
	}
	return "", false
}

func classifyError(err error) scholar.FetchOutcome {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return scholar.FetchOutcome{Kind: scholar.OutcomeTimeout, Reason: err.Error()}
	case errors.As(err, &netErr) && netErr.Timeout():
		return scholar.FetchOutcome{Kind: scholar.OutcomeTimeout, Reason: err.Error()}
	default:
		return scholar.FetchOutcome{Kind: scholar.OutcomeHardFailure, Reason: err.Error()}
	}
}
