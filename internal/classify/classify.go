package classify

import (
	"regexp"
	"strings"
)

// rule pairs a pattern with the reason label it contributes. Rules are
// evaluated in order and all matches are collected, so one text can carry
// several reasons.
type rule struct {
	pattern *regexp.Regexp
	reason  string
}

// Reason labels reported by Classify.
const (
	ReasonPassword        = "password_reference"
	ReasonPaymentCard     = "payment_card_data"
	ReasonEmail           = "email_address"
	ReasonSSN             = "ssn_pattern"
	ReasonCredential      = "credential_material"
	ReasonConfidentiality = "confidentiality_marker"

	// ReasonGeneric marks sensitivity reported upstream without a reason.
	ReasonGeneric = "sensitive_content"
)

var rules = []rule{
	{regexp.MustCompile(`(?i)\bpassword\b|\bpasswd\b|\bpwd\b`), ReasonPassword},
	{regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`), ReasonPaymentCard},
	{regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), ReasonEmail},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), ReasonSSN},
	{regexp.MustCompile(`(?i)\bapi[ _-]?key\b|\btoken\b|\bsecret\b`), ReasonCredential},
	{regexp.MustCompile(`(?i)\bprivate\b|\bconfidential\b`), ReasonConfidentiality},
}

// Classify runs the fixed rule table over text and returns whether any
// sensitive pattern matched plus the ordered reason labels. Deterministic:
// the same input always yields the same output, which keeps the fallback
// path testable without the analysis service.
func Classify(text string) (bool, []string) {
	var reasons []string
	for _, r := range rules {
		if r.pattern.MatchString(text) {
			reasons = append(reasons, r.reason)
		}
	}
	return len(reasons) > 0, reasons
}

var wsRe = regexp.MustCompile(`\s+`)

// Normalize strips line breaks, collapses runs of whitespace and trims.
// Used whenever the analysis service is unavailable so raw OCR text is
// never discarded.
func Normalize(text string) string {
	t := strings.ReplaceAll(text, "\r\n", " ")
	t = strings.ReplaceAll(t, "\n", " ")
	t = wsRe.ReplaceAllString(t, " ")
	return strings.TrimSpace(t)
}
