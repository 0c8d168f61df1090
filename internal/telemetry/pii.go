// PII sanitization shared by every telemetry export and by the regex
// extractor. No PII-redaction library appears anywhere in the retrieved
// example pack, so this is a small stdlib regexp scanner (justified in
// DESIGN.md).
package telemetry

import "regexp"

var (
	emailPattern      = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phonePattern      = regexp.MustCompile(`\b(?:\+?\d{1,2}[\s.-]?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`)
	ssnPattern        = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	creditCardPattern = regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`)
)

// PIISanitizer redacts emails, phone numbers, SSNs, and credit card
// numbers from arbitrary text. The regex extractor and the pipeline's
// post-processing step run every extracted text field through it,
// whatever KeepHTML says; log lines and events are not passed through it.
type PIISanitizer struct{}

// NewPIISanitizer constructs a stateless sanitizer.
func NewPIISanitizer() *PIISanitizer { return &PIISanitizer{} }

// Redact replaces every recognized PII span in s with a labeled
// placeholder.
func (p *PIISanitizer) Redact(s string) string {
	s = emailPattern.ReplaceAllString(s, "[REDACTED_EMAIL]")
	s = ssnPattern.ReplaceAllString(s, "[REDACTED_SSN]")
	s = creditCardPattern.ReplaceAllString(s, "[REDACTED_CARD]")
	s = phonePattern.ReplaceAllString(s, "[REDACTED_PHONE]")
	return s
}
