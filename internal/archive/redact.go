package archive

import "regexp"

// Spoken turns are transcribed verbatim, so anything a user reads aloud
// during practice (an email address, a phone number, a card) lands in the
// transcript. Redaction runs once, when a live session becomes a record.
type redactRule struct {
	pattern *regexp.Regexp
	mask    string
}

// Card runs before phone so a long digit run is not half-claimed as a
// phone number.
var redactRules = []redactRule{
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[REDACTED_CARD]"},
	{regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), "[REDACTED_PHONE]"},
}

// redactText masks PII in one transcript line.
func redactText(input string) (redacted string, changed bool) {
	out := input
	for _, rule := range redactRules {
		next := rule.pattern.ReplaceAllString(out, rule.mask)
		changed = changed || next != out
		out = next
	}
	return out, changed
}
