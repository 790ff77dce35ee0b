package escalation

import "regexp"

const maxDetailLength = 200

// Scrub order matters: paths before tokens, so "/var/log/secret" does
// not half-survive as a token fragment.
var (
	pathPattern  = regexp.MustCompile(`(?:/[\w.-]+){2,}|(?:[A-Za-z]:\\[\w\\.-]+)`)
	emailPattern = regexp.MustCompile(`[\w.+-]+@[\w-]+\.[\w.-]+`)
	ipPattern    = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	tokenPattern = regexp.MustCompile(`\b[A-Za-z0-9_-]{20,}\b`)
)

// SanitizeDetails scrubs file paths, emails, IPs and long opaque tokens
// out of detail text before it can reach a response body or event log,
// then truncates to a bounded length.
func SanitizeDetails(details string) string {
	s := pathPattern.ReplaceAllString(details, "[PATH]")
	s = emailPattern.ReplaceAllString(s, "[EMAIL]")
	s = ipPattern.ReplaceAllString(s, "[IP]")
	s = tokenPattern.ReplaceAllString(s, "[TOKEN]")
	if len(s) > maxDetailLength {
		s = s[:maxDetailLength-3] + "..."
	}
	return s
}
