package threat

import (
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/valyala/fastjson"
)

// Match is an immutable classification result. An empty result slice
// means the content was scanned and came back clean.
type Match struct {
	Category  Category
	Severity  Level
	PatternID string
	Sample    string
	Timestamp time.Time
}

// Headers that are never run through SQL/command checks: their values
// routinely contain keywords (q-factors, MIME types, tool banners) that
// trip the rule set on legitimate traffic.
var safeHeaders = map[string]struct{}{
	"accept":                    {},
	"accept-encoding":           {},
	"accept-language":           {},
	"cache-control":             {},
	"connection":                {},
	"content-type":              {},
	"content-length":            {},
	"host":                      {},
	"referer":                   {},
	"origin":                    {},
	"upgrade-insecure-requests": {},
}

var legitimateUserAgents = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^curl/\d+\.\d+`),
	regexp.MustCompile(`(?i)^wget/\d+\.\d+`),
	regexp.MustCompile(`(?i)^python-requests/\d+\.\d+`),
	regexp.MustCompile(`(?i)^PostmanRuntime/\d+\.\d+`),
	regexp.MustCompile(`(?i)^insomnia/\d+`),
	regexp.MustCompile(`(?i)^httpie/\d+`),
	regexp.MustCompile(`(?i)^Go-http-client/\d+`),
	regexp.MustCompile(`(?i)^Mozilla/`),
	regexp.MustCompile(`(?i)^Opera/`),
	regexp.MustCompile(`(?i)^Safari/`),
	regexp.MustCompile(`(?i)^Chrome/`),
	regexp.MustCompile(`(?i)^Firefox/`),
	regexp.MustCompile(`(?i)^Edge/`),
}

type ClassifierOpts struct {
	TimeProvider func() time.Time
}

// Classifier runs the pattern library over request content. It holds no
// per-request state and is safe for concurrent use.
type Classifier struct {
	library      *Library
	logger       *logrus.Logger
	timeProvider func() time.Time
}

func NewClassifier(library *Library, logger *logrus.Logger, opts *ClassifierOpts) *Classifier {
	timeProvider := time.Now
	if opts != nil && opts.TimeProvider != nil {
		timeProvider = opts.TimeProvider
	}
	return &Classifier{
		library:      library,
		logger:       logger,
		timeProvider: timeProvider,
	}
}

// Scan evaluates every category against content. Within a category the
// first matching pattern wins; categories are independent, so one piece
// of content can produce several matches. Results come back ordered by
// descending severity.
func (c *Classifier) Scan(content string) []Match {
	return c.scan(content, nil)
}

// ScanRelaxed checks only the command-injection subset. Used for
// endpoints that legitimately carry free-form text (AI chat, RAG
// queries) where the full rule set is all false positives.
func (c *Classifier) ScanRelaxed(content string) []Match {
	return c.scan(content, map[Category]struct{}{CommandInjection: {}})
}

// ScanHeaders runs the full set over header values, skipping the safe
// allowlist and User-Agent values that look like a known tool or
// browser banner.
func (c *Classifier) ScanHeaders(headers map[string][]string) []Match {
	var matches []Match
	for name, values := range headers {
		nameLower := strings.ToLower(name)
		if _, ok := safeHeaders[nameLower]; ok {
			continue
		}
		for _, value := range values {
			if nameLower == "user-agent" && IsLegitimateUserAgent(value) {
				continue
			}
			matches = append(matches, c.scan(value, nil)...)
		}
	}
	sortBySeverity(matches)
	return matches
}

// ScanBody scans raw body bytes. Bytes that do not form valid UTF-8 are
// scanned as-is (the patterns are byte-oriented); a nil or empty body
// yields no matches. When the body parses as JSON every nested string
// value and object key is scanned individually as well, so payloads
// smuggled inside JSON fields are still caught.
func (c *Classifier) ScanBody(body []byte, relaxed bool) []Match {
	if len(body) == 0 {
		return nil
	}
	only := map[Category]struct{}(nil)
	if relaxed {
		only = map[Category]struct{}{CommandInjection: {}}
	}

	matches := c.scan(string(body), only)

	if v, err := fastjson.ParseBytes(body); err == nil {
		matches = append(matches, c.scanJSONValue(v, only)...)
	}
	matches = dedupeByPattern(matches)
	sortBySeverity(matches)
	return matches
}

func (c *Classifier) scanJSONValue(v *fastjson.Value, only map[Category]struct{}) []Match {
	var matches []Match
	switch v.Type() {
	case fastjson.TypeObject:
		obj, err := v.Object()
		if err != nil {
			return nil
		}
		obj.Visit(func(key []byte, value *fastjson.Value) {
			matches = append(matches, c.scan(string(key), only)...)
			matches = append(matches, c.scanJSONValue(value, only)...)
		})
	case fastjson.TypeArray:
		items, err := v.Array()
		if err != nil {
			return nil
		}
		for _, item := range items {
			matches = append(matches, c.scanJSONValue(item, only)...)
		}
	case fastjson.TypeString:
		matches = c.scan(string(v.GetStringBytes()), only)
	}
	return matches
}

func (c *Classifier) scan(content string, only map[Category]struct{}) []Match {
	if content == "" {
		return nil
	}
	var matches []Match
	for _, rules := range c.library.rules {
		if only != nil {
			if _, ok := only[rules.category]; !ok {
				continue
			}
		}
		for _, p := range rules.patterns {
			if p.re.MatchString(content) {
				matches = append(matches, Match{
					Category:  rules.category,
					Severity:  rules.severity,
					PatternID: p.id,
					Sample:    truncate(content, 100),
					Timestamp: c.timeProvider(),
				})
				break
			}
		}
	}
	sortBySeverity(matches)
	return matches
}

// IsLegitimateUserAgent reports whether a User-Agent value matches a
// known tool or browser signature, e.g. "curl/8.16.0".
func IsLegitimateUserAgent(ua string) bool {
	for _, re := range legitimateUserAgents {
		if re.MatchString(ua) {
			return true
		}
	}
	return false
}

func sortBySeverity(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Severity > matches[j].Severity
	})
}

// dedupeByPattern keeps the first match per pattern ID; the raw-body
// scan and the JSON walk frequently report the same rule twice.
func dedupeByPattern(matches []Match) []Match {
	seen := make(map[string]struct{}, len(matches))
	out := matches[:0]
	for _, m := range matches {
		if _, ok := seen[m.PatternID]; ok {
			continue
		}
		seen[m.PatternID] = struct{}{}
		out = append(out, m)
	}
	return out
}

// truncate caps s at n bytes without splitting a rune; samples flow
// into JSON response bodies and exports and must stay valid UTF-8.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
