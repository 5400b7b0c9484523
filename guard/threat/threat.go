package threat

import (
	"html"
	"net/url"
	"regexp"
	"strings"
)

// Pattern family names, reported with detection events.
const (
	FamilySQL       = "sql_injection"
	FamilyXSS       = "xss"
	FamilyTraversal = "path_traversal"
)

// pre-compiled for performance
var (
	sqlPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|EXEC|UNION)\b`),
		regexp.MustCompile(`--|#|/\*|\*/`),
		regexp.MustCompile(`(?i)\b(OR|AND)\s+\d+\s*=\s*\d+`),
		regexp.MustCompile(`(?i)'\s*(OR|AND)\s*'\w*'\s*=\s*'\w*`),
	}

	xssPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`),
		regexp.MustCompile(`(?i)javascript:`),
		regexp.MustCompile(`(?i)on\w+\s*=`),
		regexp.MustCompile(`(?is)<iframe[^>]*>.*?</iframe>`),
		regexp.MustCompile(`(?is)<object[^>]*>.*?</object>`),
		regexp.MustCompile(`(?is)<embed[^>]*>.*?</embed>`),
	}

	traversalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\.\./`),
		regexp.MustCompile(`\.\.\\`),
		regexp.MustCompile(`(?i)%2e%2e%2f`),
		regexp.MustCompile(`(?i)%2e%2e\\`),
	}
)

// Detector matches request input against known attack signatures. It is
// stateless; one instance serves arbitrarily many goroutines.
type Detector struct{}

// NewDetector creates a threat detector.
func NewDetector() *Detector {
	return &Detector{}
}

func matchAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Scan checks text against the SQL-injection, XSS, and path-traversal
// families, in that order. The first match short-circuits the rest; any
// match is reported identically.
func (d *Detector) Scan(text string) bool {
	family := d.Classify(text)
	return family != ""
}

// Classify is Scan with the matching family name, for event details.
// Returns "" when text is clean.
func (d *Detector) Classify(text string) string {
	lower := strings.ToLower(text)
	if matchAny(sqlPatterns, lower) {
		return FamilySQL
	}
	if matchAny(xssPatterns, lower) {
		return FamilyXSS
	}
	if matchAny(traversalPatterns, lower) {
		return FamilyTraversal
	}
	return ""
}

// ScanPath checks a request path for traversal sequences only.
func (d *Detector) ScanPath(path string) bool {
	return matchAny(traversalPatterns, strings.ToLower(path))
}

// ScanValues checks every query-parameter value against all three
// families. Returns the offending parameter and family on a match.
func (d *Detector) ScanValues(values url.Values) (param, family string, found bool) {
	for key, vals := range values {
		for _, v := range vals {
			if f := d.Classify(v); f != "" {
				return key, f, true
			}
		}
	}
	return "", "", false
}

// Sanitize escapes markup, removes null bytes, and strips control
// characters except newline and tab. For fields the application elects
// to clean instead of reject. It never fails.
func Sanitize(text string) string {
	s := html.EscapeString(text)
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.Map(func(r rune) rune {
		if r >= 32 || r == '\n' || r == '\t' {
			return r
		}
		return -1
	}, s)
	return s
}
