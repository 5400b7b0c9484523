package threat

import (
	"net/url"
	"testing"
)

func TestClassify(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name   string
		input  string
		family string
	}{
		{"clean text", "john.doe@example.com", ""},
		{"clean numbers", "price=19.99 qty=5", ""},
		{"union select", "1 UNION SELECT * FROM users", FamilySQL},
		{"drop table", "1; DROP TABLE candidates", FamilySQL},
		{"comment injection", "admin'--", FamilySQL},
		{"boolean tautology", "1 OR 1=1", FamilySQL},
		{"quoted tautology", "' or 'a'='a", FamilySQL},
		{"script tag", "<script>alert(1)</script>", FamilyXSS},
		{"javascript scheme", "javascript:alert(document.cookie)", FamilyXSS},
		{"event handler", "<img src=x onerror=alert(1)>", FamilyXSS},
		{"iframe", "<iframe src=\"http://evil\"></iframe>", FamilyXSS},
		{"dotdot slash", "../../etc/passwd", FamilyTraversal},
		{"dotdot backslash", "..\\..\\windows\\system32", FamilyTraversal},
		{"encoded traversal", "%2e%2e%2fetc%2fpasswd", FamilyTraversal},
		{"mixed case sql", "uNiOn SeLeCt password", FamilySQL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.Classify(tt.input); got != tt.family {
				t.Errorf("Classify(%q) = %q, want %q", tt.input, got, tt.family)
			}
			if got := d.Scan(tt.input); got != (tt.family != "") {
				t.Errorf("Scan(%q) = %v, want %v", tt.input, got, tt.family != "")
			}
		})
	}
}

func TestFamilyOrder(t *testing.T) {
	d := NewDetector()

	// Matches both the SQL and XSS families; SQL is checked first.
	payload := "<script>SELECT * FROM users</script>"
	if got := d.Classify(payload); got != FamilySQL {
		t.Errorf("Classify(%q) = %q, want %q (families checked in fixed order)", payload, got, FamilySQL)
	}
}

func TestScanPath(t *testing.T) {
	d := NewDetector()

	if !d.ScanPath("/files/../../etc/shadow") {
		t.Error("traversal in path not detected")
	}
	// The path check only covers the traversal family.
	if d.ScanPath("/search?q=SELECT") {
		t.Error("path scan should ignore SQL tokens")
	}
	if d.ScanPath("/api/candidates/42") {
		t.Error("clean path flagged")
	}
}

func TestScanValues(t *testing.T) {
	d := NewDetector()

	values := url.Values{
		"name": {"alice"},
		"q":    {"' OR '1'='1"},
	}
	param, family, found := d.ScanValues(values)
	if !found {
		t.Fatal("malicious query value not detected")
	}
	if param != "q" || family != FamilySQL {
		t.Errorf("got param=%q family=%q, want q/%s", param, family, FamilySQL)
	}

	if _, _, found := d.ScanValues(url.Values{"name": {"alice"}, "page": {"2"}}); found {
		t.Error("clean values flagged")
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"escapes markup", `<b onclick="x">hi</b>`, "&lt;b onclick=&#34;x&#34;&gt;hi&lt;/b&gt;"},
		{"removes null bytes", "a\x00b", "ab"},
		{"strips control chars", "a\x01\x02b", "ab"},
		{"keeps newline and tab", "line1\n\tline2", "line1\n\tline2"},
		{"plain text untouched", "Jane Doe, Senior Engineer", "Jane Doe, Senior Engineer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.expected {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
