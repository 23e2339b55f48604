package guardrails

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// PIIMode selects how detected PII is rewritten.
type PIIMode int

const (
	// PIIMask keeps a recognizable remnant, e.g. the last four digits of
	// a card number or the domain of an email address.
	PIIMask PIIMode = iota
	// PIIRedact replaces the match with a tag such as "[EMAIL]".
	PIIRedact
)

// PIIType categorizes detected personal data.
type PIIType string

const (
	PIITypeEmail      PIIType = "email"
	PIITypePhone      PIIType = "phone"
	PIITypeSSN        PIIType = "ssn"
	PIITypeCreditCard PIIType = "credit_card"
	PIITypeIPAddress  PIIType = "ip_address"
	PIITypeAPIKey     PIIType = "api_key"
)

// piiPattern binds one detector to its type. The slice order is the
// match priority: broader numeric patterns like phone must come after
// card and SSN so the longer match claims the span first.
type piiPattern struct {
	typ PIIType
	re  *regexp.Regexp
}

var defaultPIIPatterns = []piiPattern{
	{PIITypeAPIKey, regexp.MustCompile(`(?i)\b(?:sk|pk)-[a-z0-9_-]{20,}\b`)},
	{PIITypeAPIKey, regexp.MustCompile(`(?i)\bbearer\s+[a-z0-9._~+/-]{20,}=*`)},
	{PIITypeCreditCard, regexp.MustCompile(`\b(?:\d{4}[- ]?){3}\d{4}\b`)},
	{PIITypeSSN, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
	{PIITypeEmail, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
	{PIITypeIPAddress, regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	{PIITypePhone, regexp.MustCompile(`\b(?:\+?1[-. ]?)?\(?\d{3}\)?[-. ]?\d{3}[-. ]?\d{4}\b`)},
}

// redactTags are the PIIRedact replacements.
var redactTags = map[PIIType]string{
	PIITypeEmail:      "[EMAIL]",
	PIITypePhone:      "[PHONE]",
	PIITypeSSN:        "[SSN]",
	PIITypeCreditCard: "[CREDIT_CARD]",
	PIITypeIPAddress:  "[IP_ADDRESS]",
	PIITypeAPIKey:     "[API_KEY]",
}

// PIIFilter detects personal data in text. As an OutputFilter it
// rewrites matches; as an InputChecker it blocks them.
type PIIFilter struct {
	mode     PIIMode
	patterns []piiPattern
}

// PIIFilterOption configures a PIIFilter.
type PIIFilterOption func(*PIIFilter)

// NewPIIFilter builds a filter covering all PII types in the given mode.
func NewPIIFilter(mode PIIMode, opts ...PIIFilterOption) *PIIFilter {
	f := &PIIFilter{
		mode:     mode,
		patterns: defaultPIIPatterns,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WithPIITypes restricts detection to the given types.
func WithPIITypes(types ...PIIType) PIIFilterOption {
	return func(f *PIIFilter) {
		want := make(map[PIIType]bool, len(types))
		for _, t := range types {
			want[t] = true
		}
		kept := make([]piiPattern, 0, len(f.patterns))
		for _, p := range f.patterns {
			if want[p.typ] {
				kept = append(kept, p)
			}
		}
		f.patterns = kept
	}
}

// WithPIIPattern adds a custom detector for a type. Invalid patterns
// are ignored. Custom patterns match after the built-ins.
func WithPIIPattern(typ PIIType, pattern string) PIIFilterOption {
	return func(f *PIIFilter) {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return
		}
		f.patterns = append(f.patterns, piiPattern{typ: typ, re: re})
	}
}

// ID implements InputChecker and OutputFilter.
func (f *PIIFilter) ID() string { return "pii-filter" }

// piiMatch is one claimed span in the scanned text.
type piiMatch struct {
	typ        PIIType
	start, end int
}

// findMatches scans in priority order. A span claimed by an earlier
// pattern is skipped by later ones, so a card number is never also
// reported as a phone number.
func (f *PIIFilter) findMatches(text string) []piiMatch {
	var matches []piiMatch
	overlaps := func(start, end int) bool {
		for _, m := range matches {
			if start < m.end && end > m.start {
				return true
			}
		}
		return false
	}

	for _, p := range f.patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			if overlaps(loc[0], loc[1]) {
				continue
			}
			matches = append(matches, piiMatch{typ: p.typ, start: loc[0], end: loc[1]})
		}
	}
	return matches
}

// FilterOutput implements OutputFilter. Replacements run back to front
// so earlier match offsets stay valid; Redaction positions refer to the
// text as this filter received it, and the matched text itself is not
// recorded.
func (f *PIIFilter) FilterOutput(_ context.Context, output string) FilterResult {
	matches := f.findMatches(output)
	if len(matches) == 0 {
		return FilterResult{Content: output}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].start > matches[j].start })

	content := output
	redactions := make([]Redaction, 0, len(matches))
	for _, m := range matches {
		replacement := f.replacement(m.typ, content[m.start:m.end])
		content = content[:m.start] + replacement + content[m.end:]
		redactions = append(redactions, Redaction{
			Type:        string(m.typ),
			Replacement: replacement,
			Position:    m.start,
		})
	}

	sort.Slice(redactions, func(i, j int) bool { return redactions[i].Position < redactions[j].Position })

	return FilterResult{Content: content, Modified: true, Redactions: redactions}
}

// replacement produces the rewritten text for one match.
func (f *PIIFilter) replacement(typ PIIType, match string) string {
	if f.mode == PIIRedact {
		return redactTags[typ]
	}

	switch typ {
	case PIITypeEmail:
		if at := strings.IndexByte(match, '@'); at > 0 {
			return match[:1] + strings.Repeat("*", at-1) + match[at:]
		}
	case PIITypeCreditCard, PIITypePhone, PIITypeSSN:
		digits := 0
		for _, r := range match {
			if r >= '0' && r <= '9' {
				digits++
			}
		}
		if digits > 4 {
			return strings.Repeat("*", len(match)-4) + match[len(match)-4:]
		}
	}
	return strings.Repeat("*", len(match))
}

// CheckInput implements InputChecker. Any detected PII blocks.
func (f *PIIFilter) CheckInput(_ context.Context, input string) CheckResult {
	matches := f.findMatches(input)
	if len(matches) == 0 {
		return CheckResult{}
	}
	return CheckResult{
		Blocked:     true,
		Reason:      fmt.Sprintf("input contains %s", matches[0].typ),
		GuardrailID: f.ID(),
	}
}

// WithPIIFilter installs a PII output filter.
func WithPIIFilter(mode PIIMode, opts ...PIIFilterOption) Option {
	return WithOutputFilter(NewPIIFilter(mode, opts...))
}

// WithPIIInputChecker blocks input that contains PII.
func WithPIIInputChecker(opts ...PIIFilterOption) Option {
	return WithInputChecker(NewPIIFilter(PIIRedact, opts...))
}
