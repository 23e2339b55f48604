package guardrails

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// ContentCategory identifies a class of disallowed content.
type ContentCategory string

const (
	CategorySelfHarm   ContentCategory = "self_harm"
	CategoryViolence   ContentCategory = "violence"
	CategoryMalware    ContentCategory = "malware"
	CategoryIllegal    ContentCategory = "illegal_activity"
	CategoryHarassment ContentCategory = "harassment"
	CategoryHate       ContentCategory = "hate"
	CategorySexual     ContentCategory = "sexual"
	CategorySpam       ContentCategory = "spam"
)

// defaultContentPatterns hold the built-in detectors. Categories without
// an entry are only active through custom patterns or keywords.
var defaultContentPatterns = map[ContentCategory][]*regexp.Regexp{
	CategorySelfHarm: {
		regexp.MustCompile(`(?i)\b(how to|ways to|methods? (of|for))\s+(commit suicide|kill (myself|yourself)|self[- ]harm)`),
		regexp.MustCompile(`(?i)\b(suicide|self[- ]harm)\s+(methods?|instructions?|techniques?)\b`),
	},
	CategoryViolence: {
		regexp.MustCompile(`(?i)\bhow to\s+(build|make|construct)\s+(a\s+)?(bomb|explosive|weapon)\b`),
		regexp.MustCompile(`(?i)\b(plan|planning|instructions?)\s+(to|for)\s+(attack|kill|harm)\s+\w+`),
	},
	CategoryMalware: {
		regexp.MustCompile(`(?i)\b(write|create|generate)\s+(a\s+)?(virus|malware|ransomware|keylogger|trojan)\b`),
		regexp.MustCompile(`(?i)\b(exploit|payload)\s+(to|for)\s+(compromise|infect|backdoor)\b`),
	},
	CategoryIllegal: {
		regexp.MustCompile(`(?i)\bhow to\s+(buy|sell|make|synthesize)\s+(illegal\s+)?(drugs|narcotics|meth|fentanyl)\b`),
		regexp.MustCompile(`(?i)\b(launder|laundering)\s+money\b`),
		regexp.MustCompile(`(?i)\b(forge|counterfeit)\s+(documents?|currency|passports?)\b`),
	},
	CategoryHarassment: {
		regexp.MustCompile(`(?i)\b(dox|doxx|doxxing)\b`),
		regexp.MustCompile(`(?i)\b(stalk|harass|intimidate)\s+(him|her|them|someone|a person)\b`),
	},
}

// ContentFilter blocks input that matches disallowed content categories.
type ContentFilter struct {
	patterns map[ContentCategory][]*regexp.Regexp
	keywords map[ContentCategory][]string
}

// ContentFilterOption configures a ContentFilter.
type ContentFilterOption func(*ContentFilter)

// NewContentFilter builds a filter for the given categories using the
// built-in patterns. With no categories it covers every category that
// has built-in patterns.
func NewContentFilter(categories ...ContentCategory) *ContentFilter {
	f := &ContentFilter{
		patterns: make(map[ContentCategory][]*regexp.Regexp),
		keywords: make(map[ContentCategory][]string),
	}

	if len(categories) == 0 {
		for category, patterns := range defaultContentPatterns {
			f.patterns[category] = patterns
		}
		return f
	}

	for _, category := range categories {
		if patterns, ok := defaultContentPatterns[category]; ok {
			f.patterns[category] = patterns
		}
	}
	return f
}

// WithContentPattern adds a custom pattern to a category. Invalid
// patterns are ignored.
func WithContentPattern(category ContentCategory, pattern string) ContentFilterOption {
	return func(f *ContentFilter) {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return
		}
		f.patterns[category] = append(f.patterns[category], re)
	}
}

// WithContentKeywords adds case-insensitive keyword matches to a
// category.
func WithContentKeywords(category ContentCategory, keywords ...string) ContentFilterOption {
	return func(f *ContentFilter) {
		for _, kw := range keywords {
			f.keywords[category] = append(f.keywords[category], strings.ToLower(kw))
		}
	}
}

// ID implements InputChecker.
func (f *ContentFilter) ID() string { return "content-filter" }

// CheckInput implements InputChecker. The first matching category blocks.
func (f *ContentFilter) CheckInput(_ context.Context, input string) CheckResult {
	for category, patterns := range f.patterns {
		for _, re := range patterns {
			if re.MatchString(input) {
				return CheckResult{
					Blocked:     true,
					Reason:      fmt.Sprintf("content matches disallowed category %q", category),
					GuardrailID: f.ID(),
				}
			}
		}
	}

	if len(f.keywords) > 0 {
		lower := strings.ToLower(input)
		for category, keywords := range f.keywords {
			for _, kw := range keywords {
				if strings.Contains(lower, kw) {
					return CheckResult{
						Blocked:     true,
						Reason:      fmt.Sprintf("content matches disallowed category %q", category),
						GuardrailID: f.ID(),
					}
				}
			}
		}
	}

	return CheckResult{}
}

// WithContentFilter installs a content filter over the given categories.
func WithContentFilter(categories ...ContentCategory) Option {
	return WithInputChecker(NewContentFilter(categories...))
}

// WithContentFilterOptions installs a customized content filter.
func WithContentFilterOptions(categories []ContentCategory, opts ...ContentFilterOption) Option {
	f := NewContentFilter(categories...)
	for _, opt := range opts {
		opt(f)
	}
	return WithInputChecker(f)
}
