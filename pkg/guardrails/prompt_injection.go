package guardrails

import (
	"context"
	"fmt"
	"regexp"
)

// injectionPattern names one injection technique and its detector.
type injectionPattern struct {
	technique string
	re        *regexp.Regexp
}

var defaultInjectionPatterns = []injectionPattern{
	{"instruction override", regexp.MustCompile(`(?i)\b(ignore|disregard|forget|override)\s+(all\s+|any\s+)?(previous|prior|above|earlier|your)\s+(instructions?|prompts?|rules?|directives?|guidelines?)`)},
	{"instruction override", regexp.MustCompile(`(?i)\bnew\s+instructions?\s*[:：]`)},
	{"role manipulation", regexp.MustCompile(`(?i)\b(you are now|act as|pretend (to be|you are)|roleplay as)\s+(an?\s+)?(different|new|unrestricted|uncensored)`)},
	{"role manipulation", regexp.MustCompile(`(?i)\bfrom now on,?\s+you\s+(are|will be|must act)`)},
	{"system prompt extraction", regexp.MustCompile(`(?i)\b(reveal|show|print|repeat|output|display)\s+(me\s+)?(your|the)\s+(system\s+)?(prompt|instructions?|rules?)`)},
	{"system prompt extraction", regexp.MustCompile(`(?i)\bwhat\s+(is|were|are)\s+your\s+(original\s+)?(system\s+)?(prompt|instructions?)`)},
	{"jailbreak", regexp.MustCompile(`(?i)\b(DAN|do anything now|jailbreak|developer\s+mode|god\s+mode)\b`)},
	{"jailbreak", regexp.MustCompile(`(?i)\bwithout\s+(any\s+)?(restrictions?|limitations?|filters?|censorship)\b`)},
	{"delimiter escape", regexp.MustCompile("(?i)(```|<\\|im_start\\|>|<\\|im_end\\|>|\\[INST\\]|\\[/INST\\])\\s*(system|assistant)\\b")},
	{"encoded payload", regexp.MustCompile(`(?i)\b(decode|execute|eval)\s+(this|the following)\s+(base64|hex|rot13)\b`)},
}

// PromptInjectionDetector flags input that tries to subvert the agent's
// instructions. Pattern-based: it catches common techniques, not a
// determined adversary.
type PromptInjectionDetector struct {
	patterns []injectionPattern
}

// PromptInjectionOption configures a PromptInjectionDetector.
type PromptInjectionOption func(*PromptInjectionDetector)

// NewPromptInjectionDetector builds a detector with the built-in
// technique patterns.
func NewPromptInjectionDetector(opts ...PromptInjectionOption) *PromptInjectionDetector {
	d := &PromptInjectionDetector{patterns: defaultInjectionPatterns}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WithInjectionPattern adds a custom detector under the given technique
// name. Invalid patterns are ignored.
func WithInjectionPattern(technique, pattern string) PromptInjectionOption {
	return func(d *PromptInjectionDetector) {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return
		}
		d.patterns = append(d.patterns, injectionPattern{technique: technique, re: re})
	}
}

// ID implements InputChecker.
func (d *PromptInjectionDetector) ID() string { return "prompt-injection" }

// CheckInput implements InputChecker. The first matching technique
// blocks.
func (d *PromptInjectionDetector) CheckInput(_ context.Context, input string) CheckResult {
	for _, p := range d.patterns {
		if p.re.MatchString(input) {
			return CheckResult{
				Blocked:     true,
				Reason:      fmt.Sprintf("possible prompt injection: %s", p.technique),
				GuardrailID: d.ID(),
			}
		}
	}
	return CheckResult{}
}

// WithPromptInjectionDetector installs the injection detector.
func WithPromptInjectionDetector(opts ...PromptInjectionOption) Option {
	return WithInputChecker(NewPromptInjectionDetector(opts...))
}
