// Package privacy decides whether a capture may be processed and whether
// its recognised text must be discarded.
package privacy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/harun/alexandria/pkg/compositor"
	"golang.org/x/text/cases"
)

// Decision is the privacy verdict for one tick
type Decision int

const (
	// Allow lets the capture through untouched
	Allow Decision = iota
	// Redact keeps the capture but drops its text and tags
	Redact
	// Deny skips the capture entirely
	Deny
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Redact:
		return "redact"
	case Deny:
		return "deny"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Verdict is a decision plus the rule that produced it.
type Verdict struct {
	Decision Decision
	Rule     string
}

// Rules configures the filter
type Rules struct {
	// ExcludeWindows entries are matched case-insensitively as substrings
	// of the application id, the window class and the window title.
	ExcludeWindows []string
	// RedactSensitive enables content inspection.
	RedactSensitive bool
	// SensitiveKeywords extend the built-in keyword list.
	SensitiveKeywords []string
	// SensitivePatterns are extra regular expressions.
	SensitivePatterns []string
}

// Filter evaluates privacy rules. It is immutable after construction and
// safe for concurrent use.
type Filter struct {
	exclusions []string
	redact     bool
	keywords   []*regexp.Regexp
	patterns   []*regexp.Regexp
}

// NewFilter compiles rules into a filter.
func NewFilter(rules Rules) (*Filter, error) {
	f := &Filter{
		redact: rules.RedactSensitive,
	}

	for _, e := range rules.ExcludeWindows {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		f.exclusions = append(f.exclusions, fold(e))
	}

	keywords := append(append([]string{}, defaultKeywords...), rules.SensitiveKeywords...)
	for _, kw := range keywords {
		re, err := keywordPattern(kw)
		if err != nil {
			return nil, fmt.Errorf("invalid sensitive keyword %q: %w", kw, err)
		}
		f.keywords = append(f.keywords, re)
	}

	for _, p := range rules.SensitivePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid sensitive pattern %s: %w", p, err)
		}
		f.patterns = append(f.patterns, re)
	}

	return f, nil
}

// Evaluate is the pre-capture check. A nil context cannot match any
// exclusion and is allowed.
func (f *Filter) Evaluate(wc *compositor.WindowContext) Decision {
	return f.Check(wc).Decision
}

// Check is Evaluate with the matching rule attached.
func (f *Filter) Check(wc *compositor.WindowContext) Verdict {
	if wc == nil || len(f.exclusions) == 0 {
		return Verdict{Decision: Allow}
	}

	fields := make([]string, 0, 3)
	if wc.AppID != nil {
		fields = append(fields, fold(*wc.AppID))
	}
	if wc.Class != nil {
		fields = append(fields, fold(*wc.Class))
	}
	if wc.Title != nil {
		fields = append(fields, fold(*wc.Title))
	}

	for _, excl := range f.exclusions {
		for _, field := range fields {
			if strings.Contains(field, excl) {
				return Verdict{Decision: Deny, Rule: "exclude:" + excl}
			}
		}
	}
	return Verdict{Decision: Allow}
}

// EvaluateContent is the post-recognition check on extracted text.
func (f *Filter) EvaluateContent(text string) Decision {
	return f.CheckContent(text).Decision
}

// CheckContent is EvaluateContent with the matching rule attached.
func (f *Filter) CheckContent(text string) Verdict {
	if !f.redact || strings.TrimSpace(text) == "" {
		return Verdict{Decision: Allow}
	}

	for _, re := range f.keywords {
		if re.MatchString(text) {
			return Verdict{Decision: Redact, Rule: "keyword"}
		}
	}
	if containsCardNumber(text) {
		return Verdict{Decision: Redact, Rule: "card-number"}
	}
	if ssnPattern.MatchString(text) {
		return Verdict{Decision: Redact, Rule: "ssn"}
	}
	for i, re := range f.patterns {
		if re.MatchString(text) {
			return Verdict{Decision: Redact, Rule: fmt.Sprintf("pattern#%d", i+1)}
		}
	}

	return Verdict{Decision: Allow}
}

// fold applies Unicode case folding. Casers carry state, so each call
// gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}
