// Package toolpipeline wraps the teacher's agent.Tool registry with the
// three-stage input filter (deny-substrings, deny-patterns, allow-patterns),
// directory scoping for path-taking tools, and JSON-Schema argument
// validation. Ported from original_source's agent::tool_filters,
// agent::hardcoded_filters, and agent::path_utils.
package toolpipeline

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/haasonsaas/nexus/internal/coreerrors"
)

// Filter is the configuration shape loaded from YAML, one per tool name.
type Filter struct {
	DenyPatterns   []string `json:"deny_patterns,omitempty" yaml:"denyPatterns"`
	AllowPatterns  []string `json:"allow_patterns,omitempty" yaml:"allowPatterns"`
	DenySubstrings []string `json:"deny_substrings,omitempty" yaml:"denySubstrings"`
}

// CompiledFilter is a Filter with its regexes pre-built at startup, so a
// malformed pattern fails fast rather than on every tool call.
type CompiledFilter struct {
	denyPatterns   []namedPattern
	allowPatterns  []namedPattern
	denySubstrings []string
}

type namedPattern struct {
	source string
	re     *regexp.Regexp
}

// Compile builds a CompiledFilter, returning an error on the first
// malformed regex.
func Compile(f Filter) (*CompiledFilter, error) {
	deny, err := compilePatterns(f.DenyPatterns)
	if err != nil {
		return nil, fmt.Errorf("compile deny patterns: %w", err)
	}
	allow, err := compilePatterns(f.AllowPatterns)
	if err != nil {
		return nil, fmt.Errorf("compile allow patterns: %w", err)
	}
	return &CompiledFilter{
		denyPatterns:   deny,
		allowPatterns:  allow,
		denySubstrings: append([]string{}, f.DenySubstrings...),
	}, nil
}

func compilePatterns(patterns []string) ([]namedPattern, error) {
	out := make([]namedPattern, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", p, err)
		}
		out = append(out, namedPattern{source: p, re: re})
	}
	return out, nil
}

// Permissive returns a CompiledFilter with no rules, permitting everything.
func Permissive() *CompiledFilter {
	return &CompiledFilter{}
}

// IsEmpty reports whether the filter has no rules at all.
func (f *CompiledFilter) IsEmpty() bool {
	return len(f.denyPatterns) == 0 && len(f.allowPatterns) == 0 && len(f.denySubstrings) == 0
}

// Check evaluates value against the filter in the fixed three-stage order:
// deny-substrings, deny-patterns, then allow-patterns (only if non-empty).
// toolName and fieldName are used only to build a readable Denied reason.
func (f *CompiledFilter) Check(value, toolName, fieldName string) error {
	lower := strings.ToLower(value)

	for _, sub := range f.denySubstrings {
		if strings.Contains(lower, strings.ToLower(sub)) {
			return coreerrors.Denied(fmt.Sprintf("%s contains denied substring %q", fieldName, sub))
		}
	}

	for _, p := range f.denyPatterns {
		if p.re.MatchString(value) {
			return coreerrors.Denied(fmt.Sprintf("%s matches denied pattern %q", fieldName, p.source))
		}
	}

	if len(f.allowPatterns) > 0 {
		allowed := false
		for _, p := range f.allowPatterns {
			if p.re.MatchString(value) {
				allowed = true
				break
			}
		}
		if !allowed {
			return coreerrors.Denied(fmt.Sprintf("%s does not match any allowed pattern", fieldName))
		}
	}

	return nil
}

// MergeHardcoded adds hardcoded deny defaults to f, deduplicating against
// rules already present (substrings compared case-insensitively, patterns
// compared by source string). Hardcoded entries can never be removed by
// configuration — this is the one-way merge that enforces that.
func (f *CompiledFilter) MergeHardcoded(denySubstrings, denyPatterns []string) error {
	existingSubs := make(map[string]bool, len(f.denySubstrings))
	for _, s := range f.denySubstrings {
		existingSubs[strings.ToLower(s)] = true
	}
	for _, s := range denySubstrings {
		if !existingSubs[strings.ToLower(s)] {
			f.denySubstrings = append(f.denySubstrings, s)
			existingSubs[strings.ToLower(s)] = true
		}
	}

	existingPatterns := make(map[string]bool, len(f.denyPatterns))
	for _, p := range f.denyPatterns {
		existingPatterns[p.source] = true
	}
	for _, p := range denyPatterns {
		if existingPatterns[p] {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("bad hardcoded deny pattern %q: %w", p, err)
		}
		f.denyPatterns = append(f.denyPatterns, namedPattern{source: p, re: re})
		existingPatterns[p] = true
	}
	return nil
}
