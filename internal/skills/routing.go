package skills

import (
	"regexp"
	"strings"
)

// RoutingCondition decides whether a skill applies to a given message. A
// condition is either a bare substring shorthand or the explicit form
// below; both are expressed through ComplexCondition so the YAML loader
// need not distinguish them at the type level.
type RoutingCondition struct {
	Contains string `json:"contains,omitempty" yaml:"contains"`
	Matches  string `json:"matches,omitempty" yaml:"matches"`
	Channel  string `json:"channel,omitempty" yaml:"channel"`
	HasTool  string `json:"hasTool,omitempty" yaml:"hasTool"`

	compiledMatches *regexp.Regexp
}

// RoutingContext carries the information a RoutingCondition is evaluated
// against: the inbound message, the front-end channel it arrived on, and
// the set of tool names currently available to the session.
type RoutingContext struct {
	Message string
	Channel string
	Tools   map[string]bool
}

// Matches reports whether cond applies to ctx. Every non-empty field of
// cond must hold (conjunction); Contains and Matches are both
// case-insensitive substring/regex checks against ctx.Message.
func (cond *RoutingCondition) Matches(ctx RoutingContext) bool {
	if cond.Contains != "" {
		if !strings.Contains(strings.ToLower(ctx.Message), strings.ToLower(cond.Contains)) {
			return false
		}
	}
	if cond.Matches != "" {
		re := cond.compiledMatches
		if re == nil {
			compiled, err := regexp.Compile(cond.Matches)
			if err != nil {
				return false
			}
			re = compiled
			cond.compiledMatches = compiled
		}
		if !re.MatchString(ctx.Message) {
			return false
		}
	}
	if cond.Channel != "" && !strings.EqualFold(cond.Channel, ctx.Channel) {
		return false
	}
	if cond.HasTool != "" && !ctx.Tools[cond.HasTool] {
		return false
	}
	return true
}

// CommandDispatch routes a slash-command invocation straight to a tool
// call, bypassing the model entirely.
type CommandDispatch struct {
	Kind     string `json:"kind" yaml:"kind"`
	ToolName string `json:"toolName" yaml:"toolName"`
}

// Routing is the per-skill routing configuration layered on top of
// SkillMetadata: use_when/dont_use_when gating and optional direct
// command dispatch. Kept separate from SkillMetadata so existing gating
// (binary/env/config requirements) is untouched.
type Routing struct {
	UseWhen         []RoutingCondition `json:"useWhen,omitempty" yaml:"useWhen"`
	DontUseWhen     []RoutingCondition `json:"dontUseWhen,omitempty" yaml:"dontUseWhen"`
	CommandDispatch *CommandDispatch   `json:"commandDispatch,omitempty" yaml:"commandDispatch"`
}

// ShouldUse decides whether a skill applies to the current message,
// matching any dontUseWhen condition skips the skill outright; an empty
// useWhen list is backward compatible and always allows the skill;
// otherwise at least one useWhen condition must match.
func (r *Routing) ShouldUse(ctx RoutingContext) bool {
	if r == nil {
		return true
	}
	for i := range r.DontUseWhen {
		if r.DontUseWhen[i].Matches(ctx) {
			return false
		}
	}
	if len(r.UseWhen) == 0 {
		return true
	}
	for i := range r.UseWhen {
		if r.UseWhen[i].Matches(ctx) {
			return true
		}
	}
	return false
}

// MatchingSkills returns m's eligible skills (binary/env/config gating
// already passed) that are also admitted by routing for the given
// context: ShouldUse honors each skill's useWhen/dontUseWhen, and a skill
// with no Routing metadata is always admitted once eligible. Order
// follows ListEligible's priority/name sort.
func (m *Manager) MatchingSkills(ctx RoutingContext) []*SkillEntry {
	eligible := m.ListEligible()
	matched := make([]*SkillEntry, 0, len(eligible))
	for _, entry := range eligible {
		var routing *Routing
		if entry.Metadata != nil {
			routing = entry.Metadata.Routing
		}
		if routing.ShouldUse(ctx) {
			matched = append(matched, entry)
		}
	}
	return matched
}

// SanitizeCommandName converts a skill name into a slash-command token:
// lowercase alphanumerics with every other character collapsed to a
// hyphen, trimmed of leading/trailing hyphens, capped at 32 runes.
// Idempotent: SanitizeCommandName(SanitizeCommandName(s)) == SanitizeCommandName(s).
func SanitizeCommandName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r - 'A' + 'a')
		default:
			b.WriteByte('-')
		}
	}
	trimmed := strings.Trim(b.String(), "-")
	if len(trimmed) > 32 {
		trimmed = string([]rune(trimmed)[:32])
	}
	return trimmed
}
