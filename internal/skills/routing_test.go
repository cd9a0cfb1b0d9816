package skills

import "testing"

func TestSanitizeCommandName(t *testing.T) {
	cases := map[string]string{
		"GitHub PR":      "github-pr",
		"test_skill":     "test-skill",
		"My Cool Skill!": "my-cool-skill",
	}
	for in, want := range cases {
		if got := SanitizeCommandName(in); got != want {
			t.Errorf("SanitizeCommandName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeCommandNameIdempotent(t *testing.T) {
	names := []string{"GitHub PR", "already-sanitized", "!!!weird***"}
	for _, n := range names {
		once := SanitizeCommandName(n)
		twice := SanitizeCommandName(once)
		if once != twice {
			t.Errorf("not idempotent: %q -> %q -> %q", n, once, twice)
		}
	}
}

func TestRoutingConditionContainsCaseInsensitive(t *testing.T) {
	cond := RoutingCondition{Contains: "debug"}
	if !cond.Matches(RoutingContext{Message: "DEBUG this please"}) {
		t.Error("expected case-insensitive match")
	}
	if cond.Matches(RoutingContext{Message: "what's the weather"}) {
		t.Error("expected no match")
	}
}

func TestRoutingConditionChannel(t *testing.T) {
	cond := RoutingCondition{Contains: "weather", Channel: "telegram"}
	if !cond.Matches(RoutingContext{Message: "weather please", Channel: "Telegram"}) {
		t.Error("expected match on channel + contains")
	}
	if cond.Matches(RoutingContext{Message: "weather please", Channel: "discord"}) {
		t.Error("expected no match on wrong channel")
	}
}

func TestRoutingShouldUseEmptyIsBackwardCompatible(t *testing.T) {
	r := &Routing{}
	if !r.ShouldUse(RoutingContext{Message: "anything"}) {
		t.Error("empty routing should allow every message")
	}
}

func TestRoutingShouldUseDontUseWhenBlocks(t *testing.T) {
	r := &Routing{DontUseWhen: []RoutingCondition{{Contains: "joke"}}}
	if r.ShouldUse(RoutingContext{Message: "tell me a joke"}) {
		t.Error("expected dontUseWhen to block")
	}
	if !r.ShouldUse(RoutingContext{Message: "help me with work"}) {
		t.Error("expected unrelated message to pass")
	}
}

func TestRoutingShouldUseCombined(t *testing.T) {
	r := &Routing{
		UseWhen:     []RoutingCondition{{Contains: "code"}, {Contains: "review"}},
		DontUseWhen: []RoutingCondition{{Contains: "joke"}},
	}
	if !r.ShouldUse(RoutingContext{Message: "review my code"}) {
		t.Error("expected useWhen match to pass")
	}
	if r.ShouldUse(RoutingContext{Message: "review this code joke"}) {
		t.Error("expected dontUseWhen to override useWhen match")
	}
	if r.ShouldUse(RoutingContext{Message: "what's the weather"}) {
		t.Error("expected no useWhen match to block")
	}
}
