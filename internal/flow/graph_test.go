package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BTreeMap/ScreenPipe/internal/models"
)

func TestGraphNextSkipsByFlags(t *testing.T) {
	g := BuildGraph(testFlow(t), DefaultRoles(), "previous product?")
	employed := models.Flags{}
	unemployed := models.Flags{Unemployed: true}

	tests := []struct {
		from  string
		flags models.Flags
		want  string
		ok    bool
	}{
		{"interest", employed, "company", true},
		{"company", employed, "notice", true},
		{"company", unemployed, "previous_company", true},
		{"previous_company", unemployed, "ctc", true},
		{"ctc", unemployed, "product", true},
		{"experience", employed, "", false},
		{"missing", employed, "", false},
	}
	for _, tt := range tests {
		got, ok := g.Next(tt.from, tt.flags)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Next(%q, unemployed=%v) = (%q, %v), want (%q, %v)", tt.from, tt.flags.Unemployed, got, ok, tt.want, tt.ok)
		}
	}

	if p := g.Prompt("product", unemployed); p != "previous product?" {
		t.Errorf("unemployed product prompt = %q", p)
	}
	if p := g.Prompt("product", employed); p != "Which product are you handling at {company}?" {
		t.Errorf("employed product prompt = %q", p)
	}
}

func TestGraphValidate(t *testing.T) {
	if err := BuildGraph(testFlow(t), DefaultRoles(), "x").Validate(); err != nil {
		t.Fatalf("valid flow rejected: %v", err)
	}

	forward, _ := models.NewFlowDefinition([]models.FlowStep{
		{ID: "interest"},
		{ID: "company", Prompt: "You work with {experience}?"},
		{ID: "experience", Prompt: "Years?"},
	})
	if err := BuildGraph(forward, DefaultRoles(), "x").Validate(); !errors.Is(err, ErrUnresolvedPlaceholder) {
		t.Errorf("expected ErrUnresolvedPlaceholder, got %v", err)
	}

	// notice is never collected on the unemployed path
	pathDependent, _ := models.NewFlowDefinition([]models.FlowStep{
		{ID: "interest"},
		{ID: "company", Prompt: "Company?"},
		{ID: "previous_company", Prompt: "Previous company?"},
		{ID: "notice", Prompt: "Notice?"},
		{ID: "experience", Prompt: "Experience, given notice {notice}?"},
	})
	if err := BuildGraph(pathDependent, DefaultRoles(), "x").Validate(); !errors.Is(err, ErrUnresolvedPlaceholder) {
		t.Errorf("expected ErrUnresolvedPlaceholder on unemployed path, got %v", err)
	}

	empty, _ := models.NewFlowDefinition([]models.FlowStep{{ID: "interest"}, {ID: "company"}})
	if err := BuildGraph(empty, DefaultRoles(), "x").Validate(); !errors.Is(err, ErrMissingPrompt) {
		t.Errorf("expected ErrMissingPrompt, got %v", err)
	}
}

func TestRolesDisabledWhenStepMissing(t *testing.T) {
	def, _ := models.NewFlowDefinition([]models.FlowStep{
		{ID: "interest"},
		{ID: "company", Prompt: "Company?"},
		{ID: "notice", Prompt: "Notice?"},
	})
	g := BuildGraph(def, DefaultRoles(), "x")
	if g.Roles().PreviousEmployer != "" || g.Roles().Company != "company" {
		t.Errorf("unexpected roles %+v", g.Roles())
	}
	if next, _ := g.Next("company", models.Flags{Unemployed: true}); next != "" {
		t.Errorf("expected notice to be skipped to the end, got %q", next)
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	tmpl := "Which product at {company}, after {years} years? ({company})"
	var answers models.Answers
	answers.Set("company", "HDFC Bank Ltd.")
	answers.Set("years", "3.5")

	rendered := Render(tmpl, answers)
	if rendered != "Which product at HDFC Bank Ltd., after 3.5 years? (HDFC Bank Ltd.)" {
		t.Fatalf("unexpected render %q", rendered)
	}
	got, ok := Extract(tmpl, rendered)
	if !ok {
		t.Fatal("Extract failed")
	}
	for _, key := range Placeholders(tmpl) {
		want, _ := answers.Get(key)
		if got[key] != want {
			t.Errorf("round trip of %q: got %q, want %q", key, got[key], want)
		}
	}
	if _, ok := Extract(tmpl, "something else"); ok {
		t.Error("Extract matched an unrelated string")
	}
}

func TestRenderLeavesUnknownPlaceholder(t *testing.T) {
	if got := Render("at {company}", nil); got != "at {company}" {
		t.Errorf("got %q", got)
	}
}

func TestModeTransitions(t *testing.T) {
	ctx := context.Background()
	var f models.Flags

	if err := applyMode(ctx, &f, EventDisqualify); err != nil || ModeOf(f) != ModeBlockedUnacknowledged {
		t.Fatalf("disqualify: %v, mode %s", err, ModeOf(f))
	}
	if err := applyMode(ctx, &f, EventDisqualify); err != nil {
		t.Errorf("repeated disqualify should be a no-op, got %v", err)
	}
	if err := applyMode(ctx, &f, EventAcknowledge); err != nil || !f.Blocked || !f.Acknowledged {
		t.Fatalf("acknowledge: %v, flags %+v", err, f)
	}

	var active models.Flags
	if err := applyMode(ctx, &active, EventAcknowledge); err == nil {
		t.Error("acknowledge from active should fail")
	}
	if err := applyMode(ctx, &active, EventDecline); err != nil || ModeOf(active) != ModeBlockedAcknowledged {
		t.Errorf("decline: %v, mode %s", err, ModeOf(active))
	}
}

func TestKeyedMutex(t *testing.T) {
	k := NewKeyedMutex()
	unlock, err := k.Lock(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := k.Lock(ctx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	other, err := k.Lock(context.Background(), "b")
	if err != nil {
		t.Fatal("independent key blocked")
	}
	other()

	unlock()
	unlock() // second call is a no-op
	again, err := k.Lock(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	again()

	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.locks) != 0 {
		t.Errorf("expected no lingering entries, got %d", len(k.locks))
	}
}
