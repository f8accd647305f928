package local

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jonwraymond/toolcompiler/backend"
	"github.com/jonwraymond/toolcompiler/tool"
)

var fixedNow = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

func TestBackend_RegisterAndList(t *testing.T) {
	b := New("builtin")
	if b.Kind() != backend.KindBuiltin || b.Name() != "builtin" || !b.Enabled() {
		t.Fatalf("unexpected backend identity: %s %s %v", b.Kind(), b.Name(), b.Enabled())
	}
	noop := func(context.Context, map[string]any) (any, error) { return nil, nil }
	_ = b.Register(ToolDef{Name: "zeta", Handler: noop, Tags: []string{"Ops"}})
	_ = b.Register(ToolDef{Name: "alpha", Handler: noop})

	tools, err := b.ListTools(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(tools) != 2 || tools[0].Name != "alpha" || tools[1].Name != "zeta" {
		t.Fatalf("ListTools() = %+v", tools)
	}
	if tools[0].Namespace != "builtin" {
		t.Errorf("Namespace = %q", tools[0].Namespace)
	}
	if tools[0].InputSchema == nil {
		t.Error("expected default input schema")
	}

	b.Unregister("zeta")
	tools, _ = b.ListTools(context.Background())
	if len(tools) != 1 {
		t.Errorf("after Unregister len = %d", len(tools))
	}
}

func TestBackend_RegisterRejects(t *testing.T) {
	b := New("builtin")
	if err := b.Register(ToolDef{Handler: func(context.Context, map[string]any) (any, error) { return nil, nil }}); err == nil {
		t.Error("expected error for missing name")
	}
	if err := b.Register(ToolDef{Name: "x"}); err == nil {
		t.Error("expected error for missing handler")
	}
}

func TestBackend_ExecuteErrors(t *testing.T) {
	b := Builtins("builtin", nil, fixedNow)
	if _, err := b.Execute(context.Background(), "missing", nil); !errors.Is(err, backend.ErrToolNotFound) {
		t.Errorf("missing tool error = %v", err)
	}
	b.SetEnabled(false)
	if _, err := b.Execute(context.Background(), "health_check", nil); !errors.Is(err, backend.ErrBackendDisabled) {
		t.Errorf("disabled error = %v", err)
	}
	b.SetEnabled(true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Execute(ctx, "health_check", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled error = %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	ctx := tool.WithTenant(context.Background(), "7")

	got, err := Builtins("builtin", nil, fixedNow).Execute(ctx, "health_check", nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]any{"status": "healthy", "timestamp": "2026-03-01T12:00:00Z", "tenant_id": "7"}
	if diff := cmp.Diff(want, got.(map[string]any)); diff != "" {
		t.Errorf("health_check mismatch (-want +got):\n%s", diff)
	}

	failing := func(context.Context) error { return errors.New("database unreachable") }
	got, _ = Builtins("builtin", failing, fixedNow).Execute(context.Background(), "health_check", nil)
	out := got.(map[string]any)
	if out["status"] != "degraded" || out["error"] != "database unreachable" {
		t.Errorf("degraded health_check = %v", out)
	}
}

func TestTitleCase(t *testing.T) {
	b := Builtins("builtin", nil, fixedNow)
	got, err := b.Execute(context.Background(), "title_case", map[string]any{"text": "hello wide world"})
	if err != nil || got != "Hello Wide World" {
		t.Errorf("title_case = %v, %v", got, err)
	}
	if _, err := b.Execute(context.Background(), "title_case", map[string]any{"text": 3}); !errors.Is(err, tool.ErrInvalidParams) {
		t.Errorf("non-string error = %v", err)
	}
}

func runStage(t *testing.T, b *Backend, stage, input string, session any) any {
	t.Helper()
	raw := "{}"
	if session != nil {
		data, err := json.Marshal(session)
		if err != nil {
			t.Fatal(err)
		}
		raw = string(data)
	}
	got, err := b.Execute(context.Background(), "user_profiler", map[string]any{
		"stage": stage, "input_value": input, "session_data": raw,
	})
	if err != nil {
		t.Fatalf("stage %s: %v", stage, err)
	}
	return got
}

func TestUserProfiler_FullFlow(t *testing.T) {
	b := Builtins("builtin", nil, fixedNow)

	r1 := runStage(t, b, StageUserName, "  Ada ", nil).(StageReply)
	if r1.NextStage != StageUserPurpose || r1.Session.UserName != "Ada" {
		t.Fatalf("user_name reply = %+v", r1)
	}
	r2 := runStage(t, b, StageUserPurpose, "build compilers", r1.Session).(StageReply)
	r3 := runStage(t, b, StageTrustAcceptance, "Yes", r2.Session).(StageReply)
	if !r3.Session.TrustAccepted || r3.NextStage != StagePassionText {
		t.Fatalf("trust reply = %+v", r3)
	}
	r4 := runStage(t, b, StagePassionText, "I love programming and machine learning", r3.Session).(StageReply)
	if r4.NextStage != StageConfirmation || r4.Session.Personality == nil {
		t.Fatalf("passion reply = %+v", r4)
	}
	if !strings.Contains(r4.Message, "enthusiastic about technology, AI") {
		t.Errorf("passion message = %q", r4.Message)
	}

	final := runStage(t, b, StageConfirmation, "ready", r4.Session).(ProfileReply)
	want := Profile{
		UserName:              "Ada",
		UserResponses:         map[string]string{"user-purpose": "build compilers"},
		PersonalityProfile:    r4.Session.Personality,
		PrivacyPreferences:    map[string]bool{"trustAccepted": true},
		RegistrationCompleted: true,
		RegistrationDate:      "2026-03-01T12:00:00Z",
	}
	if !final.Completed {
		t.Error("expected completed profile")
	}
	if diff := cmp.Diff(want, final.Profile); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
}

func TestUserProfiler_Rejects(t *testing.T) {
	b := Builtins("builtin", nil, fixedNow)
	tests := []struct {
		stage, input string
	}{
		{StageUserName, "   "},
		{StageUserPurpose, "abc"},
		{StagePassionText, "short"},
		{"unknown", "x"},
	}
	for _, tt := range tests {
		_, err := b.Execute(context.Background(), "user_profiler", map[string]any{"stage": tt.stage, "input_value": tt.input})
		if !errors.Is(err, tool.ErrInvalidParams) {
			t.Errorf("stage %s input %q: error = %v, want ErrInvalidParams", tt.stage, tt.input, err)
		}
	}
}

func TestUserProfiler_TrustDeclinedAndUnconfirmed(t *testing.T) {
	b := Builtins("builtin", nil, fixedNow)
	r := runStage(t, b, StageTrustAcceptance, "no", Session{UserName: "x"}).(StageReply)
	if r.Session.TrustAccepted {
		t.Error("expected trust declined")
	}
	wait := runStage(t, b, StageConfirmation, "review", r.Session).(StageReply)
	if wait.NextStage != "" || wait.Session.UserName != "x" {
		t.Errorf("unconfirmed reply = %+v", wait)
	}
}

func TestUserProfiler_CorruptSessionRestarts(t *testing.T) {
	b := Builtins("builtin", nil, fixedNow)
	got, err := b.Execute(context.Background(), "user_profiler", map[string]any{
		"stage": StageUserName, "input_value": "Bo", "session_data": "{not json",
	})
	if err != nil {
		t.Fatal(err)
	}
	if r := got.(StageReply); r.Session.UserName != "Bo" {
		t.Errorf("session = %+v", r.Session)
	}
}

func TestAnalyzePersonality(t *testing.T) {
	tests := []struct {
		text string
		want Personality
	}{
		{"I organize and plan everything", Personality{ThinkingStyle: "structured", Sentiment: "thoughtful", PassionLevel: 1, Topics: []string{}}},
		{"I want to explore art and design", Personality{ThinkingStyle: "creative", Sentiment: "curious", PassionLevel: 1, Topics: []string{}}},
		{"startup business and coding tech and teaching", Personality{ThinkingStyle: "creative", Sentiment: "thoughtful", PassionLevel: 2, Topics: []string{"technology", "business", "education"}}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, analyzePersonality(tt.text)); diff != "" {
			t.Errorf("analyzePersonality(%q) mismatch (-want +got):\n%s", tt.text, diff)
		}
	}
}
