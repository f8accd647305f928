package local

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jonwraymond/toolcompiler/tool"
)

// ProbeFunc reports whether a dependency is healthy.
type ProbeFunc func(ctx context.Context) error

// Builtins returns a backend with the standard builtin tools. probe backs
// health_check and may be nil.
func Builtins(name string, probe ProbeFunc, now func() time.Time) *Backend {
	if now == nil {
		now = time.Now
	}
	b := New(name)
	for _, def := range []ToolDef{
		HealthCheck(probe, now),
		TitleCase(),
		UserProfiler(now),
	} {
		_ = b.Register(def)
	}
	return b
}

// HealthCheck reports service status. It is "degraded" when probe fails.
func HealthCheck(probe ProbeFunc, now func() time.Time) ToolDef {
	return ToolDef{
		Name:        "health_check",
		Description: "Reports service health",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
		Tags:        []string{"ops"},
		Handler: func(ctx context.Context, _ map[string]any) (any, error) {
			out := map[string]any{
				"status":    "healthy",
				"timestamp": now().UTC().Format(time.RFC3339),
			}
			if tenant := tool.TenantFromContext(ctx); tenant != "" {
				out["tenant_id"] = tenant
			}
			if probe != nil {
				if err := probe(ctx); err != nil {
					out["status"] = "degraded"
					out["error"] = err.Error()
				}
			}
			return out, nil
		},
	}
}

// TitleCase capitalizes every word of "text".
func TitleCase() ToolDef {
	return ToolDef{
		Name:        "title_case",
		Description: "Converts text to title case",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"text": map[string]any{"type": "string"},
			},
			"required": []any{"text"},
		},
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true, IdempotentHint: true},
		Tags:        []string{"text"},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			text, ok := args["text"].(string)
			if !ok {
				return nil, fmt.Errorf("%w: text must be a string", tool.ErrInvalidParams)
			}
			return cases.Title(language.Und).String(text), nil
		},
	}
}

// Profiling stages, in order.
const (
	StageUserName        = "user_name"
	StageUserPurpose     = "user_purpose"
	StageTrustAcceptance = "trust_acceptance"
	StagePassionText     = "passion_text"
	StageConfirmation    = "confirmation"
)

var profileStages = []string{StageUserName, StageUserPurpose, StageTrustAcceptance, StagePassionText, StageConfirmation}

var (
	trustWords   = []string{"yes", "y", "true", "accept", "ok", "agree"}
	confirmWords = []string{"ready", "confirm", "yes", "complete"}
)

// Session is the state carried between profiling stages. Callers pass it
// back as the JSON "session_data" argument.
type Session struct {
	UserName      string       `json:"userName,omitempty"`
	UserPurpose   string       `json:"userPurpose,omitempty"`
	TrustAccepted bool         `json:"trustAccepted"`
	PassionText   string       `json:"passionText,omitempty"`
	Stage         string       `json:"stage,omitempty"`
	Personality   *Personality `json:"personality_preview,omitempty"`
}

// Personality is the keyword analysis of the passion text.
type Personality struct {
	ThinkingStyle string   `json:"thinkingStyle"`
	Sentiment     string   `json:"sentiment"`
	PassionLevel  int      `json:"passionLevel"`
	Topics        []string `json:"topics"`
}

// StageReply is returned by every stage but the last.
type StageReply struct {
	Message   string  `json:"message"`
	NextStage string  `json:"next_stage,omitempty"`
	Session   Session `json:"session_data"`
}

// Profile is the result of a confirmed session.
type Profile struct {
	UserName              string            `json:"userName"`
	UserResponses         map[string]string `json:"userResponses"`
	PersonalityProfile    *Personality      `json:"personalityProfile"`
	PrivacyPreferences    map[string]bool   `json:"privacyPreferences"`
	RegistrationCompleted bool              `json:"registrationCompleted"`
	RegistrationDate      string            `json:"registrationDate"`
}

// ProfileReply is returned once the profile is confirmed.
type ProfileReply struct {
	Message   string  `json:"message"`
	Profile   Profile `json:"profile"`
	Completed bool    `json:"completed"`
}

// UserProfiler is a five stage onboarding flow. Each call processes one
// stage and returns the session to pass to the next.
func UserProfiler(now func() time.Time) ToolDef {
	stageEnum := make([]any, len(profileStages))
	for i, s := range profileStages {
		stageEnum[i] = s
	}
	return ToolDef{
		Name:        "user_profiler",
		Description: "Multi-stage user profiling that collects user information and builds a personality profile",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"stage":        map[string]any{"type": "string", "enum": stageEnum},
				"input_value":  map[string]any{"type": "string"},
				"session_data": map[string]any{"type": "string", "default": "{}"},
			},
			"required": []any{"stage", "input_value"},
		},
		Tags: []string{"onboarding"},
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			stage, _ := args["stage"].(string)
			input, _ := args["input_value"].(string)
			raw, _ := args["session_data"].(string)

			var session Session
			if strings.TrimSpace(raw) != "" {
				// A corrupt session restarts from empty state.
				if err := json.Unmarshal([]byte(raw), &session); err != nil {
					session = Session{}
				}
			}
			return profileStep(stage, strings.TrimSpace(input), session, now)
		},
	}
}

func profileStep(stage, input string, s Session, now func() time.Time) (any, error) {
	switch stage {
	case StageUserName:
		if input == "" {
			return nil, invalid("please provide a valid name")
		}
		s.UserName = input
		return advance(s, StageUserPurpose, fmt.Sprintf("Hello %s! What would you like to learn or achieve?", input)), nil

	case StageUserPurpose:
		if len(input) < 5 {
			return nil, invalid("please provide more details about your purpose (at least 5 characters)")
		}
		s.UserPurpose = input
		return advance(s, StageTrustAcceptance,
			"To provide personalized recommendations we would like to analyze your responses. Do you accept the privacy terms? (yes/no)"), nil

	case StageTrustAcceptance:
		s.TrustAccepted = slices.Contains(trustWords, strings.ToLower(input))
		msg := "Thank you! Please tell us about your passions and interests:"
		if !s.TrustAccepted {
			msg = "Understood. You can still continue with limited data collection. Tell us about your interests:"
		}
		return advance(s, StagePassionText, msg), nil

	case StagePassionText:
		if len(input) < 10 {
			return nil, invalid("please share more about your passions (at least 10 characters)")
		}
		s.PassionText = input
		p := analyzePersonality(input)
		s.Personality = &p
		topics := "many things"
		if len(p.Topics) > 0 {
			topics = strings.Join(p.Topics[:min(2, len(p.Topics))], ", ")
		}
		return advance(s, StageConfirmation,
			fmt.Sprintf("Thanks for sharing! You seem %s about %s. Ready to complete your profile? (ready/review)", p.Sentiment, topics)), nil

	case StageConfirmation:
		if !slices.Contains(confirmWords, strings.ToLower(input)) {
			return StageReply{Message: "Type 'ready' when you want to complete your profile", Session: s}, nil
		}
		return ProfileReply{
			Message: "Profile completed successfully!",
			Profile: Profile{
				UserName:              s.UserName,
				UserResponses:         map[string]string{"user-purpose": s.UserPurpose},
				PersonalityProfile:    s.Personality,
				PrivacyPreferences:    map[string]bool{"trustAccepted": s.TrustAccepted},
				RegistrationCompleted: true,
				RegistrationDate:      now().UTC().Format(time.RFC3339),
			},
			Completed: true,
		}, nil
	}
	return nil, invalid("invalid stage %q, must be one of %s", stage, strings.Join(profileStages, ", "))
}

func advance(s Session, next, msg string) StageReply {
	s.Stage = next
	return StageReply{Message: msg, NextStage: next, Session: s}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", tool.ErrInvalidParams, fmt.Sprintf(format, args...))
}

var (
	structuredWords = []string{"organize", "plan", "system", "process", "method", "structure"}
	creativeWords   = []string{"create", "imagine", "art", "design", "innovative", "creative"}
	positiveWords   = []string{"love", "enjoy", "excited", "passionate", "amazing", "great"}
	curiousWords    = []string{"learn", "discover", "explore", "understand", "know", "find"}
)

// topicKeywords is ordered; at most three topics are reported.
var topicKeywords = []struct {
	topic    string
	keywords []string
}{
	{"technology", []string{"tech", "computer", "software", "programming", "code"}},
	{"AI", []string{"ai", "artificial intelligence", "machine learning", "ml"}},
	{"business", []string{"business", "startup", "entrepreneur", "company"}},
	{"education", []string{"learn", "teach", "education", "study"}},
	{"software", []string{"software", "development", "programming", "coding"}},
}

func analyzePersonality(text string) Personality {
	lower := strings.ToLower(text)
	containsAny := func(words []string) bool {
		return slices.ContainsFunc(words, func(w string) bool { return strings.Contains(lower, w) })
	}

	p := Personality{ThinkingStyle: "balanced", Sentiment: "thoughtful", Topics: []string{}}
	switch {
	case containsAny(structuredWords):
		p.ThinkingStyle = "structured"
	case containsAny(creativeWords):
		p.ThinkingStyle = "creative"
	}
	switch {
	case containsAny(positiveWords):
		p.Sentiment = "enthusiastic"
	case containsAny(curiousWords):
		p.Sentiment = "curious"
	}
	for _, tk := range topicKeywords {
		if len(p.Topics) < 3 && containsAny(tk.keywords) {
			p.Topics = append(p.Topics, tk.topic)
		}
	}

	positives := 0
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			positives++
		}
	}
	p.PassionLevel = max(1, min(5, len(text)/20+positives))
	return p
}
