package agent

import (
	"encoding/json"
	"time"
)

// ThoughtResponse is the structured reply the model is asked to produce
// when it is not calling a function. Only Say reaches the user.
type ThoughtResponse struct {
	Thoughts Thoughts `json:"thoughts"`
	Say      string   `json:"say"`
}

// Thoughts is the model's internal reasoning. Informational only.
type Thoughts struct {
	Focus                  string `json:"focus,omitempty"`
	Reasoning              string `json:"reasoning,omitempty"`
	Plan                   string `json:"plan,omitempty"`
	Criticism              string `json:"criticism,omitempty"`
	ConversationSummary    string `json:"conversationSummary,omitempty"`
	NextGoal               string `json:"nextGoal,omitempty"`
	LastFunctionCallResult any    `json:"lastFunctionCallResult,omitempty"`
}

// decodeThought reads a parsed thought object leniently: say is taken
// when it is a string, thoughts when they decode cleanly.
func decodeThought(obj map[string]any) ThoughtResponse {
	var t ThoughtResponse
	t.Say, _ = obj["say"].(string)
	if raw, ok := obj["thoughts"]; ok {
		if b, err := json.Marshal(raw); err == nil {
			_ = json.Unmarshal(b, &t.Thoughts)
		}
	}
	return t
}

// StepType identifies the kind of turn step.
type StepType string

const (
	StepModelCall      StepType = "model_call"
	StepFunctionCall   StepType = "function_call"
	StepFunctionResult StepType = "function_result"
	StepThought        StepType = "thought"
	StepSay            StepType = "say"
	StepDropped        StepType = "dropped"
)

// ThinkStep is a single step of a model round-trip.
type ThinkStep struct {
	Type       StepType  `json:"type"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	TokensUsed int       `json:"tokens_used,omitempty"`
}

func (r *TurnResult) record(t StepType, content string) {
	r.Steps = append(r.Steps, ThinkStep{Type: t, Content: content, Timestamp: time.Now()})
}
