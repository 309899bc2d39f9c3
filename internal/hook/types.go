package hook

import (
	"encoding/json"
	"fmt"
)

// Recognized hook event names. Copilot emits these verbatim in the
// hookEventName field; anything else is treated as unrecognized.
const (
	EventSessionStart     = "SessionStart"
	EventSessionEnd       = "SessionEnd"
	EventUserPromptSubmit = "UserPromptSubmit"
	EventPreToolUse       = "PreToolUse"
	EventPostToolUse      = "PostToolUse"
	EventErrorOccurred    = "ErrorOccurred"

	// EventUnknown is the sentinel substituted when the payload cannot
	// be parsed at all.
	EventUnknown = "UNKNOWN"
)

// Input represents the JSON payload the agent sends to a hook via stdin.
// Known fields are extracted into struct fields; unknown fields are
// preserved in rawFields so nothing is lost between parse and audit.
//
// Field spelling is not stable across agents: Copilot uses camelCase
// (hookEventName, sessionId) while Claude-style hooks use snake_case
// (hook_event_name, session_id). Both are accepted.
type Input struct {
	Timestamp     float64         `json:"timestamp,omitempty"`
	HookEventName string          `json:"hookEventName,omitempty"`
	SessionID     string          `json:"sessionId,omitempty"`
	CWD           string          `json:"cwd,omitempty"`
	ToolName      string          `json:"tool_name,omitempty"`
	ToolInput     json.RawMessage `json:"tool_input,omitempty"`
	ToolResponse  json.RawMessage `json:"tool_response,omitempty"`
	Prompt        *string         `json:"prompt,omitempty"`
	Error         *string         `json:"error,omitempty"`

	// rawFields preserves the full original map so fields not modeled
	// above remain inspectable.
	rawFields map[string]json.RawMessage
}

// UnmarshalJSON implements custom unmarshaling that preserves unknown
// fields and accepts both camelCase and snake_case spellings.
func (inp *Input) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("hook.Input unmarshal: %w", err)
	}

	inp.rawFields = raw

	if err := stringField(raw, &inp.HookEventName, "hookEventName", "hook_event_name"); err != nil {
		return err
	}
	if err := stringField(raw, &inp.SessionID, "sessionId", "session_id"); err != nil {
		return err
	}
	if err := stringField(raw, &inp.CWD, "cwd"); err != nil {
		return err
	}
	if err := stringField(raw, &inp.ToolName, "tool_name", "toolName"); err != nil {
		return err
	}

	if v, ok := raw["timestamp"]; ok {
		if err := json.Unmarshal(v, &inp.Timestamp); err != nil {
			return fmt.Errorf("hook.Input unmarshal timestamp: %w", err)
		}
	}
	if v, ok := raw["prompt"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("hook.Input unmarshal prompt: %w", err)
		}
		inp.Prompt = &s
	}
	if v, ok := raw["error"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("hook.Input unmarshal error: %w", err)
		}
		inp.Error = &s
	}
	if v, ok := raw["tool_input"]; ok {
		inp.ToolInput = v
	}
	if v, ok := raw["tool_response"]; ok {
		inp.ToolResponse = v
	}

	return nil
}

// stringField unmarshals the first present key into dst.
// Later keys are fallback spellings.
func stringField(raw map[string]json.RawMessage, dst *string, keys ...string) error {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, dst); err != nil {
			return fmt.Errorf("hook.Input unmarshal %s: %w", k, err)
		}
		return nil
	}
	return nil
}

// Raw returns the preserved raw value for a payload field, or nil if absent.
func (inp Input) Raw(key string) json.RawMessage {
	return inp.rawFields[key]
}

// Parse interprets data as a hook event. A payload that is not valid
// JSON (or not a JSON object) yields the EventUnknown sentinel rather
// than an error: the handler must never fail because of bad input.
func Parse(data []byte) Input {
	var inp Input
	if err := json.Unmarshal(data, &inp); err != nil {
		return Input{HookEventName: EventUnknown}
	}
	return inp
}
