package hook

import (
	"testing"
)

func TestParseCamelCasePayload(t *testing.T) {
	raw := `{
		"timestamp": 1723400000.5,
		"hookEventName": "PreToolUse",
		"sessionId": "abc-123",
		"cwd": "/home/user/project",
		"tool_name": "Bash",
		"tool_input": {"command": "ls -la"},
		"unknownField": "should survive"
	}`

	inp := Parse([]byte(raw))

	if inp.HookEventName != EventPreToolUse {
		t.Errorf("HookEventName = %q, want %q", inp.HookEventName, EventPreToolUse)
	}
	if inp.SessionID != "abc-123" {
		t.Errorf("SessionID = %q, want %q", inp.SessionID, "abc-123")
	}
	if inp.CWD != "/home/user/project" {
		t.Errorf("CWD = %q, want %q", inp.CWD, "/home/user/project")
	}
	if inp.ToolName != "Bash" {
		t.Errorf("ToolName = %q, want %q", inp.ToolName, "Bash")
	}
	if inp.Timestamp != 1723400000.5 {
		t.Errorf("Timestamp = %v, want 1723400000.5", inp.Timestamp)
	}
	if inp.ToolInput == nil {
		t.Error("ToolInput not preserved")
	}
	if inp.Raw("unknownField") == nil {
		t.Error("unknownField lost from raw map")
	}
}

func TestParseSnakeCaseAliases(t *testing.T) {
	raw := `{
		"hook_event_name": "SessionStart",
		"session_id": "s-1"
	}`

	inp := Parse([]byte(raw))

	if inp.HookEventName != EventSessionStart {
		t.Errorf("HookEventName = %q, want %q", inp.HookEventName, EventSessionStart)
	}
	if inp.SessionID != "s-1" {
		t.Errorf("SessionID = %q, want %q", inp.SessionID, "s-1")
	}
}

func TestParsePreferredSpellingWins(t *testing.T) {
	raw := `{
		"hookEventName": "SessionEnd",
		"hook_event_name": "SessionStart"
	}`

	inp := Parse([]byte(raw))

	if inp.HookEventName != EventSessionEnd {
		t.Errorf("HookEventName = %q, want camelCase value %q", inp.HookEventName, EventSessionEnd)
	}
}

func TestParseOptionalFields(t *testing.T) {
	inp := Parse([]byte(`{"hookEventName": "UserPromptSubmit", "prompt": "hello"}`))
	if inp.Prompt == nil || *inp.Prompt != "hello" {
		t.Errorf("Prompt = %v, want pointer to %q", inp.Prompt, "hello")
	}
	if inp.Error != nil {
		t.Errorf("Error = %v, want nil", inp.Error)
	}

	inp = Parse([]byte(`{"hookEventName": "ErrorOccurred", "error": "model not loaded"}`))
	if inp.Error == nil || *inp.Error != "model not loaded" {
		t.Errorf("Error = %v, want pointer to %q", inp.Error, "model not loaded")
	}
	if inp.Prompt != nil {
		t.Errorf("Prompt = %v, want nil", inp.Prompt)
	}
}

func TestParseEmptyPrompt(t *testing.T) {
	// Present-but-empty is distinct from absent.
	inp := Parse([]byte(`{"hookEventName": "UserPromptSubmit", "prompt": ""}`))
	if inp.Prompt == nil {
		t.Fatal("Prompt = nil, want pointer to empty string")
	}
	if *inp.Prompt != "" {
		t.Errorf("Prompt = %q, want empty", *inp.Prompt)
	}
}

func TestParseMalformedInput(t *testing.T) {
	for _, raw := range []string{
		"not json at all",
		"",
		`["array", "payload"]`,
		`{"truncated": `,
	} {
		inp := Parse([]byte(raw))
		if inp.HookEventName != EventUnknown {
			t.Errorf("Parse(%q).HookEventName = %q, want %q", raw, inp.HookEventName, EventUnknown)
		}
	}
}
