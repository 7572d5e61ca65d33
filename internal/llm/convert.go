package llm

import (
	"encoding/json"
	"strings"
)

// ParseArguments normalizes tool-call arguments, which backends deliver
// either as a JSON object or as a string holding one. Anything that does
// not decode to an object yields an empty, non-nil map.
func ParseArguments(raw any) map[string]any {
	switch v := raw.(type) {
	case map[string]any:
		if v == nil {
			return map[string]any{}
		}
		return v
	case string:
		return decodeArguments([]byte(v))
	case json.RawMessage:
		return decodeArguments(v)
	case []byte:
		return decodeArguments(v)
	default:
		return map[string]any{}
	}
}

func decodeArguments(data []byte) map[string]any {
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

// flattenToolResults rewrites tool-role entries as user-role text.
// History only keeps the results of earlier tool calls, never the
// assistant turn that requested them, and chat APIs reject a tool result
// that does not answer a call in the same request.
func flattenToolResults(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleTool {
			name := m.Name
			if name == "" {
				name = "tool"
			}
			m = Message{Role: RoleUser, Content: "[" + name + " result]: " + m.Content}
		}
		out = append(out, m)
	}
	return out
}

// splitSystem separates system messages (joined with blank lines) from
// the rest, for backends that take the system prompt as its own field.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

// singlePrompt renders a conversation for completion-style endpoints that
// accept one prompt string instead of a message list.
func singlePrompt(messages []Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			parts = append(parts, "System: "+m.Content)
		case RoleAssistant:
			parts = append(parts, "Assistant: "+m.Content)
		default:
			parts = append(parts, "User: "+m.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}

// nestedTools renders the catalogue in the {"type":"function","function":{...}}
// shape used by OpenAI-compatible and Ollama chat endpoints.
func nestedTools(tools []ToolDefinition) []map[string]any {
	if len(tools) == 0 {
		return nil
	}
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		out = append(out, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  schemaOrEmpty(t.Parameters),
			},
		})
	}
	return out
}

func schemaOrEmpty(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return params
}

// parseTextToolCalls extracts tool calls that a model wrote into its
// content instead of the native tool_calls field. Handled forms:
//   - {"name": "...", "arguments": {...}}
//   - [{"name": "...", "arguments": {...}}, ...]
//   - either of the above wrapped in <tool_call>...</tool_call>
func parseTextToolCalls(content string) []ToolCall {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	if start := strings.Index(content, "<tool_call>"); start != -1 {
		rest := content[start+len("<tool_call>"):]
		if end := strings.Index(rest, "</tool_call>"); end != -1 {
			rest = rest[:end]
		}
		content = strings.TrimSpace(rest)
	}

	type textCall struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}

	var calls []textCall
	if err := json.Unmarshal([]byte(content), &calls); err != nil {
		var single textCall
		if err := json.Unmarshal([]byte(content), &single); err != nil {
			return nil
		}
		calls = []textCall{single}
	}

	var result []ToolCall
	for _, c := range calls {
		if c.Name == "" {
			continue
		}
		result = append(result, ToolCall{
			Name:      c.Name,
			Arguments: ParseArguments(unquoteArguments(c.Arguments)),
		})
	}
	return result
}

// unquoteArguments unwraps arguments given as a JSON string literal.
func unquoteArguments(raw json.RawMessage) any {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return raw
}
