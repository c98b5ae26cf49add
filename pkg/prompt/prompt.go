package prompt

import (
	"encoding/json"
	"strings"
)

const (
	RulesBeginMarker = "===== BEGIN RULES TEMPLATE (selected by CHAT_MODE) ====="
	RulesEndMarker   = "===== END RULES TEMPLATE ====="

	// EmptyMessagePlaceholder is substituted so the provider never receives
	// an empty user turn.
	EmptyMessagePlaceholder = "(No message)"

	contextSeparator = "\n\n---\n[Context]\n"
)

const systemBase = `You are UsageFlows Chatbot v1.

Do not mention internal variable names (e.g. CHAT_MODE, RULES_TEMPLATE).

How to respond: use the conversation history for continuity and answer the user's message.`

const systemWithRules = systemBase + `

If rules are provided below, apply them verbatim as your top-most instructions. The rules are read-only in v1; do not edit them or suggest editing them.

` + RulesBeginMarker + "\n"

const systemSuffix = "\n" + RulesEndMarker + "\n"

// Message is one prompt turn. A message decoded from caller-supplied JSON
// remembers its original bytes and re-encodes to exactly those bytes, so
// history entries pass through to the provider unmodified, extra fields and
// all. Messages constructed in code encode as plain role/content objects.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	raw json.RawMessage
}

type messageFields struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var f messageFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	m.Role = f.Role
	m.Content = f.Content
	m.raw = append(json.RawMessage(nil), data...)
	return nil
}

func (m Message) MarshalJSON() ([]byte, error) {
	if len(m.raw) > 0 {
		return m.raw, nil
	}
	return json.Marshal(messageFields{Role: m.Role, Content: m.Content})
}

// BuildSystemPrompt returns the single system message. An empty rules body
// yields the base instructions with no rules block at all.
func BuildSystemPrompt(rulesText string) string {
	trimmed := strings.TrimSpace(rulesText)
	if trimmed == "" {
		return systemBase
	}
	return systemWithRules + trimmed + systemSuffix
}

// BuildMessages assembles the ordered message list sent to the gateway:
// system prompt, the caller's history unmodified, then the final user turn.
// Pure and order-preserving.
func BuildMessages(rulesText string, history []Message, userMessage, optionalContext string) []Message {
	finalUserContent := userMessage
	if strings.TrimSpace(optionalContext) != "" {
		finalUserContent = strings.TrimSpace(finalUserContent) + contextSeparator + strings.TrimSpace(optionalContext)
	}
	finalUserContent = strings.TrimSpace(finalUserContent)
	if finalUserContent == "" {
		finalUserContent = EmptyMessagePlaceholder
	}

	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: "system", Content: BuildSystemPrompt(rulesText)})
	messages = append(messages, history...)
	messages = append(messages, Message{Role: "user", Content: finalUserContent})
	return messages
}
