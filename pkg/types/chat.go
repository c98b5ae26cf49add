package types

import (
	"encoding/json"
	"time"
)

const (
	USER_ROLE_USER      = "user"
	USER_ROLE_ASSISTANT = "assistant"
	USER_ROLE_SYSTEM    = "system"
)

// Bounded column widths shared by both SQL dialects and the input
// sanitizers in the logic layer.
const (
	MAX_CLIENT_ID_LENGTH       = 256
	MAX_CONVERSATION_ID_LENGTH = 64
	MAX_CHAT_MODE_LENGTH       = 64
	MAX_MODEL_LENGTH           = 128
	MAX_EMAIL_LENGTH           = 320
)

// MessageInput is a single turn handed to the store for appending.
// Usage round-trips through its serialized form untouched.
type MessageInput struct {
	Role    string
	Content string
	Model   string
	Usage   json.RawMessage
}

// MessageRecord is the caller-facing view of one stored turn.
type MessageRecord struct {
	Role      string          `json:"role" db:"role"`
	Content   string          `json:"content" db:"content"`
	Model     *string         `json:"model,omitempty" db:"model"`
	Usage     json.RawMessage `json:"usage,omitempty" db:"-"`
	RawUsage  *string         `json:"-" db:"usage"`
	CreatedAt time.Time       `json:"-" db:"created_at"`
}

// Conversation is one (client_id, conversation_id) group. CreatedAt is the
// group's earliest message time; QuestionPreview is the earliest user turn.
type Conversation struct {
	ClientID        string    `json:"client_id" db:"client_id"`
	ConversationID  string    `json:"conversation_id" db:"conversation_id"`
	ChatMode        string    `json:"chat_mode" db:"chat_mode"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	QuestionPreview *string   `json:"question_preview,omitempty" db:"question_preview"`
}

// AdminConversation adds the cross-client aggregates of the admin view.
type AdminConversation struct {
	ClientID        string    `json:"client_id" db:"client_id"`
	Email           *string   `json:"email,omitempty" db:"email"`
	ConversationID  string    `json:"conversation_id" db:"conversation_id"`
	ChatMode        string    `json:"chat_mode" db:"chat_mode"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	QuestionPreview *string   `json:"question_preview,omitempty" db:"question_preview"`
	Model           *string   `json:"model,omitempty" db:"model"`
	TotalCost       *float64  `json:"total_cost,omitempty" db:"total_cost"`
}

// ListAdminConversationOptions filters the admin listing. Email is a
// substring match, ClientID and ChatMode are exact.
type ListAdminConversationOptions struct {
	ClientID string
	Email    string
	ChatMode string
	Limit    int
}

const (
	DEFAULT_ADMIN_LIST_LIMIT = 200
	MAX_ADMIN_LIST_LIMIT     = 500
)

// UsageCostFields are the usage metadata keys that may carry the turn cost,
// in lookup priority order. Both SQL dialects and any display code must
// apply the same order.
var UsageCostFields = []string{"total", "total_cost", "cost", "subtotal"}
