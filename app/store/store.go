package store

import (
	"context"

	"github.com/usageflows/chatbot/pkg/types"
)

// ChatHistoryStore is the persistence boundary for sessions and message
// history. Every backend, including the disabled one, satisfies it; callers
// that require real persistence must check IsConfigured first.
type ChatHistoryStore interface {
	// IsConfigured reports whether a real database backs this store.
	IsConfigured() bool
	// EnsureSchema creates tables and indexes if they do not exist yet.
	EnsureSchema(ctx context.Context) error

	// UpsertSession inserts or refreshes the session row for clientID.
	// An empty email is stored as NULL and overwrites a previous value.
	UpsertSession(ctx context.Context, clientID, email string) error
	// AppendMessages appends the turns in order under one conversation.
	AppendMessages(ctx context.Context, clientID, conversationID, chatMode string, messages []types.MessageInput, email string) error
	// BackfillEmail stamps email onto this client's messages that have none
	// yet and returns how many rows changed.
	BackfillEmail(ctx context.Context, clientID, email string) (int64, error)

	// ListConversations groups messages into conversations, newest first.
	// A non-empty email switches to exact-email matching across clients;
	// chatMode, when non-empty, filters exactly.
	ListConversations(ctx context.Context, clientID, email, chatMode string) ([]types.Conversation, error)
	// ListConversationsWithPreview is ListConversations plus the earliest
	// user turn of each conversation.
	ListConversationsWithPreview(ctx context.Context, clientID, email, chatMode string) ([]types.Conversation, error)
	// ListConversationsForAdmin lists across all clients with aggregate
	// model and cost columns. Email filters by substring here.
	ListConversationsForAdmin(ctx context.Context, opts types.ListAdminConversationOptions) ([]types.AdminConversation, error)

	// GetMessages returns one conversation's turns in chronological order.
	GetMessages(ctx context.Context, clientID, conversationID string) ([]types.MessageRecord, error)
	// DeleteConversation removes a conversation's messages and returns the
	// number of rows deleted.
	DeleteConversation(ctx context.Context, clientID, conversationID string) (int64, error)

	// GetClientIDByEmail returns the most recently active client bound to
	// email, or "" when none exists.
	GetClientIDByEmail(ctx context.Context, email string) (string, error)
	// GetSessionEmail returns the email on the session row, or "".
	GetSessionEmail(ctx context.Context, clientID string) (string, error)
}
