package sqlstore

import (
	"context"

	"github.com/usageflows/chatbot/pkg/types"
)

// DisabledChatStore runs the service without persistence. Writes vanish,
// reads come back empty and nothing errors, so chat still works while
// history endpoints report the store as unconfigured.
type DisabledChatStore struct{}

func (s *DisabledChatStore) IsConfigured() bool { return false }

func (s *DisabledChatStore) EnsureSchema(ctx context.Context) error { return nil }

func (s *DisabledChatStore) UpsertSession(ctx context.Context, clientID, email string) error {
	return nil
}

func (s *DisabledChatStore) AppendMessages(ctx context.Context, clientID, conversationID, chatMode string, messages []types.MessageInput, email string) error {
	return nil
}

func (s *DisabledChatStore) BackfillEmail(ctx context.Context, clientID, email string) (int64, error) {
	return 0, nil
}

func (s *DisabledChatStore) ListConversations(ctx context.Context, clientID, email, chatMode string) ([]types.Conversation, error) {
	return nil, nil
}

func (s *DisabledChatStore) ListConversationsWithPreview(ctx context.Context, clientID, email, chatMode string) ([]types.Conversation, error) {
	return nil, nil
}

func (s *DisabledChatStore) ListConversationsForAdmin(ctx context.Context, opts types.ListAdminConversationOptions) ([]types.AdminConversation, error) {
	return nil, nil
}

func (s *DisabledChatStore) GetMessages(ctx context.Context, clientID, conversationID string) ([]types.MessageRecord, error) {
	return nil, nil
}

func (s *DisabledChatStore) DeleteConversation(ctx context.Context, clientID, conversationID string) (int64, error) {
	return 0, nil
}

func (s *DisabledChatStore) GetClientIDByEmail(ctx context.Context, email string) (string, error) {
	return "", nil
}

func (s *DisabledChatStore) GetSessionEmail(ctx context.Context, clientID string) (string, error) {
	return "", nil
}
