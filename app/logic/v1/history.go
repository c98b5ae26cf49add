package v1

import (
	"context"
	"net/http"
	"strings"

	"github.com/usageflows/chatbot/app/core"
	"github.com/usageflows/chatbot/pkg/errors"
	"github.com/usageflows/chatbot/pkg/i18n"
	"github.com/usageflows/chatbot/pkg/types"
	"github.com/usageflows/chatbot/pkg/utils"
)

type HistoryLogic struct {
	ctx  context.Context
	core *core.Core
}

func NewHistoryLogic(ctx context.Context, core *core.Core) *HistoryLogic {
	return &HistoryLogic{
		ctx:  ctx,
		core: core,
	}
}

func (l *HistoryLogic) requireStore() error {
	if !l.core.Store().IsConfigured() {
		return errors.New("HistoryLogic.requireStore", i18n.ERROR_PERSISTENCE_NOT_CONFIGURED, nil).Code(http.StatusServiceUnavailable)
	}
	return nil
}

// ListConversations lists the caller's conversations. With an email the
// client id is looked up from the session table and matching switches to the
// email across clients. A chat mode filter also turns on question previews.
func (l *HistoryLogic) ListConversations(clientID, email, chatMode string) ([]types.Conversation, error) {
	if err := l.requireStore(); err != nil {
		return nil, err
	}

	email = strings.TrimSpace(email)
	chatMode = strings.TrimSpace(chatMode)

	if email != "" {
		resolved, err := l.core.Store().GetClientIDByEmail(l.ctx, email)
		if err != nil {
			return nil, errors.New("HistoryLogic.ListConversations.GetClientIDByEmail", i18n.ERROR_LIST_HISTORY_FAILED, err)
		}
		clientID = resolved
	} else if clientID == "" {
		return []types.Conversation{}, nil
	}

	var (
		conversations []types.Conversation
		err           error
	)
	if chatMode != "" {
		conversations, err = l.core.Store().ListConversationsWithPreview(l.ctx, clientID, email, chatMode)
	} else {
		conversations, err = l.core.Store().ListConversations(l.ctx, clientID, email, chatMode)
	}
	if err != nil {
		return nil, errors.New("HistoryLogic.ListConversations.Store", i18n.ERROR_LIST_HISTORY_FAILED, err)
	}
	if conversations == nil {
		conversations = []types.Conversation{}
	}
	return conversations, nil
}

func (l *HistoryLogic) ListConversationsForAdmin(opts types.ListAdminConversationOptions) ([]types.AdminConversation, error) {
	if err := l.requireStore(); err != nil {
		return nil, err
	}

	conversations, err := l.core.Store().ListConversationsForAdmin(l.ctx, opts)
	if err != nil {
		return nil, errors.New("HistoryLogic.ListConversationsForAdmin.Store", i18n.ERROR_LIST_HISTORY_FAILED, err)
	}
	if conversations == nil {
		conversations = []types.AdminConversation{}
	}
	return conversations, nil
}

// GetMessages loads one conversation in chronological order.
func (l *HistoryLogic) GetMessages(clientID, conversationID string) ([]types.MessageRecord, error) {
	clientID = utils.TrimAndBound(clientID, types.MAX_CLIENT_ID_LENGTH)
	conversationID = utils.TrimAndBound(conversationID, types.MAX_CONVERSATION_ID_LENGTH)
	if clientID == "" || conversationID == "" {
		return nil, errors.New("HistoryLogic.GetMessages.Args", i18n.ERROR_CLIENT_CONVERSATION_REQUIRED, nil).Code(http.StatusBadRequest)
	}
	if err := l.requireStore(); err != nil {
		return nil, err
	}

	messages, err := l.core.Store().GetMessages(l.ctx, clientID, conversationID)
	if err != nil {
		return nil, errors.New("HistoryLogic.GetMessages.Store", i18n.ERROR_LOAD_MESSAGES_FAILED, err)
	}
	if messages == nil {
		messages = []types.MessageRecord{}
	}
	return messages, nil
}

// DeleteConversation removes all of one conversation's messages and reports
// how many rows went away.
func (l *HistoryLogic) DeleteConversation(clientID, conversationID string) (int64, error) {
	conversationID = utils.TrimAndBound(conversationID, types.MAX_CONVERSATION_ID_LENGTH)
	if conversationID == "" {
		return 0, errors.New("HistoryLogic.DeleteConversation.Args", i18n.ERROR_CONVERSATION_ID_REQUIRED, nil).Code(http.StatusBadRequest)
	}
	if err := l.requireStore(); err != nil {
		return 0, err
	}

	deleted, err := l.core.Store().DeleteConversation(l.ctx, clientID, conversationID)
	if err != nil {
		return 0, errors.New("HistoryLogic.DeleteConversation.Store", i18n.ERROR_DELETE_CONVERSATION_FAILED, err)
	}
	return deleted, nil
}

// DeleteConversationForAdmin is the admin variant: the client id comes from
// the request instead of the caller's session.
func (l *HistoryLogic) DeleteConversationForAdmin(clientID, conversationID string) (int64, error) {
	clientID = utils.TrimAndBound(clientID, types.MAX_CLIENT_ID_LENGTH)
	conversationID = utils.TrimAndBound(conversationID, types.MAX_CONVERSATION_ID_LENGTH)
	if clientID == "" || conversationID == "" {
		return 0, errors.New("HistoryLogic.DeleteConversationForAdmin.Args", i18n.ERROR_CLIENT_CONVERSATION_REQUIRED, nil).Code(http.StatusBadRequest)
	}
	if err := l.requireStore(); err != nil {
		return 0, err
	}

	deleted, err := l.core.Store().DeleteConversation(l.ctx, clientID, conversationID)
	if err != nil {
		return 0, errors.New("HistoryLogic.DeleteConversationForAdmin.Store", i18n.ERROR_DELETE_CONVERSATION_FAILED, err)
	}
	return deleted, nil
}
