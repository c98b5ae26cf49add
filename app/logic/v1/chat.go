package v1

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/usageflows/chatbot/app/core"
	"github.com/usageflows/chatbot/pkg/errors"
	"github.com/usageflows/chatbot/pkg/i18n"
	"github.com/usageflows/chatbot/pkg/prompt"
	"github.com/usageflows/chatbot/pkg/rules"
	"github.com/usageflows/chatbot/pkg/types"
	"github.com/usageflows/chatbot/pkg/utils"
)

type ChatLogic struct {
	ctx  context.Context
	core *core.Core
}

func NewChatLogic(ctx context.Context, core *core.Core) *ChatLogic {
	return &ChatLogic{
		ctx:  ctx,
		core: core,
	}
}

type ChatRequest struct {
	ChatMode            string          `json:"chat_mode"`
	ConversationHistory json.RawMessage `json:"conversation_history"`
	UserMessage         *string         `json:"user_message"`
	OptionalContext     string          `json:"optional_context"`
	ConversationID      string          `json:"conversation_id"`
	Email               string          `json:"email"`
	SessionID           string          `json:"session_id"`
}

type ChatResponse struct {
	Content        string          `json:"content"`
	Model          *string         `json:"model"`
	Usage          json.RawMessage `json:"usage,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
}

// SendMessage runs one chat turn end to end: validate, resolve the chat
// mode, assemble the prompt, call the gateway and persist both turns.
// Persistence failures never fail the turn.
func (l *ChatLogic) SendMessage(clientID string, req ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(req.ChatMode) == "" {
		return nil, errors.New("ChatLogic.SendMessage.ChatMode", i18n.ERROR_CHAT_MODE_REQUIRED, nil).Code(http.StatusBadRequest)
	}
	history, err := parseHistory(req.ConversationHistory)
	if err != nil {
		return nil, err
	}
	if req.UserMessage == nil {
		return nil, errors.New("ChatLogic.SendMessage.UserMessage", i18n.ERROR_USER_MESSAGE_REQUIRED, nil).Code(http.StatusBadRequest)
	}

	slog.Info("chat request",
		slog.String("chat_mode", req.ChatMode),
		slog.Int("history_length", len(history)),
		slog.String("gateway", l.core.Cfg().Gateway.BaseURL))

	template, err := l.core.RulesStore().Load(req.ChatMode)
	if err != nil {
		var notFound rules.ErrNotFound
		if stderrors.As(err, &notFound) {
			slog.Info("unknown chat mode requested", slog.String("chat_mode", req.ChatMode))
			return nil, errors.New("ChatLogic.SendMessage.RulesStore.Load", i18n.ERROR_UNKNOWN_CHAT_MODE, err).Code(http.StatusNotFound)
		}
		return nil, errors.New("ChatLogic.SendMessage.RulesStore.Load", i18n.ERROR_INTERNAL, err)
	}

	messages := prompt.BuildMessages(template.RulesText(), history, derefString(req.UserMessage), req.OptionalContext)

	configuredModel := l.core.Cfg().Gateway.Model
	timer := l.core.Metrics().GatewayRequestTimer(configuredModel)
	result, err := l.core.Gateway().Execute(l.ctx, configuredModel, messages)
	timer.ObserveDuration()
	if err != nil {
		if cerr, ok := err.(*errors.CustomizedError); ok {
			l.core.Metrics().GatewayErrorInc(cerr.GetCode())
		}
		return nil, err
	}

	// The gateway's reported model wins; fall back to the configured one.
	modelLabel := utils.TrimAndBound(result.Model, types.MAX_MODEL_LENGTH)
	if modelLabel == "" {
		modelLabel = strings.TrimSpace(configuredModel)
	}
	resp := &ChatResponse{
		Content: result.Content,
		Usage:   result.Usage,
	}
	if modelLabel != "" {
		resp.Model = &modelLabel
	}

	if l.core.Store().IsConfigured() {
		resp.ConversationID = l.persistTurns(clientID, req, resp, modelLabel)
	}
	return resp, nil
}

// persistTurns writes the user and assistant turns. Best effort: any failure
// is logged and counted, the chat response still goes out.
func (l *ChatLogic) persistTurns(clientID string, req ChatRequest, resp *ChatResponse, modelLabel string) string {
	// Latched in the store, so this is a no-op once the DDL has succeeded.
	// It still runs here so a database that was down at startup recovers.
	if err := l.core.Store().EnsureSchema(l.ctx); err != nil {
		slog.Error("failed to ensure schema before persisting", slog.String("error", err.Error()))
		l.core.Metrics().PersistErrorInc("ensure_schema")
		return ""
	}

	conversationID := utils.TrimAndBound(req.ConversationID, types.MAX_CONVERSATION_ID_LENGTH)
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	email := normalizeEmail(req.Email)
	emailForMessages, err := l.core.Store().GetSessionEmail(l.ctx, clientID)
	if err != nil {
		slog.Error("failed to read session email", slog.String("error", err.Error()))
		l.core.Metrics().PersistErrorInc("get_session_email")
	}
	if email != "" {
		if err := l.core.Store().UpsertSession(l.ctx, clientID, email); err != nil {
			slog.Error("failed to upsert session", slog.String("error", err.Error()))
			l.core.Metrics().PersistErrorInc("upsert_session")
		}
		if _, err := l.core.Store().BackfillEmail(l.ctx, clientID, email); err != nil {
			slog.Error("failed to backfill email", slog.String("error", err.Error()))
			l.core.Metrics().PersistErrorInc("backfill_email")
		}
		emailForMessages = email
	}

	modelForDB := modelLabel
	if modelForDB == "" {
		modelForDB = "unknown"
	}
	turns := []types.MessageInput{
		{Role: types.USER_ROLE_USER, Content: derefString(req.UserMessage)},
		{Role: types.USER_ROLE_ASSISTANT, Content: resp.Content, Model: modelForDB, Usage: resp.Usage},
	}
	if err := l.core.Store().AppendMessages(l.ctx, clientID, conversationID, req.ChatMode, turns, emailForMessages); err != nil {
		slog.Error("failed to persist chat turns",
			slog.String("error", err.Error()),
			slog.String("conversation_id", conversationID))
		l.core.Metrics().PersistErrorInc("append_messages")
		return ""
	}
	return conversationID
}

func parseHistory(raw json.RawMessage) ([]prompt.Message, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || !strings.HasPrefix(trimmed, "[") {
		return nil, errors.New("ChatLogic.parseHistory", i18n.ERROR_CONVERSATION_HISTORY_NOT_ARRAY, nil).Code(http.StatusBadRequest)
	}
	var history []prompt.Message
	if err := json.Unmarshal(raw, &history); err != nil {
		return nil, errors.New("ChatLogic.parseHistory.Unmarshal", i18n.ERROR_CONVERSATION_HISTORY_NOT_ARRAY, err).Code(http.StatusBadRequest)
	}
	return history, nil
}

func normalizeEmail(email string) string {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" || len(email) > types.MAX_EMAIL_LENGTH {
		return ""
	}
	return trimmed
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
