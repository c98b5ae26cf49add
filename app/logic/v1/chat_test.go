package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usageflows/chatbot/app/core"
	"github.com/usageflows/chatbot/app/store/sqlstore"
	"github.com/usageflows/chatbot/pkg/ai"
	"github.com/usageflows/chatbot/pkg/errors"
	"github.com/usageflows/chatbot/pkg/i18n"
	"github.com/usageflows/chatbot/pkg/prompt"
	"github.com/usageflows/chatbot/pkg/types"
)

const testTemplate = `# Prompt Selection
General Assistant

# Prompt Rules
Be nice.
`

type fakeGateway struct {
	calls        int
	lastModel    string
	lastMessages []prompt.Message
	resp         *ai.ExecuteResponse
	err          error
}

func (f *fakeGateway) Execute(ctx context.Context, model string, messages []prompt.Message) (*ai.ExecuteResponse, error) {
	f.calls++
	f.lastModel = model
	f.lastMessages = messages
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type appendedTurns struct {
	clientID       string
	conversationID string
	chatMode       string
	email          string
	turns          []types.MessageInput
}

// recordingStore captures writes and serves canned reads. The embedded
// disabled store supplies no-ops for everything not overridden.
type recordingStore struct {
	sqlstore.DisabledChatStore

	sessionEmail string
	upserted     []string
	backfilled   []string
	appended     []appendedTurns
	appendErr    error
	ensureCalls  int
	ensureErr    error
}

func (s *recordingStore) IsConfigured() bool { return true }

func (s *recordingStore) EnsureSchema(ctx context.Context) error {
	s.ensureCalls++
	return s.ensureErr
}

func (s *recordingStore) GetSessionEmail(ctx context.Context, clientID string) (string, error) {
	return s.sessionEmail, nil
}

func (s *recordingStore) UpsertSession(ctx context.Context, clientID, email string) error {
	s.upserted = append(s.upserted, clientID+"|"+email)
	return nil
}

func (s *recordingStore) BackfillEmail(ctx context.Context, clientID, email string) (int64, error) {
	s.backfilled = append(s.backfilled, clientID+"|"+email)
	return 3, nil
}

func (s *recordingStore) AppendMessages(ctx context.Context, clientID, conversationID, chatMode string, messages []types.MessageInput, email string) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	s.appended = append(s.appended, appendedTurns{
		clientID:       clientID,
		conversationID: conversationID,
		chatMode:       chatMode,
		email:          email,
		turns:          messages,
	})
	return nil
}

func writeRulesDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "general.md"), []byte(testTemplate), 0o644))
	return dir
}

func newTestCore(t *testing.T, opts ...core.Option) *core.Core {
	t.Helper()
	cfg := core.CoreConfig{}
	cfg.Log.Level = "error"
	cfg.Gateway.APIKey = "test-key"
	cfg.Gateway.Model = "openai/gpt-5-pro"
	cfg.Rules.Dir = writeRulesDir(t)
	return core.MustSetupCore(cfg, opts...)
}

func strPtr(s string) *string { return &s }

func validChatRequest() ChatRequest {
	return ChatRequest{
		ChatMode:            "general",
		ConversationHistory: json.RawMessage(`[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]`),
		UserMessage:         strPtr("what now?"),
	}
}

func requireCode(t *testing.T, err error, code int, key string) {
	t.Helper()
	require.Error(t, err)
	ce, ok := err.(*errors.CustomizedError)
	require.True(t, ok, "got %T", err)
	assert.Equal(t, code, ce.GetCode())
	if key != "" {
		assert.Equal(t, key, ce.Message())
	}
}

func Test_SendMessage_Validation(t *testing.T) {
	gw := &fakeGateway{resp: &ai.ExecuteResponse{Content: "ok"}}
	logic := NewChatLogic(context.Background(), newTestCore(t, core.WithGateway(gw)))

	req := validChatRequest()
	req.ChatMode = "  "
	_, err := logic.SendMessage("client", req)
	requireCode(t, err, http.StatusBadRequest, i18n.ERROR_CHAT_MODE_REQUIRED)

	req = validChatRequest()
	req.ConversationHistory = nil
	_, err = logic.SendMessage("client", req)
	requireCode(t, err, http.StatusBadRequest, i18n.ERROR_CONVERSATION_HISTORY_NOT_ARRAY)

	req = validChatRequest()
	req.ConversationHistory = json.RawMessage(`"not an array"`)
	_, err = logic.SendMessage("client", req)
	requireCode(t, err, http.StatusBadRequest, i18n.ERROR_CONVERSATION_HISTORY_NOT_ARRAY)

	req = validChatRequest()
	req.UserMessage = nil
	_, err = logic.SendMessage("client", req)
	requireCode(t, err, http.StatusBadRequest, i18n.ERROR_USER_MESSAGE_REQUIRED)

	// Validation failures never reach the gateway.
	assert.Zero(t, gw.calls)
}

func Test_SendMessage_UnknownChatMode(t *testing.T) {
	gw := &fakeGateway{resp: &ai.ExecuteResponse{Content: "ok"}}
	logic := NewChatLogic(context.Background(), newTestCore(t, core.WithGateway(gw)))

	req := validChatRequest()
	req.ChatMode = "nonexistent"
	_, err := logic.SendMessage("client", req)

	requireCode(t, err, http.StatusNotFound, i18n.ERROR_UNKNOWN_CHAT_MODE)
	assert.Zero(t, gw.calls)
}

func Test_SendMessage_Success(t *testing.T) {
	gw := &fakeGateway{resp: &ai.ExecuteResponse{
		Content: "sure thing",
		Usage:   json.RawMessage(`{"total":0.01}`),
		Model:   "openrouter/resolved-model",
	}}
	st := &recordingStore{}
	logic := NewChatLogic(context.Background(), newTestCore(t, core.WithGateway(gw), core.WithChatStore(st)))

	req := validChatRequest()
	req.ConversationID = "conv-9"
	resp, err := logic.SendMessage("client-1", req)
	require.NoError(t, err)

	assert.Equal(t, 1, gw.calls)
	assert.Equal(t, "openai/gpt-5-pro", gw.lastModel)
	// system + 2 history turns + final user turn
	require.Len(t, gw.lastMessages, 4)
	assert.Equal(t, "system", gw.lastMessages[0].Role)
	assert.Contains(t, gw.lastMessages[0].Content, "Be nice.")
	assert.Equal(t, "what now?", gw.lastMessages[3].Content)

	assert.Equal(t, "sure thing", resp.Content)
	require.NotNil(t, resp.Model)
	assert.Equal(t, "openrouter/resolved-model", *resp.Model)
	assert.Equal(t, "conv-9", resp.ConversationID)

	require.Len(t, st.appended, 1)
	got := st.appended[0]
	assert.Equal(t, "client-1", got.clientID)
	assert.Equal(t, "conv-9", got.conversationID)
	assert.Equal(t, "general", got.chatMode)
	require.Len(t, got.turns, 2)
	assert.Equal(t, types.USER_ROLE_USER, got.turns[0].Role)
	assert.Equal(t, "what now?", got.turns[0].Content)
	assert.Empty(t, got.turns[0].Model)
	assert.Equal(t, types.USER_ROLE_ASSISTANT, got.turns[1].Role)
	assert.Equal(t, "openrouter/resolved-model", got.turns[1].Model)
	assert.JSONEq(t, `{"total":0.01}`, string(got.turns[1].Usage))
}

func Test_SendMessage_ModelFallsBackToConfigured(t *testing.T) {
	gw := &fakeGateway{resp: &ai.ExecuteResponse{Content: "reply", Model: "   "}}
	st := &recordingStore{}
	logic := NewChatLogic(context.Background(), newTestCore(t, core.WithGateway(gw), core.WithChatStore(st)))

	resp, err := logic.SendMessage("client-1", validChatRequest())
	require.NoError(t, err)

	require.NotNil(t, resp.Model)
	assert.Equal(t, "openai/gpt-5-pro", *resp.Model)
	require.Len(t, st.appended, 1)
	assert.Equal(t, "openai/gpt-5-pro", st.appended[0].turns[1].Model)
}

func Test_SendMessage_GeneratesConversationID(t *testing.T) {
	gw := &fakeGateway{resp: &ai.ExecuteResponse{Content: "reply"}}
	st := &recordingStore{}
	logic := NewChatLogic(context.Background(), newTestCore(t, core.WithGateway(gw), core.WithChatStore(st)))

	resp, err := logic.SendMessage("client-1", validChatRequest())
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ConversationID)
	require.Len(t, st.appended, 1)
	assert.Equal(t, resp.ConversationID, st.appended[0].conversationID)
}

func Test_SendMessage_EmailLinking(t *testing.T) {
	gw := &fakeGateway{resp: &ai.ExecuteResponse{Content: "reply"}}
	st := &recordingStore{sessionEmail: "old@x.co"}
	logic := NewChatLogic(context.Background(), newTestCore(t, core.WithGateway(gw), core.WithChatStore(st)))

	req := validChatRequest()
	req.Email = " new@x.co "
	_, err := logic.SendMessage("client-1", req)
	require.NoError(t, err)

	assert.Equal(t, []string{"client-1|new@x.co"}, st.upserted)
	assert.Equal(t, []string{"client-1|new@x.co"}, st.backfilled)
	require.Len(t, st.appended, 1)
	assert.Equal(t, "new@x.co", st.appended[0].email)
}

func Test_SendMessage_UsesSessionEmailWithoutBodyEmail(t *testing.T) {
	gw := &fakeGateway{resp: &ai.ExecuteResponse{Content: "reply"}}
	st := &recordingStore{sessionEmail: "linked@x.co"}
	logic := NewChatLogic(context.Background(), newTestCore(t, core.WithGateway(gw), core.WithChatStore(st)))

	_, err := logic.SendMessage("client-1", validChatRequest())
	require.NoError(t, err)

	assert.Empty(t, st.upserted)
	require.Len(t, st.appended, 1)
	assert.Equal(t, "linked@x.co", st.appended[0].email)
}

func Test_SendMessage_PersistFailureDoesNotFailChat(t *testing.T) {
	gw := &fakeGateway{resp: &ai.ExecuteResponse{Content: "reply"}}
	st := &recordingStore{appendErr: assert.AnError}
	logic := NewChatLogic(context.Background(), newTestCore(t, core.WithGateway(gw), core.WithChatStore(st)))

	resp, err := logic.SendMessage("client-1", validChatRequest())
	require.NoError(t, err)

	assert.Equal(t, "reply", resp.Content)
	assert.Empty(t, resp.ConversationID)
}

func Test_SendMessage_EnsuresSchemaBeforePersist(t *testing.T) {
	gw := &fakeGateway{resp: &ai.ExecuteResponse{Content: "reply"}}
	st := &recordingStore{}
	logic := NewChatLogic(context.Background(), newTestCore(t, core.WithGateway(gw), core.WithChatStore(st)))

	startupCalls := st.ensureCalls
	_, err := logic.SendMessage("client-1", validChatRequest())
	require.NoError(t, err)

	// Each persisting turn ensures the schema, beyond the startup call.
	assert.Equal(t, startupCalls+1, st.ensureCalls)
	assert.Len(t, st.appended, 1)
}

func Test_SendMessage_EnsureSchemaFailureDoesNotFailChat(t *testing.T) {
	gw := &fakeGateway{resp: &ai.ExecuteResponse{Content: "reply"}}
	st := &recordingStore{ensureErr: assert.AnError}
	logic := NewChatLogic(context.Background(), newTestCore(t, core.WithGateway(gw), core.WithChatStore(st)))

	resp, err := logic.SendMessage("client-1", validChatRequest())
	require.NoError(t, err)

	assert.Equal(t, "reply", resp.Content)
	assert.Empty(t, resp.ConversationID)
	assert.Empty(t, st.appended)
}

func Test_SendMessage_GatewayErrorPropagates(t *testing.T) {
	gwErr := errors.New("fake", "Gateway connection failed: ECONNREFUSED - down", nil).Code(http.StatusBadGateway)
	gw := &fakeGateway{err: gwErr}
	st := &recordingStore{}
	logic := NewChatLogic(context.Background(), newTestCore(t, core.WithGateway(gw), core.WithChatStore(st)))

	_, err := logic.SendMessage("client-1", validChatRequest())

	requireCode(t, err, http.StatusBadGateway, "")
	assert.Empty(t, st.appended)
}

func Test_SendMessage_EmptyHistoryAllowed(t *testing.T) {
	gw := &fakeGateway{resp: &ai.ExecuteResponse{Content: "reply"}}
	logic := NewChatLogic(context.Background(), newTestCore(t, core.WithGateway(gw)))

	req := validChatRequest()
	req.ConversationHistory = json.RawMessage(`[]`)
	_, err := logic.SendMessage("client-1", req)
	require.NoError(t, err)
	require.Len(t, gw.lastMessages, 2)
}
