package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usageflows/chatbot/app/core"
	"github.com/usageflows/chatbot/cmd/service/middleware"
	"github.com/usageflows/chatbot/pkg/ai"
	"github.com/usageflows/chatbot/pkg/metrics"
	"github.com/usageflows/chatbot/pkg/prompt"
)

type fakeGateway struct {
	resp *ai.ExecuteResponse
	err  error
}

func (f *fakeGateway) Execute(ctx context.Context, model string, messages []prompt.Message) (*ai.ExecuteResponse, error) {
	return f.resp, f.err
}

const testTemplate = `# Prompt Selection

General Assistant

# Prompt Rules

Be nice.
`

func newTestSrv(t *testing.T, opts ...core.Option) *HttpSrv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rulesDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(rulesDir, "general.md"), []byte(testTemplate), 0o644))

	cfg := core.CoreConfig{}
	cfg.Log.Level = "error"
	cfg.Rules.Dir = rulesDir
	cfg.Gateway.APIKey = "test-key"
	cfg.Gateway.Model = "openai/gpt-5-pro"

	app := core.MustSetupCore(cfg, opts...)
	s := &HttpSrv{Core: app, Engine: app.HttpEngine()}
	s.Engine.Use(middleware.I18n())
	s.Engine.Use(s.CountErrors)

	s.Engine.GET("/metrics", metrics.DefaultExportHandler())
	s.Engine.GET("/api/chat-modes", s.ListChatModes)
	s.Engine.GET("/api/rules/:chat_mode", s.GetRules)
	s.Engine.POST("/api/chat", s.Chat)
	return s
}

func doRequest(s *HttpSrv, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Engine.ServeHTTP(w, req)
	return w
}

func Test_ListChatModes(t *testing.T) {
	s := newTestSrv(t)

	w := doRequest(s, http.MethodGet, "/api/chat-modes", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		ChatModes []struct {
			ID          string `json:"id"`
			DisplayName string `json:"displayName"`
		} `json:"chat_modes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.ChatModes, 1)
	assert.Equal(t, "general", body.ChatModes[0].ID)
	assert.Equal(t, "General Assistant", body.ChatModes[0].DisplayName)
}

func Test_GetRules(t *testing.T) {
	s := newTestSrv(t)

	w := doRequest(s, http.MethodGet, "/api/rules/general", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testTemplate, w.Body.String())

	w = doRequest(s, http.MethodGet, "/api/rules/nope", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Unknown chat mode", body.Error)
}

func Test_Chat(t *testing.T) {
	gw := &fakeGateway{resp: &ai.ExecuteResponse{Content: "hello there", Model: "openrouter/resolved"}}
	s := newTestSrv(t, core.WithGateway(gw))

	w := doRequest(s, http.MethodPost, "/api/chat",
		`{"chat_mode":"general","conversation_history":[],"user_message":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Content string  `json:"content"`
		Model   *string `json:"model"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "hello there", body.Content)
	require.NotNil(t, body.Model)
	assert.Equal(t, "openrouter/resolved", *body.Model)
}

func Test_ErrorResponsesFeedApiErrorCounter(t *testing.T) {
	s := newTestSrv(t)

	w := doRequest(s, http.MethodGet, "/api/rules/nope", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	m := doRequest(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, m.Code)
	assert.Regexp(t,
		`chatbot_core_api_error\{api="/api/rules/:chat_mode",method="GET",status="404"\} [1-9]`,
		m.Body.String())
}

func Test_Chat_ValidationError(t *testing.T) {
	gw := &fakeGateway{resp: &ai.ExecuteResponse{Content: "unused"}}
	s := newTestSrv(t, core.WithGateway(gw))

	w := doRequest(s, http.MethodPost, "/api/chat",
		`{"conversation_history":[],"user_message":"hi"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "chat_mode is required", body.Error)
}
