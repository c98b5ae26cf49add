package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	cerrors "github.com/usageflows/chatbot/pkg/errors"
	"github.com/usageflows/chatbot/pkg/i18n"
	"github.com/usageflows/chatbot/pkg/prompt"
)

const (
	DefaultTimeout = 120 * time.Second

	executePath    = "/api/execute"
	apiKeyHeader   = "X-Internal-API-Key"
	jobProvider    = "openrouter"
	jobType        = "text-completion"
	previewLength  = 120
	maxErrBodySize = 64 * 1024
)

// Gateway is the completion-provider boundary. It is an interface so the
// orchestration logic can be exercised with a fake in tests.
type Gateway interface {
	Execute(ctx context.Context, model string, messages []prompt.Message) (*ExecuteResponse, error)
}

type GatewayConfig struct {
	BaseURL string        `toml:"base_url"`
	APIKey  string        `toml:"api_key"`
	Model   string        `toml:"model"`
	Timeout time.Duration `toml:"-"`
}

type ExecuteResponse struct {
	Content string
	Usage   json.RawMessage
	Model   string
}

type GatewayClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewGatewayClient(cfg GatewayConfig) *GatewayClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &GatewayClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type executeRequest struct {
	Provider string         `json:"provider"`
	JobType  string         `json:"job_type"`
	Payload  executePayload `json:"payload"`
	DryRun   bool           `json:"dry_run"`
}

type executePayload struct {
	Model    string           `json:"model"`
	Messages []prompt.Message `json:"messages"`
}

type executeResponseBody struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  *executeResult  `json:"result"`
	Usage   json.RawMessage `json:"usage"`
	Model   string          `json:"model"`
}

type executeResult struct {
	Model   string          `json:"model"`
	Choices []executeChoice `json:"choices"`
}

type executeChoice struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
	Text string `json:"text"`
}

// Execute performs the single outbound POST to the gateway and classifies
// every failure mode. No retries; a timeout surfaces immediately.
func (g *GatewayClient) Execute(ctx context.Context, model string, messages []prompt.Message) (*ExecuteResponse, error) {
	url := g.baseURL + executePath
	body := executeRequest{
		Provider: jobProvider,
		JobType:  jobType,
		Payload:  executePayload{Model: model, Messages: messages},
		DryRun:   false,
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, cerrors.New("GatewayClient.Execute.Marshal", i18n.ERROR_INTERNAL, err)
	}

	g.logRequest(url, body)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, cerrors.New("GatewayClient.Execute.NewRequest", i18n.ERROR_INTERNAL, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		elapsed := time.Since(start)
		code := transportErrorCode(err)
		slog.Error("gateway request failed with no HTTP response",
			slog.String("url", url),
			slog.String("transport_code", code),
			slog.String("error", err.Error()),
			slog.Duration("elapsed", elapsed))
		return nil, cerrors.New("GatewayClient.Execute.Do",
			fmt.Sprintf("Gateway connection failed: %s - %s", code, err.Error()), err).
			Code(http.StatusBadGateway)
	}
	defer resp.Body.Close()

	elapsed := time.Since(start)
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrBodySize))
	if err != nil {
		return nil, cerrors.New("GatewayClient.Execute.ReadAll",
			fmt.Sprintf("Gateway response read failed: %s", err.Error()), err).
			Code(http.StatusBadGateway)
	}

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode != http.StatusOK {
		return nil, g.classifyNon200(resp.StatusCode, contentType, data, elapsed)
	}

	var decoded executeResponseBody
	if err := json.Unmarshal(data, &decoded); err != nil {
		g.logResponseDetails(resp.StatusCode, resp.Header, data, elapsed)
		return nil, cerrors.New("GatewayClient.Execute.Unmarshal",
			"Gateway returned an unreadable response", err).Code(http.StatusBadGateway)
	}

	// Transport succeeded but the gateway application reported a failure.
	if decoded.Status == "error" {
		g.logResponseDetails(resp.StatusCode, resp.Header, data, elapsed)
		msg := decoded.Message
		if msg == "" {
			msg = "Gateway returned error"
		}
		return nil, cerrors.New("GatewayClient.Execute.BodyStatus", msg, nil).Code(http.StatusBadGateway)
	}

	result := &ExecuteResponse{
		Content: extractContent(decoded.Result),
		Usage:   decoded.Usage,
		Model:   extractModel(decoded),
	}

	slog.Info("gateway call succeeded",
		slog.Duration("elapsed", elapsed),
		slog.Int("content_length", len(result.Content)),
		slog.Bool("usage_present", len(result.Usage) > 0),
		slog.String("model", result.Model))
	return result, nil
}

func (g *GatewayClient) classifyNon200(status int, contentType string, body []byte, elapsed time.Duration) error {
	bodyStr := string(body)
	htmlTimeout := strings.Contains(contentType, "text/html") ||
		(strings.Contains(bodyStr, "504") && (strings.Contains(bodyStr, "<html") || strings.Contains(bodyStr, "nginx")))

	if status == http.StatusGatewayTimeout && htmlTimeout {
		// The reverse proxy in front of the gateway gave up waiting on the
		// upstream, not the model provider itself.
		slog.Error("gateway 504 from reverse proxy (HTML body)",
			slog.Duration("elapsed", elapsed))
		return cerrors.New("GatewayClient.classifyNon200.proxyTimeout",
			i18n.ERROR_GATEWAY_PROXY_TIMEOUT, nil).Code(http.StatusGatewayTimeout)
	}

	slog.Error("gateway returned non-200 response",
		slog.Int("status", status),
		slog.String("content_type", contentType),
		slog.String("body", bodyStr),
		slog.Duration("elapsed", elapsed))

	if status == http.StatusGatewayTimeout {
		return cerrors.New("GatewayClient.classifyNon200.upstreamTimeout",
			i18n.ERROR_GATEWAY_UPSTREAM_TIMEOUT, nil).Code(http.StatusGatewayTimeout)
	}

	msg := "Gateway error"
	var decoded executeResponseBody
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Message != "" {
		msg = decoded.Message
	}
	return cerrors.New("GatewayClient.classifyNon200", msg, nil).Code(status)
}

func extractContent(result *executeResult) string {
	if result == nil || len(result.Choices) == 0 {
		return ""
	}
	choice := result.Choices[0]
	if choice.Message != nil && choice.Message.Content != "" {
		return choice.Message.Content
	}
	return choice.Text
}

func extractModel(decoded executeResponseBody) string {
	if m := strings.TrimSpace(decoded.Model); m != "" {
		return m
	}
	if decoded.Result != nil {
		return strings.TrimSpace(decoded.Result.Model)
	}
	return ""
}

// logRequest logs the outbound call in full, including the assembled prompt.
// Deliberately verbose for operational debugging; the API key itself is
// never written, only its presence and length.
func (g *GatewayClient) logRequest(url string, body executeRequest) {
	keyState := "MISSING"
	if g.apiKey != "" {
		keyState = fmt.Sprintf("present (%d chars)", len(g.apiKey))
	}

	attrs := []any{
		slog.String("url", url),
		slog.String("api_key", keyState),
		slog.String("provider", body.Provider),
		slog.String("job_type", body.JobType),
		slog.Bool("dry_run", body.DryRun),
		slog.String("model", body.Payload.Model),
		slog.Int("message_count", len(body.Payload.Messages)),
	}
	for i, m := range body.Payload.Messages {
		preview := m.Content
		if len(preview) > previewLength {
			preview = preview[:previewLength] + "..."
		}
		attrs = append(attrs, slog.Group(fmt.Sprintf("message_%d", i),
			slog.String("role", m.Role),
			slog.Int("content_length", len(m.Content)),
			slog.String("preview", preview)))
	}
	slog.Info("gateway request", attrs...)

	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		for i, m := range body.Payload.Messages {
			slog.Debug("gateway full prompt message",
				slog.Int("index", i),
				slog.String("role", m.Role),
				slog.String("content", m.Content))
		}
	}
}

func (g *GatewayClient) logResponseDetails(status int, headers http.Header, body []byte, elapsed time.Duration) {
	redacted := make(map[string][]string, len(headers))
	for k, v := range headers {
		if strings.EqualFold(k, apiKeyHeader) {
			redacted[k] = []string{"[REDACTED]"}
			continue
		}
		redacted[k] = v
	}
	slog.Error("gateway response details",
		slog.Int("status", status),
		slog.Duration("elapsed", elapsed),
		slog.Any("headers", redacted),
		slog.String("body", string(body)))
}

// transportErrorCode maps a no-response failure to a short diagnostic code
// kept for the operator; end callers only ever see the generic message.
func transportErrorCode(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) || os.IsTimeout(err):
		return "ETIMEDOUT"
	case errors.Is(err, context.Canceled):
		return "ECANCELED"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "ENOTFOUND"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" {
			return "ECONNREFUSED"
		}
		return "ECONNRESET"
	}
	return "UNKNOWN"
}
