package response

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/usageflows/chatbot/pkg/errors"
	"github.com/usageflows/chatbot/pkg/i18n"
	"github.com/usageflows/chatbot/pkg/utils"
)

const (
	RequestIDKey = "request_id"
	LocalizerKey = "i18n"
)

func ProvideResponseLocalizer(l i18n.Localizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(LocalizerKey, l)
		c.Set(RequestIDKey, utils.GenRandomID())
	}
}

func InjectResponseLocalizer(c *gin.Context) i18n.Localizer {
	return c.MustGet(LocalizerKey).(i18n.Localizer)
}

// ErrorBody is the error contract of every endpoint: one localized string.
type ErrorBody struct {
	Error string `json:"error"`
}

func GetLangFromRequestOrDefault(c *gin.Context) string {
	lang := c.Request.Header.Get("Accept-Language")
	if lang == "zh" {
		lang = "zh-CN"
	}
	if i18n.ALLOW_LANG[lang] {
		return lang
	}
	return i18n.DEFAULT_LANG
}

// APIError writes the failure as {"error": message}. A CustomizedError
// carries its own HTTP status and its message is run through the localizer,
// which passes dynamic messages straight through.
func APIError(c *gin.Context, err error) {
	c.Abort()

	httpStatus := http.StatusInternalServerError
	message := err.Error()
	if cerrptr, ok := err.(*errors.CustomizedError); ok {
		httpStatus = cerrptr.GetCode()
		l := InjectResponseLocalizer(c)
		message = l.Get(GetLangFromRequestOrDefault(c), cerrptr.Message())
	}

	c.JSON(httpStatus, ErrorBody{Error: message})
	printErrorLog(c, httpStatus, err)
}

// APISuccess writes the payload as the whole response body.
func APISuccess(c *gin.Context, payload interface{}) {
	c.Abort()
	if payload == nil {
		payload = gin.H{}
	}
	c.JSON(http.StatusOK, payload)
	printSuccessLog(c)
}

// PlainText responds with a raw text body, used by the rules endpoint.
func PlainText(c *gin.Context, content string) {
	c.Abort()
	c.String(http.StatusOK, "%s", content)
	printSuccessLog(c)
}

func printErrorLog(c *gin.Context, status int, err error) {
	slog.Error("response error",
		slog.String("request_uri", c.Request.URL.Path),
		slog.String("method", c.Request.Method),
		slog.String("request_id", c.GetString(RequestIDKey)),
		slog.Int("code", status),
		slog.Int64("end_time", time.Now().Unix()),
		slog.String("error", err.Error()))
}

func printSuccessLog(c *gin.Context) {
	slog.Info("request success",
		slog.String("request_uri", c.Request.URL.Path),
		slog.String("method", c.Request.Method),
		slog.String("request_id", c.GetString(RequestIDKey)),
		slog.String("params", c.Request.URL.Query().Encode()),
		slog.Int64("end_time", time.Now().Unix()))
}
