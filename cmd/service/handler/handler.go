package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/usageflows/chatbot/app/core"
	v1 "github.com/usageflows/chatbot/app/logic/v1"
)

type HttpSrv struct {
	Core   *core.Core
	Engine *gin.Engine
}

// CountErrors is response middleware feeding the api error counter.
func (s *HttpSrv) CountErrors(c *gin.Context) {
	c.Next()
	if status := c.Writer.Status(); status >= http.StatusBadRequest {
		s.Core.Metrics().ApiErrorInc(c.Request.Method, c.FullPath(), status)
	}
}

const sessionIDHeader = "X-Session-ID"

// clientID resolves the caller's identity for endpoints without a body.
func clientID(c *gin.Context) string {
	return v1.DeriveClientID(c.GetHeader(sessionIDHeader), "", c.Query("session_id"), c.ClientIP())
}

// clientIDWithBody is the same resolution with a body-supplied session id
// in the middle of the precedence chain.
func clientIDWithBody(c *gin.Context, bodySessionID string) string {
	return v1.DeriveClientID(c.GetHeader(sessionIDHeader), bodySessionID, c.Query("session_id"), c.ClientIP())
}
