package handler

import (
	"github.com/gin-gonic/gin"

	v1 "github.com/usageflows/chatbot/app/logic/v1"
	"github.com/usageflows/chatbot/app/response"
	"github.com/usageflows/chatbot/pkg/utils"
)

func (s *HttpSrv) Chat(c *gin.Context) {
	var req v1.ChatRequest
	if err := utils.BindArgsWithGin(c, &req); err != nil {
		response.APIError(c, err)
		return
	}

	timer := s.Core.Metrics().ApiResponseTimer("/api/chat")
	defer timer.ObserveDuration()

	resp, err := v1.NewChatLogic(c, s.Core).SendMessage(clientIDWithBody(c, req.SessionID), req)
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, resp)
}

func (s *HttpSrv) ListChatModes(c *gin.Context) {
	modes := v1.NewModeLogic(c, s.Core).ListModes()
	response.APISuccess(c, gin.H{"chat_modes": modes})
}

func (s *HttpSrv) GetRules(c *gin.Context) {
	content, err := v1.NewModeLogic(c, s.Core).GetRulesContent(c.Param("chat_mode"))
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.PlainText(c, content)
}
