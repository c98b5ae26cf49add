package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	v1 "github.com/usageflows/chatbot/app/logic/v1"
	"github.com/usageflows/chatbot/app/response"
	"github.com/usageflows/chatbot/pkg/types"
	"github.com/usageflows/chatbot/pkg/utils"
)

type LinkEmailRequest struct {
	Email     string `json:"email"`
	SessionID string `json:"session_id"`
}

func (s *HttpSrv) LinkEmail(c *gin.Context) {
	var req LinkEmailRequest
	if err := utils.BindArgsWithGin(c, &req); err != nil {
		response.APIError(c, err)
		return
	}

	result, err := v1.NewSessionLogic(c, s.Core).LinkEmail(clientIDWithBody(c, req.SessionID), req.Email)
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, result)
}

func (s *HttpSrv) ListHistory(c *gin.Context) {
	conversations, err := v1.NewHistoryLogic(c, s.Core).ListConversations(clientID(c), c.Query("email"), c.Query("chat_mode"))
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, gin.H{"conversations": conversations})
}

func (s *HttpSrv) ListHistoryForAdmin(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	conversations, err := v1.NewHistoryLogic(c, s.Core).ListConversationsForAdmin(types.ListAdminConversationOptions{
		ClientID: c.Query("client_id"),
		Email:    c.Query("email"),
		ChatMode: c.Query("chat_mode"),
		Limit:    limit,
	})
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, gin.H{"conversations": conversations})
}

func (s *HttpSrv) GetMessages(c *gin.Context) {
	messages, err := v1.NewHistoryLogic(c, s.Core).GetMessages(c.Query("client_id"), c.Query("conversation_id"))
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, gin.H{"messages": messages})
}

func (s *HttpSrv) DeleteConversation(c *gin.Context) {
	deleted, err := v1.NewHistoryLogic(c, s.Core).DeleteConversation(clientID(c), c.Query("conversation_id"))
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, gin.H{"ok": true, "deleted": deleted})
}

func (s *HttpSrv) DeleteConversationForAdmin(c *gin.Context) {
	deleted, err := v1.NewHistoryLogic(c, s.Core).DeleteConversationForAdmin(c.Query("client_id"), c.Query("conversation_id"))
	if err != nil {
		response.APIError(c, err)
		return
	}
	response.APISuccess(c, gin.H{"ok": true, "deleted": deleted})
}
