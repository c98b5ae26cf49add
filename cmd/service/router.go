package service

import (
	"github.com/gin-gonic/gin"

	"github.com/usageflows/chatbot/app/core"
	"github.com/usageflows/chatbot/cmd/service/handler"
	"github.com/usageflows/chatbot/cmd/service/middleware"
	"github.com/usageflows/chatbot/pkg/metrics"
)

func serve(core *core.Core) {
	httpSrv := &handler.HttpSrv{
		Core:   core,
		Engine: core.HttpEngine(),
	}
	setupHttpRouter(httpSrv)

	core.HttpEngine().Run(core.Cfg().Addr)
}

func setupHttpRouter(s *handler.HttpSrv) {
	s.Engine.Use(gin.Recovery())
	s.Engine.Use(middleware.I18n())
	s.Engine.Use(middleware.Cors)
	s.Engine.Use(s.CountErrors)

	s.Engine.GET("/metrics", metrics.DefaultExportHandler())

	api := s.Engine.Group("/api")
	{
		api.GET("/chat-modes", s.ListChatModes)
		api.GET("/rules/:chat_mode", s.GetRules)
		api.POST("/chat", s.Chat)
		api.POST("/sessions/email", s.LinkEmail)

		history := api.Group("/chat-history")
		{
			history.GET("", s.ListHistory)
			history.GET("/messages", s.GetMessages)
			history.DELETE("/conversation", s.DeleteConversation)

			admin := history.Group("/admin")
			{
				admin.GET("", s.ListHistoryForAdmin)
				admin.DELETE("/conversation", s.DeleteConversationForAdmin)
			}
		}
	}
}
