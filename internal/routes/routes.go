package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"chatrelay/internal/handlers"
	"chatrelay/internal/middleware"
)

type Handlers struct {
	Auth        *handlers.AuthHandler
	Verify      *handlers.VerifyHandler
	Users       *handlers.UserHandler
	Chat        *handlers.ChatHandler
	Attachments *handlers.AttachmentHandler
	WS          *handlers.WSHandler
}

func Setup(r *gin.Engine, h Handlers) {
	r.Use(middleware.AuthMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// public
	r.POST("/register", h.Verify.Register)
	r.POST("/register/confirm", h.Verify.Confirm)
	r.POST("/register/resend", h.Verify.Resend)
	r.POST("/login", h.Auth.Login)
	r.POST("/refresh", h.Auth.Refresh)

	// authenticated
	r.POST("/logout", h.Auth.Logout)
	r.GET("/me", h.Users.Me)
	r.GET("/users/search", h.Users.Search)
	r.POST("/users/telegram", h.Users.LinkTelegram)

	r.GET("/chat/rooms", h.Chat.ListRooms)
	r.POST("/chat/direct", h.Chat.StartDirect)
	r.POST("/chat/groups", h.Chat.CreateGroup)
	r.GET("/chat/rooms/:id", h.Chat.ViewRoom)
	r.DELETE("/chat/rooms/:id", h.Chat.DeleteRoom)
	r.GET("/chat/rooms/:id/transcript", h.Chat.Transcript)

	r.POST("/chat/rooms/:id/attachments", h.Attachments.Upload)
	r.GET("/attachments/:id", h.Attachments.Download)

	// token checked inside the handler (query parameter)
	r.GET("/ws", h.WS.Serve)
}
