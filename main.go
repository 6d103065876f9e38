package main

import (
	"chatrelay/internal/app"

	_ "chatrelay/docs"
)

// @title ChatRelay API
// @version 1.0
// @description Real-time chat backend: direct and group rooms, unread counters, view-once attachments and presence.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	app.Run()
}
