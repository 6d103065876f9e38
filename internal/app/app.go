package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"chatrelay/internal/config"
	"chatrelay/internal/handlers"
	"chatrelay/internal/middleware"
	"chatrelay/internal/pdf"
	"chatrelay/internal/realtime"
	"chatrelay/internal/repositories"
	"chatrelay/internal/routes"
	"chatrelay/internal/services"
	"chatrelay/internal/storage"
	"chatrelay/internal/tasks"
)

// attachmentRetention is how long a viewed attachment survives before
// the sweep collects it.
const attachmentRetention = 5 * time.Minute

func Run() {
	cfg := config.LoadConfig()
	middleware.SetSigningKey(cfg.Auth.JWTSecret)

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("[app] open database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("[app] ping database: %v", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Printf("[app] redis unavailable, presence falls back to the database: %v", err)
			rdb = nil
		}
	}

	store, err := storage.NewFileStore(cfg.Files.RootDir)
	if err != nil {
		log.Fatalf("[app] file store: %v", err)
	}

	queue := tasks.NewQueue(4, 256)
	defer queue.Stop()

	hub := realtime.NewHub()

	userRepo := repositories.NewUserRepository(db)
	verifRepo := repositories.NewUserVerificationRepository(db)
	roomRepo := repositories.NewRoomRepository(db)
	messageRepo := repositories.NewMessageRepository(db)
	attachmentRepo := repositories.NewAttachmentRepository(db)

	mailer := services.NewEmailService(
		cfg.Email.SMTPHost, cfg.Email.SMTPPort,
		cfg.Email.SMTPUser, cfg.Email.SMTPPassword, cfg.Email.FromEmail,
	)
	userService := services.NewUserService(userRepo, verifRepo, mailer)
	presenceService := services.NewPresenceService(userRepo, roomRepo, hub, rdb, cfg.Presence.DisplayTimezone)
	notifyService := services.NewNotifyService(cfg.Telegram.BotToken, userRepo)
	roomService := services.NewRoomService(roomRepo, messageRepo, attachmentRepo, userRepo, presenceService, store, queue)
	messageService := services.NewMessageService(roomRepo, messageRepo, userRepo, store, hub, notifyService, queue)
	attachmentService := services.NewAttachmentService(attachmentRepo, roomRepo, store, hub, queue)
	transcriptService := services.NewTranscriptService(roomRepo, messageRepo, userRepo, pdf.NewGenerator())

	h := routes.Handlers{
		Auth:        handlers.NewAuthHandler(userService, userRepo),
		Verify:      handlers.NewVerifyHandler(userService),
		Users:       handlers.NewUserHandler(userService),
		Chat:        handlers.NewChatHandler(roomService, transcriptService, filepath.Join(cfg.Files.RootDir, "exports")),
		Attachments: handlers.NewAttachmentHandler(messageService, attachmentService),
		WS:          handlers.NewWSHandler(hub, roomRepo, userService, messageService, presenceService),
	}

	r := gin.Default()
	routes.Setup(r, h)

	// periodic collection of viewed attachments
	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.Attachments.SweepInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				attachmentService.SweepExpired(attachmentRetention)
			case <-sweepDone:
				return
			}
		}
	}()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Printf("[app] listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("[app] server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("[app] shutting down")

	close(sweepDone)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[app] shutdown: %v", err)
	}
}
