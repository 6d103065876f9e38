package services

import (
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chatrelay/internal/repositories"
)

// NotifyService pushes a Telegram nudge to recipients who have no open
// websocket connection when a message lands. Linking happens through the
// bot's /start command carrying the user id.
type NotifyService interface {
	NotifyOffline(userIDs []int, senderName, preview string)
}

type notifyService struct {
	bot   *tgbotapi.BotAPI
	users repositories.UserRepository
}

// NewNotifyService returns a no-op service when token is empty or the
// bot cannot be reached.
func NewNotifyService(token string, users repositories.UserRepository) NotifyService {
	if token == "" {
		return &notifyService{users: users}
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		log.Printf("[notify] telegram bot unavailable: %v", err)
		return &notifyService{users: users}
	}
	log.Printf("[notify] telegram bot authorized as @%s", bot.Self.UserName)
	return &notifyService{bot: bot, users: users}
}

const previewRuneLimit = 80

// truncatePreview shortens long message bodies on a rune boundary so a
// multi-byte character is never split.
func truncatePreview(s string) string {
	runes := []rune(s)
	if len(runes) <= previewRuneLimit {
		return s
	}
	return string(runes[:previewRuneLimit]) + "..."
}

func (s *notifyService) NotifyOffline(userIDs []int, senderName, preview string) {
	if s.bot == nil || len(userIDs) == 0 {
		return
	}
	targets, err := s.users.TelegramTargets(userIDs)
	if err != nil {
		log.Printf("[notify] lookup targets: %v", err)
		return
	}
	text := fmt.Sprintf("New message from %s: %s", senderName, truncatePreview(preview))
	for _, u := range targets {
		msg := tgbotapi.NewMessage(u.TelegramChatID, text)
		if _, err := s.bot.Send(msg); err != nil {
			log.Printf("[notify] send to user=%d: %v", u.ID, err)
		}
	}
}
