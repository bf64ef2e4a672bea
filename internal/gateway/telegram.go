package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/microcosm-cc/bluemonday"

	"github.com/GML-FMGroup/cappuccino/internal/agent"
)

type TelegramGateway struct {
	Bot       *tgbotapi.BotAPI
	Agent     Agent
	allowed   map[int64]bool
	sanitizer *bluemonday.Policy
}

// NewTelegramGateway connects the bot. An empty allowed list admits
// everyone.
func NewTelegramGateway(token string, allowedUsers []int64, a Agent) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	allowed := make(map[int64]bool, len(allowedUsers))
	for _, id := range allowedUsers {
		allowed[id] = true
	}

	return &TelegramGateway{
		Bot:       bot,
		Agent:     a,
		allowed:   allowed,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

func (tg *TelegramGateway) authorized(userID int64) bool {
	return len(tg.allowed) == 0 || tg.allowed[userID]
}

func (tg *TelegramGateway) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}
		if !tg.authorized(update.Message.From.ID) {
			tg.reply(update.Message.Chat.ID, "⛔ You are not authorized to control this computer.")
			continue
		}

		log.Printf("[%s] %s", update.Message.From.UserName, update.Message.Text)
		tg.handle(update.Message)
	}
	return nil
}

func (tg *TelegramGateway) handle(msg *tgbotapi.Message) {
	chatID := fmt.Sprintf("%d", msg.Chat.ID)
	ctx := context.Background()

	switch msg.Command() {
	case "start", "help":
		tg.reply(msg.Chat.ID, helpText)
		return
	case "screenshot":
		png, err := tg.Agent.Screenshot(ctx)
		if err != nil {
			tg.reply(msg.Chat.ID, fmt.Sprintf("Screenshot failed: %v", err))
			return
		}
		_ = tg.SendPhoto(chatID, "Current screen", png)
		return
	case "cancel":
		if tg.Agent.Cancel(chatID) {
			tg.reply(msg.Chat.ID, "Cancelling after the current action finishes...")
		} else {
			tg.reply(msg.Chat.ID, "Nothing is running.")
		}
		return
	}

	text := msg.Text
	if msg.Command() == "run" {
		text = msg.CommandArguments()
	}
	text = strings.TrimSpace(text)
	if text == "" {
		tg.reply(msg.Chat.ID, "Tell me what to do, e.g. /run open the calculator")
		return
	}

	if err := tg.Agent.Submit(ctx, chatID, text); err != nil {
		if errors.Is(err, agent.ErrBusy) {
			tg.reply(msg.Chat.ID, "Still working on the previous request. /cancel to abort it.")
		} else {
			tg.reply(msg.Chat.ID, fmt.Sprintf("Could not start: %v", err))
		}
		return
	}
	tg.reply(msg.Chat.ID, "🫡 On it.")
}

func (tg *TelegramGateway) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := tg.Bot.Send(msg); err != nil {
		log.Printf("telegram send failed: %v", err)
	}
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id := int64(0)
	fmt.Sscanf(chatID, "%d", &id)
	if id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	// Model output goes out HTML-escaped; strip anything markup-like first.
	msg := tgbotapi.NewMessage(id, tg.sanitizer.Sanitize(text))
	msg.ParseMode = "HTML"
	_, err := tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) SendPhoto(chatID string, caption string, png []byte) error {
	id := int64(0)
	fmt.Sscanf(chatID, "%d", &id)
	if id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	photo := tgbotapi.NewPhoto(id, tgbotapi.FileBytes{Name: "screen.png", Bytes: png})
	photo.Caption = caption
	_, err := tg.Bot.Send(photo)
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
