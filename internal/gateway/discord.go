package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/GML-FMGroup/cappuccino/internal/agent"
)

// DiscordGateway mirrors the Telegram command set over a Discord bot; the
// channel ID is the session identity.
type DiscordGateway struct {
	Session *discordgo.Session
	Agent   Agent
	allowed map[string]bool
}

func NewDiscordGateway(token string, allowedUsers []string, a Agent) (*DiscordGateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(allowedUsers))
	for _, id := range allowedUsers {
		allowed[id] = true
	}

	dg := &DiscordGateway{Session: session, Agent: a, allowed: allowed}
	session.AddHandler(dg.onMessage)
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent
	return dg, nil
}

func (dg *DiscordGateway) Start() error {
	if err := dg.Session.Open(); err != nil {
		return err
	}
	log.Printf("Discord gateway connected as %s", dg.Session.State.User.Username)
	select {} // discordgo runs its own read loop; block like the poll gateways do
}

func (dg *DiscordGateway) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID {
		return
	}
	if len(dg.allowed) > 0 && !dg.allowed[m.Author.ID] {
		return
	}

	chatID := m.ChannelID
	ctx := context.Background()
	text := strings.TrimSpace(m.Content)

	switch {
	case text == "/start" || text == "/help":
		dg.send(chatID, helpText)
		return
	case text == "/screenshot":
		png, err := dg.Agent.Screenshot(ctx)
		if err != nil {
			dg.send(chatID, fmt.Sprintf("Screenshot failed: %v", err))
			return
		}
		_ = dg.SendPhoto(chatID, "Current screen", png)
		return
	case text == "/cancel":
		if dg.Agent.Cancel(chatID) {
			dg.send(chatID, "Cancelling after the current action finishes...")
		} else {
			dg.send(chatID, "Nothing is running.")
		}
		return
	case strings.HasPrefix(text, "/run "):
		text = strings.TrimSpace(strings.TrimPrefix(text, "/run "))
	}

	if text == "" {
		return
	}

	if err := dg.Agent.Submit(ctx, chatID, text); err != nil {
		if errors.Is(err, agent.ErrBusy) {
			dg.send(chatID, "Still working on the previous request. /cancel to abort it.")
		} else {
			dg.send(chatID, fmt.Sprintf("Could not start: %v", err))
		}
		return
	}
	dg.send(chatID, "🫡 On it.")
}

func (dg *DiscordGateway) send(chatID, text string) {
	if _, err := dg.Session.ChannelMessageSend(chatID, text); err != nil {
		log.Printf("discord send failed: %v", err)
	}
}

func (dg *DiscordGateway) Send(chatID string, text string) error {
	_, err := dg.Session.ChannelMessageSend(chatID, text)
	return err
}

func (dg *DiscordGateway) SendPhoto(chatID string, caption string, png []byte) error {
	_, err := dg.Session.ChannelMessageSendComplex(chatID, &discordgo.MessageSend{
		Content: caption,
		Files: []*discordgo.File{
			{Name: "screen.png", ContentType: "image/png", Reader: bytes.NewReader(png)},
		},
	})
	return err
}

func (dg *DiscordGateway) Stop() error {
	return dg.Session.Close()
}
