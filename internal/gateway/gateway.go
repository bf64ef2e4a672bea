package gateway

import "context"

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Start begins the message listening loop
	Start() error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// SendPhoto delivers a PNG image to a specific chat
	SendPhoto(chatID string, caption string, png []byte) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

// Agent is the session-facing side of a gateway: it accepts instructions,
// cancels them, and serves ad-hoc screenshots.
type Agent interface {
	Submit(ctx context.Context, chatID, instruction string) error
	Cancel(chatID string) bool
	Busy(chatID string) bool
	Screenshot(ctx context.Context) ([]byte, error)
}

const helpText = `I control this computer for you.

/run <request> — execute a request (plain text works too)
/screenshot — current screen
/cancel — stop the running request
/help — this message`
