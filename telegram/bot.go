package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const pollTimeoutSeconds = 50

// Bot handles the inbound command surface. Its only job is bootstrap: the
// first /start supplies a destination chat when none was preconfigured.
type Bot struct {
	client  *Client
	chatID  int64 // preconfigured destination, 0 when learned from /start
	onStart func(chatID int64)
	offset  int64
}

// NewBot wraps client with command handling. preconfigured is the
// destination chat id from configuration, or 0 when the bot should learn it
// from the first /start.
func NewBot(client *Client, preconfigured int64) *Bot {
	return &Bot{client: client, chatID: preconfigured}
}

// OnStart registers the callback invoked with the sender's chat id whenever
// /start is received. Must be called before Poll.
func (b *Bot) OnStart(fn func(chatID int64)) {
	b.onStart = fn
}

type botCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// SetCommands registers the bot's command list with Telegram.
func (b *Bot) SetCommands(ctx context.Context) error {
	payload := struct {
		Commands []botCommand `json:"commands"`
	}{
		Commands: []botCommand{
			{Command: "start", Description: "Start the bot and get the chat ID"},
		},
	}
	return b.client.call(ctx, "setMyCommands", payload, nil)
}

type incomingMessage struct {
	Text string `json:"text"`
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

type update struct {
	UpdateID int64            `json:"update_id"`
	Message  *incomingMessage `json:"message"`
}

// Poll long-polls getUpdates until ctx is canceled, dispatching commands as
// they arrive. Transient errors are logged and polling continues.
func (b *Bot) Poll(ctx context.Context) {
	for {
		updates, err := b.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("failed to get bot updates", "error", err)
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= b.offset {
				b.offset = u.UpdateID + 1
			}
			b.handle(ctx, u)
		}
	}
}

func (b *Bot) getUpdates(ctx context.Context) ([]update, error) {
	payload := struct {
		Offset  int64 `json:"offset"`
		Timeout int   `json:"timeout"`
	}{Offset: b.offset, Timeout: pollTimeoutSeconds}

	var updates []update
	if err := b.client.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

func (b *Bot) handle(ctx context.Context, u update) {
	if u.Message == nil {
		return
	}
	cmd := strings.TrimSpace(u.Message.Text)
	if cmd != "/start" && !strings.HasPrefix(cmd, "/start ") && !strings.HasPrefix(cmd, "/start@") {
		return
	}

	from := u.Message.Chat.ID
	slog.Info("/start received", "chat_id", from)

	if b.onStart != nil {
		b.onStart(from)
	}

	if err := b.client.SendMessage(ctx, from, b.welcome(from), true); err != nil {
		slog.Error("failed to send welcome message", "chat_id", from, "error", err)
	}
}

func (b *Bot) welcome(from int64) string {
	if b.chatID != 0 {
		return fmt.Sprintf(
			"👋 Hello! I am your RSS feed bot.\n\n"+
				"I am configured to send updates to chat ID %d.\n"+
				"I will periodically check the feed and send new items there.", b.chatID)
	}
	return fmt.Sprintf(
		"👋 Hello! I am your RSS feed bot.\n\n"+
			"New feed items will be sent to this chat (ID %d).", from)
}
