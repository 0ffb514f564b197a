package manager

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/EgorLis/multibot/internal/bot"
	"github.com/EgorLis/multibot/internal/logging"
	"github.com/EgorLis/multibot/internal/telegram"
	"github.com/EgorLis/multibot/internal/users"
)

// telegramClient приводит telegram.Client к Client.
type telegramClient struct {
	*telegram.Client
}

func (c telegramClient) OnMessage(fn func(context.Context, bot.Message)) {
	c.Client.OnMessage = func(ctx context.Context, m *tgbotapi.Message) {
		if m.Text == "" {
			return
		}
		fn(ctx, toMessage(m))
	}
}

// TelegramFactory строит клиентов Bot API с общими опциями.
func TelegramFactory(log logging.Logger, opts ...telegram.Option) ClientFactory {
	return func(token string) Client {
		c := telegram.New(token, append([]telegram.Option{telegram.WithLogger(log)}, opts...)...)
		c.OnError = func(err error) {
			log.Warn(context.Background(), "polling error", "bot", c.Name(), "err", err)
		}
		return telegramClient{Client: c}
	}
}

func toMessage(m *tgbotapi.Message) bot.Message {
	return bot.Message{
		ChatID: m.Chat.ID,
		Text:   m.Text,
		From: users.Identity{
			ID:           strconv.FormatInt(m.From.ID, 10),
			FirstName:    m.From.FirstName,
			Username:     m.From.UserName,
			LanguageCode: m.From.LanguageCode,
		},
	}
}
