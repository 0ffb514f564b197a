package telegram

import (
	"context"
	"errors"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Send отправляет текст в чат. Если Telegram не смог разобрать Markdown,
// сообщение уходит ещё раз обычным текстом.
func (c *Client) Send(ctx context.Context, chatID int64, text string, markdown bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.api == nil {
		return ErrNotConnected
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if markdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	_, err := c.api.Send(msg)

	var apiErr *tgbotapi.Error
	if markdown && errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest {
		c.log.Warn(ctx, "markdown rejected, resending as plain text", "chat", chatID, "err", apiErr.Message)
		msg.ParseMode = ""
		_, err = c.api.Send(msg)
	}
	if err != nil {
		err = c.redact(err)
		c.log.Error(ctx, "send message", "chat", chatID, "err", err)
	}
	return err
}
