package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Run крутит long polling до отмены ctx. Ошибки getUpdates уходят в OnError,
// после каждой клиент ждёт backoff (удваивается до maxBackoff).
// На отмене возвращает nil.
func (c *Client) Run(ctx context.Context) error {
	if c.api == nil {
		return ErrNotConnected
	}
	unwatch := context.AfterFunc(ctx, c.stop)
	defer unwatch()
	defer c.stop()

	backoff := c.minBackoff
	for {
		if ctx.Err() != nil || c.life.Err() != nil {
			c.log.Info(ctx, "polling stopped")
			return nil
		}

		cfg := tgbotapi.NewUpdate(c.offset)
		cfg.Timeout = int(c.pollTimeout.Seconds())
		cfg.AllowedUpdates = []string{"message"}

		updates, err := c.api.GetUpdates(cfg)
		if err != nil {
			if ctx.Err() != nil || c.life.Err() != nil {
				continue
			}
			c.emitError(fmt.Errorf("get updates (wait %v): %w", backoff, c.redact(err)))
			select {
			case <-ctx.Done():
			case <-c.after(backoff):
			}
			backoff *= 2
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
			continue
		}
		backoff = c.minBackoff

		for _, upd := range updates {
			if upd.UpdateID >= c.offset {
				c.offset = upd.UpdateID + 1
			}
			m := upd.Message
			if m == nil || m.From == nil || m.Chat == nil {
				continue
			}
			if c.OnMessage != nil {
				c.OnMessage(ctx, m)
			}
		}
	}
}
