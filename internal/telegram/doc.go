// Package telegram - клиент Telegram Bot API на одного бота поверх
// go-telegram-bot-api/v5. Клиент проверяет токен (getMe), держит long polling
// getUpdates со сдвигом offset, при сетевых ошибках ждёт с экспоненциальным
// backoff (1s..30s) и отправляет ответы.
//
// События (колбэки поля структуры):
//   - OnConnected, OnMessage, OnError.
//
// Пример:
//
//	c := telegram.New(token, telegram.WithPollTimeout(30*time.Second))
//	c.OnMessage = func(ctx context.Context, m *tgbotapi.Message) {
//	    _ = c.Send(ctx, m.Chat.ID, "hi", false)
//	}
//	if err := c.Connect(ctx); err != nil { log.Fatal(err) }
//	_ = c.Run(ctx) // до отмены ctx
package telegram
