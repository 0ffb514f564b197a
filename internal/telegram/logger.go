package telegram

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/EgorLis/multibot/internal/logging"
)

// libLogger пускает сообщения библиотеки в наш логгер на уровне debug.
type libLogger struct {
	log logging.Logger
}

func (l libLogger) Println(v ...interface{}) {
	l.log.Debug(context.Background(), fmt.Sprint(v...))
}

func (l libLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(context.Background(), fmt.Sprintf(format, v...))
}

// SetLibraryLogger подменяет глобальный логгер go-telegram-bot-api.
func SetLibraryLogger(log logging.Logger) error {
	return tgbotapi.SetLogger(libLogger{log: log.With("component", "tgbotapi")})
}
