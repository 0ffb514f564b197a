// Package logging задаёт минимальный интерфейс структурированного логгера,
// которым пользуются все пакеты бота. Реализация поверх log/slog.
package logging

import "context"

// Logger - логгер с контекстом. Variadic args - пары ключ/значение:
//
//	log.Info(ctx, "bot started", "bot", name, "owner", ownerID)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With возвращает дочерний логгер, который всегда пишет переданные пары.
	With(args ...any) Logger
}

type eventIDKey struct{}

// WithEventID кладёт в контекст идентификатор входящего апдейта.
// Он попадает в каждую запись лога как event_id.
func WithEventID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, eventIDKey{}, id)
}

// EventID достаёт идентификатор апдейта из контекста ("" если его нет).
func EventID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(eventIDKey{}).(string)
	return id
}

// Nop ничего не пишет. Удобен в тестах.
type Nop struct{}

func (Nop) Debug(context.Context, string, ...any) {}
func (Nop) Info(context.Context, string, ...any)  {}
func (Nop) Warn(context.Context, string, ...any)  {}
func (Nop) Error(context.Context, string, ...any) {}
func (n Nop) With(...any) Logger                  { return n }
