package bot

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/EgorLis/multibot/internal/logging"
	"github.com/EgorLis/multibot/internal/metrics"
	"github.com/EgorLis/multibot/internal/users"
)

const (
	Name    = "Multi-Bot Manager"
	Version = "2.0"
)

// Sender доставляет ответ в чат.
type Sender interface {
	Send(ctx context.Context, chatID int64, text string, markdown bool) error
}

// Store - то, что бот использует из users.Store.
type Store interface {
	Upsert(ctx context.Context, who users.Identity, text string) (users.Record, error)
	GetStats(id string) (users.Record, bool)
	IsPremium(id string) bool
	SetPremium(ctx context.Context, id string, premium bool) error
	AddCredits(ctx context.Context, id string, amount int64) (int64, error)
	DeductCredits(ctx context.Context, id string, amount int64) (int64, error)
	ListPremium() []users.PremiumSummary
	TopUsers(limit int) []users.TopUser
	TotalUsers() int
	PremiumUsers() int
}

// Message - входящее текстовое сообщение.
type Message struct {
	ChatID int64
	From   users.Identity
	Text   string
}

type Bot struct {
	store  Store
	sender Sender

	name    string // для логов и метрик
	prefix  string
	owner   string
	limiter *limiter
	metrics *metrics.Metrics
	log     logging.Logger
	now     func() time.Time
}

type Option func(*Bot)

func WithPrefix(p string) Option {
	return func(b *Bot) { b.prefix = p }
}

// WithOwner задаёт Telegram id владельца, ему доступны команды управления.
func WithOwner(id string) Option {
	return func(b *Bot) { b.owner = id }
}

func WithName(name string) Option {
	return func(b *Bot) { b.name = name }
}

// WithRateLimit: не больше r ответов в секунду одному пользователю, пачкой до burst.
// r <= 0 выключает ограничение.
func WithRateLimit(r float64, burst int) Option {
	return func(b *Bot) { b.limiter = newLimiter(r, burst) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Bot) { b.metrics = m }
}

func WithLogger(l logging.Logger) Option {
	return func(b *Bot) { b.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(b *Bot) { b.now = now }
}

func New(store Store, sender Sender, opts ...Option) *Bot {
	b := &Bot{
		store:  store,
		sender: sender,
		prefix: "!",
		log:    logging.Nop{},
		now:    time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	b.log = b.log.With("component", "bot", "bot", b.name)
	return b
}

func (b *Bot) isOwner(id string) bool {
	return b.owner != "" && id == b.owner
}

func (b *Bot) status(id string) string {
	switch {
	case b.isOwner(id):
		return "owner"
	case b.store.IsPremium(id):
		return "premium"
	default:
		return "regular"
	}
}

// HandleMessage учитывает сообщение в сторе и отвечает на него.
// Ошибку возвращает только на невалидного отправителя.
func (b *Bot) HandleMessage(ctx context.Context, m Message) error {
	ctx = logging.WithEventID(ctx, uuid.NewString())
	b.metrics.Message(b.name)

	text := strings.TrimSpace(m.Text)
	rec, err := b.store.Upsert(ctx, m.From, text)
	if err != nil {
		b.log.Warn(ctx, "message rejected", "user", m.From.ID, "err", err)
		return err
	}

	kind := "text"
	switch {
	case isStart(text):
		kind = "start"
	case strings.HasPrefix(text, b.prefix):
		kind = "command"
	}
	b.log.Info(ctx, "message received",
		"user", m.From.ID,
		"status", b.status(m.From.ID),
		"text", text,
		"kind", kind,
	)

	if !b.limiter.allow(m.From.ID) {
		b.metrics.Throttled()
		b.log.Debug(ctx, "reply throttled", "user", m.From.ID)
		return nil
	}

	switch kind {
	case "start":
		b.handleStart(ctx, m, rec)
	case "command":
		b.handleCommand(ctx, m, text)
	default:
		b.reply(ctx, m.ChatID, "You said: "+text, false)
	}
	return nil
}

// "/start" и "/start@bot_name payload"
func isStart(text string) bool {
	cmd, _, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return cmd == "/start"
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string, markdown bool) {
	if err := b.sender.Send(ctx, chatID, text, markdown); err != nil {
		b.log.Error(ctx, "reply failed", "chat", chatID, "err", err)
	}
}
