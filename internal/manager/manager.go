// Package manager поднимает несколько ботов (по одному на токен) и крутит их
// long polling параллельно. Все боты пишут в один общий стор.
package manager

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/EgorLis/multibot/internal/bot"
	"github.com/EgorLis/multibot/internal/logging"
	"github.com/EgorLis/multibot/internal/tokens"
)

const connectConcurrency = 4

var ErrNoBots = errors.New("manager: no bots to run")

// Client - транспорт одного бота.
type Client interface {
	bot.Sender
	Connect(ctx context.Context) error
	Run(ctx context.Context) error
	Name() string
	// OnMessage вызывается из Run для каждого входящего сообщения.
	OnMessage(fn func(context.Context, bot.Message))
}

type ClientFactory func(token string) Client

type instance struct {
	client Client
	bot    *bot.Bot
}

type Manager struct {
	store     bot.Store
	newClient ClientFactory
	botOpts   []bot.Option
	log       logging.Logger

	mu   sync.Mutex
	bots []instance
}

type Option func(*Manager)

func WithClientFactory(f ClientFactory) Option {
	return func(m *Manager) { m.newClient = f }
}

// WithBotOptions применяется к каждому боту.
func WithBotOptions(opts ...bot.Option) Option {
	return func(m *Manager) { m.botOpts = append(m.botOpts, opts...) }
}

func WithLogger(l logging.Logger) Option {
	return func(m *Manager) { m.log = l }
}

func New(store bot.Store, opts ...Option) *Manager {
	m := &Manager{
		store: store,
		log:   logging.Nop{},
	}
	for _, o := range opts {
		o(m)
	}
	if m.newClient == nil {
		m.newClient = TelegramFactory(m.log)
	}
	m.log = m.log.With("component", "manager")
	return m
}

// Setup подключает боты по списку токенов. Токен, который не прошёл
// проверку, пишется в лог и пропускается. Возвращает число готовых ботов.
// Порядок ботов совпадает с порядком токенов.
func (m *Manager) Setup(ctx context.Context, list []string) int {
	slots := make([]*instance, len(list))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(connectConcurrency)
	for i, token := range list {
		g.Go(func() error {
			c := m.newClient(token)
			if err := c.Connect(gctx); err != nil {
				m.log.Error(ctx, "bot setup failed", "token", tokens.Mask(token), "err", err)
				return nil
			}
			opts := append([]bot.Option{bot.WithName(c.Name())}, m.botOpts...)
			b := bot.New(m.store, c, opts...)
			c.OnMessage(func(ctx context.Context, msg bot.Message) {
				_ = b.HandleMessage(ctx, msg)
			})
			slots[i] = &instance{client: c, bot: b}
			m.log.Info(ctx, "bot ready", "bot", c.Name())
			return nil
		})
	}
	_ = g.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, in := range slots {
		if in != nil {
			m.bots = append(m.bots, *in)
		}
	}
	return len(m.bots)
}

// Bots - имена подключённых ботов.
func (m *Manager) Bots() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.bots))
	for _, in := range m.bots {
		names = append(names, in.client.Name())
	}
	return names
}

// Run крутит все боты до отмены ctx. Ошибка одного бота останавливает остальных.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	bots := append([]instance(nil), m.bots...)
	m.mu.Unlock()

	if len(bots) == 0 {
		return ErrNoBots
	}

	m.log.Info(ctx, "all bots running", "count", len(bots))
	g, gctx := errgroup.WithContext(ctx)
	for _, in := range bots {
		g.Go(func() error {
			m.log.Info(gctx, "polling started", "bot", in.client.Name())
			return in.client.Run(gctx)
		})
	}
	err := g.Wait()
	m.log.Info(ctx, "all bots stopped", "err", err)
	return err
}
