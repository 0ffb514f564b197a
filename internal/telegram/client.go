package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/EgorLis/multibot/internal/logging"
	"github.com/EgorLis/multibot/internal/tokens"
)

const (
	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

var ErrNotConnected = errors.New("telegram: not connected")

type Client struct {
	token       string
	endpoint    string
	pollTimeout time.Duration
	httpClient  *http.Client
	log         logging.Logger

	api    *tgbotapi.BotAPI
	offset int

	// life отменяется вместе с Run и обрывает висящий getUpdates
	life context.Context
	stop context.CancelFunc

	minBackoff, maxBackoff time.Duration
	after                  func(time.Duration) <-chan time.Time

	// "События"
	OnConnected func()
	OnMessage   func(context.Context, *tgbotapi.Message)
	OnError     func(error)
}

type Option func(*Client)

// WithEndpoint задаёт шаблон адреса Bot API: fmt с токеном и методом.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

func WithPollTimeout(d time.Duration) Option {
	return func(c *Client) { c.pollTimeout = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.log = l }
}

// WithBackoff меняет пределы паузы между неудачными getUpdates.
func WithBackoff(lo, hi time.Duration) Option {
	return func(c *Client) { c.minBackoff, c.maxBackoff = lo, hi }
}

func New(token string, opts ...Option) *Client {
	c := &Client{
		token:       token,
		endpoint:    tgbotapi.APIEndpoint,
		pollTimeout: 30 * time.Second,
		log:         logging.Nop{},
		minBackoff:  minBackoff,
		maxBackoff:  maxBackoff,
		after:       time.After,
	}
	for _, o := range opts {
		o(c)
	}
	if c.httpClient == nil {
		// запас сверху на сам long poll
		c.httpClient = &http.Client{Timeout: c.pollTimeout + 15*time.Second}
	}
	c.life, c.stop = context.WithCancel(context.Background())
	c.log = c.log.With("bot", c.Token())
	return c
}

// Token - замаскированный токен, годится для логов.
func (c *Client) Token() string { return tokens.Mask(c.token) }

// Username известен после Connect.
func (c *Client) Username() string {
	if c.api == nil {
		return ""
	}
	return c.api.Self.UserName
}

// Name - @username, а до подключения маска токена.
func (c *Client) Name() string {
	if u := c.Username(); u != "" {
		return "@" + u
	}
	return c.Token()
}

// Connect проверяет токен запросом getMe.
func (c *Client) Connect(ctx context.Context) error {
	unwatch := context.AfterFunc(ctx, c.stop)
	defer unwatch()

	api, err := tgbotapi.NewBotAPIWithClient(c.token, c.endpoint, doer{client: c.httpClient, ctx: c.life})
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.Token(), c.redact(err))
	}
	c.api = api
	c.log = c.log.With("username", api.Self.UserName)
	c.log.Info(ctx, "bot connected")

	if c.OnConnected != nil {
		c.OnConnected()
	}
	return nil
}

// redact вырезает токен из текста ошибки: net/http кладёт туда URL запроса.
func (c *Client) redact(err error) error {
	if err == nil || !strings.Contains(err.Error(), c.token) {
		return err
	}
	return redactedError{msg: strings.ReplaceAll(err.Error(), c.token, c.Token()), err: err}
}

type redactedError struct {
	msg string
	err error
}

func (e redactedError) Error() string { return e.msg }
func (e redactedError) Unwrap() error { return e.err }

func (c *Client) emitError(err error) {
	if c.OnError != nil {
		c.OnError(err)
	}
}

// doer привязывает запросы библиотеки к жизни клиента.
type doer struct {
	client *http.Client
	ctx    context.Context
}

func (d doer) Do(req *http.Request) (*http.Response, error) {
	return d.client.Do(req.WithContext(d.ctx))
}
