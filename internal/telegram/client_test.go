package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "123456789:TEST-token"

type sent struct {
	chatID    string
	text      string
	parseMode string
}

// fakeAPI - минимальный Bot API: getMe, getUpdates, sendMessage.
type fakeAPI struct {
	t *testing.T

	mu          sync.Mutex
	updates     [][]map[string]any // по одной пачке на вызов getUpdates
	failUpdates int                // столько первых getUpdates вернут 502
	offsets     []int
	sent        []sent
	rejectMD    bool
}

func (f *fakeAPI) reply(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func (f *fakeAPI) fail(w http.ResponseWriter, code int, desc string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": code, "description": desc})
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	require.NoError(f.t, r.ParseForm())

	prefix := "/bot" + testToken + "/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		f.fail(w, 401, "Unauthorized")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch strings.TrimPrefix(r.URL.Path, prefix) {
	case "getMe":
		f.reply(w, map[string]any{"id": 42, "is_bot": true, "first_name": "Test", "username": "test_bot"})
	case "getUpdates":
		off, _ := strconv.Atoi(r.Form.Get("offset"))
		f.offsets = append(f.offsets, off)
		if f.failUpdates > 0 {
			f.failUpdates--
			f.fail(w, 502, "Bad Gateway")
			return
		}
		if len(f.updates) == 0 {
			f.reply(w, []any{})
			return
		}
		batch := f.updates[0]
		f.updates = f.updates[1:]
		f.reply(w, batch)
	case "sendMessage":
		pm := r.Form.Get("parse_mode")
		if pm != "" && f.rejectMD {
			f.fail(w, 400, "Bad Request: can't parse entities")
			return
		}
		f.sent = append(f.sent, sent{chatID: r.Form.Get("chat_id"), text: r.Form.Get("text"), parseMode: pm})
		f.reply(w, map[string]any{"message_id": len(f.sent), "date": 0, "chat": map[string]any{"id": 1, "type": "private"}})
	default:
		f.fail(w, 404, "Not Found")
	}
}

func (f *fakeAPI) queue(batch ...map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, batch)
}

func (f *fakeAPI) sentMessages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

func (f *fakeAPI) seenOffsets() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.offsets...)
}

func update(id int, userID int64, text string) map[string]any {
	return map[string]any{
		"update_id": id,
		"message": map[string]any{
			"message_id": id,
			"date":       0,
			"text":       text,
			"from":       map[string]any{"id": userID, "is_bot": false, "first_name": "U" + strconv.FormatInt(userID, 10)},
			"chat":       map[string]any{"id": userID, "type": "private"},
		},
	}
}

func newTestClient(t *testing.T, token string) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{t: t}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	c := New(token,
		WithEndpoint(srv.URL+"/bot%s/%s"),
		WithHTTPClient(srv.Client()),
		WithPollTimeout(time.Second),
		WithBackoff(time.Millisecond, 4*time.Millisecond),
	)
	return c, api
}

func TestConnect(t *testing.T) {
	c, _ := newTestClient(t, testToken)
	assert.Equal(t, "1234567890...", c.Token())
	assert.Equal(t, "1234567890...", c.Name())

	connected := false
	c.OnConnected = func() { connected = true }
	require.NoError(t, c.Connect(context.Background()))

	assert.True(t, connected)
	assert.Equal(t, "test_bot", c.Username())
	assert.Equal(t, "@test_bot", c.Name())
}

func TestConnect_BadToken(t *testing.T) {
	c, _ := newTestClient(t, "999:wrong")
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "999:wrong...")
	assert.NotContains(t, err.Error(), "999:wrong/")
}

func TestRun_RequiresConnect(t *testing.T) {
	c, _ := newTestClient(t, testToken)
	assert.ErrorIs(t, c.Run(context.Background()), ErrNotConnected)
	assert.ErrorIs(t, c.Send(context.Background(), 1, "x", false), ErrNotConnected)
}

func TestRun_DeliversMessagesAndAdvancesOffset(t *testing.T) {
	c, api := newTestClient(t, testToken)
	require.NoError(t, c.Connect(context.Background()))

	api.queue(update(10, 1, "hello"), update(11, 2, "!ping"))
	api.queue(update(12, 1, "again"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu  sync.Mutex
		got []string
	)
	c.OnMessage = func(_ context.Context, m *tgbotapi.Message) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, m.Text)
		if len(got) == 3 {
			cancel()
		}
	}

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}

	assert.Equal(t, []string{"hello", "!ping", "again"}, got)
	offsets := api.seenOffsets()
	require.GreaterOrEqual(t, len(offsets), 2)
	assert.Equal(t, []int{0, 12}, offsets[:2])
}

func TestRun_BacksOffOnErrors(t *testing.T) {
	c, api := newTestClient(t, testToken)
	require.NoError(t, c.Connect(context.Background()))

	var waits []time.Duration
	c.after = func(d time.Duration) <-chan time.Time {
		waits = append(waits, d)
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}

	api.mu.Lock()
	api.failUpdates = 4
	api.mu.Unlock()
	api.queue(update(1, 5, "after outage"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var errs []error
	c.OnError = func(err error) { errs = append(errs, err) }
	c.OnMessage = func(context.Context, *tgbotapi.Message) { cancel() }

	require.NoError(t, c.Run(ctx))

	assert.Len(t, errs, 4)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond, 4 * time.Millisecond, 4 * time.Millisecond}, waits)
	var apiErr *tgbotapi.Error
	assert.True(t, errors.As(errs[0], &apiErr))
}

func TestSend(t *testing.T) {
	c, api := newTestClient(t, testToken)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Send(context.Background(), 7, "*bold*", true))
	require.NoError(t, c.Send(context.Background(), 7, "plain", false))

	msgs := api.sentMessages()
	require.Len(t, msgs, 2)
	assert.Equal(t, sent{chatID: "7", text: "*bold*", parseMode: tgbotapi.ModeMarkdown}, msgs[0])
	assert.Equal(t, sent{chatID: "7", text: "plain"}, msgs[1])
}

func TestSend_FallsBackToPlainText(t *testing.T) {
	c, api := newTestClient(t, testToken)
	require.NoError(t, c.Connect(context.Background()))
	api.rejectMD = true

	require.NoError(t, c.Send(context.Background(), 7, "broken *markdown", true))

	msgs := api.sentMessages()
	require.Len(t, msgs, 1)
	assert.Empty(t, msgs[0].parseMode)
}

func TestSend_CancelledContext(t *testing.T) {
	c, api := newTestClient(t, testToken)
	require.NoError(t, c.Connect(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Send(ctx, 7, "x", false), context.Canceled)
	assert.Empty(t, api.sentMessages())
}

func TestRedact(t *testing.T) {
	c := New(testToken)
	base := errors.New(`Post "https://api.telegram.org/bot` + testToken + `/getMe": dial tcp: timeout`)

	err := c.redact(base)
	assert.NotContains(t, err.Error(), testToken)
	assert.Contains(t, err.Error(), "1234567890...")
	assert.ErrorIs(t, err, base)

	plain := errors.New("boom")
	assert.Same(t, plain, c.redact(plain))
	assert.NoError(t, c.redact(nil))
}
