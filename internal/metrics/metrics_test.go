package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EgorLis/multibot/internal/logging"
)

func TestCounters(t *testing.T) {
	m := New()

	m.Message("alpha_bot")
	m.Message("alpha_bot")
	m.Message("beta_bot")
	m.Command("stats")
	m.Throttled()
	m.PersistResult(nil)
	m.PersistResult(errors.New("disk full"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.messages.WithLabelValues("alpha_bot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues("beta_bot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commands.WithLabelValues("stats")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.throttled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.persistFailures))
}

func TestWatchUsers(t *testing.T) {
	m := New()
	total, premium := 3, 1
	m.WatchUsers(func() int { return total }, func() int { return premium })

	expected := `
# HELP multibot_premium_users Users with premium status.
# TYPE multibot_premium_users gauge
multibot_premium_users 1
# HELP multibot_users Known users.
# TYPE multibot_users gauge
multibot_users 3
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"multibot_users", "multibot_premium_users"))

	total = 4
	n, err := testutil.GatherAndCount(m.Registry(), "multibot_users")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Message("x")
		m.Command("x")
		m.Throttled()
		m.PersistResult(errors.New("x"))
		m.WatchUsers(nil, nil)
	})
	assert.Nil(t, m.Registry())
}

func TestHandler(t *testing.T) {
	m := New()
	m.Command("ping")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `multibot_commands_total{command="ping"} 1`)
}

func TestServe_StopsWithContext(t *testing.T) {
	m := New()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.serve(ctx, ln, logging.Nop{}) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + ln.Addr().String() + "/metrics")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "go_goroutines")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
