// Package metrics - счётчики бота на отдельном prometheus-реестре.
// Все методы безопасно вызывать на nil *Metrics.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/EgorLis/multibot/internal/logging"
)

const namespace = "multibot"

type Metrics struct {
	reg *prometheus.Registry

	messages        *prometheus.CounterVec
	commands        *prometheus.CounterVec
	throttled       prometheus.Counter
	persistFailures prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound messages by bot account.",
		}, []string{"bot"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Handled prefix commands by name.",
		}, []string{"command"}),
		throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "throttled_replies_total",
			Help:      "Replies dropped by the per-user rate limit.",
		}),
		persistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_persist_failures_total",
			Help:      "Failed writes of the users file.",
		}),
	}
	m.reg.MustRegister(
		m.messages,
		m.commands,
		m.throttled,
		m.persistFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Message(bot string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(bot).Inc()
}

func (m *Metrics) Command(name string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name).Inc()
}

func (m *Metrics) Throttled() {
	if m == nil {
		return
	}
	m.throttled.Inc()
}

// PersistResult подходит как users.WithPersistHook.
func (m *Metrics) PersistResult(err error) {
	if m == nil || err == nil {
		return
	}
	m.persistFailures.Inc()
}

// WatchUsers регистрирует gauge-функции над стором. Вызывать один раз.
func (m *Metrics) WatchUsers(total, premium func() int) {
	if m == nil {
		return
	}
	m.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "users",
			Help:      "Known users.",
		}, func() float64 { return float64(total()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "premium_users",
			Help:      "Users with premium status.",
		}, func() float64 { return float64(premium()) }),
	)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Serve отдаёт /metrics на addr до отмены ctx.
func (m *Metrics) Serve(ctx context.Context, addr string, log logging.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return m.serve(ctx, ln, log)
}

func (m *Metrics) serve(ctx context.Context, ln net.Listener, log logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "metrics server starting", "address", ln.Addr().String())
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info(ctx, "shutting down metrics server")
		return srv.Shutdown(timeoutCtx)
	}
}
