package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/EgorLis/multibot/internal/bot"
	"github.com/EgorLis/multibot/internal/config"
	"github.com/EgorLis/multibot/internal/logging"
	"github.com/EgorLis/multibot/internal/manager"
	"github.com/EgorLis/multibot/internal/metrics"
	"github.com/EgorLis/multibot/internal/prompt"
	"github.com/EgorLis/multibot/internal/telegram"
	"github.com/EgorLis/multibot/internal/tokens"
	"github.com/EgorLis/multibot/internal/users"
)

const usage = `usage:
  multibot [flags] [run]
  multibot [flags] tokens list
  multibot [flags] tokens add [token]
  multibot [flags] tokens remove <token|prefix>

run "multibot -h" for flags`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, rest, err := config.Load(args, stderr)
	if err != nil {
		return err
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)
	if err := telegram.SetLibraryLogger(log); err != nil {
		return err
	}

	cmd := "run"
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}
	switch cmd {
	case "run":
		return serve(ctx, cfg, log, stdout)
	case "tokens":
		return tokensCmd(cfg, rest, os.Stdin, stdout)
	default:
		fmt.Fprintln(stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func serve(ctx context.Context, cfg *config.Config, log logging.Logger, stdout io.Writer) error {
	log.Debug(ctx, "config", "config", cfg.String())
	m := metrics.New()

	store, err := users.Open(ctx, cfg.UsersFile,
		users.WithLogger(log),
		users.WithPersistHook(m.PersistResult),
	)
	if err != nil {
		return err
	}
	defer store.Close()
	m.WatchUsers(store.TotalUsers, store.PremiumUsers)

	ts := tokens.New(cfg.TokensFile)
	if err := ts.Load(); err != nil {
		return err
	}
	if ts.Len() == 0 && prompt.Interactive(os.Stdin) {
		fmt.Fprintln(stdout, "No bot tokens registered yet.")
		tok, err := prompt.Secret(os.Stdin, stdout, "Enter the first bot token: ")
		if err != nil {
			return err
		}
		if err := ts.Add(tok); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Token saved.")
	}
	list := ts.List()
	if len(list) == 0 {
		return fmt.Errorf("no tokens in %s, add one with: multibot tokens add", ts.Path())
	}

	log.Info(ctx, "starting", "bots", len(list), "users", store.TotalUsers(), "users_file", store.Path(), "prefix", cfg.Prefix)

	mgr := manager.New(store,
		manager.WithLogger(log),
		manager.WithClientFactory(manager.TelegramFactory(log,
			telegram.WithEndpoint(cfg.Telegram.APIEndpoint),
			telegram.WithPollTimeout(cfg.Telegram.PollTimeout),
		)),
		manager.WithBotOptions(
			bot.WithPrefix(cfg.Prefix),
			bot.WithOwner(cfg.OwnerID),
			bot.WithRateLimit(cfg.RateLimit.Rate, cfg.RateLimit.Burst),
			bot.WithMetrics(m),
			bot.WithLogger(log),
		),
	)
	if mgr.Setup(ctx, list) == 0 {
		return manager.ErrNoBots
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mgr.Run(gctx) })
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return m.Serve(gctx, cfg.MetricsAddr, log) })
	}

	log.Info(ctx, "running, press Ctrl+C to stop", "bots", mgr.Bots())
	return g.Wait()
}

func tokensCmd(cfg *config.Config, args []string, stdin *os.File, stdout io.Writer) error {
	ts := tokens.New(cfg.TokensFile)
	if err := ts.Load(); err != nil {
		return err
	}
	if len(args) == 0 {
		args = []string{"list"}
	}

	switch args[0] {
	case "list":
		list := ts.List()
		fmt.Fprintf(stdout, "Registered tokens (%d bots):\n", len(list))
		for i, t := range list {
			fmt.Fprintf(stdout, "  %d. %s\n", i+1, tokens.Mask(t))
		}
		return nil

	case "add":
		var tok string
		if len(args) > 1 {
			tok = args[1]
		} else {
			var err error
			if prompt.Interactive(stdin) {
				tok, err = prompt.Secret(stdin, stdout, "Enter the bot token: ")
			} else {
				tok, err = prompt.Line(bufio.NewReader(stdin), stdout, "Enter the bot token: ")
			}
			if err != nil {
				return err
			}
		}
		tok = strings.TrimSpace(tok)
		if err := ts.Add(tok); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Token %s added.\n", tokens.Mask(tok))
		return nil

	case "remove":
		if len(args) < 2 {
			return errors.New("usage: multibot tokens remove <token|prefix>")
		}
		removed, err := ts.Remove(args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Token %s removed.\n", tokens.Mask(removed))
		return nil

	default:
		return fmt.Errorf("unknown tokens command %q", args[0])
	}
}
