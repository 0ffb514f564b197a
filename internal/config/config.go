// Package config собирает настройки процесса: значения по умолчанию,
// YAML-файл (-c), переменные окружения MULTIBOT_* и явные флаги.
// Каждый следующий источник перекрывает предыдущий.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/EgorLis/multibot/internal/users"
)

const DefaultAPIEndpoint = "https://api.telegram.org/bot%s/%s"

var ErrInvalid = errors.New("config: invalid value")

type Config struct {
	Prefix     string `yaml:"prefix" env:"MULTIBOT_PREFIX" env-default:"!"`
	OwnerID    string `yaml:"owner_id" env:"MULTIBOT_OWNER_ID"`
	UsersFile  string `yaml:"users_file" env:"MULTIBOT_USERS_FILE" env-default:"users.json"`
	TokensFile string `yaml:"tokens_file" env:"MULTIBOT_TOKENS_FILE" env-default:"token.json"`

	Log       Log       `yaml:"log"`
	Telegram  Telegram  `yaml:"telegram"`
	RateLimit RateLimit `yaml:"rate_limit"`

	MetricsAddr string `yaml:"metrics_addr" env:"MULTIBOT_METRICS_ADDR"`
}

type Log struct {
	Level  string `yaml:"level" env:"MULTIBOT_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"MULTIBOT_LOG_FORMAT" env-default:"json"`
}

type Telegram struct {
	APIEndpoint string        `yaml:"api_endpoint" env:"MULTIBOT_API_ENDPOINT" env-default:"https://api.telegram.org/bot%s/%s"`
	PollTimeout time.Duration `yaml:"poll_timeout" env:"MULTIBOT_POLL_TIMEOUT" env-default:"30s"`
}

// RateLimit - ограничение ответов одному пользователю: Rate в секунду, пачкой до Burst.
// Rate = 0 выключает ограничение.
type RateLimit struct {
	Rate  float64 `yaml:"rate" env:"MULTIBOT_RATE" env-default:"1"`
	Burst int     `yaml:"burst" env:"MULTIBOT_BURST" env-default:"5"`
}

// Load разбирает args (без имени программы) и возвращает конфиг
// и оставшиеся позиционные аргументы (подкоманду).
func Load(args []string, output io.Writer) (*Config, []string, error) {
	fs := flag.NewFlagSet("multibot", flag.ContinueOnError)
	if output != nil {
		fs.SetOutput(output)
	}

	var (
		path string
		f    Config
	)
	fs.StringVar(&path, "c", "", "path to YAML config file")
	fs.StringVar(&path, "config", "", "path to YAML config file")
	fs.StringVar(&f.Prefix, "prefix", "", "command prefix")
	fs.StringVar(&f.OwnerID, "owner", "", "telegram id of the bot owner")
	fs.StringVar(&f.UsersFile, "users", "", "users data file")
	fs.StringVar(&f.TokensFile, "tokens", "", "bot tokens file")
	fs.StringVar(&f.Log.Level, "log-level", "", "debug|info|warn|error")
	fs.StringVar(&f.Log.Format, "log-format", "", "json|text")
	fs.StringVar(&f.MetricsAddr, "metrics", "", "address of the /metrics endpoint, empty to disable")
	fs.Float64Var(&f.RateLimit.Rate, "rate", 0, "replies per second per user, 0 disables")
	fs.IntVar(&f.RateLimit.Burst, "burst", 0, "reply burst per user")
	fs.DurationVar(&f.Telegram.PollTimeout, "poll-timeout", 0, "long polling timeout")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}

	cfg := &Config{}
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read config: %w", err)
	}

	// флаги применяем только явно заданные
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "prefix":
			cfg.Prefix = f.Prefix
		case "owner":
			cfg.OwnerID = f.OwnerID
		case "users":
			cfg.UsersFile = f.UsersFile
		case "tokens":
			cfg.TokensFile = f.TokensFile
		case "log-level":
			cfg.Log.Level = f.Log.Level
		case "log-format":
			cfg.Log.Format = f.Log.Format
		case "metrics":
			cfg.MetricsAddr = f.MetricsAddr
		case "rate":
			cfg.RateLimit.Rate = f.RateLimit.Rate
		case "burst":
			cfg.RateLimit.Burst = f.RateLimit.Burst
		case "poll-timeout":
			cfg.Telegram.PollTimeout = f.Telegram.PollTimeout
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, fs.Args(), nil
}

func (c *Config) Validate() error {
	c.Prefix = strings.TrimSpace(c.Prefix)
	if c.Prefix == "" {
		return fmt.Errorf("%w: empty prefix", ErrInvalid)
	}
	if c.OwnerID != "" {
		id, ok := users.NormalizeID(c.OwnerID)
		if !ok {
			return fmt.Errorf("%w: owner id %q", ErrInvalid, c.OwnerID)
		}
		c.OwnerID = id
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log format %q", ErrInvalid, c.Log.Format)
	}
	if c.Telegram.PollTimeout <= 0 {
		return fmt.Errorf("%w: poll timeout %s", ErrInvalid, c.Telegram.PollTimeout)
	}
	if c.RateLimit.Rate < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("%w: rate limit %v/%d", ErrInvalid, c.RateLimit.Rate, c.RateLimit.Burst)
	}
	if c.RateLimit.Rate > 0 && c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 1
	}
	if !strings.Contains(c.Telegram.APIEndpoint, "%s") {
		return fmt.Errorf("%w: api endpoint %q", ErrInvalid, c.Telegram.APIEndpoint)
	}
	return nil
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Prefix: %s\n"+
			"OwnerID: %s\n"+
			"UsersFile: %s\n"+
			"TokensFile: %s\n"+
			"Log: %s/%s\n"+
			"Telegram:\n"+
			"  APIEndpoint: %s\n"+
			"  PollTimeout: %s\n"+
			"RateLimit: %v/s burst %d\n"+
			"MetricsAddr: %s\n",
		c.Prefix,
		c.OwnerID,
		c.UsersFile,
		c.TokensFile,
		c.Log.Level, c.Log.Format,
		c.Telegram.APIEndpoint,
		c.Telegram.PollTimeout,
		c.RateLimit.Rate, c.RateLimit.Burst,
		c.MetricsAddr,
	)
}
