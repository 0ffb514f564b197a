package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "multibot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, rest, err := Load(nil, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "!", cfg.Prefix)
	assert.Empty(t, cfg.OwnerID)
	assert.Equal(t, "users.json", cfg.UsersFile)
	assert.Equal(t, "token.json", cfg.TokensFile)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, DefaultAPIEndpoint, cfg.Telegram.APIEndpoint)
	assert.Equal(t, 30*time.Second, cfg.Telegram.PollTimeout)
	assert.Equal(t, 1.0, cfg.RateLimit.Rate)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Empty(t, cfg.MetricsAddr)
	assert.Empty(t, rest)
}

func TestLoad_FileEnvFlags(t *testing.T) {
	path := writeYAML(t, `
prefix: "."
owner_id: "42"
users_file: data/users.json
log:
  level: debug
  format: text
telegram:
  poll_timeout: 10s
rate_limit:
  rate: 2
  burst: 3
`)
	t.Setenv("MULTIBOT_OWNER_ID", "777")

	cfg, rest, err := Load([]string{"-c", path, "-burst", "9", "tokens", "list"}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, ".", cfg.Prefix, "from file")
	assert.Equal(t, "777", cfg.OwnerID, "env wins over file")
	assert.Equal(t, "data/users.json", cfg.UsersFile)
	assert.Equal(t, "token.json", cfg.TokensFile, "default survives")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, 10*time.Second, cfg.Telegram.PollTimeout)
	assert.Equal(t, 2.0, cfg.RateLimit.Rate)
	assert.Equal(t, 9, cfg.RateLimit.Burst, "flag wins over file")
	assert.Equal(t, []string{"tokens", "list"}, rest)
}

func TestLoad_ExplicitZeroFlag(t *testing.T) {
	cfg, _, err := Load([]string{"-rate", "0", "-owner", "1"}, io.Discard)
	require.NoError(t, err)
	assert.Zero(t, cfg.RateLimit.Rate)
	assert.Equal(t, "1", cfg.OwnerID)
}

func TestLoad_OwnerCanonical(t *testing.T) {
	cfg, _, err := Load([]string{"-owner", "00042"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "42", cfg.OwnerID)
}

func TestConfig_String(t *testing.T) {
	cfg, _, err := Load([]string{"-prefix", ".", "-owner", "7", "-metrics", ":9100"}, io.Discard)
	require.NoError(t, err)

	s := cfg.String()
	assert.Contains(t, s, "Prefix: .\n")
	assert.Contains(t, s, "OwnerID: 7\n")
	assert.Contains(t, s, "UsersFile: users.json\n")
	assert.Contains(t, s, "Log: info/json\n")
	assert.Contains(t, s, "MetricsAddr: :9100\n")
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string][]string{
		"owner":        {"-owner", "abc"},
		"format":       {"-log-format", "xml"},
		"poll timeout": {"-poll-timeout", "0s"},
		"rate":         {"-rate", "-1"},
		"prefix":       {"-prefix", "  "},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := Load(args, io.Discard)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := Load([]string{"-config", filepath.Join(t.TempDir(), "nope.yaml")}, io.Discard)
	assert.Error(t, err)
}

func TestLoad_UnknownFlag(t *testing.T) {
	_, _, err := Load([]string{"-nope"}, io.Discard)
	assert.Error(t, err)
}
