package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EgorLis/multibot/internal/config"
	"github.com/EgorLis/multibot/internal/tokens"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		TokensFile: filepath.Join(dir, "token.json"),
		UsersFile:  filepath.Join(dir, "users.json"),
	}
}

func stdinWith(t *testing.T, content string) *os.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stdin")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestTokensCmd(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer

	require.NoError(t, tokensCmd(cfg, []string{"add", "1111111111:first"}, nil, &out))
	assert.Contains(t, out.String(), "Token 1111111111... added.")

	out.Reset()
	require.NoError(t, tokensCmd(cfg, []string{"add"}, stdinWith(t, " 2222222222:second \n"), &out))
	assert.Contains(t, out.String(), "Token 2222222222... added.")

	assert.ErrorIs(t, tokensCmd(cfg, []string{"add", "1111111111:first"}, nil, &out), tokens.ErrDuplicate)

	out.Reset()
	require.NoError(t, tokensCmd(cfg, nil, nil, &out))
	assert.Equal(t, "Registered tokens (2 bots):\n  1. 1111111111...\n  2. 2222222222...\n", out.String())

	out.Reset()
	require.NoError(t, tokensCmd(cfg, []string{"remove", "2222222222..."}, nil, &out))
	assert.Equal(t, "Token 2222222222... removed.\n", out.String())

	assert.Error(t, tokensCmd(cfg, []string{"remove"}, nil, &out))
	assert.Error(t, tokensCmd(cfg, []string{"rename"}, nil, &out))

	ts := tokens.New(cfg.TokensFile)
	require.NoError(t, ts.Load())
	assert.Equal(t, []string{"1111111111:first"}, ts.List())
}

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-tokens", filepath.Join(t.TempDir(), "t.json"), "explode"}, &stdout, &stderr)
	require.Error(t, err)
	assert.Contains(t, stderr.String(), "usage:")
}

func TestRun_BadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Error(t, run(context.Background(), []string{"-owner", "not-a-number"}, &stdout, &stderr))
}
