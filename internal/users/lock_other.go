//go:build !unix && !windows

package users

// На остальных платформах блокировки нет: один процесс на файл остаётся
// договорённостью.
type fileLock struct{}

func lockFile(string) (*fileLock, error) { return &fileLock{}, nil }

func (*fileLock) release() error { return nil }
