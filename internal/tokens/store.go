// Package tokens хранит список токенов ботов в JSON-массиве (token.json).
package tokens

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const maskLen = 10

var (
	ErrEmpty     = errors.New("tokens: empty token")
	ErrDuplicate = errors.New("tokens: token already registered")
	ErrNotFound  = errors.New("tokens: token not found")
	ErrAmbiguous = errors.New("tokens: prefix matches several tokens")
)

type Store struct {
	mu   sync.Mutex
	path string
	list []string
}

func New(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Load читает файл. Отсутствующий файл = пустой список.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.list = nil
			return nil
		}
		return fmt.Errorf("read %s: %w", s.path, err)
	}

	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}

	// пустые строки и повторы из файла выкидываем
	s.list = s.list[:0]
	seen := make(map[string]struct{}, len(list))
	for _, t := range list {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		s.list = append(s.list, t)
	}
	return nil
}

// List возвращает копию списка в порядке добавления.
func (s *Store) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.list...)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.list)
}

// Add добавляет токен и сразу сохраняет файл.
func (s *Store) Add(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmpty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.list {
		if t == token {
			return ErrDuplicate
		}
	}
	s.list = append(s.list, token)
	if err := s.save(); err != nil {
		s.list = s.list[:len(s.list)-1]
		return err
	}
	return nil
}

// Remove удаляет токен по точному значению или по префиксу,
// который однозначно указывает на один токен (например, маска из List).
// Возвращает удалённый токен.
func (s *Store) Remove(ref string) (string, error) {
	ref = strings.TrimSuffix(strings.TrimSpace(ref), "...")
	if ref == "" {
		return "", ErrEmpty
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.find(ref)
	if err != nil {
		return "", err
	}

	removed := s.list[idx]
	prev := s.list
	s.list = append(append([]string(nil), s.list[:idx]...), s.list[idx+1:]...)
	if err := s.save(); err != nil {
		s.list = prev
		return "", err
	}
	return removed, nil
}

// find вызывается под s.mu. Точное совпадение важнее префикса.
func (s *Store) find(ref string) (int, error) {
	for i, t := range s.list {
		if t == ref {
			return i, nil
		}
	}
	idx := -1
	for i, t := range s.list {
		if !strings.HasPrefix(t, ref) {
			continue
		}
		if idx >= 0 {
			return -1, fmt.Errorf("%w: %q", ErrAmbiguous, ref)
		}
		idx = i
	}
	if idx < 0 {
		return -1, fmt.Errorf("%w: %q", ErrNotFound, ref)
	}
	return idx, nil
}

// save вызывается под s.mu. Файл с секретами: 0600, пишется через temp + rename.
func (s *Store) save() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	list := s.list
	if list == nil {
		list = []string{}
	}
	b, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmpName, err)
	}
	return nil
}

// Mask оставляет первые 10 символов токена: так его можно писать в лог.
func Mask(token string) string {
	if len(token) <= maskLen {
		return token + "..."
	}
	return token[:maskLen] + "..."
}
