package users

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/EgorLis/multibot/internal/logging"
)

const (
	maxFileSize = 10 << 20
	maxUsers    = 100_000

	backupLayout = "20060102_150405"
)

// Store держит в памяти всех пользователей и переписывает файл целиком
// после каждой мутации. Все операции сериализованы одним мьютексом:
// один стор делят между собой несколько ботов.
type Store struct {
	mu    sync.Mutex
	path  string
	users map[string]*Record
	order []string // порядок добавления, нужен для стабильного топа

	log       logging.Logger
	now       func() time.Time
	onPersist func(error)
	lock      *fileLock
}

type Option func(*Store)

func WithLogger(l logging.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock подменяет часы (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithPersistHook вызывается после каждой попытки записи файла.
func WithPersistHook(fn func(err error)) Option {
	return func(s *Store) { s.onPersist = fn }
}

// Open проверяет имя файла, захватывает его эксклюзивно и загружает данные.
// Ошибку возвращает только на неверное имя или занятый файл:
// проблемы с содержимым лечатся внутри Load.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if !reFilename.MatchString(filepath.Base(path)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilename, path)
	}

	s := &Store{
		path:  path,
		users: make(map[string]*Record),
		log:   logging.Nop{},
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "users", "file", path)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}

	lock, err := lockFile(path + ".lock")
	if err != nil {
		return nil, err
	}
	s.lock = lock

	s.Load(ctx)
	return s, nil
}

// Close отпускает блокировку файла. Данные уже на диске.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lock == nil {
		return nil
	}
	err := s.lock.release()
	s.lock = nil
	return err
}

func (s *Store) Path() string { return s.path }

// Load перечитывает файл, заменяя состояние в памяти. Ничего не возвращает:
// битый файл уезжает в бэкап, любая другая беда = пустой стор + запись в лог.
func (s *Store) Load(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, order := s.read(ctx)
	s.users, s.order = users, order
	s.log.Info(ctx, "users loaded", "count", len(order))
}

func (s *Store) read(ctx context.Context) (map[string]*Record, []string) {
	empty := make(map[string]*Record)

	fi, err := os.Stat(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Error(ctx, "stat users file", "err", fmt.Errorf("%w: %v", ErrStorageUnavailable, err))
		}
		return empty, nil
	}
	if fi.Size() > maxFileSize {
		s.log.Error(ctx, "users file too large", "size", fi.Size(), "limit", maxFileSize)
		return empty, nil
	}

	f, err := os.Open(s.path)
	if err != nil {
		s.log.Error(ctx, "open users file", "err", fmt.Errorf("%w: %v", ErrStorageUnavailable, err))
		return empty, nil
	}
	defer f.Close()

	// файл мог вырасти между Stat и чтением
	data, err := io.ReadAll(io.LimitReader(f, maxFileSize+1))
	if err != nil {
		s.log.Error(ctx, "read users file", "err", fmt.Errorf("%w: %v", ErrStorageUnavailable, err))
		return empty, nil
	}
	if len(data) > maxFileSize {
		s.log.Error(ctx, "users file too large", "size", len(data), "limit", maxFileSize)
		return empty, nil
	}

	users, order, err := decodeUsers(data)
	switch {
	case err == nil:
		return users, order
	case errors.Is(err, ErrStorageCorrupted):
		s.log.Error(ctx, "users file corrupted", "err", err)
		s.quarantine(ctx)
	default:
		s.log.Warn(ctx, "users file ignored", "err", err)
	}
	return empty, nil
}

// quarantine откладывает битый файл в сторону: <file>.corrupted.YYYYmmdd_HHMMSS.
func (s *Store) quarantine(ctx context.Context) {
	backup := s.path + ".corrupted." + s.now().Format(backupLayout)
	if err := os.Rename(s.path, backup); err != nil {
		s.log.Error(ctx, "backup corrupted users file", "err", err)
		return
	}
	s.log.Warn(ctx, "corrupted users file moved aside", "backup", backup)
}

// Save пишет всё состояние на диск.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist(ctx)
}

// persist вызывается под s.mu.
func (s *Store) persist(ctx context.Context) error {
	err := s.write()
	if err != nil {
		s.log.Error(ctx, "save users", "err", err, "count", len(s.order))
	}
	if s.onPersist != nil {
		s.onPersist(err)
	}
	return err
}

func (s *Store) write() error {
	if s.users == nil {
		return fmt.Errorf("%w: no user map", ErrStorageUnavailable)
	}
	if len(s.users) > maxUsers {
		return fmt.Errorf("%w: %d > %d", ErrTooManyUsers, len(s.users), maxUsers)
	}

	data, err := encodeUsers(s.users, s.order)
	if err != nil {
		return err
	}

	// temp + rename, чтобы падение посреди записи не оставило полфайла
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) timestamp() string {
	return s.now().Format(time.RFC3339)
}

// Upsert регистрирует сообщение от пользователя: создаёт запись при первом
// сообщении, иначе обновляет счётчики, last_seen, текст и имя.
// Файл переписывается до возврата.
func (s *Store) Upsert(ctx context.Context, who Identity, text string) (Record, error) {
	id, ok := NormalizeID(who.ID)
	if !ok {
		s.log.Warn(ctx, "invalid user id", "id", who.ID)
		return Record{}, ErrInvalidIdentity
	}

	msg := sanitizeText(text, messageCap)
	name := sanitizeText(who.FirstName, nameCap)
	handle := sanitizeText(who.Username, nameCap)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timestamp()
	rec, known := s.users[id]
	if !known {
		rec = &Record{
			ID:            ID(id),
			FirstName:     name,
			Username:      handle,
			LanguageCode:  sanitizeLocale(who.LanguageCode),
			FirstSeen:     now,
			LastSeen:      now,
			MessageCount:  1,
			TotalMessages: 1,
			LastMessage:   msg,
		}
		s.users[id] = rec
		s.order = append(s.order, id)
		s.log.Info(ctx, "new user", "id", id, "name", name)
	} else {
		rec.LastSeen = now
		rec.MessageCount++
		rec.TotalMessages++
		rec.LastMessage = msg
		rec.FirstName = name
		rec.Username = handle
	}

	_ = s.persist(ctx)
	return *rec, nil
}

// lookup вызывается под s.mu.
func (s *Store) lookup(raw string) (*Record, error) {
	id, ok := NormalizeID(raw)
	if !ok {
		return nil, ErrInvalidIdentity
	}
	rec, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

// SetPremium включает или снимает премиум. premium_since ставится на now
// при включении и очищается при снятии.
func (s *Store) SetPremium(ctx context.Context, id string, premium bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookup(id)
	if err != nil {
		return err
	}
	rec.Premium = premium
	if premium {
		rec.PremiumSince = s.timestamp()
	} else {
		rec.PremiumSince = ""
	}
	s.log.Info(ctx, "premium changed", "id", id, "premium", premium)

	_ = s.persist(ctx)
	return nil
}

func (s *Store) IsPremium(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookup(id)
	return err == nil && rec.Premium
}

// AdjustCredits меняет баланс и возвращает новое значение.
// Списание больше баланса отклоняется с ErrInsufficientCredits, запись не трогается.
func (s *Store) AdjustCredits(ctx context.Context, id string, amount int64, dir Direction) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookup(id)
	if err != nil {
		return 0, err
	}
	if amount < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}

	switch dir {
	case Increment:
		if rec.Credits > math.MaxInt64-amount {
			return 0, fmt.Errorf("%w: balance overflow", ErrInvalidAmount)
		}
		rec.Credits += amount
	case Decrement:
		if amount > rec.Credits {
			return 0, ErrInsufficientCredits
		}
		rec.Credits -= amount
	default:
		return 0, fmt.Errorf("%w: unknown %s", ErrInvalidAmount, dir)
	}
	s.log.Info(ctx, "credits changed", "id", id, "direction", dir.String(), "amount", amount, "balance", rec.Credits)

	_ = s.persist(ctx)
	return rec.Credits, nil
}

func (s *Store) AddCredits(ctx context.Context, id string, amount int64) (int64, error) {
	return s.AdjustCredits(ctx, id, amount, Increment)
}

func (s *Store) DeductCredits(ctx context.Context, id string, amount int64) (int64, error) {
	return s.AdjustCredits(ctx, id, amount, Decrement)
}

// GetStats возвращает копию записи.
func (s *Store) GetStats(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.lookup(id)
	if err != nil {
		return Record{}, false
	}
	return *rec, true
}

// ListPremium - премиум-пользователи в порядке добавления.
func (s *Store) ListPremium() []PremiumSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []PremiumSummary
	for _, id := range s.order {
		rec := s.users[id]
		if !rec.Premium {
			continue
		}
		out = append(out, PremiumSummary{
			ID:           id,
			Name:         rec.FirstName,
			Username:     rec.Username,
			PremiumSince: rec.PremiumSince,
		})
	}
	return out
}

// TopUsers - самые активные по total_messages; при равенстве раньше тот,
// кто появился раньше.
func (s *Store) TopUsers(limit int) []TopUser {
	if limit <= 0 {
		return nil
	}

	s.mu.Lock()
	list := make([]TopUser, 0, len(s.order))
	for _, id := range s.order {
		rec := s.users[id]
		list = append(list, TopUser{
			ID:            id,
			Name:          rec.FirstName,
			Username:      rec.Username,
			TotalMessages: rec.TotalMessages,
			FirstSeen:     rec.FirstSeen,
			Premium:       rec.Premium,
		})
	}
	s.mu.Unlock()

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].TotalMessages > list[j].TotalMessages
	})
	if len(list) > limit {
		list = list[:limit]
	}
	return list
}

func (s *Store) TotalUsers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.users)
}

// PremiumUsers - число премиум-пользователей (для метрик и !info).
func (s *Store) PremiumUsers() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, rec := range s.users {
		if rec.Premium {
			n++
		}
	}
	return n
}
