package users

import "fmt"

// ID - десятичный идентификатор пользователя (до 20 цифр).
// В JSON пишется числом, как его отдаёт Telegram.
type ID string

func (id ID) MarshalJSON() ([]byte, error) {
	if !validID(string(id)) {
		return nil, fmt.Errorf("users: bad id %q", string(id))
	}
	return []byte(id), nil
}

// Record - сохранённое состояние одного пользователя.
// Имена полей JSON совпадают с allowlist в sanitize.go.
type Record struct {
	ID            ID     `json:"id,omitempty"`
	FirstName     string `json:"first_name"`
	Username      string `json:"username"`
	LanguageCode  string `json:"language_code,omitempty"`
	FirstSeen     string `json:"first_seen,omitempty"`
	LastSeen      string `json:"last_seen,omitempty"`
	MessageCount  int64  `json:"message_count"`
	TotalMessages int64  `json:"total_messages"`
	LastMessage   string `json:"last_message"`
	Premium       bool   `json:"premium"`
	PremiumSince  string `json:"premium_since,omitempty"`
	Credits       int64  `json:"credits"`
}

// Identity - то, что транспорт знает об отправителе сообщения.
// ID сырой: проверяется и нормализуется стором.
type Identity struct {
	ID           string
	FirstName    string
	Username     string
	LanguageCode string
}

type PremiumSummary struct {
	ID           string
	Name         string
	Username     string
	PremiumSince string
}

type TopUser struct {
	ID            string
	Name          string
	Username      string
	TotalMessages int64
	FirstSeen     string
	Premium       bool
}

// Direction - направление изменения баланса кредитов.
type Direction int

const (
	Increment Direction = iota + 1
	Decrement
)

func (d Direction) String() string {
	switch d {
	case Increment:
		return "increment"
	case Decrement:
		return "decrement"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}
