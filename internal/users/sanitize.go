package users

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	maxIDDigits = 20

	nameCap    = 100
	messageCap = 500
	localeCap  = 10
)

var (
	reTimestamp = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`)
	reLocale    = regexp.MustCompile(`^[a-z]{2,3}(-[A-Za-z]{2,3})?$`)
	reFilename  = regexp.MustCompile(`^[\w.-]+\.json$`)
)

// fieldRule применяет одно поле из файла к записи.
// Возвращает false, если значение не прошло проверку и поле отброшено.
type fieldRule func(r *Record, v any) bool

// allowlist: только эти поля переживают загрузку, остальные молча выкидываются.
var fieldRules = map[string]fieldRule{
	"id": func(r *Record, v any) bool {
		n, ok := nonNegative(v)
		if ok {
			r.ID = ID(strconv.FormatUint(n, 10))
		}
		return ok
	},
	"first_name":    textRule(nameCap, func(r *Record, s string) { r.FirstName = s }),
	"username":      textRule(nameCap, func(r *Record, s string) { r.Username = s }),
	"last_message":  textRule(messageCap, func(r *Record, s string) { r.LastMessage = s }),
	"language_code": localeRule,

	"first_seen":    timestampRule(func(r *Record, s string) { r.FirstSeen = s }),
	"last_seen":     timestampRule(func(r *Record, s string) { r.LastSeen = s }),
	"premium_since": timestampRule(func(r *Record, s string) { r.PremiumSince = s }),

	"message_count":  counterRule(func(r *Record, n int64) { r.MessageCount = n }),
	"total_messages": counterRule(func(r *Record, n int64) { r.TotalMessages = n }),
	"credits":        counterRule(func(r *Record, n int64) { r.Credits = n }),

	"premium": func(r *Record, v any) bool {
		r.Premium = truthy(v)
		return true
	},
}

func sanitizeRecord(raw map[string]any) Record {
	var r Record
	for field, v := range raw {
		if rule, ok := fieldRules[field]; ok {
			rule(&r, v)
		}
	}
	return r
}

func textRule(limit int, set func(*Record, string)) fieldRule {
	return func(r *Record, v any) bool {
		switch s := v.(type) {
		case nil:
			set(r, "")
		case string:
			set(r, sanitizeText(s, limit))
		default:
			return false
		}
		return true
	}
}

func localeRule(r *Record, v any) bool {
	s, ok := v.(string)
	if !ok || !reLocale.MatchString(s) {
		return false
	}
	r.LanguageCode = s
	return true
}

func timestampRule(set func(*Record, string)) fieldRule {
	return func(r *Record, v any) bool {
		s, ok := v.(string)
		if !ok || !reTimestamp.MatchString(s) {
			return false
		}
		set(r, s)
		return true
	}
}

func counterRule(set func(*Record, int64)) fieldRule {
	return func(r *Record, v any) bool {
		n, ok := nonNegative(v)
		if !ok || n > math.MaxInt64 {
			return false
		}
		set(r, int64(n))
		return true
	}
}

// nonNegative принимает только JSON-числа >= 0; дробные отбрасывают дробную часть.
func nonNegative(v any) (uint64, bool) {
	num, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	if n, err := strconv.ParseUint(num.String(), 10, 64); err == nil {
		return n, true
	}
	f, err := num.Float64()
	if err != nil || math.IsNaN(f) || f < 0 || f >= math.MaxUint64 {
		return 0, false
	}
	return uint64(f), true
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return false
	}
}

// sanitizeText режет строку до limit рун и вычищает управляющие символы
// (U+0000..U+001F, U+007F..U+009F). Повторный вызов ничего не меняет.
func sanitizeText(s string, limit int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if utf8.RuneCountInString(s) > limit {
		s = string([]rune(s)[:limit])
	}
	return strings.Map(func(r rune) rune {
		if r <= 0x1f || (r >= 0x7f && r <= 0x9f) {
			return -1
		}
		return r
	}, s)
}

// sanitizeLocale для апсерта: то, что не пройдёт проверку при загрузке, не пишем вовсе.
func sanitizeLocale(s string) string {
	s = sanitizeText(s, localeCap)
	if !reLocale.MatchString(s) {
		return ""
	}
	return s
}

func validID(s string) bool {
	if s == "" || len(s) > maxIDDigits {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// NormalizeID приводит сырой идентификатор к каноническому виду:
// только ASCII-цифры, без ведущих нулей ("0100" -> "100", "000" -> "0"),
// после этого не длиннее 20 цифр.
func NormalizeID(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return "", false
		}
	}
	id := strings.TrimLeft(raw, "0")
	if id == "" {
		id = "0"
	}
	if !validID(id) {
		return "", false
	}
	return id, true
}
