package users

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// errNotObject: файл - валидный JSON, но не объект. Такой файл не карантиним.
var errNotObject = errors.New("users file is not a JSON object")

// decodeUsers разбирает содержимое файла, сохраняя порядок ключей.
// Чистая функция от байтов: два вызова на одних данных дают одно и то же.
func decodeUsers(data []byte) (map[string]*Record, []string, error) {
	if !utf8.Valid(data) {
		return nil, nil, fmt.Errorf("%w: invalid utf-8", ErrStorageCorrupted)
	}
	if !json.Valid(data) {
		return nil, nil, fmt.Errorf("%w: invalid json", ErrStorageCorrupted)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrStorageCorrupted, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, errNotObject
	}

	users := make(map[string]*Record)
	var order []string

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrStorageCorrupted, err)
		}
		key, _ := keyTok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrStorageCorrupted, err)
		}

		raw, ok := value.(map[string]any)
		if !ok {
			continue
		}
		key, ok = NormalizeID(key)
		if !ok {
			continue
		}
		// ключ главнее поля id внутри записи
		rec := sanitizeRecord(raw)
		rec.ID = ID(key)
		if _, seen := users[key]; !seen {
			order = append(order, key)
		}
		users[key] = &rec
	}
	return users, order, nil
}

// encodeUsers пишет объект {id: record} в порядке добавления, с отступом в 2 пробела.
func encodeUsers(users map[string]*Record, order []string) ([]byte, error) {
	if len(order) == 0 {
		return []byte("{}\n"), nil
	}

	var buf bytes.Buffer
	buf.WriteString("{\n")

	var rec bytes.Buffer
	enc := json.NewEncoder(&rec)
	enc.SetEscapeHTML(false)
	enc.SetIndent("  ", "  ")

	for i, id := range order {
		rec.Reset()
		if err := enc.Encode(users[id]); err != nil {
			return nil, fmt.Errorf("encode user %s: %w", id, err)
		}
		buf.WriteString(`  "` + id + `": `)
		buf.Write(bytes.TrimRight(rec.Bytes(), "\n"))
		if i < len(order)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}
