// Package prompt - чтение ответов оператора из терминала.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// подменяются в тестах
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// Interactive сообщает, подключён ли f к терминалу.
func Interactive(f *os.File) bool {
	return isTerminal(int(f.Fd()))
}

// Line печатает prompt и читает одну строку без пробелов по краям.
// Если EOF пришёл после части строки, возвращается эта часть.
func Line(r *bufio.Reader, w io.Writer, prompt string) (string, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return "", err
	}
	line, err := r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Secret читает строку из f без эха, например токен бота.
func Secret(f *os.File, w io.Writer, prompt string) (string, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return "", err
	}
	b, err := readPassword(int(f.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
