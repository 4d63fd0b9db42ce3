package config

import (
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// Key codes as reported by the window's key poll.
const (
	KeyBackspace = 8
	KeyTab       = 9
	KeyEnter     = 13
	KeyEscape    = 27
	KeySpace     = 32
)

var namedKeys = map[string]int{
	"ESC":       KeyEscape,
	"ESCAPE":    KeyEscape,
	"ENTER":     KeyEnter,
	"RETURN":    KeyEnter,
	"SPACE":     KeySpace,
	"TAB":       KeyTab,
	"BACKSPACE": KeyBackspace,
}

// ParseKey converts a key name into the code the window reports for it.
//
// Named keys (ESC, ENTER, SPACE, TAB, BACKSPACE) are case-insensitive. Any
// other single printable ASCII character maps to its own code, so "q" and "Q"
// are different keys.
func ParseKey(name string) (int, error) {
	if code, ok := namedKeys[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return code, nil
	}

	if utf8.RuneCountInString(name) == 1 {
		r, _ := utf8.DecodeRuneInString(name)
		if r > ' ' && r < 0x7f {
			return int(r), nil
		}
	}

	return 0, errors.Wrapf(ErrInvalid, "unknown cancellation key %q", name)
}
