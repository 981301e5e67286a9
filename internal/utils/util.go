// Package utils holds small text helpers shared by the chat-facing code.
package utils

import (
	"fmt"
	"strings"
)

// EscapeMd escapes Discord markdown control characters in user-supplied
// text.
func EscapeMd(s string) string {
	repl := []string{"*", "\\*", "_", "\\_", "`", "\\`", "~", "\\~"}
	r := strings.NewReplacer(repl...)
	return r.Replace(s)
}

// PrettyTime renders a duration in seconds as m:ss or h:mm:ss.
func PrettyTime(sec int) string {
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
