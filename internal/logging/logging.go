// Package logging builds the process-wide slog logger. Attributes that look
// like credentials are masked before they reach the handler.
package logging

import (
	"io"
	"log/slog"
	"regexp"
	"strings"
)

const redacted = "***REDACTED***"

var secretKeys = []string{"token", "password", "secret", "api_key", "apikey", "authorization"}

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`xox[baprs]-[^\s"']+`),
	regexp.MustCompile(`(?i)(bearer\s+)[^\s"']+`),
	regexp.MustCompile(`(?i)((?:token|password|secret|api[_-]?key)["']?\s*[:=]\s*["']?)[^"'}\s]+`),
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(name string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// New returns a text logger writing to w at the given level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redact,
	}))
}

func redact(_ []string, a slog.Attr) slog.Attr {
	key := strings.ToLower(a.Key)
	for _, s := range secretKeys {
		if strings.Contains(key, s) {
			return slog.String(a.Key, redacted)
		}
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, Sanitize(a.Value.String()))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, Sanitize(err.Error()))
		}
	}
	return a
}

// Sanitize masks credential-looking substrings of s.
func Sanitize(s string) string {
	s = secretPatterns[0].ReplaceAllString(s, redacted)
	for _, p := range secretPatterns[1:] {
		s = p.ReplaceAllString(s, "${1}"+redacted)
	}
	return s
}
