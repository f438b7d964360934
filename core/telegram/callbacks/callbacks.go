package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// ParseCallbackData splits Telebot's \f<unique>|<payload> encoding.
// Callbacks already resolved by a unique handler carry the key in cb.Unique.
func ParseCallbackData(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	return SplitData(cb.Data)
}

// SplitData parses raw callback data into key and payload.
func SplitData(raw string) (string, string) {
	raw = strings.TrimPrefix(raw, "\f")
	raw = strings.TrimPrefix(raw, `\f`)
	key, payload, _ := strings.Cut(raw, "|")
	return strings.TrimSpace(key), payload
}

// Data encodes key and payload the way Telebot inline buttons do.
func Data(key, payload string) string {
	if payload == "" {
		return "\f" + key
	}
	return "\f" + key + "|" + payload
}
