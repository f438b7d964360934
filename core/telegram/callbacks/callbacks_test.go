package callbacks

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestParseCallbackData(t *testing.T) {
	cases := []struct {
		name         string
		cb           *tele.Callback
		key, payload string
	}{
		{"nil", nil, "", ""},
		{"encoded", &tele.Callback{Data: "\fverify|correct:abc"}, "verify", "correct:abc"},
		{"literal escape", &tele.Callback{Data: `\fverify|incorrect`}, "verify", "incorrect"},
		{"no payload", &tele.Callback{Data: "\fping"}, "ping", ""},
		{"resolved", &tele.Callback{Unique: "verify", Data: "correct"}, "verify", "correct"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			key, payload := ParseCallbackData(tc.cb)
			if key != tc.key || payload != tc.payload {
				t.Fatalf("got (%q, %q), want (%q, %q)", key, payload, tc.key, tc.payload)
			}
		})
	}
}

func TestDataRoundTrip(t *testing.T) {
	key, payload := SplitData(Data("verify", "correct:1"))
	if key != "verify" || payload != "correct:1" {
		t.Fatalf("got (%q, %q)", key, payload)
	}
}
