package keyboard

import "testing"

func TestInlineButtonsNPerRow(t *testing.T) {
	buttons := []InlineBtn{
		{Text: "a", Unique: "verify", Data: "1"},
		{Text: "b", Unique: "verify", Data: "2"},
		{Text: "c", Unique: "verify", Data: "3"},
		{Text: "d", Unique: "verify", Data: "4"},
		{Text: "e", Unique: "verify", Data: "5"},
	}
	markup := InlineButtonsNPerRow(buttons, 2)
	if len(markup.InlineKeyboard) != 3 {
		t.Fatalf("rows = %d, want 3", len(markup.InlineKeyboard))
	}
	if len(markup.InlineKeyboard[2]) != 1 {
		t.Fatalf("last row = %d buttons", len(markup.InlineKeyboard[2]))
	}
	if got := markup.InlineKeyboard[0][1].Text; got != "b" {
		t.Fatalf("button order broken: %q", got)
	}

	single := InlineButtonsNPerRow(buttons[:2], 0)
	if len(single.InlineKeyboard) != 2 {
		t.Fatalf("n<=1 should give one button per row, got %d rows", len(single.InlineKeyboard))
	}
}
