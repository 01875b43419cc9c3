package ui

import "testing"

func TestRenderPlainWhenUnstyled(t *testing.T) {
	SetStyled(false)
	defer SetStyled(false)

	for _, fn := range []func(string) string{RenderPass, RenderWarn, RenderFail, RenderAccent, RenderMuted, RenderBold} {
		if got := fn("ok"); got != "ok" {
			t.Errorf("unstyled render = %q, want %q", got, "ok")
		}
	}
}

func TestKeyValueAlignment(t *testing.T) {
	SetStyled(false)

	got := KeyValue([][2]string{{"Online", "yes"}, {"Pending", "2"}})
	want := "Online:  yes\nPending: 2\n"
	if got != want {
		t.Errorf("KeyValue() = %q, want %q", got, want)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"Buy milk", 20, "Buy milk"},
		{"Buy milk", 8, "Buy milk"},
		{"Buy milk and bread", 8, "Buy mil…"},
		{"Comprar pão", 6, "Compr…"},
		{"anything", 0, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
