package trim

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func Test_EstimateTokens(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		if got := EstimateTokens(tc.input); got != tc.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_Payload_DropsBulkyKeys(t *testing.T) {
	t.Parallel()
	raw := `{"name":"Pasta","image":"https://example.com/a.jpg","description":"good"}`
	got := Payload(raw)
	if strings.Contains(got, "a.jpg") {
		t.Errorf("trimmed payload still contains image blob: %s", got)
	}
	if !strings.Contains(got, "Pasta") {
		t.Errorf("trimmed payload lost the name field: %s", got)
	}
}

func Test_PayloadN_HardCap(t *testing.T) {
	t.Parallel()
	raw := `{"description":"` + strings.Repeat("x", 500) + `"}`
	got := PayloadN(raw, 100)
	if len(got) > 100 {
		t.Errorf("trimmed payload length = %d, want ≤ 100", len(got))
	}
}

func Test_PayloadN_CapRespectsRuneBoundaries(t *testing.T) {
	t.Parallel()
	// Multi-byte runes (3 bytes each) sized so a byte cap of 100 lands
	// mid-rune.
	raw := strings.Repeat("日", 50)
	got := PayloadN(raw, 100)
	if !utf8.ValidString(got) {
		t.Fatalf("trimmed payload contains a broken rune: %q", got)
	}
	if len(got) > 100 {
		t.Errorf("trimmed payload length = %d, want ≤ 100", len(got))
	}
	if len(got) == 0 {
		t.Error("cap must keep the payload non-empty")
	}
}

func Test_Payload_NonJSONPassthrough(t *testing.T) {
	t.Parallel()
	raw := "plain text item description"
	if got := Payload(raw); got != raw {
		t.Errorf("Payload(%q) = %q, want unchanged", raw, got)
	}
}
