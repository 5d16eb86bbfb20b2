package config

import "testing"

func tokenTexts(t *testing.T, input string) []string {
	t.Helper()
	tokens, err := Tokenize([]byte(input), "t")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	var out []string
	for _, tok := range tokens {
		out = append(out, tok.Text)
	}
	return out
}

func TestTokenizeBasic(t *testing.T) {
	got := tokenTexts(t, "Client nas1 {\n\thost 192.0.2.1\n}\n")
	want := []string{"Client", "nas1", "{", "host", "192.0.2.1", "}"}
	if !equalSlices(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTokenizeQuotedString(t *testing.T) {
	got := tokenTexts(t, `ReplyMessage "try later"`)
	want := []string{"ReplyMessage", "try later"}
	if !equalSlices(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTokenizeComment(t *testing.T) {
	got := tokenTexts(t, "ListenUDP 1812 # default auth port\nLogLevel 2\n")
	want := []string{"ListenUDP", "1812", "LogLevel", "2"}
	if !equalSlices(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTokenizeBraceGluedToWord(t *testing.T) {
	got := tokenTexts(t, "Client nas1{\n}\n")
	want := []string{"Client", "nas1", "{", "}"}
	if !equalSlices(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTokenizeRejectsEmptyInput(t *testing.T) {
	if _, err := Tokenize([]byte("   \n\n"), "empty.conf"); err == nil {
		t.Fatal("expected error for empty configuration")
	}
}

func equalSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
