package tokenizer

import (
	"reflect"
	"testing"
)

func TestSplitLinesNormalizesEndings(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"lf", "a\nb", []string{"a", "b"}},
		{"crlf", "a\r\nb", []string{"a", "b"}},
		{"cr", "a\rb", []string{"a", "b"}},
		{"mixed", "a\r\nb\rc\nd", []string{"a", "b", "c", "d"}},
		{"trailing newline keeps empty line", "a\n", []string{"a", ""}},
		{"empty input is one empty line", "", []string{""}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SplitLines(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("SplitLines(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestTokenizeLinePunctuationSplits(t *testing.T) {
	tokens := TokenizeLine("contract No. 123-A signed", 1)

	words := make([]string, len(tokens))
	for i, tok := range tokens {
		words[i] = tok.Word
	}
	want := []string{"contract", "no", "123", "a", "signed"}
	if !reflect.DeepEqual(words, want) {
		t.Fatalf("words = %v, want %v", words, want)
	}
	for i, tok := range tokens {
		if tok.IdxInLine != i {
			t.Errorf("token %q idx_in_line = %d, want %d", tok.Word, tok.IdxInLine, i)
		}
	}
	// "no" covers "No" in the raw line: runes 9..11.
	if tokens[1].CharStart != 9 || tokens[1].CharEnd != 11 {
		t.Errorf("token %q span = [%d,%d), want [9,11)", tokens[1].Word, tokens[1].CharStart, tokens[1].CharEnd)
	}
}

func TestTokenizeHebrew(t *testing.T) {
	lines, tokens := Tokenize("שלום עולם\nשלום שוב")

	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if len(tokens) != 4 {
		t.Fatalf("tokens = %d, want 4", len(tokens))
	}
	unique := map[string]struct{}{}
	for _, tok := range tokens {
		unique[tok.Word] = struct{}{}
	}
	if len(unique) != 3 {
		t.Fatalf("unique words = %d, want 3", len(unique))
	}

	// Rune offsets: the second word of line 1 starts after "שלום " (5 runes).
	second := tokens[1]
	if second.Word != "עולם" || second.CharStart != 5 || second.CharEnd != 9 {
		t.Errorf("second token = %+v, want עולם at [5,9)", second)
	}
	if tokens[2].LineNo != 2 || tokens[2].IdxInLine != 0 {
		t.Errorf("third token = %+v, want line 2 idx 0", tokens[2])
	}
}

func TestTokenizeLowercases(t *testing.T) {
	tokens := TokenizeLine("The COURT Ruled", 3)
	want := []string{"the", "court", "ruled"}
	for i, tok := range tokens {
		if tok.Word != want[i] {
			t.Errorf("token %d = %q, want %q", i, tok.Word, want[i])
		}
		if tok.LineNo != 3 {
			t.Errorf("token %d line = %d, want 3", i, tok.LineNo)
		}
	}
}

func TestTokenizeEmptyAndSeparatorOnlyLines(t *testing.T) {
	if got := TokenizeLine("", 1); len(got) != 0 {
		t.Errorf("empty line produced %d tokens", len(got))
	}
	if got := TokenizeLine("--- ... !!!", 1); len(got) != 0 {
		t.Errorf("separator-only line produced %d tokens", len(got))
	}
}

func TestTokenizeDeterministic(t *testing.T) {
	const text = "סעיף 12(ב) לחוק\nHolds; see para. 7"
	_, first := Tokenize(text)
	_, second := Tokenize(text)
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical input produced different token streams")
	}
}

func TestNormalizeWord(t *testing.T) {
	cases := map[string]string{
		"Word":    "word",
		"--abc--": "abc",
		"123-A":   "123-a", // interior separators survive; only edges trim
		"...":     "",
		"שָׁלוֹם":   "שָׁלוֹם",
	}
	for in, want := range cases {
		if got := NormalizeWord(in); got != want {
			t.Errorf("NormalizeWord(%q) = %q, want %q", in, got, want)
		}
	}
}
