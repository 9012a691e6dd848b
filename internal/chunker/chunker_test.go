package chunker

import (
	"errors"
	"strings"
	"testing"
)

func TestSplit_NoPunctuationStepsByWindow(t *testing.T) {
	text := strings.Repeat("abcdefghij", 300)

	chunks, err := Split(text, 1000, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	for i := 0; i < 3; i++ {
		if len(chunks[i]) != 1000 {
			t.Errorf("chunk %d: expected 1000 chars, got %d", i, len(chunks[i]))
		}
		if chunks[i] != text[i*800:i*800+1000] {
			t.Errorf("chunk %d does not start at offset %d", i, i*800)
		}
	}
	if chunks[3] != text[2400:] {
		t.Errorf("expected final chunk to be the 600-char tail, got %d chars", len(chunks[3]))
	}
}

func TestSplit_SnapsToSentenceEnd(t *testing.T) {
	text := strings.Repeat("This sentence is exactly forty chars!! ", 100)

	chunks, err := Split(text, 1000, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks[:len(chunks)-1] {
		if !strings.HasSuffix(c, "!") {
			t.Errorf("chunk %d: expected to end at a sentence boundary, got %q", i, c[len(c)-10:])
		}
		if len(c) > 1000 {
			t.Errorf("chunk %d: %d chars exceeds window", i, len(c))
		}
	}
}

func TestSplit_SnapsToBlankLine(t *testing.T) {
	text := strings.Repeat("x", 900) + "\n\n" + strings.Repeat("y", 500)

	chunks, err := Split(text, 1000, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) == 0 || chunks[0] != strings.Repeat("x", 900) {
		t.Fatalf("expected first chunk to stop at the blank line")
	}
}

func TestSplit_BoundaryOutsideWindowIgnored(t *testing.T) {
	// The only period sits 300 characters before the window end.
	text := strings.Repeat("a", 699) + "." + strings.Repeat("b", 800)

	chunks, err := Split(text, 1000, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks[0]) != 1000 {
		t.Errorf("expected unadjusted 1000-char chunk, got %d", len(chunks[0]))
	}
}

func TestSplit_ShortSpansDropped(t *testing.T) {
	chunks, err := Split("Too short to keep.", 1000, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks, got %v", chunks)
	}

	for _, blank := range []string{"", "   \n\t  "} {
		chunks, err := Split(blank, 1000, 200)
		if err != nil || len(chunks) != 0 {
			t.Errorf("expected empty result for %q, got %v, %v", blank, chunks, err)
		}
	}
}

func TestSplit_KeptChunksLongerThanMinimum(t *testing.T) {
	text := strings.Repeat("Short. ", 400) + strings.Repeat("word ", 300)
	chunks, err := Split(text, 300, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, c := range chunks {
		if len(strings.TrimSpace(c)) <= MinChunkChars {
			t.Errorf("chunk %d: %d chars is not above the minimum", i, len(c))
		}
	}
}

func TestSplit_InvalidConfig(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
	}{
		{"equal", 200, 200},
		{"overlap larger", 100, 200},
		{"zero size", 0, 0},
		{"negative overlap", 100, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split(strings.Repeat("text ", 100), tt.size, tt.overlap)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestSplit_TerminatesWithLargeOverlap(t *testing.T) {
	text := strings.Repeat("a. ", 1000)
	chunks, err := Split(text, 300, 299)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) == 0 {
		t.Fatal("expected chunks")
	}
}

func TestSplit_Multibyte(t *testing.T) {
	text := strings.Repeat("é", 1500)
	chunks, err := Split(text, 1000, 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if n := len([]rune(chunks[0])); n != 1000 {
		t.Errorf("expected 1000 characters, got %d", n)
	}
}
