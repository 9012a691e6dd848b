package parser

import (
	"fmt"
	"io"
	"strings"
)

// TextParser handles plain text files. The text is passed through with line
// endings normalised so heading lines survive untouched.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.TrimPrefix(text, "\ufeff"), nil
}
