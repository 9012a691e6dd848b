package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is returned when a window could not make forward progress.
var ErrInvalidConfig = errors.New("chunker: size must be greater than overlap")

const (
	// BoundaryWindow is how far back from the window end a sentence or
	// paragraph boundary is searched for.
	BoundaryWindow = 200
	// MinChunkChars is the trimmed length a span must exceed to be kept.
	MinChunkChars = 50
)

// Config controls chunking behavior. Sizes are in characters.
type Config struct {
	Size    int // Target window size.
	Overlap int // Characters shared by consecutive windows.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Size:    1000,
		Overlap: 200,
	}
}

// Validate checks that the window always advances.
func (c Config) Validate() error {
	if c.Size <= 0 || c.Overlap < 0 || c.Size <= c.Overlap {
		return fmt.Errorf("%w (size=%d overlap=%d)", ErrInvalidConfig, c.Size, c.Overlap)
	}
	return nil
}

// Split slides a window of cfg.Size characters over text, stepping by
// Size-Overlap. Except for the final window, the end is pulled back to just
// after the nearest '.', '!', '?' or blank line within BoundaryWindow
// characters. Spans of MinChunkChars or fewer after trimming are dropped but
// still advance the window.
func (c Config) Split(text string) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	runes := []rune(text)
	n := len(runes)
	var chunks []string

	for start := 0; start < n; {
		end := start + c.Size
		if end < n {
			// Keep end > start+Overlap so the next start moves forward.
			floor := max(start+c.Size-BoundaryWindow, start+c.Overlap+1)
			for i := end - 1; i >= floor; i-- {
				if isBoundary(runes, i) {
					end = i + 1
					break
				}
			}
		}

		span := strings.TrimSpace(string(runes[start:min(end, n)]))
		if len([]rune(span)) > MinChunkChars {
			chunks = append(chunks, span)
		}
		start = end - c.Overlap
	}

	return chunks, nil
}

func isBoundary(runes []rune, i int) bool {
	switch runes[i] {
	case '.', '!', '?':
		return true
	case '\n':
		return i > 0 && runes[i-1] == '\n'
	}
	return false
}

// Split chunks text with an explicit size and overlap.
func Split(text string, size, overlap int) ([]string, error) {
	return Config{Size: size, Overlap: overlap}.Split(text)
}
