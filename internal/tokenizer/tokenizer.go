package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// Encoding is the sub-word vocabulary used for chunk token counts.
const Encoding = "cl100k_base"

// Counter measures the sub-word token length of a text span.
type Counter interface {
	Count(text string) int
}

// CounterFunc adapts a plain function to Counter.
type CounterFunc func(text string) int

func (f CounterFunc) Count(text string) int { return f(text) }

type bpeCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *bpeCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

var (
	defaultOnce    sync.Once
	defaultCounter Counter
	defaultErr     error
)

// Default returns the process-wide cl100k_base counter. The BPE ranks are
// embedded in the binary, so no network access happens on first use.
func Default() (Counter, error) {
	defaultOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
		enc, err := tiktoken.GetEncoding(Encoding)
		if err != nil {
			defaultErr = fmt.Errorf("load %s encoding: %w", Encoding, err)
			return
		}
		defaultCounter = &bpeCounter{enc: enc}
	})
	return defaultCounter, defaultErr
}

// Estimate is a Counter that uses the word-based heuristic instead of a
// vocabulary. Counts are not comparable with Default.
var Estimate Counter = CounterFunc(EstimateTokens)

// EstimateTokens gives a rough token count at ~1.33 tokens per word.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	words := len(strings.Fields(text))
	tokens := int(float64(words) * 1.33)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}
