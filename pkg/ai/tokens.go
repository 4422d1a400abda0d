package ai

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const tokenEncoding = "o200k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
)

func encoder() (*tiktoken.Tiktoken, error) {
	encOnce.Do(func() {
		enc, encErr = tiktoken.GetEncoding(tokenEncoding)
	})
	return enc, encErr
}

// CountTokens estimates the prompt size of text. When the encoding is not
// available it falls back to a four-characters-per-token estimate.
func CountTokens(text string) int {
	e, err := encoder()
	if err != nil {
		return (len(text) + 3) / 4
	}
	return len(e.Encode(text, nil, nil))
}

// ContextWindow returns the num_ctx value for a prompt of the given size,
// or 0 when the model default of 4096 is enough.
func ContextWindow(prompt string) int {
	tokens := 200 + CountTokens(prompt)
	if tokens > 4096 {
		return tokens
	}
	return 0
}

// PackLines joins lines until the budget is used up and returns the joined
// text and the number of lines that fit. Lines are never split.
func PackLines(lines []string, budget int) (string, int) {
	var b strings.Builder
	used := 0
	n := 0
	for _, l := range lines {
		cost := CountTokens(l) + 1
		if budget > 0 && used+cost > budget {
			break
		}
		b.WriteString(l)
		b.WriteByte('\n')
		used += cost
		n++
	}
	return b.String(), n
}
