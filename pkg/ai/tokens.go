package ai

import (
	"sync"

	"github.com/OFFIS-RIT/kiwi-research/pkg/logger"

	"github.com/pkoukk/tiktoken-go"
)

const tokenEncoding = "o200k_base"

// charsPerToken is the estimate used when no tokenizer is available.
const charsPerToken = 4

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

func encoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding(tokenEncoding)
		if err != nil {
			logger.Warn("[AI] Tokenizer unavailable, estimating token counts", "err", err)
			return
		}
		enc = e
	})
	return enc
}

// CountTokens returns the number of tokens in text.
func CountTokens(text string) int {
	if e := encoding(); e != nil {
		return len(e.Encode(text, nil, nil))
	}
	return (len([]rune(text)) + charsPerToken - 1) / charsPerToken
}

// TruncateTokens cuts text to at most maxTokens tokens. The second return
// value reports whether anything was removed. maxTokens <= 0 disables the limit.
func TruncateTokens(text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 || text == "" {
		return text, false
	}
	if e := encoding(); e != nil {
		tokens := e.Encode(text, nil, nil)
		if len(tokens) <= maxTokens {
			return text, false
		}
		return e.Decode(tokens[:maxTokens]), true
	}
	runes := []rune(text)
	limit := maxTokens * charsPerToken
	if len(runes) <= limit {
		return text, false
	}
	return string(runes[:limit]), true
}
