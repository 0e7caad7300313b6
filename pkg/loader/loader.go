package loader

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"unicode/utf8"
)

// TextExtractor turns raw file content into plain text.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// PlainTextExtractor returns the input unchanged apart from cleanup.
type PlainTextExtractor struct{}

func (PlainTextExtractor) ExtractText(_ context.Context, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return CleanText(strings.ToValidUTF8(string(data), "")), nil
	}
	return CleanText(string(data)), nil
}

var (
	reBlankLines = regexp.MustCompile(`\n{3,}`)
	reTrailingWS = regexp.MustCompile(`[ \t]+\n`)
)

// CleanText normalizes line endings, drops trailing whitespace on lines and
// collapses runs of blank lines.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = reTrailingWS.ReplaceAllString(text, "\n")
	text = reBlankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// CacheKey derives a stable key for a blob from its content.
func CacheKey(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
