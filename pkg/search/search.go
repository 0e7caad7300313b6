package search

import (
	"context"

	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
)

// WebSearcher runs a web search and returns normalized results.
type WebSearcher interface {
	Search(ctx context.Context, input common.WebSearchInput) (common.WebSearchOutput, error)
}
