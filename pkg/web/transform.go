package web

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
	"github.com/OFFIS-RIT/kiwi-research/pkg/logger"
)

// RelevanceThreshold is the provider score a result must exceed to be kept.
const RelevanceThreshold = 0.5

const (
	summaryExcerptLen   = 150
	checklistExcerptLen = 200
	retrievalSourceTool = "webSearchTool"
)

// DocumentCreator persists documents. It is satisfied by the document store.
type DocumentCreator interface {
	CreateDocument(ctx context.Context, doc common.Document) (common.Document, error)
}

// ToDocuments turns every result of a search output into a candidate web
// document owned by the agent. Nothing is filtered here.
func ToDocuments(out common.WebSearchOutput, projectID int64, userID int64) []common.Document {
	docs := make([]common.Document, 0, len(out.Results))
	for _, r := range out.Results {
		content := r.RawContent
		if content == "" {
			content = r.Content
		}
		docs = append(docs, common.Document{
			ProjectID: projectID,
			UserID:    userID,
			Title:     r.Title,
			Type:      common.DocumentTypeWeb,
			URL:       r.URL,
			Content:   content,
			Metadata: map[string]any{
				"retrievalSource": retrievalSourceTool,
				"score":           r.Score,
				"publishedDate":   r.PublishedDate,
			},
			Source: common.DocumentSourceAgent,
		})
	}
	return docs
}

// IsRelevant reports whether a candidate document passes the relevance gate.
func IsRelevant(doc common.Document) bool {
	score, ok := doc.Metadata["score"].(float64)
	return ok && score > RelevanceThreshold && doc.Content != ""
}

// SummaryStub builds the placeholder summary for a stored web document.
func SummaryStub(title string, content string, url string) common.Summary {
	return common.Summary{
		Text:       fmt.Sprintf("Summary of: %s - %s...", title, excerpt(content, summaryExcerptLen)),
		Provenance: url,
	}
}

// ProcessWebResults stores every relevant search result as a document and
// returns one summary stub per stored document. Results at or below the
// relevance threshold, or without content, are dropped silently. A failed
// insert is logged and skipped.
func ProcessWebResults(
	ctx context.Context,
	docs DocumentCreator,
	results []common.WebSearchOutput,
	projectID int64,
	userID int64,
) []common.Summary {
	summaries := make([]common.Summary, 0)
	for _, out := range results {
		for _, candidate := range ToDocuments(out, projectID, userID) {
			if !IsRelevant(candidate) {
				continue
			}
			candidate.ExtractedText = candidate.Content
			stored, err := docs.CreateDocument(ctx, candidate)
			if err != nil {
				logger.Error("[Web] Failed to store web search result as document", "url", candidate.URL, "err", err)
				continue
			}
			logger.Debug("[Web] Stored web search result", "document_id", stored.ID, "url", candidate.URL)
			summaries = append(summaries, SummaryStub(candidate.Title, candidate.Content, candidate.URL))
		}
	}
	return summaries
}

// excerpt returns the first n characters of s.
func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
