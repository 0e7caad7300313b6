package agent

import (
	"context"

	"github.com/OFFIS-RIT/kiwi-research/pkg/ai"
	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
	"github.com/OFFIS-RIT/kiwi-research/pkg/logger"
)

// Ingest runs the agent in document ingestion mode: a single user turn
// holding the document text, with every extracted element stamped with the
// document's id. Web search is not offered so the run always ends in
// extraction.
func (o *Orchestrator) Ingest(ctx context.Context, doc common.Document, carryover []common.Summary) (Result, error) {
	text := doc.Text()
	if o.maxDocumentTokens > 0 {
		truncated, cut := ai.TruncateTokens(text, o.maxDocumentTokens)
		if cut {
			logger.Info("[Ingest] Document text truncated",
				"document_id", doc.ID,
				"tokens", ai.CountTokens(text),
				"max_tokens", o.maxDocumentTokens,
			)
		}
		text = truncated
	}

	return o.Run(ctx, []Turn{{Role: ai.RoleUser, Content: ai.DocumentExtractionPrompt + text}}, RunOptions{
		ProjectID:        doc.ProjectID,
		UserID:           doc.UserID,
		DocumentID:       doc.ID,
		DocumentContext:  DocumentContext(doc),
		Carryover:        carryover,
		DisableWebSearch: true,
	})
}

// DocumentContext is the metadata block shown to the model ahead of a
// document's text.
func DocumentContext(doc common.Document) map[string]any {
	out := map[string]any{
		"documentId": doc.ID,
		"title":      doc.Title,
		"type":       string(doc.Type),
		"source":     string(doc.Source),
	}
	if doc.URL != "" {
		out["url"] = doc.URL
	}
	if len(doc.Metadata) > 0 {
		out["metadata"] = doc.Metadata
	}
	return out
}
