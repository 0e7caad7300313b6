package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/kiwi-research/pkg/agent"
	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
	"github.com/OFFIS-RIT/kiwi-research/pkg/graph"
	"github.com/OFFIS-RIT/kiwi-research/pkg/loader"
	"github.com/OFFIS-RIT/kiwi-research/pkg/logger"
	"github.com/OFFIS-RIT/kiwi-research/pkg/store"
	"github.com/OFFIS-RIT/kiwi-research/pkg/web"
)

// EventDocumentIngested is published after a document went through the agent.
const EventDocumentIngested = "document.ingested"

// Runner is the part of the orchestrator used for ingestion.
type Runner interface {
	Ingest(ctx context.Context, doc common.Document, carryover []common.Summary) (agent.Result, error)
}

// Scraper turns a URL into plain text. It never fails; errors are
// reported in the result metadata.
type Scraper interface {
	Scrape(ctx context.Context, url string) common.ScrapeResult
}

// FileStore keeps raw uploads.
type FileStore interface {
	PutFile(ctx context.Context, prefix string, name string, data []byte) (string, error)
	DeleteFile(ctx context.Context, key string) error
}

type Metrics interface {
	DocumentIngested(docType string, source string)
}

type noopMetrics struct{}

func (noopMetrics) DocumentIngested(string, string) {}

// Service creates documents and feeds them to the agent in ingestion mode.
type Service struct {
	docs    store.DocumentStorage
	graphs  store.GraphStorage
	runner  Runner
	scraper Scraper
	pdf     loader.TextExtractor
	files   FileStore
	events  agent.EventPublisher
	metrics Metrics
}

type NewServiceParams struct {
	Documents store.DocumentStorage
	Graphs    store.GraphStorage
	Runner    Runner
	Scraper   Scraper
	PDF       loader.TextExtractor
	Files     FileStore
	Events    agent.EventPublisher
	Metrics   Metrics
}

func NewService(params NewServiceParams) *Service {
	s := &Service{
		docs:    params.Documents,
		graphs:  params.Graphs,
		runner:  params.Runner,
		scraper: params.Scraper,
		pdf:     params.PDF,
		files:   params.Files,
		events:  params.Events,
		metrics: params.Metrics,
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	return s
}

// Outcome is a stored document and the agent run over its text.
type Outcome struct {
	Document common.Document `json:"document"`
	Result   agent.Result    `json:"result"`
}

type TextInput struct {
	ProjectID int64
	UserID    int64
	Title     string
	Content   string
	Metadata  map[string]any
}

// IngestText stores a user supplied text document and extracts its graph.
func (s *Service) IngestText(ctx context.Context, in TextInput) (Outcome, error) {
	content := loader.CleanText(in.Content)
	return s.ingest(ctx, common.Document{
		ProjectID:     in.ProjectID,
		UserID:        in.UserID,
		Title:         in.Title,
		Type:          common.DocumentTypeText,
		Content:       content,
		ExtractedText: content,
		Metadata:      in.Metadata,
		Source:        common.DocumentSourceUser,
	}, nil)
}

type WebInput struct {
	ProjectID int64
	UserID    int64
	Title     string
	URL       string
	Metadata  map[string]any
}

// IngestWeb scrapes a user supplied URL. A failed scrape still creates the
// document, with empty content and the error in its metadata.
func (s *Service) IngestWeb(ctx context.Context, in WebInput) (Outcome, error) {
	scraped := s.scraper.Scrape(ctx, in.URL)
	meta := scraped.Metadata.AsMap()
	for k, v := range in.Metadata {
		meta[k] = v
	}
	return s.ingest(ctx, common.Document{
		ProjectID:     in.ProjectID,
		UserID:        in.UserID,
		Title:         firstNonEmpty(in.Title, scraped.Metadata.Title, in.URL),
		Type:          common.DocumentTypeWeb,
		URL:           in.URL,
		Content:       scraped.Text,
		ExtractedText: scraped.Text,
		Metadata:      meta,
		Source:        common.DocumentSourceUser,
	}, nil)
}

// IngestApprovedLink scrapes a checklist item the user approved, stores it
// as a web document and runs extraction over it. The item's own summary is
// kept as originalSummary and a summary stub of the page is carried over
// into the extracted graph. A page that could not be scraped gets no stub.
func (s *Service) IngestApprovedLink(
	ctx context.Context,
	projectID int64,
	userID int64,
	item common.WebLinkChecklistItem,
) (Outcome, error) {
	scraped := s.scraper.Scrape(ctx, item.URL)
	meta := scraped.Metadata.AsMap()
	meta["originalSummary"] = item.Summary

	title := firstNonEmpty(item.Title, scraped.Metadata.Title, item.URL)
	var carryover []common.Summary
	if scraped.Metadata.Error == "" && strings.TrimSpace(scraped.Text) != "" {
		carryover = []common.Summary{web.SummaryStub(title, scraped.Text, item.URL)}
	}

	return s.ingest(ctx, common.Document{
		ProjectID:     projectID,
		UserID:        userID,
		Title:         title,
		Type:          common.DocumentTypeWeb,
		URL:           item.URL,
		Content:       scraped.Text,
		ExtractedText: scraped.Text,
		Metadata:      meta,
		Source:        common.DocumentSourceWeb,
	}, carryover)
}

type PDFInput struct {
	ProjectID int64
	UserID    int64
	Title     string
	FileName  string
	Data      []byte
}

// IngestPDF uploads the raw file, extracts its text layer and runs
// extraction over it.
func (s *Service) IngestPDF(ctx context.Context, in PDFInput) (Outcome, error) {
	if s.pdf == nil {
		return Outcome{}, errors.New("pdf extraction is not configured")
	}

	var key string
	if s.files != nil {
		var err error
		key, err = s.files.PutFile(ctx, fmt.Sprintf("projects/%d/documents", in.ProjectID), in.FileName, in.Data)
		if err != nil {
			return Outcome{}, fmt.Errorf("failed to store pdf: %w", err)
		}
	}

	text, err := s.pdf.ExtractText(ctx, in.Data)
	if err != nil {
		if key != "" {
			if delErr := s.files.DeleteFile(ctx, key); delErr != nil {
				logger.Warn("[Ingest] Failed to remove stored pdf", "key", key, "err", delErr)
			}
		}
		return Outcome{}, fmt.Errorf("failed to extract pdf text: %w", err)
	}

	return s.ingest(ctx, common.Document{
		ProjectID:     in.ProjectID,
		UserID:        in.UserID,
		Title:         firstNonEmpty(in.Title, strings.TrimSuffix(in.FileName, ".pdf"), "Untitled PDF"),
		Type:          common.DocumentTypePDF,
		ExtractedText: text,
		FileKey:       key,
		Metadata:      map[string]any{"fileName": in.FileName, "size": len(in.Data)},
		Source:        common.DocumentSourceUser,
	}, nil)
}

func (s *Service) ingest(ctx context.Context, doc common.Document, carryover []common.Summary) (Outcome, error) {
	created, err := s.docs.CreateDocument(ctx, doc)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to create document: %w", err)
	}
	logger.Info("[Ingest] Created document",
		"document_id", created.ID,
		"project_id", created.ProjectID,
		"type", created.Type,
		"source", created.Source,
	)

	res, err := s.runner.Ingest(ctx, created, carryover)
	if err != nil {
		return Outcome{Document: created}, fmt.Errorf("failed to extract graph from document %s: %w", created.ID, err)
	}
	s.metrics.DocumentIngested(string(created.Type), string(created.Source))

	if s.events != nil {
		payload := map[string]any{
			"projectId":  created.ProjectID,
			"documentId": created.ID,
			"type":       created.Type,
			"persisted":  res.Persisted,
		}
		if err := s.events.Publish(ctx, EventDocumentIngested, payload); err != nil {
			logger.Warn("[Ingest] Failed to publish event", "document_id", created.ID, "err", err)
		}
	}

	return Outcome{Document: created, Result: res}, nil
}

// FoldWebResults stores relevant raw search results as documents and
// persists one summary stub per stored document.
func (s *Service) FoldWebResults(
	ctx context.Context,
	projectID int64,
	userID int64,
	results []common.WebSearchOutput,
) (common.Graph, error) {
	summaries := web.ProcessWebResults(ctx, s.docs, results, projectID, userID)

	valid := make([]common.Summary, 0, len(summaries))
	for _, sum := range summaries {
		g, err := common.ValidateGraph(common.SummariesGraph([]common.Summary{sum}))
		if err != nil {
			logger.Warn("[Ingest] Dropping invalid web summary", "provenance", sum.Provenance, "err", err)
			continue
		}
		valid = append(valid, g.Summaries...)
	}

	g := common.SummariesGraph(graph.MergeSummaries(nil, valid))
	if g.IsEmpty() {
		return g, nil
	}
	saved, err := s.graphs.SaveGraph(ctx, projectID, g)
	if err != nil {
		return common.Graph{}, fmt.Errorf("failed to persist web summaries: %w", err)
	}
	return saved, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
