package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/kiwi-research/pkg/ai"
	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
	"github.com/OFFIS-RIT/kiwi-research/pkg/graph"
	"github.com/OFFIS-RIT/kiwi-research/pkg/logger"
	"github.com/OFFIS-RIT/kiwi-research/pkg/search"
	"github.com/OFFIS-RIT/kiwi-research/pkg/store"
	"github.com/OFFIS-RIT/kiwi-research/pkg/web"
)

// Branch names reported to Metrics.
const (
	BranchWebSearch  = "web_search"
	BranchExtraction = "extraction"
)

// Event routing keys.
const (
	EventGraphUpdated = "graph.updated"
)

// DefaultMaxToolRounds allows one round of tool calls followed by the
// answer.
const DefaultMaxToolRounds = 2

// EventPublisher announces committed graph changes. Failures are logged,
// never returned to the caller.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// Metrics receives counters about agent runs.
type Metrics interface {
	AgentRun(branch string)
	CascadeStep(step string)
	ToolCall(tool string, ok bool)
}

type noopMetrics struct{}

func (noopMetrics) AgentRun(string)       {}
func (noopMetrics) CascadeStep(string)    {}
func (noopMetrics) ToolCall(string, bool) {}

// Orchestrator runs one research-agent turn: one model call with the web
// search and graph query tools, followed by either the approval checklist
// or graph extraction and persistence.
type Orchestrator struct {
	client   ai.GraphAIClient
	searcher search.WebSearcher
	graphs   store.GraphStorage
	events   EventPublisher
	metrics  Metrics
	now      func() time.Time
	genOpts  []ai.GenerateOption

	maxDocumentTokens int
}

type NewOrchestratorParams struct {
	Client   ai.GraphAIClient
	Searcher search.WebSearcher
	Graphs   store.GraphStorage
	Events   EventPublisher
	Metrics  Metrics
	// MaxDocumentTokens caps the document text sent in ingestion mode.
	// Zero disables the cap.
	MaxDocumentTokens int
	Options           []ai.GenerateOption
	Now               func() time.Time
}

func NewOrchestrator(params NewOrchestratorParams) *Orchestrator {
	o := &Orchestrator{
		client:            params.Client,
		searcher:          params.Searcher,
		graphs:            params.Graphs,
		events:            params.Events,
		metrics:           params.Metrics,
		now:               params.Now,
		genOpts:           params.Options,
		maxDocumentTokens: params.MaxDocumentTokens,
	}
	if o.metrics == nil {
		o.metrics = noopMetrics{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Turn is one conversation message.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type RunOptions struct {
	ProjectID int64
	UserID    int64
	// DocumentID is stamped on every extracted element.
	DocumentID string
	// DocumentContext is serialized and prefixed to the first user turn.
	DocumentContext map[string]any
	// Carryover summaries are merged into the extracted graph.
	Carryover []common.Summary
	// DisableWebSearch hides the web search tool from the model.
	DisableWebSearch bool
}

type Result struct {
	Text                 string                        `json:"text"`
	Graph                common.Graph                  `json:"graph"`
	Validated            *graph.ValidationResult       `json:"validated,omitempty"`
	WebSearchResults     []common.WebSearchOutput      `json:"webSearchResults"`
	WebLinks             []common.WebLinkChecklistItem `json:"webLinks,omitempty"`
	AwaitingUserApproval bool                          `json:"awaitingUserApproval,omitempty"`
	Recommendations      string                        `json:"recommendations,omitempty"`
	Persisted            bool                          `json:"persisted"`
}

// Run executes one agent turn. Model and store failures are returned
// unchanged in meaning; malformed model output never is.
//
// When the model used web search, nothing is persisted and the result
// carries the approval checklist instead of a graph.
func (o *Orchestrator) Run(ctx context.Context, conversation []Turn, opts RunOptions) (Result, error) {
	messages := buildMessages(conversation, opts.DocumentContext)
	rec := &searchRecorder{}
	tools := o.tools(opts, rec)

	genOpts := append([]ai.GenerateOption{
		ai.WithSystemPrompts(fmt.Sprintf(ai.ResearchAgentPrompt, o.now().Format(time.RFC1123))),
		ai.WithMaxToolRounds(DefaultMaxToolRounds),
	}, o.genOpts...)

	logger.Debug("[Agent] Running turn",
		"project_id", opts.ProjectID,
		"document_id", opts.DocumentID,
		"messages", len(messages),
		"tools", len(tools),
	)
	text, err := o.client.GenerateChatWithTools(ctx, messages, tools, genOpts...)
	if err != nil {
		return Result{}, fmt.Errorf("agent model call failed: %w", err)
	}

	if searches := rec.outputs(); len(searches) > 0 {
		o.metrics.AgentRun(BranchWebSearch)
		items := web.FormatChecklist(searches)
		logger.Info("[Agent] Web search used, awaiting approval",
			"project_id", opts.ProjectID,
			"searches", len(searches),
			"links", len(items),
		)
		return Result{
			Text:                 text,
			Graph:                common.EmptyGraph(),
			WebSearchResults:     searches,
			WebLinks:             items,
			AwaitingUserApproval: true,
			Recommendations:      web.RenderRecommendations(items),
		}, nil
	}

	o.metrics.AgentRun(BranchExtraction)
	ext := graph.ExtractAndValidate(text, opts.Carryover)
	o.metrics.CascadeStep(ext.Step())

	res := Result{
		Text:             text,
		Graph:            graph.StampDocument(ext.Graph, opts.DocumentID),
		Validated:        ext.Validated,
		WebSearchResults: []common.WebSearchOutput{},
	}

	if res.Graph.IsEmpty() {
		return res, nil
	}
	if opts.ProjectID == 0 {
		logger.Warn("[Agent] Extracted graph has no project, skipping persistence", "step", ext.Step())
		return res, nil
	}

	saved, err := o.graphs.SaveGraph(ctx, opts.ProjectID, res.Graph)
	if err != nil {
		return Result{}, fmt.Errorf("failed to persist graph: %w", err)
	}
	res.Graph = saved
	res.Persisted = true

	logger.Info("[Agent] Persisted graph",
		"project_id", opts.ProjectID,
		"document_id", opts.DocumentID,
		"step", ext.Step(),
		"nodes", len(saved.Nodes),
		"edges", len(saved.Edges),
		"summaries", len(saved.Summaries),
	)
	o.publish(ctx, EventGraphUpdated, graphUpdated{
		ProjectID:  opts.ProjectID,
		DocumentID: opts.DocumentID,
		Step:       ext.Step(),
		Nodes:      len(saved.Nodes),
		Edges:      len(saved.Edges),
		Summaries:  len(saved.Summaries),
	})
	return res, nil
}

type graphUpdated struct {
	ProjectID  int64  `json:"projectId"`
	DocumentID string `json:"documentId,omitempty"`
	Step       string `json:"step"`
	Nodes      int    `json:"nodes"`
	Edges      int    `json:"edges"`
	Summaries  int    `json:"summaries"`
}

func (o *Orchestrator) publish(ctx context.Context, key string, payload any) {
	if o.events == nil {
		return
	}
	if err := o.events.Publish(ctx, key, payload); err != nil {
		logger.Warn("[Agent] Failed to publish event", "routing_key", key, "err", err)
	}
}

// buildMessages converts turns to model messages. The document context
// block is prefixed to the first user turn only.
func buildMessages(conversation []Turn, documentContext map[string]any) []ai.ChatMessage {
	prefix := ""
	if len(documentContext) > 0 {
		raw, err := json.MarshalIndent(documentContext, "", "  ")
		if err == nil {
			prefix = ai.DocumentContextHeader + string(raw) + "\n\n"
		}
	}

	messages := make([]ai.ChatMessage, 0, len(conversation))
	for _, turn := range conversation {
		content := turn.Content
		if prefix != "" && turn.Role == ai.RoleUser {
			content = prefix + content
			prefix = ""
		}
		messages = append(messages, ai.ChatMessage{Role: turn.Role, Message: content})
	}
	return messages
}
