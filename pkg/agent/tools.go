package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/OFFIS-RIT/kiwi-research/pkg/ai"
	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
	"github.com/OFFIS-RIT/kiwi-research/pkg/logger"
)

const (
	ToolWebSearch  = "web_search"
	ToolGraphQuery = "graph_query"
)

// searchRecorder keeps every successful web search output of one run.
type searchRecorder struct {
	mu   sync.Mutex
	outs []common.WebSearchOutput
}

func (r *searchRecorder) record(out common.WebSearchOutput) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outs = append(r.outs, out)
}

func (r *searchRecorder) outputs() []common.WebSearchOutput {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]common.WebSearchOutput(nil), r.outs...)
}

func (o *Orchestrator) tools(opts RunOptions, rec *searchRecorder) []ai.Tool {
	tools := make([]ai.Tool, 0, 2)
	if o.searcher != nil && !opts.DisableWebSearch {
		tools = append(tools, ai.Tool{
			Name:        ToolWebSearch,
			Description: ai.WebSearchToolDescription,
			Parameters:  ai.ToolParameters(common.WebSearchInput{}),
			Handler:     o.webSearchHandler(rec),
		})
	}
	if o.graphs != nil {
		tools = append(tools, ai.Tool{
			Name:        ToolGraphQuery,
			Description: ai.GraphQueryToolDescription,
			Parameters:  ai.ToolParameters(common.GraphQuery{}),
			Handler:     o.graphQueryHandler(opts.ProjectID),
		})
	}
	return tools
}

// toolError is what the model sees when a tool cannot run. The turn
// continues so the model can recover.
func toolError(format string, args ...any) string {
	raw, _ := json.Marshal(map[string]string{"error": fmt.Sprintf(format, args...)})
	return string(raw)
}

func (o *Orchestrator) webSearchHandler(rec *searchRecorder) ai.ToolHandler {
	return func(ctx context.Context, arguments string) (string, error) {
		var input common.WebSearchInput
		if err := ai.UnmarshalFlexible(arguments, &input); err != nil {
			o.metrics.ToolCall(ToolWebSearch, false)
			return toolError("invalid arguments: %v", err), nil
		}
		if err := common.ValidateWebSearchInput(&input); err != nil {
			o.metrics.ToolCall(ToolWebSearch, false)
			return toolError("invalid arguments: %v", err), nil
		}

		out, err := o.searcher.Search(ctx, input)
		if err != nil {
			logger.Warn("[Agent] Web search failed", "query", input.Query, "err", err)
			o.metrics.ToolCall(ToolWebSearch, false)
			return toolError("web search failed: %v", err), nil
		}
		rec.record(out)
		o.metrics.ToolCall(ToolWebSearch, true)

		raw, err := json.Marshal(out)
		if err != nil {
			return "", fmt.Errorf("failed to encode search output: %w", err)
		}
		return string(raw), nil
	}
}

func (o *Orchestrator) graphQueryHandler(projectID int64) ai.ToolHandler {
	return func(ctx context.Context, arguments string) (string, error) {
		var q common.GraphQuery
		if err := ai.UnmarshalFlexible(arguments, &q); err != nil {
			o.metrics.ToolCall(ToolGraphQuery, false)
			return toolError("invalid arguments: %v", err), nil
		}
		if projectID != 0 {
			q.ProjectID = projectID
		}
		if q.ProjectID == 0 {
			o.metrics.ToolCall(ToolGraphQuery, false)
			return toolError("no project selected"), nil
		}

		g, err := o.graphs.QueryGraph(ctx, q)
		if err != nil {
			logger.Warn("[Agent] Graph query failed", "project_id", q.ProjectID, "err", err)
			o.metrics.ToolCall(ToolGraphQuery, false)
			return toolError("graph query failed: %v", err), nil
		}
		o.metrics.ToolCall(ToolGraphQuery, true)

		raw, err := json.Marshal(g)
		if err != nil {
			return "", fmt.Errorf("failed to encode graph: %w", err)
		}
		return string(raw), nil
	}
}
