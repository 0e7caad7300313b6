package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/OFFIS-RIT/kiwi-research/pkg/ai"
	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
)

type toolCall struct {
	name string
	args string
}

// fakeClient replays scripted tool calls through the real handlers and
// then answers with a fixed text.
type fakeClient struct {
	mu       sync.Mutex
	calls    []toolCall
	answer   string
	err      error
	seen     [][]ai.ChatMessage
	tools    [][]string
	toolOuts []string
	options  []ai.GenerateOptions
}

func (c *fakeClient) GenerateChatWithTools(
	ctx context.Context,
	messages []ai.ChatMessage,
	tools []ai.Tool,
	opts ...ai.GenerateOption,
) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seen = append(c.seen, messages)
	c.options = append(c.options, ai.ApplyOptions(ai.GenerateOptions{}, opts...))
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	c.tools = append(c.tools, names)

	if c.err != nil {
		return "", c.err
	}
	for _, call := range c.calls {
		var handler ai.ToolHandler
		for _, t := range tools {
			if t.Name == call.name {
				handler = t.Handler
			}
		}
		if handler == nil {
			return "", errors.New("tool not offered: " + call.name)
		}
		out, err := handler(ctx, call.args)
		if err != nil {
			return "", err
		}
		c.toolOuts = append(c.toolOuts, out)
	}
	return c.answer, nil
}

func (c *fakeClient) ResetMetrics()               {}
func (c *fakeClient) GetMetrics() ai.ModelMetrics { return ai.ModelMetrics{} }

func (c *fakeClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

type fakeSearcher struct {
	out    common.WebSearchOutput
	err    error
	inputs []common.WebSearchInput
}

func (s *fakeSearcher) Search(_ context.Context, input common.WebSearchInput) (common.WebSearchOutput, error) {
	s.inputs = append(s.inputs, input)
	if s.err != nil {
		return common.WebSearchOutput{}, s.err
	}
	return s.out, nil
}

// graphSpy records every SaveGraph call.
type graphSpy struct {
	saved   []common.Graph
	queries []common.GraphQuery
	stored  common.Graph
	saveErr error
}

func (s *graphSpy) SaveGraph(_ context.Context, _ int64, g common.Graph) (common.Graph, error) {
	if s.saveErr != nil {
		return common.Graph{}, s.saveErr
	}
	s.saved = append(s.saved, g)
	return g, nil
}

func (s *graphSpy) QueryGraph(_ context.Context, q common.GraphQuery) (common.Graph, error) {
	s.queries = append(s.queries, q)
	return s.stored, nil
}

type metricsSpy struct {
	runs  []string
	steps []string
	tools map[string]int
}

func (m *metricsSpy) AgentRun(branch string)  { m.runs = append(m.runs, branch) }
func (m *metricsSpy) CascadeStep(step string) { m.steps = append(m.steps, step) }
func (m *metricsSpy) ToolCall(tool string, ok bool) {
	if m.tools == nil {
		m.tools = map[string]int{}
	}
	if ok {
		m.tools[tool]++
	}
}

type publisherSpy struct {
	keys []string
}

func (p *publisherSpy) Publish(_ context.Context, key string, _ any) error {
	p.keys = append(p.keys, key)
	return nil
}
