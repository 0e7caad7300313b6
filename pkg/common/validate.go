package common

import (
	"strings"
	"sync"

	"github.com/go-playground/validator"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator instance.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// NormalizeGraph returns a copy of g with the string fields that the graph
// schema trims already trimmed. Nil slices stay nil.
func NormalizeGraph(g Graph) Graph {
	out := Graph{}
	if g.Nodes != nil {
		out.Nodes = make([]Node, len(g.Nodes))
		for i, n := range g.Nodes {
			n.Label = strings.TrimSpace(n.Label)
			n.Type = strings.TrimSpace(n.Type)
			out.Nodes[i] = n
		}
	}
	if g.Edges != nil {
		out.Edges = make([]Edge, len(g.Edges))
		for i, e := range g.Edges {
			e.Source = strings.TrimSpace(e.Source)
			e.Target = strings.TrimSpace(e.Target)
			e.Type = strings.TrimSpace(e.Type)
			out.Edges[i] = e
		}
	}
	if g.Summaries != nil {
		out.Summaries = make([]Summary, len(g.Summaries))
		for i, s := range g.Summaries {
			s.Text = strings.TrimSpace(s.Text)
			out.Summaries[i] = s
		}
	}
	return out
}

// ValidateGraph normalizes g and checks it against the graph schema. On
// success the normalized graph is returned.
func ValidateGraph(g Graph) (Graph, error) {
	normalized := NormalizeGraph(g)
	if err := Validator().Struct(normalized); err != nil {
		return Graph{}, err
	}
	return normalized, nil
}

// ValidateWebSearchInput trims and validates tool arguments for web search.
func ValidateWebSearchInput(in *WebSearchInput) error {
	in.Query = strings.TrimSpace(in.Query)
	return Validator().Struct(in)
}
