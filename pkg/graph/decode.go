package graph

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
)

// wire types keep required string fields as pointers so a missing key can
// be told apart from an empty value.
type wireNode struct {
	ID         *string        `json:"id"`
	Label      *string        `json:"label"`
	Type       *string        `json:"type"`
	Metadata   map[string]any `json:"metadata"`
	Provenance *string        `json:"provenance"`
	DocumentID *string        `json:"documentId"`
}

type wireEdge struct {
	ID         *string        `json:"id"`
	Source     *string        `json:"source"`
	Target     *string        `json:"target"`
	Type       *string        `json:"type"`
	Metadata   map[string]any `json:"metadata"`
	Provenance *string        `json:"provenance"`
	DocumentID *string        `json:"documentId"`
}

type wireSummary struct {
	ID         *string `json:"id"`
	Text       *string `json:"text"`
	Provenance *string `json:"provenance"`
	DocumentID *string `json:"documentId"`
}

type wireGraph struct {
	Nodes     *[]wireNode    `json:"nodes"`
	Edges     *[]wireEdge    `json:"edges"`
	Summaries *[]wireSummary `json:"summaries"`
}

// locateJSON returns the substring from the first '{' to the last '}'.
func locateJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	end := strings.LastIndexByte(text, '}')
	if end < start {
		return "", false
	}
	return text[start : end+1], true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// toGraph converts the decoded wire graph. Missing required fields are
// collected and returned as an error; the graph is still returned so the
// caller can log what was found.
func (w wireGraph) toGraph() (common.Graph, error) {
	var missing []string
	g := common.Graph{}

	if w.Nodes == nil {
		missing = append(missing, "nodes")
	} else {
		g.Nodes = make([]common.Node, 0, len(*w.Nodes))
		for i, n := range *w.Nodes {
			if n.Label == nil {
				missing = append(missing, fmt.Sprintf("nodes[%d].label", i))
			}
			if n.Type == nil {
				missing = append(missing, fmt.Sprintf("nodes[%d].type", i))
			}
			g.Nodes = append(g.Nodes, common.Node{
				ID:         deref(n.ID),
				Label:      deref(n.Label),
				Type:       deref(n.Type),
				Metadata:   n.Metadata,
				Provenance: deref(n.Provenance),
				DocumentID: deref(n.DocumentID),
			})
		}
	}

	if w.Edges == nil {
		missing = append(missing, "edges")
	} else {
		g.Edges = make([]common.Edge, 0, len(*w.Edges))
		for i, e := range *w.Edges {
			if e.Source == nil {
				missing = append(missing, fmt.Sprintf("edges[%d].source", i))
			}
			if e.Target == nil {
				missing = append(missing, fmt.Sprintf("edges[%d].target", i))
			}
			if e.Type == nil {
				missing = append(missing, fmt.Sprintf("edges[%d].type", i))
			}
			g.Edges = append(g.Edges, common.Edge{
				ID:         deref(e.ID),
				Source:     deref(e.Source),
				Target:     deref(e.Target),
				Type:       deref(e.Type),
				Metadata:   e.Metadata,
				Provenance: deref(e.Provenance),
				DocumentID: deref(e.DocumentID),
			})
		}
	}

	if w.Summaries == nil {
		missing = append(missing, "summaries")
	} else {
		g.Summaries = make([]common.Summary, 0, len(*w.Summaries))
		for i, s := range *w.Summaries {
			if s.Text == nil {
				missing = append(missing, fmt.Sprintf("summaries[%d].text", i))
			}
			g.Summaries = append(g.Summaries, common.Summary{
				ID:         deref(s.ID),
				Text:       deref(s.Text),
				Provenance: deref(s.Provenance),
				DocumentID: deref(s.DocumentID),
			})
		}
	}

	if len(missing) > 0 {
		return g, fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return g, nil
}

// parseModelGraph parses the embedded JSON object of a model answer.
// found is false when the text contains no brace-delimited span at all.
func parseModelGraph(text string) (raw string, parsed wireGraph, found bool, err error) {
	raw, found = locateJSON(text)
	if !found {
		return "", wireGraph{}, false, nil
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return raw, wireGraph{}, true, err
	}
	return raw, parsed, true, nil
}
