package common

// Graph is the in-memory result of one extraction pass: entities,
// relationships and summary points. It is never stored as a single row.
//
// All three slices are expected to be non-nil. A nil slice means the field
// was missing from model output and fails validation.
type Graph struct {
	Nodes     []Node    `json:"nodes" validate:"required,dive"`
	Edges     []Edge    `json:"edges" validate:"required,dive"`
	Summaries []Summary `json:"summaries" validate:"required,dive"`
}

// Node is an entity in a project's knowledge graph. ID is empty until the
// store assigns one.
type Node struct {
	ID         string         `json:"id,omitempty"`
	Label      string         `json:"label" validate:"min=1,max=200"`
	Type       string         `json:"type" validate:"max=50"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Provenance string         `json:"provenance,omitempty"`
	DocumentID string         `json:"documentId,omitempty"`
}

// Edge connects two nodes. Source and Target reference node labels or ids
// and are not checked against existing nodes.
type Edge struct {
	ID         string         `json:"id,omitempty"`
	Source     string         `json:"source" validate:"min=1"`
	Target     string         `json:"target" validate:"min=1"`
	Type       string         `json:"type" validate:"max=50"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Provenance string         `json:"provenance,omitempty"`
	DocumentID string         `json:"documentId,omitempty"`
}

// Summary is a free-text summary point.
type Summary struct {
	ID         string `json:"id,omitempty"`
	Text       string `json:"text" validate:"min=1,max=1000"`
	Provenance string `json:"provenance,omitempty"`
	DocumentID string `json:"documentId,omitempty"`
}

// Key identifies a summary for de-duplication.
func (s Summary) Key() string {
	return s.Provenance + "::" + s.Text
}

// EmptyGraph returns a graph with all three slices allocated.
func EmptyGraph() Graph {
	return Graph{
		Nodes:     []Node{},
		Edges:     []Edge{},
		Summaries: []Summary{},
	}
}

// SummariesGraph returns a graph holding only the given summaries.
func SummariesGraph(summaries []Summary) Graph {
	g := EmptyGraph()
	g.Summaries = append(g.Summaries, summaries...)
	return g
}

// IsEmpty reports whether the graph holds no elements at all.
func (g Graph) IsEmpty() bool {
	return len(g.Nodes) == 0 && len(g.Edges) == 0 && len(g.Summaries) == 0
}

// Clone returns a copy whose slices can be modified independently.
// Metadata maps are shared.
func (g Graph) Clone() Graph {
	out := EmptyGraph()
	out.Nodes = append(out.Nodes, g.Nodes...)
	out.Edges = append(out.Edges, g.Edges...)
	out.Summaries = append(out.Summaries, g.Summaries...)
	return out
}

// GraphQuery filters a read of a project's graph. Label is matched as a
// case-insensitive substring, Type exactly. Only nodes are filtered.
type GraphQuery struct {
	ProjectID int64  `json:"project_id,omitempty" jsonschema:"description=Project to read. Defaults to the current project."`
	Label     string `json:"label,omitempty" jsonschema:"description=Case-insensitive substring of the node label"`
	Type      string `json:"type,omitempty" jsonschema:"description=Exact node type, e.g. Person or Organization"`
}
