package graph

import (
	"slices"
	"strings"

	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
)

// MergeSummaries appends the summaries of incoming to base and keeps the
// first summary of every provenance::text key, duplicates inside base
// included. base is not modified.
func MergeSummaries(base []common.Summary, incoming []common.Summary) []common.Summary {
	out := make([]common.Summary, 0, len(base)+len(incoming))
	seen := make(map[string]struct{}, len(base)+len(incoming))
	for _, s := range slices.Concat(base, incoming) {
		key := s.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// mergeInto builds the accumulator graph: carryover summaries first, then
// the model's nodes and edges verbatim and its summaries de-duplicated.
func mergeInto(carryover []common.Summary, model common.Graph) common.Graph {
	merged := common.EmptyGraph()
	merged.Nodes = append(merged.Nodes, model.Nodes...)
	merged.Edges = append(merged.Edges, model.Edges...)
	merged.Summaries = MergeSummaries(carryover, model.Summaries)
	return merged
}

// StampDocument sets documentID on every node, edge and summary of g.
// An empty documentID leaves the graph untouched.
func StampDocument(g common.Graph, documentID string) common.Graph {
	if documentID == "" {
		return g
	}
	out := g.Clone()
	for i := range out.Nodes {
		out.Nodes[i].DocumentID = documentID
	}
	for i := range out.Edges {
		out.Edges[i].DocumentID = documentID
	}
	for i := range out.Summaries {
		out.Summaries[i].DocumentID = documentID
	}
	return out
}

// WebSummaries keeps the summaries whose provenance looks like a URL.
func WebSummaries(summaries []common.Summary) []common.Summary {
	out := make([]common.Summary, 0, len(summaries))
	for _, s := range summaries {
		if strings.HasPrefix(s.Provenance, "http") {
			out = append(out, s)
		}
	}
	return out
}
