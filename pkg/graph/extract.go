package graph

import (
	"github.com/OFFIS-RIT/kiwi-research/pkg/common"
	"github.com/OFFIS-RIT/kiwi-research/pkg/logger"
)

// Cascade step names, in the order they are attempted.
const (
	StepMerged             = "merged"
	StepModelOnly          = "model_only"
	StepWebSummaries       = "web_summaries"
	StepCarryoverSummaries = "carryover_summaries"
	StepEmpty              = "empty"
)

// ValidationResult describes a graph that passed schema validation and the
// cascade step that produced it.
type ValidationResult struct {
	Step string `json:"step"`
}

// Extraction is the outcome of ExtractAndValidate. Validated is nil when no
// step produced a valid graph; Graph is then empty.
type Extraction struct {
	Graph     common.Graph      `json:"graph"`
	Validated *ValidationResult `json:"validated,omitempty"`
}

// Step returns the name of the step that produced the result.
func (e Extraction) Step() string {
	if e.Validated == nil {
		return StepEmpty
	}
	return e.Validated.Step
}

type cascadeInput struct {
	carryover  []common.Summary
	model      common.Graph
	modelValid bool
}

type cascadeStep struct {
	name    string
	attempt func(in cascadeInput) (common.Graph, bool)
}

var cascade = []cascadeStep{
	{
		name: StepMerged,
		attempt: func(in cascadeInput) (common.Graph, bool) {
			if !in.modelValid {
				return common.Graph{}, false
			}
			return validated(mergeInto(in.carryover, in.model))
		},
	},
	{
		name: StepModelOnly,
		attempt: func(in cascadeInput) (common.Graph, bool) {
			if !in.modelValid {
				return common.Graph{}, false
			}
			return validated(in.model)
		},
	},
	{
		name: StepWebSummaries,
		attempt: func(in cascadeInput) (common.Graph, bool) {
			if !in.modelValid {
				return common.Graph{}, false
			}
			web := WebSummaries(in.carryover)
			if len(web) == 0 {
				return common.Graph{}, false
			}
			return validated(common.SummariesGraph(MergeSummaries(nil, web)))
		},
	},
	{
		name: StepCarryoverSummaries,
		attempt: func(in cascadeInput) (common.Graph, bool) {
			if in.modelValid || len(in.carryover) == 0 {
				return common.Graph{}, false
			}
			return validated(common.SummariesGraph(MergeSummaries(nil, in.carryover)))
		},
	},
}

func validated(g common.Graph) (common.Graph, bool) {
	out, err := common.ValidateGraph(g)
	if err != nil {
		return common.Graph{}, false
	}
	return out, true
}

// ExtractAndValidate pulls a graph out of free-form model output and merges
// it with carryover summaries. It never fails: malformed or missing JSON
// degrades to a summaries-only graph from carryover, or to an empty graph.
// Nodes and edges only ever come from a model graph that passed validation.
func ExtractAndValidate(modelText string, carryover []common.Summary) Extraction {
	in := cascadeInput{carryover: carryover}

	raw, parsed, found, err := parseModelGraph(modelText)
	switch {
	case !found:
		logger.Debug("[Cascade] No JSON object in model output")
	case err != nil:
		logger.Debug("[Cascade] Failed to parse JSON from model output", "err", err, "length", len(raw))
	default:
		g, convErr := parsed.toGraph()
		if convErr == nil {
			g, convErr = common.ValidateGraph(g)
		}
		if convErr != nil {
			logger.Debug("[Cascade] Model graph failed validation", "err", convErr)
		} else {
			in.model = g
			in.modelValid = true
		}
	}

	for _, step := range cascade {
		g, ok := step.attempt(in)
		if !ok {
			continue
		}
		logger.Debug("[Cascade] Step succeeded",
			"step", step.name,
			"nodes", len(g.Nodes),
			"edges", len(g.Edges),
			"summaries", len(g.Summaries),
		)
		return Extraction{Graph: g, Validated: &ValidationResult{Step: step.name}}
	}

	logger.Debug("[Cascade] No step produced a valid graph", "carryover", len(carryover))
	return Extraction{Graph: common.EmptyGraph()}
}
