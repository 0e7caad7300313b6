package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. It satisfies the
// metrics interfaces of the agent, ingest and approval packages.
type Metrics struct {
	agentRuns      *prometheus.CounterVec
	cascadeSteps   *prometheus.CounterVec
	toolCalls      *prometheus.CounterVec
	documents      *prometheus.CounterVec
	approvals      prometheus.Counter
	approvedLinks  prometheus.Counter
	requestedLinks prometheus.Counter
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		agentRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiwi_research",
			Subsystem: "agent",
			Name:      "runs_total",
			Help:      "Agent turns by branch taken",
		}, []string{"branch"}),
		cascadeSteps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiwi_research",
			Subsystem: "cascade",
			Name:      "steps_total",
			Help:      "Extraction cascade results by winning step",
		}, []string{"step"}),
		toolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiwi_research",
			Subsystem: "agent",
			Name:      "tool_calls_total",
			Help:      "Tool calls made by the model",
		}, []string{"tool", "ok"}),
		documents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiwi_research",
			Subsystem: "ingest",
			Name:      "documents_total",
			Help:      "Documents run through ingestion by type and source",
		}, []string{"type", "source"}),
		approvals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kiwi_research",
			Subsystem: "approval",
			Name:      "commands_total",
			Help:      "Processed approve commands",
		}),
		requestedLinks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kiwi_research",
			Subsystem: "approval",
			Name:      "requested_links_total",
			Help:      "Link ids named in approve commands",
		}),
		approvedLinks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kiwi_research",
			Subsystem: "approval",
			Name:      "added_links_total",
			Help:      "Approved links that were ingested",
		}),
	}
}

func (m *Metrics) AgentRun(branch string) {
	m.agentRuns.WithLabelValues(branch).Inc()
}

func (m *Metrics) CascadeStep(step string) {
	m.cascadeSteps.WithLabelValues(step).Inc()
}

func (m *Metrics) ToolCall(tool string, ok bool) {
	m.toolCalls.WithLabelValues(tool, strconv.FormatBool(ok)).Inc()
}

func (m *Metrics) DocumentIngested(docType string, source string) {
	m.documents.WithLabelValues(docType, source).Inc()
}

func (m *Metrics) ApprovalProcessed(requested int, added int) {
	m.approvals.Inc()
	m.requestedLinks.Add(float64(requested))
	m.approvedLinks.Add(float64(added))
}
