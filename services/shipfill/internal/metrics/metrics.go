package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BlocksApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipfill_blocks_applied_total",
			Help: "Total blocks committed to the store",
		},
		[]string{"schema"},
	)

	ForkSwitches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipfill_fork_switches_total",
			Help: "Total fork switches handled",
		},
		[]string{"schema"},
	)

	BlocksTrimmed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipfill_blocks_trimmed_total",
			Help: "Total block numbers released by retention trim",
		},
		[]string{"schema"},
	)

	RowsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipfill_rows_written_total",
			Help: "Total table delta rows written",
		},
		[]string{"schema", "table"},
	)

	TracesWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipfill_traces_written_total",
			Help: "Total transaction traces written",
		},
		[]string{"schema"},
	)

	HeadBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shipfill_head_block",
			Help: "Last committed block number",
		},
		[]string{"schema"},
	)

	IrreversibleBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shipfill_irreversible_block",
			Help: "Last irreversible block number reported by the node",
		},
		[]string{"schema"},
	)

	SessionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shipfill_session_state",
			Help: "Current session state (1 for the active state)",
		},
		[]string{"schema", "state"},
	)

	SessionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipfill_session_errors_total",
			Help: "Total sessions ended by an error, by failure class",
		},
		[]string{"schema", "kind"},
	)

	MessageBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shipfill_message_bytes_total",
			Help: "Total bytes received from the node",
		},
		[]string{"schema"},
	)
)

// SetState marks state as the active session state for schema.
func SetState(schema string, states []string, state string) {
	for _, s := range states {
		val := 0.0
		if s == state {
			val = 1.0
		}
		SessionState.WithLabelValues(schema, s).Set(val)
	}
}
