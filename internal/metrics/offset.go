package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// TrackedSize is the number of offsets currently started-but-not-finished
	// for a partition.
	TrackedSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sideline_offset_tracked_size",
		Help: "Offsets started but not yet finished, per partition",
	}, []string{"partition"})

	// OutOfOrderSize is finished_out_of_order's size (spec §9: this must
	// never be silently capped, only observed).
	OutOfOrderSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sideline_offset_out_of_order_size",
		Help: "Finished offsets waiting behind a gap in the contiguous prefix, per partition",
	}, []string{"partition"})

	LastFinishedOffset = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sideline_offset_last_finished",
		Help: "Highest contiguous finished offset, per partition",
	}, []string{"partition"})
)

func init() {
	prometheus.MustRegister(TrackedSize, OutOfOrderSize, LastFinishedOffset)
}
