package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	BufferOccupancy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sideline_consumer_buffer_occupancy",
		Help: "Records currently staged in the bounded fetch buffer, per consumer id",
	}, []string{"consumer_id"})

	RecordsFetched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sideline_consumer_records_fetched_total",
		Help: "Records pulled from the broker client across all owned partitions",
	}, []string{"consumer_id"})

	RecordsAcked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sideline_consumer_records_acked_total",
		Help: "commit_offset calls observed, per consumer id",
	}, []string{"consumer_id"})

	FlushTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sideline_consumer_flush_total",
		Help: "flush_consumer_state calls that actually persisted state",
	}, []string{"consumer_id"})
)

func init() {
	prometheus.MustRegister(BufferOccupancy, RecordsFetched, RecordsAcked, FlushTotal)
}
