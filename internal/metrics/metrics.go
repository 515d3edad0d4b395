// Package metrics holds the shared Prometheus bucket and label
// definitions used across chronovar's internal packages, mirroring
// internal/util/metrics as referenced from
// internal/staging/stage/metrics.go in the retrieved cdc-sink source:
// one shared LatencyBuckets and label-name slice, reused by every
// promauto declaration instead of each package inventing its own
// buckets.
package metrics

// LatencyBuckets are the histogram buckets for chronovar's latency
// metrics, sub-millisecond through multi-second; the coordinator's
// item-latency histogram is the one metric that uses them.
var LatencyBuckets = []float64{
	.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10,
}

// VariableLabels labels a metric by the variable it concerns.
var VariableLabels = []string{"variable"}
