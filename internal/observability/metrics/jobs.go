// Package metrics defines the job-lifecycle metric names emitted by the
// coordinator.
package metrics

import (
	"time"

	"github.com/medialoom/coordinator/internal/observability/statsd"
)

// RecordNotified counts one completion webhook dispatch attempt per engine.
func RecordNotified(sink statsd.Sink, engine string) {
	if sink == nil {
		return
	}
	sink.Count("jobs.notified", 1, map[string]string{"engine": engine})
}

// RecordSynthesizedCompletion counts a completion established by the
// query-time storage probe rather than a worker progress POST.
func RecordSynthesizedCompletion(sink statsd.Sink, engine string) {
	if sink == nil {
		return
	}
	sink.Count("jobs.synthesized_completion", 1, map[string]string{"engine": engine})
}

// RecordDeliveryFailure counts a failed completion webhook delivery.
func RecordDeliveryFailure(sink statsd.Sink, engine string) {
	if sink == nil {
		return
	}
	sink.Count("callback.delivery_failed", 1, map[string]string{"engine": engine})
}

// RecordProgressApplied times one progress merge.
func RecordProgressApplied(sink statsd.Sink, engine string, took time.Duration) {
	if sink == nil {
		return
	}
	sink.Timing("jobs.progress_apply", took, map[string]string{"engine": engine})
}
