// Package metrics registers the orca_* Prometheus counters together with
// the go_* and process_* system collectors and exposes them on the
// configured address. Increment helpers are safe to call before Init;
// they no-op when metrics are disabled.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lordmallam/orca/logger"
)

var (
	once             sync.Once
	messagesReceived prometheus.Counter
	positionReports  prometheus.Counter
	decodeErrors     *prometheus.CounterVec
	queueDropped     prometheus.Counter
	vesselsUpserted  prometheus.Counter
	batchesWritten   prometheus.Counter
	writeErrors      prometheus.Counter
	staleDeleted     prometheus.Counter
)

func Init(addr string) {
	once.Do(func() {
		messagesReceived = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orca_messages_received_total",
			Help: "Number of raw messages received from the feed",
		})
		positionReports = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orca_position_reports_total",
			Help: "Number of valid position reports decoded",
		})
		decodeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orca_decode_errors_total",
			Help: "Number of messages rejected by the decoder",
		}, []string{"reason"})
		queueDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orca_queue_dropped_total",
			Help: "Number of raw messages dropped on ingress queue overflow",
		})
		vesselsUpserted = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orca_vessels_upserted_total",
			Help: "Number of vessel rows written by batch upserts",
		})
		batchesWritten = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orca_batches_written_total",
			Help: "Number of batches committed to the store",
		})
		writeErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orca_write_errors_total",
			Help: "Number of batch transactions rolled back and discarded",
		})
		staleDeleted = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orca_stale_vessels_deleted_total",
			Help: "Number of stale vessel rows deleted by the reaper",
		})

		_ = prometheus.Register(messagesReceived)
		_ = prometheus.Register(positionReports)
		_ = prometheus.Register(decodeErrors)
		_ = prometheus.Register(queueDropped)
		_ = prometheus.Register(vesselsUpserted)
		_ = prometheus.Register(batchesWritten)
		_ = prometheus.Register(writeErrors)
		_ = prometheus.Register(staleDeleted)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.GetLogger().WithComponent("metrics").WithError(err).Error("metrics server failed")
			}
		}()
	})
}

func IncrementReceived() {
	if messagesReceived != nil {
		messagesReceived.Inc()
	}
}

func IncrementPositionReports() {
	if positionReports != nil {
		positionReports.Inc()
	}
}

func IncrementDecodeError(reason string) {
	if decodeErrors != nil {
		decodeErrors.WithLabelValues(reason).Inc()
	}
}

func IncrementQueueDropped() {
	if queueDropped != nil {
		queueDropped.Inc()
	}
}

func AddVesselsUpserted(n int) {
	if vesselsUpserted != nil {
		vesselsUpserted.Add(float64(n))
	}
}

func IncrementBatchesWritten() {
	if batchesWritten != nil {
		batchesWritten.Inc()
	}
}

func IncrementWriteError() {
	if writeErrors != nil {
		writeErrors.Inc()
	}
}

func AddStaleDeleted(n int64) {
	if staleDeleted != nil {
		staleDeleted.Add(float64(n))
	}
}
