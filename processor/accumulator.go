package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	appconfig "github.com/lordmallam/orca/config"
	"github.com/lordmallam/orca/internal/channel"
	"github.com/lordmallam/orca/internal/metrics"
	"github.com/lordmallam/orca/logger"
	"github.com/lordmallam/orca/models"
)

// Sink persists one deduplicated batch atomically. A failed batch is the
// sink's to roll back and the accumulator's to discard.
type Sink interface {
	WriteBatch(ctx context.Context, batch models.VesselBatch) error
}

// Accumulator drains the ingress queue, decodes and validates raw feed
// messages, deduplicates them by MMSI keeping the newest observation, and
// flushes discrete batches to the sink by size or time. The in-flight
// batch map is owned by the single drain goroutine; no lock guards it.
type Accumulator struct {
	config   *appconfig.Config
	channels *channel.Channels
	sink     Sink
	ctx      context.Context
	stopCh   chan struct{}
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	batch     map[int64]models.VesselPosition
	lastFlush time.Time

	// Counters, guarded by mu for snapshot reads.
	messagesProcessed int64
	positionReports   int64
	messagesSkipped   int64
	decodeErrors      int64
	batchesFlushed    int64
	recordsFlushed    int64
	writeErrors       int64
}

func NewAccumulator(cfg *appconfig.Config, channels *channel.Channels, sink Sink) *Accumulator {
	return &Accumulator{
		config:   cfg,
		channels: channels,
		sink:     sink,
		stopCh:   make(chan struct{}),
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		batch:    make(map[int64]models.VesselPosition),
	}
}

// Start launches the drain loop. The context is used for logging and the
// metrics reporter; the drain loop itself exits via Stop so the final
// drain and flush survive lifecycle cancellation.
func (a *Accumulator) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("accumulator already running")
	}
	a.running = true
	a.ctx = ctx
	a.lastFlush = time.Now()
	a.mu.Unlock()

	log := a.log.WithComponent("accumulator").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"batch_size":    a.config.Processor.BatchSize,
		"batch_timeout": a.config.Processor.BatchTimeout.String(),
	}).Info("starting accumulator")

	a.wg.Add(1)
	go a.run()

	go a.metricsReporter(ctx)

	log.Info("accumulator started successfully")
	return nil
}

// Stop signals the drain loop, which empties the queue, performs one
// final flush and exits. Blocks until the loop has finished.
func (a *Accumulator) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.mu.Unlock()

	a.log.WithComponent("accumulator").Info("stopping accumulator")
	close(a.stopCh)
	a.wg.Wait()
	a.log.WithComponent("accumulator").Info("accumulator stopped")
}

func (a *Accumulator) run() {
	defer a.wg.Done()

	log := a.log.WithComponent("accumulator").WithFields(logger.Fields{"worker": "drain"})
	log.Info("drain loop started")

	for {
		select {
		case <-a.stopCh:
			a.drainAndFlush(log)
			return
		default:
		}

		msg, ok := a.channels.ReceiveRaw(a.config.Processor.PollTimeout)
		if ok {
			a.processMessage(msg)
		}
		a.flushIfDue()
	}
}

// drainAndFlush empties the queue to quiescence and performs the final
// flush before the loop terminates.
func (a *Accumulator) drainAndFlush(log *logger.Entry) {
	drained := 0
	for {
		msg, ok := a.channels.TryReceiveRaw()
		if !ok {
			break
		}
		a.processMessage(msg)
		drained++
	}
	log.WithFields(logger.Fields{"drained": drained}).Info("queue drained for shutdown")

	a.flushBatch("shutdown")
}

func (a *Accumulator) processMessage(msg models.RawMessage) {
	a.mu.Lock()
	a.messagesProcessed++
	a.mu.Unlock()

	record, err := DecodePositionReport(msg.Data, time.Now().UTC())
	if err != nil {
		if errors.Is(err, ErrNotPositionReport) {
			a.mu.Lock()
			a.messagesSkipped++
			a.mu.Unlock()
			return
		}
		a.mu.Lock()
		a.decodeErrors++
		a.mu.Unlock()
		metrics.IncrementDecodeError(decodeErrorReason(err))
		a.log.WithComponent("accumulator").WithError(err).Debug("dropping rejected message")
		return
	}

	a.mu.Lock()
	a.positionReports++
	a.mu.Unlock()
	metrics.IncrementPositionReports()

	// Last-writer-wins by observation time, not arrival order. Ties keep
	// the first record seen.
	existing, seen := a.batch[record.MMSI]
	if !seen || record.ObservedAt.After(existing.ObservedAt) {
		a.batch[record.MMSI] = record
	}
}

func (a *Accumulator) flushIfDue() {
	if len(a.batch) >= a.config.Processor.BatchSize {
		a.flushBatch("size")
		return
	}
	if len(a.batch) > 0 && time.Since(a.lastFlush) >= a.config.Processor.BatchTimeout {
		a.flushBatch("interval")
	}
}

func (a *Accumulator) flushBatch(reason string) {
	defer func() { a.lastFlush = time.Now() }()

	if len(a.batch) == 0 {
		return
	}

	records := make([]models.VesselPosition, 0, len(a.batch))
	for _, record := range a.batch {
		records = append(records, record)
	}
	a.batch = make(map[int64]models.VesselPosition)

	batch := models.VesselBatch{
		BatchID:     uuid.New().String(),
		Records:     records,
		RecordCount: len(records),
		FlushedAt:   time.Now().UTC(),
		Reason:      reason,
	}

	log := a.log.WithComponent("accumulator").WithFields(logger.Fields{
		"batch_id":     batch.BatchID,
		"record_count": batch.RecordCount,
		"reason":       reason,
		"operation":    "flush_batch",
	})

	// The write is synchronous: while it runs the queue absorbs the feed.
	// A dedicated context keeps the shutdown flush independent of the
	// lifecycle context, which is already cancelled at that point.
	ctx, cancel := context.WithTimeout(context.Background(), a.config.Processor.WriteTimeout)
	defer cancel()

	start := time.Now()
	if err := a.sink.WriteBatch(ctx, batch); err != nil {
		// Whole batch discarded, no retry. The next flush supersedes it
		// with fresher observations.
		a.mu.Lock()
		a.writeErrors++
		a.mu.Unlock()
		metrics.IncrementWriteError()
		log.WithError(err).Error("batch write failed, discarding batch")
		return
	}

	a.mu.Lock()
	a.batchesFlushed++
	a.recordsFlushed += int64(batch.RecordCount)
	a.mu.Unlock()

	metrics.IncrementBatchesWritten()
	metrics.AddVesselsUpserted(batch.RecordCount)
	logger.IncrementBatchWrite(batch.RecordCount)

	logger.LogPerformanceEntry(log, "accumulator", "write_batch", time.Since(start), logger.Fields{
		"record_count": batch.RecordCount,
	})
}

func decodeErrorReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidMMSI):
		return "invalid_mmsi"
	case errors.Is(err, ErrLatitudeOutOfRange):
		return "latitude_out_of_range"
	case errors.Is(err, ErrLongitudeOutOfRange):
		return "longitude_out_of_range"
	case errors.Is(err, ErrMissingPosition):
		return "missing_position"
	default:
		return "malformed_payload"
	}
}

func (a *Accumulator) metricsReporter(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.reportMetrics()
		}
	}
}

func (a *Accumulator) reportMetrics() {
	a.mu.RLock()
	messagesProcessed := a.messagesProcessed
	positionReports := a.positionReports
	messagesSkipped := a.messagesSkipped
	decodeErrors := a.decodeErrors
	batchesFlushed := a.batchesFlushed
	recordsFlushed := a.recordsFlushed
	writeErrors := a.writeErrors
	a.mu.RUnlock()

	errorRate := float64(0)
	if messagesProcessed > 0 {
		errorRate = float64(decodeErrors) / float64(messagesProcessed)
	}

	queueStats := a.channels.GetStats()

	a.log.WithComponent("accumulator").WithFields(logger.Fields{
		"messages_processed": messagesProcessed,
		"position_reports":   positionReports,
		"messages_skipped":   messagesSkipped,
		"decode_errors":      decodeErrors,
		"error_rate":         errorRate,
		"batches_flushed":    batchesFlushed,
		"records_flushed":    recordsFlushed,
		"write_errors":       writeErrors,
		"queue_len":          a.channels.Len(),
		"queue_dropped":      queueStats.RawDropped,
	}).Info("accumulator metrics")
}
