package channel

import (
	"context"
	"sync"
	"time"

	"github.com/lordmallam/orca/logger"
	"github.com/lordmallam/orca/models"
)

// ChannelStats is a snapshot of ingress queue counters.
type ChannelStats struct {
	RawSent    int64
	RawDropped int64
}

// Channels owns the ingress queue between the stream reader and the
// accumulator. The reader pushes with SendRaw and the accumulator pulls
// with ReceiveRaw; FIFO order of arrival is preserved by the underlying
// buffered channel.
type Channels struct {
	Raw chan models.RawMessage

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(rawBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw: make(chan models.RawMessage, rawBufferSize),
		log: log,
	}

	log.WithComponent("ingress_channels").WithFields(logger.Fields{
		"raw_buffer_size": rawBufferSize,
	}).Info("ingress channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Raw)
	c.log.WithComponent("ingress_channels").Info("ingress channels closed")
}

func (c *Channels) IncrementRawSent() {
	c.statsMutex.Lock()
	c.stats.RawSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementRawDropped() {
	c.statsMutex.Lock()
	c.stats.RawDropped++
	c.statsMutex.Unlock()
}

// SendRaw enqueues a raw message without blocking the receive path.
// When the buffer is full the incoming message is dropped and counted,
// bounding memory at the queue size.
func (c *Channels) SendRaw(ctx context.Context, msg models.RawMessage) bool {
	select {
	case c.Raw <- msg:
		c.IncrementRawSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.IncrementRawDropped()
		return false
	}
}

// ReceiveRaw dequeues one raw message, waiting at most timeout. The
// second return value is false when the wait timed out or the channel
// was closed, letting the caller interleave dequeues with flush checks.
func (c *Channels) ReceiveRaw(timeout time.Duration) (models.RawMessage, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg, ok := <-c.Raw:
		return msg, ok
	case <-timer.C:
		return models.RawMessage{}, false
	}
}

// TryReceiveRaw dequeues one raw message without waiting. Used during
// shutdown to drain the queue to quiescence.
func (c *Channels) TryReceiveRaw() (models.RawMessage, bool) {
	select {
	case msg, ok := <-c.Raw:
		return msg, ok
	default:
		return models.RawMessage{}, false
	}
}

// Len reports the number of queued raw messages.
func (c *Channels) Len() int {
	return len(c.Raw)
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}

// StartMetricsReporting periodically logs queue depth and counters.
func (c *Channels) StartMetricsReporting(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := c.GetStats()
			c.log.WithComponent("ingress_channels").WithFields(logger.Fields{
				"raw_sent":    stats.RawSent,
				"raw_dropped": stats.RawDropped,
				"raw_len":     len(c.Raw),
				"raw_cap":     cap(c.Raw),
			}).Info("channel stats")
		}
	}
}
