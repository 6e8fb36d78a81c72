package aisstream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	appconfig "github.com/lordmallam/orca/config"
	"github.com/lordmallam/orca/internal/channel"
	"github.com/lordmallam/orca/internal/metrics"
	"github.com/lordmallam/orca/logger"
	"github.com/lordmallam/orca/models"
)

// subscribeRequest is the subscription frame aisstream.io expects as the
// first message after the websocket opens.
type subscribeRequest struct {
	APIKey             string        `json:"APIKey"`
	BoundingBoxes      [][][]float64 `json:"BoundingBoxes"`
	FilterMessageTypes []string      `json:"FilterMessageTypes"`
}

// Reader maintains a single websocket subscription to the aisstream.io
// feed and forwards raw frames to the ingress queue. Connection loss is
// handled internally with exponential backoff; the reader only stops on
// context cancellation.
type Reader struct {
	config   *appconfig.Config
	channels *channel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log

	dropLogLimiter *rate.Limiter
}

func NewReader(cfg *appconfig.Config, channels *channel.Channels) *Reader {
	return &Reader{
		config:   cfg,
		channels: channels,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		// Queue-full warnings are throttled so a saturated sink cannot
		// flood the logs at feed rate.
		dropLogLimiter: rate.NewLimiter(rate.Every(5*time.Second), 1),
	}
}

// Start launches the stream worker. Fails fast when no API key is
// configured since the feed rejects unauthenticated subscriptions.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("aisstream reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	cfg := r.config.Source.Aisstream
	log := r.log.WithComponent("aisstream_reader").WithFields(logger.Fields{"operation": "start"})

	if cfg.APIKey == "" {
		log.Error("aisstream api key is not configured")
		return fmt.Errorf("aisstream api key is not configured")
	}

	log.WithFields(logger.Fields{
		"url":            cfg.URL,
		"bounding_boxes": len(cfg.BoundingBoxes),
	}).Info("starting aisstream reader")

	r.wg.Add(1)
	go r.stream()

	log.Info("aisstream reader started successfully")
	return nil
}

// Stop waits for the stream worker to exit. The worker observes the
// context passed to Start, so the caller cancels that first.
func (r *Reader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("aisstream_reader").Info("stopping aisstream reader")
	r.wg.Wait()
	r.log.WithComponent("aisstream_reader").Info("aisstream reader stopped")
}

func (r *Reader) stream() {
	defer r.wg.Done()

	cfg := r.config.Source.Aisstream
	log := r.log.WithComponent("aisstream_reader").WithFields(logger.Fields{
		"worker": "stream",
		"url":    cfg.URL,
	})

	retry := newReconnectBackoff(cfg.ReconnectBase, cfg.ReconnectMax)

	for {
		select {
		case <-r.ctx.Done():
			log.Info("stream worker stopped due to context cancellation")
			return
		default:
		}

		if err := r.connectAndRead(log, retry); err != nil {
			wait := retry.NextBackOff()
			log.WithError(err).WithFields(logger.Fields{
				"retry_in": wait.String(),
			}).Warn("stream connection lost, reconnecting")

			select {
			case <-r.ctx.Done():
				log.Info("stream worker stopped during reconnect wait")
				return
			case <-time.After(wait):
			}
		}
	}
}

// connectAndRead dials the feed, subscribes and pumps frames until the
// connection fails or the context is cancelled. The backoff resets once
// a subscription has been accepted, so a healthy session always retries
// from the base delay.
func (r *Reader) connectAndRead(log *logger.Entry, retry *backoff.ExponentialBackOff) error {
	cfg := r.config.Source.Aisstream

	conn, _, err := websocket.DefaultDialer.DialContext(r.ctx, cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial aisstream: %w", err)
	}
	defer conn.Close()

	sub := subscribeRequest{
		APIKey:             cfg.APIKey,
		BoundingBoxes:      cfg.BoundingBoxes,
		FilterMessageTypes: []string{"PositionReport"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("send subscription: %w", err)
	}

	retry.Reset()
	log.Info("subscribed to aisstream feed")

	// ReadMessage blocks without a deadline, so cancellation closes the
	// connection from the side to unblock it.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-r.ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if r.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read stream frame: %w", err)
		}

		metrics.IncrementReceived()
		logger.IncrementFeedRead(len(data))

		msg := models.RawMessage{
			Data:       data,
			ReceivedAt: time.Now().UTC(),
		}
		if r.channels.SendRaw(r.ctx, msg) {
			if log.Logger.IsLevelEnabled(logrus.DebugLevel) {
				logger.LogDataFlowEntry(log, "aisstream_ws", "ingress_queue", 1, "frames")
			}
		} else {
			if r.ctx.Err() != nil {
				return nil
			}
			metrics.IncrementQueueDropped()
			if r.dropLogLimiter.Allow() {
				log.WithFields(logger.Fields{
					"queue_len": r.channels.Len(),
				}).Warn("ingress queue full, dropping message")
			}
		}
	}
}

// newReconnectBackoff builds the reconnect schedule: base delay doubling
// up to the cap, without jitter, never giving up.
func newReconnectBackoff(base, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = max
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
