package reaper

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	appconfig "github.com/lordmallam/orca/config"
	"github.com/lordmallam/orca/internal/metrics"
	"github.com/lordmallam/orca/logger"
)

// deleteStaleQuery removes rows strictly older than the cutoff; a row
// observed exactly at the freshness boundary is retained.
const deleteStaleQuery = `DELETE FROM vessels WHERE last_updated < $1`

// Reaper periodically deletes vessel rows whose observation time has
// fallen outside the freshness window. It acts directly on the store,
// decoupled from the live ingest path, and keeps running on errors.
type Reaper struct {
	db       *sql.DB
	interval time.Duration
	window   time.Duration
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
}

func NewReaper(db *sql.DB, cfg *appconfig.Config) *Reaper {
	return &Reaper{
		db:       db,
		interval: cfg.Reaper.Interval,
		window:   cfg.Reaper.FreshnessWindow,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

func (r *Reaper) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reaper already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("reaper").WithFields(logger.Fields{"operation": "start"})
	log.WithFields(logger.Fields{
		"interval":         r.interval.String(),
		"freshness_window": r.window.String(),
	}).Info("starting reaper")

	r.wg.Add(1)
	go r.run()

	log.Info("reaper started successfully")
	return nil
}

func (r *Reaper) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("reaper").Info("stopping reaper")
	r.wg.Wait()
	r.log.WithComponent("reaper").Info("reaper stopped")
}

func (r *Reaper) run() {
	defer r.wg.Done()

	log := r.log.WithComponent("reaper").WithFields(logger.Fields{"worker": "reap"})

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			log.Info("reap loop stopped due to context cancellation")
			return
		case <-ticker.C:
			if err := r.reapOnce(); err != nil {
				// Errors never terminate the loop; retry next period.
				log.WithError(err).Error("stale vessel cleanup failed")
			}
		}
	}
}

func (r *Reaper) reapOnce() error {
	ctx, cancel := context.WithTimeout(r.ctx, r.interval)
	defer cancel()

	cutoff := staleCutoff(time.Now().UTC(), r.window)
	result, err := r.db.ExecContext(ctx, deleteStaleQuery, cutoff)
	if err != nil {
		return fmt.Errorf("delete stale vessels: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("count deleted vessels: %w", err)
	}

	if deleted > 0 {
		metrics.AddStaleDeleted(deleted)
		logger.AddStaleDeletes(deleted)
		r.log.WithComponent("reaper").WithFields(logger.Fields{
			"deleted": deleted,
			"cutoff":  cutoff.Format(time.RFC3339),
		}).Info("cleaned up stale vessels")
	}

	return nil
}

// staleCutoff computes the oldest observation time still considered fresh.
func staleCutoff(now time.Time, window time.Duration) time.Time {
	return now.Add(-window)
}
