package writer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	appconfig "github.com/lordmallam/orca/config"
	"github.com/lordmallam/orca/logger"
	"github.com/lordmallam/orca/models"
)

// upsertColumns is the column list of the vessels table in insert order.
// received_at is intentionally absent: it is set server-side on every
// write so the feed cannot control it.
var upsertColumns = []string{
	"mmsi",
	"latitude",
	"longitude",
	"location",
	"course",
	"speed",
	"ship_type",
	"geohash",
	"geohash_5",
	"last_updated",
}

// Open connects to PostgreSQL using the storage configuration and verifies
// the connection with a ping. The returned pool is shared by the batch
// writer and the reaper.
func Open(cfg *appconfig.Config) (*sql.DB, error) {
	pg := cfg.Storage.Postgres
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pg.Host, pg.Port, pg.User, pg.Password, pg.Database, pg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(pg.MaxOpenConns)
	db.SetMaxIdleConns(pg.MaxOpenConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	logger.GetLogger().WithComponent("postgres_writer").WithFields(logger.Fields{
		"host":     pg.Host,
		"database": pg.Database,
	}).Info("connected to postgres")

	return db, nil
}

// PostgresWriter upserts deduplicated vessel batches into the vessels
// table in one transaction per batch.
type PostgresWriter struct {
	db  *sql.DB
	log *logger.Log
}

func NewPostgresWriter(db *sql.DB) *PostgresWriter {
	return &PostgresWriter{
		db:  db,
		log: logger.GetLogger(),
	}
}

// WriteBatch inserts or overwrites one row per record, keyed by mmsi, in
// a single transaction. On any error the transaction is rolled back and
// the error returned; no partial batch is ever visible.
func (w *PostgresWriter) WriteBatch(ctx context.Context, batch models.VesselBatch) error {
	if batch.RecordCount == 0 {
		return nil
	}

	log := w.log.WithComponent("postgres_writer").WithFields(logger.Fields{
		"batch_id":     batch.BatchID,
		"record_count": batch.RecordCount,
	})

	query := buildUpsertQuery(batch.RecordCount)
	args := make([]interface{}, 0, batch.RecordCount*len(upsertColumns))
	for _, record := range batch.Records {
		args = append(args,
			record.MMSI,
			record.Latitude,
			record.Longitude,
			pointText(record.Latitude, record.Longitude),
			record.Course,
			record.Speed,
			record.ShipType,
			record.Geohash,
			record.Geohash5,
			record.ObservedAt,
		)
	}

	start := time.Now()

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		tx.Rollback()
		return fmt.Errorf("upsert batch %s: %w", batch.BatchID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch %s: %w", batch.BatchID, err)
	}

	log.WithFields(logger.Fields{
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("batch upserted")

	return nil
}

// buildUpsertQuery renders the multi-row upsert statement for n records.
// Every column including received_at is overwritten on conflict so a
// fresher observation fully replaces the stored row.
func buildUpsertQuery(n int) string {
	var sb strings.Builder
	sb.WriteString("INSERT INTO vessels (")
	sb.WriteString(strings.Join(upsertColumns, ", "))
	sb.WriteString(") VALUES ")

	cols := len(upsertColumns)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := 0; j < cols; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			placeholder := i*cols + j + 1
			if upsertColumns[j] == "location" {
				fmt.Fprintf(&sb, "ST_GeogFromText($%d)", placeholder)
			} else {
				fmt.Fprintf(&sb, "$%d", placeholder)
			}
		}
		sb.WriteString(")")
	}

	sb.WriteString(` ON CONFLICT (mmsi) DO UPDATE SET
		latitude = EXCLUDED.latitude,
		longitude = EXCLUDED.longitude,
		location = EXCLUDED.location,
		course = EXCLUDED.course,
		speed = EXCLUDED.speed,
		ship_type = EXCLUDED.ship_type,
		geohash = EXCLUDED.geohash,
		geohash_5 = EXCLUDED.geohash_5,
		last_updated = EXCLUDED.last_updated,
		received_at = NOW()`)

	return sb.String()
}

// pointText renders the WKT form consumed by ST_GeogFromText. WKT order
// is longitude first.
func pointText(lat, lon float64) string {
	return fmt.Sprintf("POINT(%v %v)", lon, lat)
}
