package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"EquiCast/internal/domain/models"
	pkgch "EquiCast/pkg/clickhouse"
	applogger "EquiCast/pkg/logger"
)

// Schema holds the DDL the store needs. ReplacingMergeTree keyed on
// (symbol, ts) lets late corrections of a close overwrite the stale row.
var Schema = []string{
	`CREATE DATABASE IF NOT EXISTS equicast`,
	`CREATE TABLE IF NOT EXISTS equicast.daily_closes (
        symbol     LowCardinality(String),
        ts         DateTime('UTC'),
        close      Float64,
        ingested_at DateTime('UTC') DEFAULT now()
    ) ENGINE = ReplacingMergeTree(ingested_at)
    ORDER BY (symbol, ts)`,
	`CREATE TABLE IF NOT EXISTS equicast.training_runs (
        run_id      String,
        symbol      LowCardinality(String),
        started_at  DateTime('UTC'),
        finished_at DateTime('UTC'),
        params      Map(String, String),
        metrics     Map(String, Float64)
    ) ENGINE = MergeTree
    ORDER BY (symbol, started_at)`,
}

// CHSeriesStore implements SeriesStore backed by ClickHouse.
type CHSeriesStore struct {
	db *sql.DB
	ch *pkgch.Client
	l  *applogger.Logger
}

func NewCHSeriesStore(ch *pkgch.Client) *CHSeriesStore {
	return &CHSeriesStore{db: ch.DB(), ch: ch}
}

// SetLogger injects a structured logger.
func (s *CHSeriesStore) SetLogger(l *applogger.Logger) { s.l = l }

func (s *CHSeriesStore) Series(ctx context.Context, symbol string, from, to time.Time) (*models.Series, error) {
	start := time.Now()
	const q = `
        SELECT ts, close
        FROM equicast.daily_closes FINAL
        WHERE symbol = ? AND ts >= ? AND ts <= ?
        ORDER BY ts ASC
    `
	rows, err := s.db.QueryContext(ctx, q, symbol, from, to)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse series query error",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()

	series := &models.Series{Symbol: symbol, Points: make([]models.PricePoint, 0, 1024)}
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.Timestamp, &p.Price); err != nil {
			return nil, fmt.Errorf("scan close: %w", err)
		}
		series.Points = append(series.Points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if s.l != nil {
		s.l.Info("clickhouse series ok",
			applogger.String("symbol", symbol),
			applogger.Int("rows", series.Len()),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return series, nil
}

func (s *CHSeriesStore) RecentPrices(ctx context.Context, symbol string, n int) ([]float64, error) {
	const q = `
        SELECT close
        FROM equicast.daily_closes FINAL
        WHERE symbol = ?
        ORDER BY ts DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, q, symbol, n)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse recent_prices query error",
				applogger.String("symbol", symbol),
				applogger.Int("limit", n),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("query recent prices: %w", err)
	}
	defer rows.Close()

	tmp := make([]float64, 0, n)
	for rows.Next() {
		var v float64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan close: %w", err)
		}
		tmp = append(tmp, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to oldest-first
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	return tmp, nil
}

func (s *CHSeriesStore) InsertClose(ctx context.Context, point *models.PricePoint, symbol string) error {
	const q = `INSERT INTO equicast.daily_closes (symbol, ts, close) VALUES (?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, symbol, point.Timestamp, point.Price); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse insert_close error",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("insert close: %w", err)
	}
	return nil
}

func (s *CHSeriesStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}
