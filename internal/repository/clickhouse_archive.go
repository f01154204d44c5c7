// Package repository contains infrastructure-backed implementations of the
// domain ports: the ClickHouse market-data archive and the Redis risk
// snapshot store.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"PsiPulse/internal/domain/models"
	domrepo "PsiPulse/internal/domain/repository"
	pkgch "PsiPulse/pkg/clickhouse"
	applogger "PsiPulse/pkg/logger"
)

// CHArchiveStore implements ArchiveStore backed by ClickHouse. Inserts are
// best-effort capture for offline training; the trading loop never blocks on
// them beyond the context deadline.
type CHArchiveStore struct {
	ch *pkgch.Client
	db *sql.DB
	l  *applogger.Logger
}

func NewCHArchiveStore(ch *pkgch.Client) *CHArchiveStore {
	return &CHArchiveStore{ch: ch, db: ch.DB()}
}

// SetLogger injects a structured logger.
func (s *CHArchiveStore) SetLogger(l *applogger.Logger) { s.l = l }

var archiveSchema = []string{
	`CREATE DATABASE IF NOT EXISTS psipulse`,
	`CREATE TABLE IF NOT EXISTS psipulse.candles (
        symbol    String,
        tf        String,
        open_time DateTime64(3, 'UTC'),
        open      Float64,
        high      Float64,
        low       Float64,
        close     Float64,
        vol       Float64
    ) ENGINE = ReplacingMergeTree
    ORDER BY (symbol, tf, open_time)`,
	`CREATE TABLE IF NOT EXISTS psipulse.psi_readings (
        symbol    String,
        ts        DateTime64(3, 'UTC'),
        value     Float64,
        direction String,
        swing     UInt8
    ) ENGINE = ReplacingMergeTree
    ORDER BY (symbol, ts)`,
	`CREATE TABLE IF NOT EXISTS psipulse.feature_vectors (
        symbol String,
        ts     DateTime64(3, 'UTC'),
        names  Array(String),
        vals   Array(Float64)
    ) ENGINE = ReplacingMergeTree
    ORDER BY (symbol, ts)`,
}

// Init creates the database and tables (idempotent).
func (s *CHArchiveStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, archiveSchema)
}

func (s *CHArchiveStore) StoreCandle(ctx context.Context, symbol string, tf domrepo.Timeframe, c models.Candle) error {
	const q = `
        INSERT INTO psipulse.candles (symbol, tf, open_time, open, high, low, close, vol)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `
	if _, err := s.db.ExecContext(ctx, q, symbol, string(tf), c.OpenTime, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse store_candle insert error",
				applogger.String("symbol", symbol),
				applogger.String("tf", string(tf)),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("store candle: %w", err)
	}
	return nil
}

func (s *CHArchiveStore) StorePsi(ctx context.Context, symbol string, r models.PsiReading) error {
	const q = `
        INSERT INTO psipulse.psi_readings (symbol, ts, value, direction, swing)
        VALUES (?, ?, ?, ?, ?)
    `
	swing := uint8(0)
	if r.SwingDetected {
		swing = 1
	}
	if _, err := s.db.ExecContext(ctx, q, symbol, r.Timestamp, r.Value, string(r.Direction), swing); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse store_psi insert error",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("store psi: %w", err)
	}
	return nil
}

func (s *CHArchiveStore) StoreFeatures(ctx context.Context, symbol string, v models.FeatureVector) error {
	const q = `
        INSERT INTO psipulse.feature_vectors (symbol, ts, names, vals)
        VALUES (?, ?, ?, ?)
    `
	if _, err := s.db.ExecContext(ctx, q, symbol, v.At, v.Names, v.Values); err != nil {
		if s.l != nil {
			s.l.Error("clickhouse store_features insert error",
				applogger.String("symbol", symbol),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("store features: %w", err)
	}
	return nil
}

func (s *CHArchiveStore) GetLatestNCandles(ctx context.Context, symbol string, n int, tf domrepo.Timeframe) ([]models.Candle, error) {
	start := time.Now()
	const q = `
        SELECT open_time, open, high, low, close, vol
        FROM psipulse.candles
        WHERE symbol = ? AND tf = ?
        ORDER BY open_time DESC
        LIMIT ?
    `
	rows, err := s.db.QueryContext(ctx, q, symbol, string(tf), n)
	if err != nil {
		if s.l != nil {
			s.l.Error("clickhouse latest_candles query error",
				applogger.String("symbol", symbol),
				applogger.String("tf", string(tf)),
				applogger.Int("limit", n),
				applogger.Error(err),
			)
		}
		return nil, fmt.Errorf("get latest candles: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.Candle, 0, n)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		tmp = append(tmp, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	if s.l != nil {
		s.l.Debug("clickhouse latest_candles ok",
			applogger.String("symbol", symbol),
			applogger.String("tf", string(tf)),
			applogger.Int("rows", len(tmp)),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return tmp, nil
}

// Health performs a connectivity check.
func (s *CHArchiveStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

// Close closes the underlying pool.
func (s *CHArchiveStore) Close() error {
	return s.ch.Close()
}

var _ domrepo.ArchiveStore = (*CHArchiveStore)(nil)
