package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/0xc0d3d00d/tickagg/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("tickagg/store/postgres")

// Store persists candles in PostgreSQL/TimescaleDB. Base candles live in
// candles_1s keyed (symbol, time); pre-aggregated rows live in one table per
// interval label (candles_5s, candles_1m, ...), maintained by the database.
type Store struct {
	db *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*Store, error) {
	pgxCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	db, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() {
	s.db.Close()
}

func (s *Store) FindBaseCandles(ctx context.Context, symbol string, from, to time.Time) ([]domain.Candle, error) {
	return s.findCandles(ctx, domain.BaseInterval, symbol, from, to)
}

func (s *Store) FindAggregatedCandles(ctx context.Context, interval domain.Interval, symbol string, from, to time.Time) ([]domain.Candle, error) {
	return s.findCandles(ctx, interval, symbol, from, to)
}

func (s *Store) findCandles(ctx context.Context, interval domain.Interval, symbol string, from, to time.Time) ([]domain.Candle, error) {
	ctx, span := tracer.Start(ctx, "Store.findCandles",
		trace.WithAttributes(
			attribute.String("symbol", symbol),
			attribute.String("interval", interval.String()),
		))
	defer span.End()

	// Table names come from the fixed interval set, never from user input.
	query := fmt.Sprintf(
		`SELECT time, open, high, low, close, volume
		 FROM candles_%s
		 WHERE symbol = $1 AND time >= $2 AND time <= $3
		 ORDER BY time ASC`, interval)

	rows, err := s.db.Query(ctx, query, symbol, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query candles_%s: %w", interval, err)
	}
	defer rows.Close()

	var candles []domain.Candle
	for rows.Next() {
		c := domain.Candle{Symbol: symbol}
		if err := rows.Scan(&c.Time, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Time = c.Time.UTC()
		candles = append(candles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read candles_%s: %w", interval, err)
	}

	return candles, nil
}

const upsertSQL = `
INSERT INTO candles_1s (time, symbol, open, high, low, close, volume)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (time, symbol) DO UPDATE SET
	high = GREATEST(candles_1s.high, EXCLUDED.high),
	low = LEAST(candles_1s.low, EXCLUDED.low),
	close = EXCLUDED.close,
	volume = candles_1s.volume + EXCLUDED.volume`

// BatchUpsert merges a batch of base candles into candles_1s in a single
// round trip. A key flushed twice accumulates: high/low widen, close takes
// the incoming value, volume sums, open stays from the first insert.
func (s *Store) BatchUpsert(ctx context.Context, candles []domain.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "Store.BatchUpsert",
		trace.WithAttributes(attribute.Int("candles", len(candles))))
	defer span.End()

	batch := &pgx.Batch{}
	for _, c := range candles {
		batch.Queue(upsertSQL, c.Time.UTC(), c.Symbol, c.Open, c.High, c.Low, c.Close, c.Volume)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for range candles {
		if _, err := results.Exec(); err != nil {
			span.RecordError(err)
			return fmt.Errorf("upsert candle batch: %w", err)
		}
	}

	return nil
}
