package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sync"
	"time"

	"github.com/0xc0d3d00d/tickagg/internal/domain"
	"github.com/spf13/afero"
)

// Store is a file-backed candle store for DB-less runs and tests. Base
// candles are kept in per-symbol chunk files of fixed-width slots addressed
// by bucket offset, so an upsert is a read-merge-write of a single slot.
// Aggregated reads are computed from base candles on the fly.
//
// Layout:
//
//	<dir>/<symbol>_1s/<chunkFrom>_<chunkTo>.bin
type Store struct {
	mu    sync.Mutex
	fs    afero.Fs
	dir   string
	slots int           // candle slots per chunk file
	span  time.Duration // time covered by one chunk
}

func New(fs afero.Fs, dir string, chunkSlots int) (*Store, error) {
	if chunkSlots <= 0 {
		chunkSlots = 3600
	}

	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	return &Store{
		fs:    fs,
		dir:   dir,
		slots: chunkSlots,
		span:  time.Duration(chunkSlots) * domain.BaseInterval.Duration(),
	}, nil
}

// BatchUpsert merges candles into their slots. An occupied slot widens
// high/low, takes the incoming close, sums volume and keeps the existing
// open; an empty slot takes the incoming candle as-is.
func (s *Store) BatchUpsert(ctx context.Context, candles []domain.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range candles {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.upsertOne(c); err != nil {
			return fmt.Errorf("upsert %s@%d: %w", c.Symbol, c.Time.Unix(), err)
		}
	}
	return nil
}

func (s *Store) upsertOne(c domain.Candle) error {
	c.Time = domain.BaseInterval.Align(c.Time.UTC())
	chunkStart := c.Time.Truncate(s.span)

	f, err := s.openChunk(c.Symbol, chunkStart, true)
	if err != nil {
		return err
	}
	defer f.Close()

	offset := int64(c.Time.Sub(chunkStart)/domain.BaseInterval.Duration()) * recordSize

	buf := make([]byte, recordSize)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return fmt.Errorf("read slot: %w", err)
	}

	var existing domain.Candle
	switch err := decodeRecord(buf, &existing); {
	case errors.Is(err, errSlotEmpty):
		// first write for this bucket key
	case err != nil:
		return err
	default:
		if existing.High > c.High {
			c.High = existing.High
		}
		if existing.Low < c.Low {
			c.Low = existing.Low
		}
		c.Open = existing.Open
		c.Volume += existing.Volume
	}

	n, err := f.WriteAt(encodeRecord(c), offset)
	if n != recordSize && err == nil {
		err = io.ErrShortWrite
	}
	if err != nil {
		return fmt.Errorf("write slot: %w", err)
	}
	return nil
}

func (s *Store) FindBaseCandles(ctx context.Context, symbol string, from, to time.Time) ([]domain.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from = from.UTC()
	to = to.UTC()

	var candles []domain.Candle
	for chunkStart := from.Truncate(s.span); !chunkStart.After(to); chunkStart = chunkStart.Add(s.span) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		chunk, err := s.readChunk(symbol, chunkStart, from, to)
		if err != nil {
			return nil, err
		}
		candles = append(candles, chunk...)
	}

	slog.Debug("file store read", "symbol", symbol, "candle_count", len(candles))
	return candles, nil
}

// FindAggregatedCandles derives higher-interval rows from base candles.
// There are no materialized per-interval files; the fold is cheap at the
// chunk sizes this store is used with.
func (s *Store) FindAggregatedCandles(ctx context.Context, interval domain.Interval, symbol string, from, to time.Time) ([]domain.Candle, error) {
	base, err := s.FindBaseCandles(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}
	return domain.Aggregate(base, interval), nil
}

func (s *Store) readChunk(symbol string, chunkStart time.Time, from, to time.Time) ([]domain.Candle, error) {
	f, err := s.openChunk(symbol, chunkStart, false)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, nil
	}
	defer f.Close()

	buf := make([]byte, s.slots*recordSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("read chunk: %w", err)
	}

	var candles []domain.Candle
	for i := 0; i < s.slots; i++ {
		c := domain.Candle{Symbol: symbol}
		err := decodeRecord(buf[i*recordSize:(i+1)*recordSize], &c)
		if errors.Is(err, errSlotEmpty) {
			continue
		}
		if err != nil {
			return nil, err
		}

		c.Time = chunkStart.Add(time.Duration(i) * domain.BaseInterval.Duration())
		if c.Time.Before(from) || c.Time.After(to) {
			continue
		}
		candles = append(candles, c)
	}

	return candles, nil
}

// openChunk opens the chunk file covering chunkStart. With create set, a
// missing file is allocated zero-filled; without it, a missing file yields
// (nil, nil).
func (s *Store) openChunk(symbol string, chunkStart time.Time, create bool) (afero.File, error) {
	seriesDir := path.Join(s.dir, fmt.Sprintf("%s_%s", symbol, domain.BaseInterval))
	name := path.Join(seriesDir, fmt.Sprintf("%d_%d.bin", chunkStart.Unix(), chunkStart.Add(s.span).Unix()))

	exists, err := afero.Exists(s.fs, name)
	if err != nil {
		return nil, fmt.Errorf("stat chunk file: %w", err)
	}

	if !exists {
		if !create {
			return nil, nil
		}
		if err := s.fs.MkdirAll(seriesDir, 0o755); err != nil {
			return nil, fmt.Errorf("create series directory: %w", err)
		}
		f, err := s.fs.Create(name)
		if err != nil {
			return nil, fmt.Errorf("create chunk file: %w", err)
		}
		zeros := make([]byte, s.slots*recordSize)
		if _, err := f.Write(zeros); err != nil {
			f.Close()
			return nil, fmt.Errorf("allocate chunk file: %w", err)
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
		return f, nil
	}

	f, err := s.fs.OpenFile(name, os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open chunk file: %w", err)
	}
	return f, nil
}
