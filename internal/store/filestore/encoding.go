package filestore

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/0xc0d3d00d/tickagg/internal/domain"
)

// Each slot in a chunk file is one fixed-width record; the candle time is
// implied by the slot's offset. The leading flag byte distinguishes written
// slots from the zero-filled allocation.
const recordSize = 41

var errSlotEmpty = errors.New("candle slot not written")

func encodeRecord(c domain.Candle) []byte {
	buf := make([]byte, recordSize)
	buf[0] = 1
	binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(c.Open))
	binary.LittleEndian.PutUint64(buf[9:], math.Float64bits(c.High))
	binary.LittleEndian.PutUint64(buf[17:], math.Float64bits(c.Low))
	binary.LittleEndian.PutUint64(buf[25:], math.Float64bits(c.Close))
	binary.LittleEndian.PutUint64(buf[33:], uint64(c.Volume))
	return buf
}

func decodeRecord(buf []byte, c *domain.Candle) error {
	if len(buf) != recordSize {
		return errors.New("invalid record size")
	}
	if buf[0] == 0 {
		return errSlotEmpty
	}
	c.Open = math.Float64frombits(binary.LittleEndian.Uint64(buf[1:9]))
	c.High = math.Float64frombits(binary.LittleEndian.Uint64(buf[9:17]))
	c.Low = math.Float64frombits(binary.LittleEndian.Uint64(buf[17:25]))
	c.Close = math.Float64frombits(binary.LittleEndian.Uint64(buf[25:33]))
	c.Volume = int64(binary.LittleEndian.Uint64(buf[33:41]))
	return nil
}
