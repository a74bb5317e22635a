package eventlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

var (
	// ErrUnknownType is returned when decoding an event whose type is not registered.
	ErrUnknownType = errors.New("unknown event type")
	// ErrCorruptBatch marks a batch whose payload cannot be decompressed or decoded.
	// History in the batch's range is unreadable; callers must not ignore it.
	ErrCorruptBatch = errors.New("corrupt event batch")
	// ErrEmptyBatch is returned when asked to batch zero events.
	ErrEmptyBatch = errors.New("empty event batch")
)

// Batch is a compressed, immutable archive of a contiguous tick range.
type Batch struct {
	ID               string    `json:"id" db:"id"`
	Shard            string    `json:"shard" db:"shard"`
	FromTick         uint64    `json:"from_tick" db:"from_tick"`
	ToTick           uint64    `json:"to_tick" db:"to_tick"`
	EventCount       int       `json:"event_count" db:"event_count"`
	Data             []byte    `json:"-" db:"data"`
	UncompressedSize int       `json:"uncompressed_size" db:"uncompressed_size"`
	CompressedSize   int       `json:"compressed_size" db:"compressed_size"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// Ratio is compressed size over uncompressed size.
func (b Batch) Ratio() float64 {
	if b.UncompressedSize == 0 {
		return 0
	}
	return float64(b.CompressedSize) / float64(b.UncompressedSize)
}

// Overlaps reports whether the batch covers any tick in [from, to].
func (b Batch) Overlaps(from, to uint64) bool {
	return b.FromTick <= to && b.ToTick >= from
}

// EncodeBatch serializes events as a JSON array and gzip-compresses it.
// The tick range is taken from the first and last event after sorting.
func EncodeBatch(shard string, events []GameEvent) (Batch, error) {
	if len(events) == 0 {
		return Batch{}, ErrEmptyBatch
	}
	sorted := append([]GameEvent(nil), events...)
	Sort(sorted)

	raw, err := json.Marshal(sorted)
	if err != nil {
		return Batch{}, fmt.Errorf("marshal batch: %w", err)
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return Batch{}, err
	}
	if _, err := zw.Write(raw); err != nil {
		return Batch{}, fmt.Errorf("compress batch: %w", err)
	}
	if err := zw.Close(); err != nil {
		return Batch{}, fmt.Errorf("compress batch: %w", err)
	}

	return Batch{
		ID:               uuid.NewString(),
		Shard:            shard,
		FromTick:         sorted[0].Tick,
		ToTick:           sorted[len(sorted)-1].Tick,
		EventCount:       len(sorted),
		Data:             buf.Bytes(),
		UncompressedSize: len(raw),
		CompressedSize:   buf.Len(),
		CreatedAt:        time.Now().UTC(),
	}, nil
}

// DecodeBatch decompresses a batch back into its ordered event list.
func DecodeBatch(b Batch) ([]GameEvent, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b.Data))
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrCorruptBatch, b.ID, err)
	}
	defer zr.Close()

	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrCorruptBatch, b.ID, err)
	}
	var events []GameEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrCorruptBatch, b.ID, err)
	}
	if len(events) != b.EventCount {
		return nil, fmt.Errorf("%w %s: want %d events, got %d", ErrCorruptBatch, b.ID, b.EventCount, len(events))
	}
	return events, nil
}
