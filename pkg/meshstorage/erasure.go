package meshstorage

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/klauspost/reedsolomon"
)

const (
	// DataShards is the number of data shards (10)
	DataShards = 10
	// ParityShards is the number of parity shards (5)
	ParityShards = 5
	// TotalShards is the total number of shards (15)
	TotalShards = DataShards + ParityShards
)

var (
	ErrEmptyContent       = errors.New("cannot encode empty content")
	ErrInsufficientShards = errors.New("insufficient shards for recovery")
)

// ErasureEncoder splits content into Reed-Solomon shards. Any DataShards
// of the TotalShards are enough to rebuild the original bytes.
type ErasureEncoder struct {
	encoder reedsolomon.Encoder
}

// EncodedData represents content split into shards
type EncodedData struct {
	Shards       [][]byte // TotalShards entries; missing shards are nil
	ShardSize    int
	OriginalSize int
}

// NewErasureEncoder creates a 10+5 encoder
func NewErasureEncoder() (*ErasureEncoder, error) {
	enc, err := reedsolomon.New(DataShards, ParityShards)
	if err != nil {
		return nil, fmt.Errorf("failed to create Reed-Solomon encoder: %w", err)
	}
	return &ErasureEncoder{encoder: enc}, nil
}

// Encode splits data into TotalShards shards
func (e *ErasureEncoder) Encode(data []byte) (*EncodedData, error) {
	if len(data) == 0 {
		return nil, ErrEmptyContent
	}

	shards, err := e.encoder.Split(data)
	if err != nil {
		return nil, fmt.Errorf("failed to split data: %w", err)
	}
	if err := e.encoder.Encode(shards); err != nil {
		return nil, fmt.Errorf("failed to encode parity: %w", err)
	}

	return &EncodedData{
		Shards:       shards,
		ShardSize:    len(shards[0]),
		OriginalSize: len(data),
	}, nil
}

// Decode rebuilds the original content. Up to ParityShards entries of
// Shards may be nil; shards of the wrong size are treated as missing.
func (e *ErasureEncoder) Decode(encoded *EncodedData) ([]byte, error) {
	if encoded == nil {
		return nil, fmt.Errorf("encoded data is nil")
	}
	if len(encoded.Shards) != TotalShards {
		return nil, fmt.Errorf("invalid number of shards: expected %d, got %d", TotalShards, len(encoded.Shards))
	}

	shards := make([][]byte, TotalShards)
	available := 0
	for i, shard := range encoded.Shards {
		if len(shard) == encoded.ShardSize {
			shards[i] = shard
			available++
		}
	}
	if available < DataShards {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientShards, available, DataShards)
	}

	if err := e.encoder.Reconstruct(shards); err != nil {
		return nil, fmt.Errorf("failed to reconstruct shards: %w", err)
	}

	ok, err := e.encoder.Verify(shards)
	if err != nil {
		return nil, fmt.Errorf("failed to verify shards: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("shard verification failed")
	}

	var buf bytes.Buffer
	buf.Grow(encoded.OriginalSize)
	if err := e.encoder.Join(&buf, shards, encoded.OriginalSize); err != nil {
		return nil, fmt.Errorf("failed to join shards: %w", err)
	}
	return buf.Bytes(), nil
}

// FaultTolerance returns how many shards may be lost
func FaultTolerance() int {
	return ParityShards
}
