// Package utxo encodes child chain output positions into single integer identifiers.
package utxo

import (
	"errors"
	"fmt"
	"math"
)

const (
	BlockOffset = 1_000_000_000
	TxOffset    = 10_000

	// MaxTxIndex is the largest transaction index a block may hold (2^16 leaves).
	MaxTxIndex = 65_535
	// MaxOutputIndex bounds the output slot of a UTXO.
	MaxOutputIndex = 3
	// MaxExitOutputIndex bounds the slot of an in-flight exit output id (inputs 0-3, outputs 4-7).
	MaxExitOutputIndex = 7
	// MaxBlockNumber keeps every encoded id within a uint64.
	MaxBlockNumber = (math.MaxUint64 - MaxTxIndex*TxOffset - MaxExitOutputIndex) / BlockOffset
)

var ErrOutOfRange = errors.New("position component out of range")

// Position identifies a transaction output on the child chain.
type Position struct {
	BlockNumber uint64
	TxIndex     uint64
	OutputIndex uint64
}

// Encode packs the components of a UTXO position into its identifier.
func Encode(blknum, txindex, oindex uint64) (uint64, error) {
	return encode(blknum, txindex, oindex, MaxOutputIndex)
}

// EncodeExitOutput is Encode for in-flight exit slots, which allow output indices up to 7.
func EncodeExitOutput(blknum, txindex, oindex uint64) (uint64, error) {
	return encode(blknum, txindex, oindex, MaxExitOutputIndex)
}

func encode(blknum, txindex, oindex, maxOutput uint64) (uint64, error) {
	switch {
	case blknum > MaxBlockNumber:
		return 0, fmt.Errorf("%w: block number %d exceeds %d", ErrOutOfRange, blknum, uint64(MaxBlockNumber))
	case txindex > MaxTxIndex:
		return 0, fmt.Errorf("%w: tx index %d exceeds %d", ErrOutOfRange, txindex, MaxTxIndex)
	case oindex > maxOutput:
		return 0, fmt.Errorf("%w: output index %d exceeds %d", ErrOutOfRange, oindex, maxOutput)
	}
	return blknum*BlockOffset + txindex*TxOffset + oindex, nil
}

// MustEncode is Encode for constant positions. It panics on out-of-range input.
func MustEncode(blknum, txindex, oindex uint64) uint64 {
	id, err := Encode(blknum, txindex, oindex)
	if err != nil {
		panic(err)
	}
	return id
}

// Decode splits an identifier into its components.
func Decode(id uint64) Position {
	return Position{
		BlockNumber: id / BlockOffset,
		TxIndex:     (id % BlockOffset) / TxOffset,
		OutputIndex: id % TxOffset,
	}
}

// ID returns the encoded identifier of p. It does not re-validate the ranges.
func (p Position) ID() uint64 {
	return p.BlockNumber*BlockOffset + p.TxIndex*TxOffset + p.OutputIndex
}

// TxID is the identifier of the transaction holding the output, i.e. output index zero.
func (p Position) TxID() uint64 {
	return p.BlockNumber*BlockOffset + p.TxIndex*TxOffset
}

// IsNull reports whether p is the zero position used for empty input slots.
func (p Position) IsNull() bool {
	return p == Position{}
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d:%d", p.BlockNumber, p.TxIndex, p.OutputIndex)
}
