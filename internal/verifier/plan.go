package verifier

import (
	"errors"
	"fmt"
)

// Block is one contiguous byte range of the reference file.
type Block struct {
	Index  int
	Offset int64
	Length int64
}

// Plan partitions the byte window [Start, End) into blocks of BlockSize.
// The last block is shorter when the window is not a multiple of BlockSize.
type Plan struct {
	Start     int64
	End       int64
	BlockSize int64
}

// NewPlan validates and returns a plan.
func NewPlan(start, end, blockSize int64) (Plan, error) {
	if blockSize <= 0 {
		return Plan{}, errors.New("verifier: block size must be positive")
	}
	if start < 0 {
		return Plan{}, errors.New("verifier: start must not be negative")
	}
	if end <= start {
		return Plan{}, fmt.Errorf("verifier: empty window [%d, %d)", start, end)
	}
	return Plan{Start: start, End: end, BlockSize: blockSize}, nil
}

// Size returns the number of bytes covered by the plan.
func (p Plan) Size() int64 {
	return p.End - p.Start
}

// NumBlocks returns the number of blocks, counting a trailing partial block.
func (p Plan) NumBlocks() int {
	if p.BlockSize <= 0 || p.End <= p.Start {
		return 0
	}
	return int((p.Size() + p.BlockSize - 1) / p.BlockSize)
}

// Block returns block i.
func (p Plan) Block(i int) (Block, error) {
	n := p.NumBlocks()
	if i < 0 || i >= n {
		return Block{}, fmt.Errorf("verifier: block %d out of range [0, %d)", i, n)
	}

	offset := p.Start + int64(i)*p.BlockSize
	length := p.BlockSize
	if offset+length > p.End {
		length = p.End - offset
	}
	return Block{Index: i, Offset: offset, Length: length}, nil
}
