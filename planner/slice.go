package planner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sarchlab/psplanner"
)

// DefaultMinBlockSize is the smallest number of elements worth placing on a
// server as a separate block.
const DefaultMinBlockSize = 8192

// NoSlicing as a minimum block size keeps every variable in one block.
const NoSlicing = -1

// A Block is a contiguous range of a variable's flattened elements.
type Block struct {
	VarName string
	ID      int
	Size    int
}

// String encodes the block as name:id:size.
func (b Block) String() string {
	return fmt.Sprintf("%s:%d:%d", b.VarName, b.ID, b.Size)
}

// ParseBlock decodes a block encoded by Block.String.
func ParseBlock(s string) (Block, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Block{}, errors.Wrapf(ErrInvalidArgument,
			"block %q must be name:id:size", s)
	}

	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return Block{}, errors.Wrapf(ErrInvalidArgument, "block %q: %v", s, err)
	}

	size, err := strconv.Atoi(parts[2])
	if err != nil {
		return Block{}, errors.Wrapf(ErrInvalidArgument, "block %q: %v", s, err)
	}

	return Block{VarName: parts[0], ID: id, Size: size}, nil
}

// SliceVariables splits each variable into blocks that can be spread over
// sliceCount servers.
//
// On the non-uniform path a block is a sub-tensor aligned by the first
// dimension, and no more blocks are created than keeps the average block at
// least minBlockSize elements. A minBlockSize of NoSlicing keeps the
// variable whole.
//
// On the uniform path every variable gets exactly sliceCount blocks, each
// declaring the full element count. Sparse tables are partitioned by row
// hash when served, not by element range here.
func SliceVariables(
	vars []psplanner.TensorVar,
	sliceCount int,
	minBlockSize int,
	uniform bool,
) ([]Block, error) {
	if sliceCount < 1 {
		return nil, errors.Wrapf(ErrInvalidArgument,
			"slice count must be positive, got %d", sliceCount)
	}

	if !uniform && minBlockSize != NoSlicing && minBlockSize < 1 {
		return nil, errors.Wrapf(ErrInvalidArgument,
			"min block size must be positive or %d, got %d", NoSlicing, minBlockSize)
	}

	var blocks []Block
	for _, v := range vars {
		if strings.Contains(v.Name, ":") {
			return nil, errors.Wrapf(ErrInvalidArgument,
				"variable name %q must not contain ':'", v.Name)
		}

		if uniform {
			blocks = append(blocks, sliceUniform(v, sliceCount)...)
		} else {
			blocks = append(blocks, sliceAligned(v, sliceCount, minBlockSize)...)
		}
	}

	return blocks, nil
}

func sliceUniform(v psplanner.TensorVar, sliceCount int) []Block {
	numel := v.Numel()
	blocks := make([]Block, sliceCount)

	for id := range blocks {
		blocks[id] = Block{VarName: v.Name, ID: id, Size: numel}
	}

	return blocks
}

func sliceAligned(v psplanner.TensorVar, sliceCount, minBlockSize int) []Block {
	numel := v.Numel()
	if numel == 0 {
		return []Block{{VarName: v.Name, ID: 0, Size: 0}}
	}

	splitCount := 1
	if minBlockSize != NoSlicing {
		splitCount = sliceCount
		maxServerCount := max(numel/minBlockSize, 1)
		if maxServerCount < sliceCount {
			splitCount = maxServerCount
		}
	}

	blockSize := ceilDiv(numel, splitCount)

	if len(v.Shape) >= 2 {
		rowWidth := v.RowWidth()
		if remains := blockSize % rowWidth; remains != 0 {
			blockSize += rowWidth - remains
		}
	}
	splitCount = ceilDiv(numel, blockSize)

	blocks := make([]Block, splitCount)
	for id := range blocks {
		blocks[id] = Block{
			VarName: v.Name,
			ID:      id,
			Size:    min(blockSize, numel-id*blockSize),
		}
	}

	return blocks
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
