package planner

import (
	"fmt"
	"strconv"
	"strings"
)

// Suffixes of wire-level shard names.
const (
	TrainerSuffix = ".trainer_"
	DeltaSuffix   = ".delta"
	blockSuffix   = ".block"
)

// TrainerShardName names the copy of a gradient shard pushed by one trainer.
func TrainerShardName(shard string, roleID int) string {
	return fmt.Sprintf("%s%s%d", shard, TrainerSuffix, roleID)
}

// DeltaShardName names the accumulated delta of a shard.
func DeltaShardName(shard string) string {
	return shard + DeltaSuffix
}

// VarNameParts splits a shard name into the origin variable name, the block
// part (for example "block1") and the trainer part (for example
// "trainer_0"). Missing parts are empty.
func VarNameParts(name string) (origin, blockPart, trainerPart string) {
	trainerIdx := strings.Index(name, TrainerSuffix)
	if trainerIdx >= 0 {
		trainerPart = name[trainerIdx+1:]
	} else {
		trainerIdx = len(name)
	}

	blockIdx := strings.Index(name[:trainerIdx], blockSuffix)
	if blockIdx >= 0 {
		blockPart = name[blockIdx+1 : trainerIdx]
	} else {
		blockIdx = len(name)
	}

	origin = name[:min(blockIdx, trainerIdx)]

	return origin, blockPart, trainerPart
}

// OriginVarName returns the variable a shard name was derived from.
func OriginVarName(name string) string {
	origin, _, _ := VarNameParts(name)
	return origin
}

// BaseShardName strips the delta and trainer suffixes from a wire-level
// shard name.
func BaseShardName(name string) string {
	name = strings.TrimSuffix(name, DeltaSuffix)

	idx := strings.LastIndex(name, TrainerSuffix)
	if idx < 0 {
		return name
	}

	if _, err := strconv.Atoi(name[idx+len(TrainerSuffix):]); err != nil {
		return name
	}

	return name[:idx]
}
