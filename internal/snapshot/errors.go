package snapshot

import (
	"errors"
	"fmt"
)

// Stage names the sub-query of a build.
type Stage string

const (
	StageCPU       Stage = "cpu"
	StageMemory    Stage = "memory"
	StageProcesses Stage = "processes"
	StageDisk      Stage = "disk"
)

var stages = []Stage{StageCPU, StageMemory, StageProcesses, StageDisk}

// CollectionError reports which sub-query made a build fail.
type CollectionError struct {
	Stage Stage
	Err   error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("collecting %s: %v", e.Stage, e.Err)
}

func (e *CollectionError) Unwrap() error {
	return e.Err
}

// StageOf returns the failed stage when err wraps a CollectionError.
func StageOf(err error) (Stage, bool) {
	var ce *CollectionError
	if errors.As(err, &ce) {
		return ce.Stage, true
	}
	return "", false
}
