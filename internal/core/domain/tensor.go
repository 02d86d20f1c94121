package domain

import (
	"fmt"
	"math"
)

const (
	// SeqLen is the number of timesteps in a keypoint tensor.
	SeqLen = 20
	// KeypointsPerFrame is the number of features per timestep
	// (pose, face and both hands, flattened).
	KeypointsPerFrame = 1662
)

// KeypointTensor is a SeqLen x KeypointsPerFrame matrix of landmark features.
// It is created per request, never mutated, and serialized as a nested JSON array.
type KeypointTensor [][]float64

// NewKeypointTensor allocates a zeroed tensor of the contractual shape.
func NewKeypointTensor() KeypointTensor {
	backing := make([]float64, SeqLen*KeypointsPerFrame)
	t := make(KeypointTensor, SeqLen)
	for i := range t {
		t[i] = backing[i*KeypointsPerFrame : (i+1)*KeypointsPerFrame : (i+1)*KeypointsPerFrame]
	}
	return t
}

// Validate checks the shape and value range invariants.
func (t KeypointTensor) Validate() error {
	if len(t) != SeqLen {
		return ErrEncodingInvariant(fmt.Sprintf("tensor has %d timesteps, want %d", len(t), SeqLen))
	}
	for i, row := range t {
		if len(row) != KeypointsPerFrame {
			return ErrEncodingInvariant(fmt.Sprintf("timestep %d has %d features, want %d", i, len(row), KeypointsPerFrame))
		}
		for j, v := range row {
			if math.IsNaN(v) || v < 0 || v > 1 {
				return ErrEncodingInvariant(fmt.Sprintf("feature [%d][%d] = %v outside [0,1]", i, j, v))
			}
		}
	}
	return nil
}
