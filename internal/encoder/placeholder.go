// Package encoder turns captured frames into keypoint tensors.
package encoder

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/payallenka/isl/internal/core/domain"
)

// Placeholder fabricates uniform values in [0,1) instead of running a
// landmark model. Only the SeqLen x KeypointsPerFrame shape is meaningful.
type Placeholder struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewPlaceholder returns an encoder seeded from the runtime's entropy source.
func NewPlaceholder() *Placeholder {
	return &Placeholder{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeededPlaceholder returns a deterministic encoder.
func NewSeededPlaceholder(seed uint64) *Placeholder {
	return &Placeholder{rng: rand.New(rand.NewPCG(seed, seed))}
}

// Encode ignores the frames' content and count.
func (p *Placeholder) Encode(ctx context.Context, frames []*domain.CapturedFrame) (domain.KeypointTensor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t := domain.NewKeypointTensor()

	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range t {
		for j := range t[i] {
			t[i][j] = p.rng.Float64()
		}
	}
	return t, nil
}
