package enhance

import (
	"context"
	"fmt"
	"time"
)

// Synthetic fabricates results after a short delay. It lets the service run
// end to end without a provider key.
type Synthetic struct {
	Delay time.Duration
}

var _ Enhancer = (*Synthetic)(nil)

// NewSynthetic returns a synthetic provider with the given artificial delay.
func NewSynthetic(delay time.Duration) *Synthetic {
	return &Synthetic{Delay: delay}
}

func (s *Synthetic) Enhance(ctx context.Context, req Request) (*Result, error) {
	result := &Result{
		OutputURL: fmt.Sprintf("https://cdn.example.com/enhanced/%s.png", req.WorkID),
		Format:    "image/png",
		Width:     2048,
		Height:    1536,
	}
	if s.Delay <= 0 {
		return result, nil
	}
	select {
	case <-time.After(s.Delay):
		return result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
