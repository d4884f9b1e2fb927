package infra

import (
	"context"

	"quota-gateway/middleware/ratelimit/domain"
)

type semaphore struct {
	slots chan struct{}
}

// NewSemaphore cria um pool simples baseado em channel com capacidade max.
func NewSemaphore(max int) domain.SlotPool {
	return &semaphore{slots: make(chan struct{}, max)}
}

func (p *semaphore) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.slots <- struct{}{}:
		return func() { <-p.slots }, true
	case <-ctx.Done():
		return nil, false
	}
}
