package dashboard

import (
	"context"
	"sync"

	"immun/internal/shared/models"
)

// board is the state one dashboard screen renders from. The loader and the
// upload workflow mutate it under mu; nothing applies after close.
type board struct {
	mu       sync.Mutex
	records  []models.ImmunizationRecord
	feedback Feedback
	scope    context.Context
	cancel   context.CancelFunc
	closed   bool
}

func newBoard() *board {
	scope, cancel := context.WithCancel(context.Background())
	return &board{records: []models.ImmunizationRecord{}, scope: scope, cancel: cancel}
}

func (b *board) close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cancel()
}

// bind derives a context cancelled by either ctx or the board's scope.
func (b *board) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(b.scope, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
