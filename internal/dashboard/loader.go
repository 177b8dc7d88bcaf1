package dashboard

import (
	"context"
	"slices"

	"immun/internal/shared/models"
)

// ListFunc fetches the records a dashboard variant shows.
type ListFunc func(ctx context.Context) ([]models.ImmunizationRecord, error)

// Loader fetches the visible record list and replaces it wholesale. Only the
// most recently started load may apply its result.
type Loader struct {
	b    *board
	list ListFunc
	gen  uint64
}

func newLoader(b *board, list ListFunc) *Loader {
	return &Loader{b: b, list: list}
}

// Load fetches and swaps in the list. On failure the previous list stays and
// the feedback becomes FetchFailedMessage. The error is returned for callers
// that want it; it carries no extra meaning for the screen.
func (l *Loader) Load(ctx context.Context) error {
	l.b.mu.Lock()
	if l.b.closed {
		l.b.mu.Unlock()
		return ErrClosed
	}
	l.gen++
	gen := l.gen
	l.b.mu.Unlock()

	ctx, cancel := l.b.bind(ctx)
	defer cancel()
	records, err := l.list(ctx)

	l.b.mu.Lock()
	defer l.b.mu.Unlock()
	if l.b.closed {
		return ErrClosed
	}
	if gen != l.gen {
		return nil
	}
	if err != nil {
		l.b.feedback = errorFeedback(FetchFailedMessage)
		return err
	}
	if records == nil {
		records = []models.ImmunizationRecord{}
	}
	l.b.records = slices.Clone(records)
	return nil
}
