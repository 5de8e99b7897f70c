// Package background runs fire and forget work that must finish before the
// process exits.
package background

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

type Background struct {
	wg  sync.WaitGroup
	log logrus.FieldLogger
}

func New(log logrus.FieldLogger) *Background {
	return &Background{log: log}
}

// Add runs fn in its own goroutine. Errors and panics are logged.
func (b *Background) Add(fn func() error) {
	b.wg.Add(1)

	go func() {
		defer b.wg.Done()

		defer func() {
			if rec := recover(); rec != nil {
				b.log.WithField("panic", rec).Error("background task panicked")
			}
		}()

		if err := fn(); err != nil {
			b.log.WithError(err).Error("background task failed")
		}
	}()
}

// Shutdown waits for the running tasks or for ctx to end.
func (b *Background) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for background tasks: %w", ctx.Err())
	}
}
