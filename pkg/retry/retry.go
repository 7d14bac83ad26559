package retry

import (
	"context"
	"time"
)

// BaseDelay is the first backoff step; each later step doubles it
var BaseDelay = 100 * time.Millisecond

// Do calls fn up to maxAttempts times with exponential backoff
// (100ms, 200ms, 400ms, ...). It returns the last error if all attempts fail,
// or ctx.Err() if the context is cancelled while waiting.
func Do(ctx context.Context, maxAttempts int, fn func() error) error {
	var err error
	for i := 0; i < maxAttempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < maxAttempts-1 {
			select {
			case <-time.After(BaseDelay * time.Duration(1<<i)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}
