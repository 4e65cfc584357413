package cancel

import (
	"context"
	"sync"
	"sync/atomic"
)

// Token is a cooperative cancellation flag shared by the owner of a stream and
// every component that may block on it. Once cancelled it stays cancelled.
//
// A nil *Token is valid and is never cancelled, so components can hold an
// optional token without nil checks.
type Token struct {
	cancelled atomic.Bool
	once      sync.Once
	done      chan struct{}
}

// NewToken returns a token that is not yet cancelled.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// FromContext returns a token that is cancelled as soon as ctx is done.
func FromContext(ctx context.Context) *Token {
	t := NewToken()
	context.AfterFunc(ctx, t.Cancel)
	return t
}

// Cancel marks the token as cancelled. It is safe to call more than once and
// from multiple goroutines.
func (t *Token) Cancel() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		t.cancelled.Store(true)
		close(t.done)
	})
}

// Cancelled reports whether Cancel has been called.
func (t *Token) Cancelled() bool {
	return t != nil && t.cancelled.Load()
}

// Done returns a channel that is closed when the token is cancelled. A nil
// token returns a nil channel, which blocks forever.
func (t *Token) Done() <-chan struct{} {
	if t == nil {
		return nil
	}
	return t.done
}
