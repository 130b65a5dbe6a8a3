package queue

import "sync"

// Token is a cooperative cancellation token. Cancel may be called any
// number of times from any goroutine.
type Token struct {
	once sync.Once
	done chan struct{}
}

// NewToken creates an uncanceled token.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Cancel marks the token canceled.
func (t *Token) Cancel() {
	t.once.Do(func() { close(t.done) })
}

// Canceled reports whether Cancel has been called.
func (t *Token) Canceled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed on cancellation.
func (t *Token) Done() <-chan struct{} {
	return t.done
}
