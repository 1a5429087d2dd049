package login

import (
	"sync"
	"time"
)

// Ticker starts a repeating callback. The returned stop function must be
// safe to call more than once and from inside fn.
type Ticker interface {
	Start(interval time.Duration, fn func()) (stop func())
}

// SystemTicker runs fn on its own goroutine off a time.Ticker.
type SystemTicker struct{}

func (SystemTicker) Start(interval time.Duration, fn func()) func() {
	t := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(done) })
	}
}
