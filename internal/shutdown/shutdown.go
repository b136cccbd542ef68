// Package shutdown provides a once-only stop signal shared by the program
// loops.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// PollInterval is the longest a Sleep waits between checks of the token.
const PollInterval = 100 * time.Millisecond

// Token is tripped at most once. The zero value is not usable; call New.
type Token struct {
	once sync.Once
	done chan struct{}
}

func New() *Token {
	return &Token{done: make(chan struct{})}
}

// Trip sets the token. Later calls do nothing.
func (t *Token) Trip() {
	t.once.Do(func() { close(t.done) })
}

func (t *Token) Tripped() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Sleep waits for d in PollInterval steps and reports whether the full
// duration passed without the token tripping.
func (t *Token) Sleep(d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		if t.Tripped() {
			return false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		step := min(remaining, PollInterval)
		timer := time.NewTimer(step)
		select {
		case <-t.done:
			timer.Stop()
			return false
		case <-timer.C:
		}
	}
}

// Context returns a context cancelled when the token trips.
func (t *Token) Context() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-t.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// OnSignal trips t on SIGINT or SIGTERM. The returned func stops watching.
func OnSignal(t *Token) func() {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	stop := make(chan struct{})
	var once sync.Once
	go func() {
		select {
		case sig := <-ch:
			log.Info().Str("signal", sig.String()).Msg("shutdown requested")
			t.Trip()
		case <-stop:
		}
	}()
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(stop)
		})
	}
}
