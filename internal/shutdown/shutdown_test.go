package shutdown

import (
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/danmuck/cdrbridge/internal/testutil/testlog"
)

func TestTripIsOnceAndVisible(t *testing.T) {
	testlog.Start(t)
	tok := New()
	if tok.Tripped() {
		t.Fatalf("new token already tripped")
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok.Trip()
		}()
	}
	wg.Wait()
	if !tok.Tripped() {
		t.Fatalf("token not tripped")
	}
	select {
	case <-tok.Done():
	default:
		t.Fatalf("done channel open after trip")
	}
}

func TestSleepCompletesWhenUntripped(t *testing.T) {
	testlog.Start(t)
	tok := New()
	start := time.Now()
	if !tok.Sleep(30 * time.Millisecond) {
		t.Fatalf("sleep reported trip")
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatalf("sleep returned early")
	}
}

func TestSleepReturnsPromptlyOnTrip(t *testing.T) {
	testlog.Start(t)
	tok := New()
	go func() {
		time.Sleep(20 * time.Millisecond)
		tok.Trip()
	}()
	start := time.Now()
	if tok.Sleep(time.Minute) {
		t.Fatalf("sleep ignored trip")
	}
	if elapsed := time.Since(start); elapsed > PollInterval+time.Second {
		t.Fatalf("sleep took %v after trip", elapsed)
	}
	if tok.Sleep(time.Millisecond) {
		t.Fatalf("sleep on tripped token should report false")
	}
}

func TestContextCancelledByTrip(t *testing.T) {
	testlog.Start(t)
	tok := New()
	ctx, cancel := tok.Context()
	defer cancel()
	tok.Trip()
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("context not cancelled")
	}
}

func TestOnSignalTripsToken(t *testing.T) {
	testlog.Start(t)
	tok := New()
	stop := OnSignal(tok)
	defer stop()
	if err := syscall.Kill(syscall.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("kill: %v", err)
	}
	select {
	case <-tok.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("signal did not trip token")
	}
	stop()
}
