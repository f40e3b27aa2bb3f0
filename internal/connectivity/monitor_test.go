package connectivity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type staticProber struct {
	online atomic.Bool
}

func (p *staticProber) Probe(ctx context.Context) bool {
	return p.online.Load()
}

func TestMonitorStartsOffline(t *testing.T) {
	m := NewMonitor(nil, time.Minute)
	if m.IsOnline() {
		t.Error("IsOnline = true, want offline before any signal")
	}
}

func TestSetOnlineFiresListenersOnTransition(t *testing.T) {
	m := NewMonitor(nil, time.Minute)

	var mu sync.Mutex
	fired := 0
	done := make(chan struct{}, 4)
	m.OnOnline(func() {
		mu.Lock()
		fired++
		mu.Unlock()
		done <- struct{}{}
	})

	m.SetOnline(true)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener not invoked on offline-to-online transition")
	}

	// Repeating the same state is not a transition
	m.SetOnline(true)
	// Going offline never fires online listeners
	m.SetOnline(false)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Errorf("listener fired %d times, want 1", fired)
	}
}

func TestSetOnlineFiresOncePerTransition(t *testing.T) {
	m := NewMonitor(nil, time.Minute)

	done := make(chan struct{}, 8)
	m.OnOnline(func() { done <- struct{}{} })

	for i := 0; i < 3; i++ {
		m.SetOnline(true)
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("listener not invoked on transition %d", i)
		}
		m.SetOnline(false)
	}

	select {
	case <-done:
		t.Error("extra listener invocation")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestProbeLoopDetectsRecovery(t *testing.T) {
	prober := &staticProber{}
	m := NewMonitor(prober, 10*time.Millisecond)

	online := make(chan struct{}, 1)
	m.OnOnline(func() {
		select {
		case online <- struct{}{}:
		default:
		}
	})

	m.Start(context.Background())
	defer m.Stop()

	time.Sleep(30 * time.Millisecond)
	if m.IsOnline() {
		t.Error("IsOnline = true while the prober reports offline")
	}

	prober.online.Store(true)
	select {
	case <-online:
	case <-time.After(2 * time.Second):
		t.Fatal("recovery not detected by the probe loop")
	}
	if !m.IsOnline() {
		t.Error("IsOnline = false after recovery")
	}
}

func TestHTTPProber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Any status counts as reachable, even errors
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewHTTPProber(srv.URL)
	if !p.Probe(context.Background()) {
		t.Error("Probe = false against a responding server")
	}

	srv.Close()
	if p.Probe(context.Background()) {
		t.Error("Probe = true against a closed server")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	m := NewMonitor(&staticProber{}, 10*time.Millisecond)
	m.Start(context.Background())
	m.Stop()
	m.Stop()
}
