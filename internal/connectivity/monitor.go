// Package connectivity tracks the device's online/offline state and fires
// listeners on transitions.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/routeleaf/dispatch/backend/internal/logging"
)

// Prober checks whether the network is reachable right now.
type Prober interface {
	Probe(ctx context.Context) bool
}

// HTTPProber probes reachability with a HEAD request.
type HTTPProber struct {
	URL    string
	client *http.Client
}

// NewHTTPProber creates a prober against the given URL.
func NewHTTPProber(url string) *HTTPProber {
	return &HTTPProber{
		URL: url,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Probe reports whether the probe URL answered at all. Any HTTP status
// counts as reachable; only transport failures count as offline.
func (p *HTTPProber) Probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.URL, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

// Monitor maintains the boolean online state. State changes come from the
// poll loop or from the platform bridge via SetOnline; either way an
// offline-to-online transition fires each registered listener exactly once
// per transition.
type Monitor struct {
	mu        sync.RWMutex
	online    bool
	prober    Prober
	interval  time.Duration
	stopCh    chan struct{}
	wg        sync.WaitGroup
	isRunning bool
	onOnline  []func()
}

// NewMonitor creates a Monitor. The device is assumed offline until the
// first probe or platform signal says otherwise.
func NewMonitor(prober Prober, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		prober:   prober,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// IsOnline returns the current connectivity state.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// OnOnline registers a listener invoked on every offline-to-online
// transition. Listeners run on their own goroutine.
func (m *Monitor) OnOnline(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOnline = append(m.onOnline, fn)
}

// SetOnline updates the state from the platform connectivity signal.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	wasOnline := m.online
	m.online = online
	listeners := m.onOnline
	m.mu.Unlock()

	if wasOnline == online {
		return
	}

	logging.Info("connectivity changed",
		map[string]interface{}{"was_online": wasOnline, "is_online": online})

	// Going offline takes no queue action; in-flight work fails naturally
	// and is retried on the next transition.
	if !online {
		return
	}

	for _, fn := range listeners {
		go fn()
	}
}

// Start begins the background probe loop. An immediate probe runs before
// the first tick.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.isRunning || m.prober == nil {
		m.mu.Unlock()
		return
	}
	m.isRunning = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.probeLoop(ctx)
}

// Stop stops the probe loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	m.SetOnline(m.prober.Probe(ctx))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.SetOnline(m.prober.Probe(ctx))
		}
	}
}
