// Package status tracks how each carrier has been answering so clients can
// show provider health.
package status

import (
	"sync"
	"time"
)

type Status string

const (
	Online   Status = "online"
	Degraded Status = "degraded"
	Offline  Status = "offline"
)

// PollInterval is the cadence clients are asked to poll the status endpoint at.
const PollInterval = 30 * time.Second

// DefaultDegradedLatency marks a provider degraded when a quote takes longer.
const DefaultDegradedLatency = 2 * time.Second

func (s Status) rank() int {
	switch s {
	case Offline:
		return 2
	case Degraded:
		return 1
	default:
		return 0
	}
}

// Provider identifies a monitored carrier.
type Provider struct {
	ID   string
	Name string
}

// ProviderStatus is one row of a Snapshot.
type ProviderStatus struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Status       Status     `json:"status"`
	ResponseTime int64      `json:"responseTime"`
	CheckedAt    *time.Time `json:"checkedAt,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
}

// Snapshot is the payload of the status endpoint.
type Snapshot struct {
	SystemStatus Status           `json:"systemStatus"`
	Providers    []ProviderStatus `json:"providers"`
}

type observation struct {
	latency time.Duration
	err     error
	at      time.Time
}

// Monitor records the last outcome per provider. It implements quote.Observer.
type Monitor struct {
	mu        sync.RWMutex
	providers []Provider
	last      map[string]observation
	degraded  time.Duration
	now       func() time.Time
}

func NewMonitor(providers []Provider, degradedAfter time.Duration) *Monitor {
	if degradedAfter <= 0 {
		degradedAfter = DefaultDegradedLatency
	}
	return &Monitor{
		providers: append([]Provider(nil), providers...),
		last:      make(map[string]observation, len(providers)),
		degraded:  degradedAfter,
		now:       time.Now,
	}
}

// SetClock replaces the time source. Not safe for concurrent use with Observe.
func (m *Monitor) SetClock(now func() time.Time) { m.now = now }

func (m *Monitor) ObserveQuote(providerID string, latency time.Duration, err error) {
	m.mu.Lock()
	m.last[providerID] = observation{latency: latency, err: err, at: m.now().UTC()}
	m.mu.Unlock()
}

// ObserveCache is a no-op; cache hits say nothing about carrier health.
func (m *Monitor) ObserveCache(bool) {}

// Snapshot reports every provider in registration order. A provider never
// observed is assumed online; the system status is the worst provider status.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := Snapshot{SystemStatus: Online, Providers: make([]ProviderStatus, 0, len(m.providers))}
	for _, p := range m.providers {
		row := ProviderStatus{ID: p.ID, Name: p.Name, Status: Online}
		if obs, ok := m.last[p.ID]; ok {
			at := obs.at
			row.CheckedAt = &at
			row.ResponseTime = obs.latency.Milliseconds()
			switch {
			case obs.err != nil:
				row.Status = Offline
				row.LastError = obs.err.Error()
			case obs.latency > m.degraded:
				row.Status = Degraded
			}
		}
		if row.Status.rank() > snap.SystemStatus.rank() {
			snap.SystemStatus = row.Status
		}
		snap.Providers = append(snap.Providers, row)
	}
	return snap
}
