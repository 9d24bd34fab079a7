// Package network reports connectivity transitions to the rest of the
// system.
package network

import (
	"sync"

	"github.com/vietddude/resilience/internal/metrics"
)

// Status is a connectivity snapshot.
type Status struct {
	Connected         bool `json:"connected"`
	InternetReachable bool `json:"internet_reachable"`
}

// Online is the status of a fully connected device.
var Online = Status{Connected: true, InternetReachable: true}

// IsOffline reports whether the device cannot reach the backend.
func (s Status) IsOffline() bool {
	return !s.Connected || !s.InternetReachable
}

// Listener receives every status change.
type Listener func(Status)

// Monitor is the connectivity source consumed by the execution layer.
type Monitor interface {
	Status() Status
	// Subscribe registers l for status changes and returns a function that
	// removes it.
	Subscribe(l Listener) (unsubscribe func())
}

// broadcaster holds the current status and fans changes out to listeners.
type broadcaster struct {
	mu        sync.RWMutex
	status    Status
	listeners map[uint64]Listener
	nextID    uint64
}

func newBroadcaster(initial Status) *broadcaster {
	recordStatus(initial)
	return &broadcaster{
		status:    initial,
		listeners: make(map[uint64]Listener),
	}
}

func (b *broadcaster) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

func (b *broadcaster) Subscribe(l Listener) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = l
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// set stores s and notifies listeners outside the lock when it differs from
// the previous status.
func (b *broadcaster) set(s Status) bool {
	b.mu.Lock()
	if b.status == s {
		b.mu.Unlock()
		return false
	}
	b.status = s
	listeners := make([]Listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.Unlock()

	recordStatus(s)
	for _, l := range listeners {
		l(s)
	}
	return true
}

func recordStatus(s Status) {
	if s.IsOffline() {
		metrics.Online.Set(0)
	} else {
		metrics.Online.Set(1)
	}
}

// ManualMonitor is a Monitor driven by explicit Set calls. It backs the
// "none" probe mode and tests.
type ManualMonitor struct {
	*broadcaster
}

// NewManualMonitor creates a monitor starting at initial.
func NewManualMonitor(initial Status) *ManualMonitor {
	return &ManualMonitor{broadcaster: newBroadcaster(initial)}
}

// Set updates the status and notifies listeners if it changed.
func (m *ManualMonitor) Set(s Status) {
	m.set(s)
}
