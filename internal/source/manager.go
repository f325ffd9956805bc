// Scrobblerelay - Multi-Source Play Tracking and Scrobble Delivery
// Copyright 2026 C. Wadley (cwadley)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/cwadley/scrobblerelay

package source

import (
	"fmt"
	"sync"
)

// Manager is the registry of pollers, serving lookups for the status API and
// manual poll nudges.
type Manager struct {
	mu      sync.RWMutex
	pollers map[string]*Poller
	order   []string
}

func NewManager() *Manager {
	return &Manager{pollers: make(map[string]*Poller)}
}

// Add registers a poller. Names must be unique.
func (m *Manager) Add(p *Poller) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.pollers[p.Name()]; exists {
		return fmt.Errorf("duplicate source name %q", p.Name())
	}
	m.pollers[p.Name()] = p
	m.order = append(m.order, p.Name())
	return nil
}

// Get returns a registered poller by source name.
func (m *Manager) Get(name string) (*Poller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pollers[name]
	return p, ok
}

// Pollers returns all pollers in registration order.
func (m *Manager) Pollers() []*Poller {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Poller, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.pollers[name])
	}
	return out
}

// Snapshots returns the current state of every poller in registration order.
func (m *Manager) Snapshots() []Snapshot {
	pollers := m.Pollers()
	out := make([]Snapshot, 0, len(pollers))
	for _, p := range pollers {
		out = append(out, p.Snapshot())
	}
	return out
}
