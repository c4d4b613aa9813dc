package pool

import (
	"sort"
	"time"
)

// Stats is a snapshot of pool statistics. The connection and pending counts
// are recomputed from the pools after every change; the remaining fields are
// monotonic counters.
type Stats struct {
	TotalConnections    int
	ActiveConnections   int
	IdleConnections     int
	PendingAcquisitions int

	AcquisitionsSucceeded uint64
	AcquisitionsFailed    uint64
	AcquisitionTimeouts   uint64
	ConnectionsCreated    uint64
	ConnectionsDestroyed  uint64
	ValidationErrors      uint64
}

// EndpointInfo describes the composition of one endpoint pool.
type EndpointInfo struct {
	Endpoint string
	Total    int
	Active   int
	Idle     int
	// Probing counts idle connections currently held by the validator.
	Probing  int
	Pending  int
	Creating int
	Conns    []ConnInfo
}

// ConnInfo describes one pooled connection.
type ConnInfo struct {
	ID          string
	Created     time.Time
	LastUsed    time.Time
	ValidatedAt time.Time
	InUse       bool
	UseCount    uint64
}

// Stats returns current pool statistics.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// PoolInfo returns a diagnostic view of endpoint, or of every endpoint
// sorted by name when endpoint is empty. Unknown endpoints yield an empty slice.
func (m *Manager) PoolInfo(endpoint string) []EndpointInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	var infos []EndpointInfo
	for name, ep := range m.pools {
		if endpoint != "" && name != endpoint {
			continue
		}
		infos = append(infos, ep.info())
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Endpoint < infos[j].Endpoint
	})
	return infos
}

func (ep *endpointPool) info() EndpointInfo {
	info := EndpointInfo{
		Endpoint: ep.endpoint,
		Total:    len(ep.conns),
		Pending:  len(ep.waiters),
		Creating: ep.creating,
		Conns:    make([]ConnInfo, 0, len(ep.conns)),
	}
	for _, pc := range ep.conns {
		if pc.inUse {
			info.Active++
		} else {
			info.Idle++
		}
		if pc.probing {
			info.Probing++
		}
		info.Conns = append(info.Conns, ConnInfo{
			ID:          pc.id,
			Created:     pc.created,
			LastUsed:    pc.lastUsed,
			ValidatedAt: pc.validatedAt,
			InUse:       pc.inUse,
			UseCount:    pc.useCount,
		})
	}
	return info
}

// recomputeLocked rebuilds the derived counts from every endpoint pool,
// publishes them, and wakes anything waiting on a change.
func (m *Manager) recomputeLocked() {
	var total, active, idle, pending int
	for name, ep := range m.pools {
		a := 0
		for _, pc := range ep.conns {
			if pc.inUse {
				a++
			}
		}
		i := len(ep.conns) - a
		p := len(ep.waiters)

		total += len(ep.conns)
		active += a
		idle += i
		pending += p
		updateEndpointMetrics(m.name, name, a, i, p)
	}

	m.stats.TotalConnections = total
	m.stats.ActiveConnections = active
	m.stats.IdleConnections = idle
	m.stats.PendingAcquisitions = pending

	close(m.changed)
	m.changed = make(chan struct{})
}
