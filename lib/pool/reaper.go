package pool

import "sort"

// ReapIdle closes idle connections unused for longer than IdleTimeout,
// oldest first, without taking any endpoint below MinConnections. Endpoint
// pools left with nothing in them are dropped. It returns the number of
// connections closed.
//
// The background reaper calls this every CleanupInterval.
func (m *Manager) ReapIdle() int {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0
	}

	now := m.clock.Now()
	var victims []*pooledConn
	var evs []Event
	for name, ep := range m.pools {
		if excess := len(ep.conns) - m.config.MinConnections; excess > 0 {
			var expired []*pooledConn
			for _, pc := range ep.conns {
				if pc.idle() && now.Sub(pc.lastUsed) > m.config.IdleTimeout {
					expired = append(expired, pc)
				}
			}
			sort.Slice(expired, func(i, j int) bool {
				return expired[i].lastUsed.Before(expired[j].lastUsed)
			})
			if len(expired) > excess {
				expired = expired[:excess]
			}
			for _, pc := range expired {
				evs = append(evs, m.destroyLocked(pc))
				victims = append(victims, pc)
			}
		}
		if ep.empty() {
			delete(m.pools, name)
			forgetEndpointMetrics(m.name, name)
		}
	}
	m.recomputeLocked()
	m.mu.Unlock()

	for _, pc := range victims {
		closeConn(pc.pool.endpoint, pc.conn)
	}
	m.emit(evs)

	if len(victims) > 0 {
		log.WithField("closed", len(victims)).Debug("reaper removed idle connections")
	}
	return len(victims)
}
