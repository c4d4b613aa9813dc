package pool

import "time"

// Drain waits until no connection is in use or timeout elapses, then
// destroys whatever is still in use. A timeout of zero or less destroys
// in-use connections immediately. Drain always completes. Acquisitions
// queued behind a destroyed connection get a fresh one.
func (m *Manager) Drain(timeout time.Duration) {
	var expired <-chan time.Time
	if timeout > 0 {
		t := m.clock.Timer(timeout)
		defer t.Stop()
		expired = t.C
	}

	for {
		m.mu.Lock()
		active := m.stats.ActiveConnections
		changed := m.changed
		m.mu.Unlock()

		if active == 0 {
			return
		}
		if expired == nil {
			m.destroyInUse()
			return
		}
		select {
		case <-changed:
		case <-expired:
			m.destroyInUse()
			return
		}
	}
}

func (m *Manager) destroyInUse() {
	m.mu.Lock()
	var victims []*pooledConn
	var evs []Event
	for _, ep := range m.pools {
		for _, pc := range append([]*pooledConn(nil), ep.conns...) {
			if pc.inUse {
				evs = append(evs, m.destroyLocked(pc))
				victims = append(victims, pc)
			}
		}
		m.fillLocked(ep)
	}
	m.recomputeLocked()
	m.mu.Unlock()

	for _, pc := range victims {
		closeConn(pc.pool.endpoint, pc.conn)
	}
	m.emit(evs)

	if len(victims) > 0 {
		log.WithField("closed", len(victims)).Warn("drain timed out, closed connections still in use")
	}
}

// Clear rejects every queued acquisition with ErrPoolCleared, closes every
// connection whether idle or in use, and empties all endpoint pools.
// Connections in use at the time are no longer known to the pool; releasing
// them returns ErrNotPooled. Monotonic counters are kept.
func (m *Manager) Clear() {
	m.mu.Lock()
	victims, evs := m.resetLocked(ErrPoolCleared)
	m.mu.Unlock()

	for _, pc := range victims {
		closeConn(pc.pool.endpoint, pc.conn)
	}
	m.emit(evs)
	log.WithField("closed", len(victims)).Info("pool cleared")
}

// Close stops new acquisitions, rejects queued ones with ErrPoolClosed,
// stops the background sweeps, drains for up to DrainTimeout, then closes
// every remaining connection. It returns ErrPoolClosed if already closed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrPoolClosed
	}
	m.closed = true
	m.rejectWaitersLocked(ErrPoolClosed)
	m.recomputeLocked()
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()

	m.Drain(m.config.DrainTimeout)

	m.mu.Lock()
	victims, evs := m.resetLocked(ErrPoolClosed)
	m.mu.Unlock()

	for _, pc := range victims {
		closeConn(pc.pool.endpoint, pc.conn)
	}
	m.emit(evs)
	log.Debug("pool closed")
	return nil
}

func (m *Manager) rejectWaitersLocked(reason error) {
	for name, ep := range m.pools {
		for _, w := range ep.waiters {
			if w.deliver(nil, reason) {
				m.failLocked(name)
			}
		}
		ep.waiters = nil
	}
}

// resetLocked empties every endpoint pool and returns the records the
// caller must close after unlocking.
func (m *Manager) resetLocked(reason error) ([]*pooledConn, []Event) {
	m.rejectWaitersLocked(reason)

	var victims []*pooledConn
	var evs []Event
	for name, ep := range m.pools {
		for _, pc := range append([]*pooledConn(nil), ep.conns...) {
			evs = append(evs, m.destroyLocked(pc))
			victims = append(victims, pc)
		}
		forgetEndpointMetrics(m.name, name)
	}
	m.pools = make(map[string]*endpointPool)
	m.byConn = make(map[Connection]*pooledConn)
	m.recomputeLocked()
	return victims, evs
}
