package pool

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type probeJob struct {
	pc     *pooledConn
	prober Prober
}

// ValidateIdle probes idle connections whose last successful probe is older
// than ValidationInterval, or that were never probed, and evicts those that
// fail. In-use connections are never probed. A connection under probe is
// reserved: acquirers skip it until the probe finishes. Connections that do
// not implement Prober are marked validated without a probe.
//
// The background validator calls this every ValidationInterval; it may also
// be called directly. It returns the number of connections evicted.
func (m *Manager) ValidateIdle(ctx context.Context) int {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0
	}
	now := m.clock.Now()
	var jobs []probeJob
	for _, ep := range m.pools {
		for _, pc := range ep.conns {
			if !pc.idle() {
				continue
			}
			if !pc.validatedAt.IsZero() && now.Sub(pc.validatedAt) < m.config.ValidationInterval {
				continue
			}
			prober, ok := pc.conn.(Prober)
			if !ok {
				pc.validatedAt = now
				continue
			}
			pc.probing = true
			jobs = append(jobs, probeJob{pc: pc, prober: prober})
		}
	}
	m.mu.Unlock()

	if len(jobs) == 0 {
		return 0
	}

	var evicted atomic.Int64
	var g errgroup.Group
	g.SetLimit(m.config.ValidationConcurrency)
	for _, job := range jobs {
		g.Go(func() error {
			if m.probe(ctx, job) {
				evicted.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	n := int(evicted.Load())
	log.WithField("probed", len(jobs)).WithField("evicted", n).Debug("validation sweep finished")
	return n
}

// probe races one liveness probe against ValidationTimeout and applies the
// outcome. It reports whether the connection was evicted.
func (m *Manager) probe(ctx context.Context, job probeJob) bool {
	pctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var expired <-chan time.Time
	if m.config.ValidationTimeout > 0 {
		t := m.clock.Timer(m.config.ValidationTimeout)
		defer t.Stop()
		expired = t.C
	}

	done := make(chan error, 1)
	go func() {
		_, err := job.prober.Probe(pctx)
		done <- err
	}()

	var err error
	interrupted := false
	select {
	case err = <-done:
	case <-expired:
		err = ErrProbeTimeout
	case <-ctx.Done():
		interrupted = true
	}

	pc := job.pc
	m.mu.Lock()
	pc.probing = false
	if m.byConn[pc.conn] != pc {
		// Removed while probing.
		m.mu.Unlock()
		return false
	}

	var evs []Event
	evict := !interrupted && err != nil
	switch {
	case evict:
		m.stats.ValidationErrors++
		PoolValidationErrorsTotal.With(pc.pool.endpoint).Inc()
		evs = append(evs, m.event(EventValidationFailed, pc, err), m.destroyLocked(pc))
		m.fillLocked(pc.pool)
	case !interrupted:
		pc.validatedAt = m.clock.Now()
		evs = m.handoffLocked(pc)
	default:
		evs = m.handoffLocked(pc)
	}
	m.recomputeLocked()
	m.mu.Unlock()

	m.emit(evs)
	if evict {
		log.WithField("endpoint", pc.pool.endpoint).WithError(err).Warn("evicting connection that failed validation")
		closeConn(pc.pool.endpoint, pc.conn)
	}
	return evict
}
