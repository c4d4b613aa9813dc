package pool

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/go-i2p/connpool/lib/metrics"
	"github.com/go-i2p/connpool/lib/validation"
)

// Manager pools connections per endpoint. All bookkeeping is guarded by a
// single mutex; factory calls, probes, closes and observer callbacks run
// with the lock released, and state is re-checked after every one of them.
type Manager struct {
	name     string
	factory  Factory
	config   Config
	clock    clock.Clock
	observer Observer

	mu     sync.Mutex
	pools  map[string]*endpointPool
	byConn map[Connection]*pooledConn
	stats  Stats
	closed bool
	// changed is closed and replaced after every structural change.
	changed chan struct{}

	// ctx lives until Close; it scopes factory calls and the sweep loops.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// DefaultName labels the gauges of a Manager created without WithName.
const DefaultName = "default"

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for timestamps, timers and sweep tickers.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithName sets the pool label of the Manager's gauges. It defaults to
// DefaultName.
func WithName(name string) Option {
	return func(m *Manager) {
		m.name = name
	}
}

// WithObserver registers an observer for pool events.
func WithObserver(o Observer) Option {
	return func(m *Manager) {
		m.observer = o
	}
}

// New creates a Manager and starts its validator and reaper loops.
func New(factory Factory, cfg Config, opts ...Option) (*Manager, error) {
	if factory == nil {
		return nil, validation.Invalidf("factory", validation.ErrRequired, "is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		name:    DefaultName,
		factory: factory,
		config:  cfg,
		clock:   clock.New(),
		pools:   make(map[string]*endpointPool),
		byConn:  make(map[Connection]*pooledConn),
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())

	if cfg.ValidationEnabled {
		m.startLoop(cfg.ValidationInterval, func() { m.ValidateIdle(m.ctx) })
	}
	if cfg.CleanupInterval > 0 {
		m.startLoop(cfg.CleanupInterval, func() { m.ReapIdle() })
	}

	log.WithField("pool", m.name).
		WithField("maxPerTarget", cfg.MaxConnectionsPerTarget).
		WithField("strategy", cfg.Strategy.String()).
		Debug("pool manager created")
	return m, nil
}

// startLoop runs sweep on every tick until Close. The ticker is created
// before New returns.
func (m *Manager) startLoop(interval time.Duration, sweep func()) {
	ticker := m.clock.Ticker(interval)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-m.ctx.Done():
				return
			case <-ticker.C:
				sweep()
			}
		}
	}()
}

// Acquire returns a connection to endpoint. An idle connection is reused
// when one exists; otherwise a new one is created if the endpoint is under
// capacity, and failing that the call queues until a release, AcquireTimeout,
// or ctx is done. Queued callers are served in FIFO order.
//
// A successful Acquire must be paired with Release or Discard.
func (m *Manager) Acquire(ctx context.Context, endpoint string) (Connection, error) {
	if err := validation.Required("endpoint", endpoint); err != nil {
		return nil, err
	}
	timer := metrics.NewTimer(PoolAcquireLatency)

	m.mu.Lock()
	if m.closed {
		m.failLocked(endpoint)
		m.mu.Unlock()
		return nil, ErrPoolClosed
	}
	ep := m.endpointLocked(endpoint)

	if pc := m.takeIdleLocked(ep); pc != nil {
		evs := []Event{m.acquiredLocked(pc)}
		m.recomputeLocked()
		m.mu.Unlock()
		m.emit(evs)
		timer.ObserveDuration()
		log.WithField("endpoint", endpoint).Debug("acquired idle connection from pool")
		return pc.conn, nil
	}

	w := newWantConn()
	var timeoutErr error
	// Earlier waiters are served first even if a slot is free.
	if len(ep.waiters) == 0 && ep.size() < m.config.MaxConnectionsPerTarget {
		if m.config.CreateTimeout > 0 {
			w.timer = m.clock.Timer(m.config.CreateTimeout)
		}
		timeoutErr = ErrCreateTimeout
		m.dialLocked(ep, w)
	} else {
		w.timer = m.clock.Timer(m.config.AcquireTimeout)
		timeoutErr = ErrAcquireTimeout
		ep.waiters = append(ep.waiters, w)
		m.fillLocked(ep)
		m.recomputeLocked()
		log.WithField("endpoint", endpoint).Debug("waiting for available connection")
	}
	m.mu.Unlock()

	conn, err := m.await(ctx, ep, w, timeoutErr)
	if err == nil {
		timer.ObserveDuration()
	}
	return conn, err
}

// await blocks until w is served, its timer fires, or ctx is done.
func (m *Manager) await(ctx context.Context, ep *endpointPool, w *wantConn, timeoutErr error) (Connection, error) {
	var expired <-chan time.Time
	if w.timer != nil {
		expired = w.timer.C
	}

	select {
	case res := <-w.ch:
		return res.conn()
	case <-expired:
		return m.abandon(ep, w, timeoutErr)
	case <-ctx.Done():
		return m.abandon(ep, w, ctx.Err())
	}
}

// abandon withdraws w. If a result was delivered concurrently, it wins.
func (m *Manager) abandon(ep *endpointPool, w *wantConn, cause error) (Connection, error) {
	m.mu.Lock()
	if w.done {
		m.mu.Unlock()
		return (<-w.ch).conn()
	}
	w.done = true
	if w.timer != nil {
		w.timer.Stop()
	}
	ep.removeWaiter(w)
	m.failLocked(ep.endpoint)

	var evs []Event
	if errors.Is(cause, ErrAcquireTimeout) {
		m.stats.AcquisitionTimeouts++
		PoolAcquireTimeoutTotal.With(ep.endpoint).Inc()
		evs = append(evs, Event{Type: EventAcquireTimeout, Endpoint: ep.endpoint, Err: cause, At: m.clock.Now()})
	}
	m.recomputeLocked()
	m.mu.Unlock()

	m.emit(evs)
	log.WithField("endpoint", ep.endpoint).WithError(cause).Debug("acquisition abandoned")
	return nil, cause
}

func (r acquireResult) conn() (Connection, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.pc.conn, nil
}

// dialLocked reserves a slot on ep and runs the factory. w is the acquirer
// that owns the result, or nil when the connection is for the wait-list.
func (m *Manager) dialLocked(ep *endpointPool, w *wantConn) {
	ep.creating++
	go m.dial(ep, w)
}

func (m *Manager) dial(ep *endpointPool, w *wantConn) {
	conn, err := m.factory(m.ctx, ep.endpoint)

	m.mu.Lock()
	ep.creating--

	if err != nil {
		log.WithField("endpoint", ep.endpoint).WithError(err).Debug("failed to create new connection")
		// A dial for the queue fails its oldest waiter, so a factory that
		// keeps failing drains the queue instead of stranding it.
		if w == nil {
			w = ep.popWaiter()
		}
		if w != nil && w.deliver(nil, err) {
			m.failLocked(ep.endpoint)
		}
		m.fillLocked(ep)
		m.recomputeLocked()
		m.mu.Unlock()
		return
	}

	if reject := m.staleLocked(ep); reject != nil {
		if w != nil && w.deliver(nil, reject) {
			m.failLocked(ep.endpoint)
		}
		m.recomputeLocked()
		m.mu.Unlock()
		closeConn(ep.endpoint, conn)
		return
	}

	now := m.clock.Now()
	pc := &pooledConn{
		id:       uuid.NewString(),
		conn:     conn,
		pool:     ep,
		created:  now,
		lastUsed: now,
	}
	ep.conns = append(ep.conns, pc)
	m.byConn[conn] = pc
	m.stats.ConnectionsCreated++
	PoolCreatedTotal.With(ep.endpoint).Inc()

	evs := []Event{m.event(EventCreated, pc, nil)}
	var owner *wantConn
	if w != nil && !w.done {
		evs = append(evs, m.acquiredLocked(pc))
		w.claim()
		owner = w
	} else {
		// The acquirer gave up or never existed; keep the connection.
		evs = append(evs, m.handoffLocked(pc)...)
	}
	m.recomputeLocked()
	m.mu.Unlock()

	// Events go out before the owner resumes so they precede its next call.
	m.emit(evs)
	if owner != nil {
		owner.ch <- acquireResult{pc: pc}
	}
	log.WithField("endpoint", ep.endpoint).WithField("id", pc.id).Debug("created new connection")
}

// staleLocked reports why a finished dial can no longer join ep.
func (m *Manager) staleLocked(ep *endpointPool) error {
	switch {
	case m.closed:
		return ErrPoolClosed
	case m.pools[ep.endpoint] != ep:
		return ErrPoolCleared
	default:
		return nil
	}
}

// Release returns conn to its endpoint pool. If acquisitions are queued for
// that endpoint, the oldest is handed the connection directly.
// It returns ErrNotPooled if conn is not currently checked out from the pool.
func (m *Manager) Release(conn Connection) error {
	if conn == nil {
		return ErrNotPooled
	}

	m.mu.Lock()
	pc, ok := m.byConn[conn]
	if !ok || !pc.inUse {
		m.mu.Unlock()
		return ErrNotPooled
	}

	pc.inUse = false
	pc.lastUsed = m.clock.Now()
	pc.useCount++
	evs := []Event{m.event(EventReleased, pc, nil)}

	if m.closed {
		evs = append(evs, m.destroyLocked(pc))
		m.recomputeLocked()
		m.mu.Unlock()
		m.emit(evs)
		log.Debug("pool closed, closing connection")
		closeConn(pc.pool.endpoint, pc.conn)
		return nil
	}

	evs = append(evs, m.handoffLocked(pc)...)
	m.recomputeLocked()
	m.mu.Unlock()

	m.emit(evs)
	log.WithField("endpoint", pc.pool.endpoint).Debug("connection released to pool")
	return nil
}

// Discard removes conn from the pool and closes it. Use this when a
// connection is known to be bad. The freed slot is used to create a
// replacement if acquisitions are queued for the endpoint.
func (m *Manager) Discard(conn Connection) error {
	if conn == nil {
		return ErrNotPooled
	}

	m.mu.Lock()
	pc, ok := m.byConn[conn]
	if !ok {
		m.mu.Unlock()
		return ErrNotPooled
	}
	evs := []Event{m.destroyLocked(pc)}
	m.fillLocked(pc.pool)
	m.recomputeLocked()
	m.mu.Unlock()

	m.emit(evs)
	log.WithField("endpoint", pc.pool.endpoint).Debug("discarding bad connection")
	closeConn(pc.pool.endpoint, pc.conn)
	return nil
}

func (m *Manager) endpointLocked(endpoint string) *endpointPool {
	ep, ok := m.pools[endpoint]
	if !ok {
		ep = &endpointPool{endpoint: endpoint}
		m.pools[endpoint] = ep
	}
	return ep
}

func (m *Manager) takeIdleLocked(ep *endpointPool) *pooledConn {
	idle := ep.idleConns()
	if len(idle) == 0 {
		return nil
	}
	return m.config.Strategy.pick(ep, idle)
}

// acquiredLocked checks pc out to an acquirer.
func (m *Manager) acquiredLocked(pc *pooledConn) Event {
	pc.inUse = true
	pc.lastUsed = m.clock.Now()
	m.stats.AcquisitionsSucceeded++
	PoolAcquireSuccessTotal.With(pc.pool.endpoint).Inc()
	return m.event(EventAcquired, pc, nil)
}

// handoffLocked gives an idle pc to the oldest waiter of its endpoint, if any.
func (m *Manager) handoffLocked(pc *pooledConn) []Event {
	w := pc.pool.popWaiter()
	if w == nil {
		return nil
	}
	ev := m.acquiredLocked(pc)
	w.deliver(pc, nil)
	return []Event{ev}
}

// fillLocked starts one creation for the wait-list if ep has free capacity.
// Every path that frees a slot calls it, so waiters are queued only while
// ep is at capacity.
func (m *Manager) fillLocked(ep *endpointPool) {
	if m.closed || len(ep.waiters) == 0 || ep.size() >= m.config.MaxConnectionsPerTarget {
		return
	}
	m.dialLocked(ep, nil)
}

// destroyLocked removes pc from the pool. The caller closes the connection
// after unlocking.
func (m *Manager) destroyLocked(pc *pooledConn) Event {
	pc.pool.remove(pc)
	delete(m.byConn, pc.conn)
	m.stats.ConnectionsDestroyed++
	PoolDestroyedTotal.With(pc.pool.endpoint).Inc()
	return m.event(EventDestroyed, pc, nil)
}

func (m *Manager) failLocked(endpoint string) {
	m.stats.AcquisitionsFailed++
	PoolAcquireFailedTotal.With(endpoint).Inc()
}

func (m *Manager) event(t EventType, pc *pooledConn, err error) Event {
	return Event{
		Type:     t,
		Endpoint: pc.pool.endpoint,
		ConnID:   pc.id,
		Err:      err,
		At:       m.clock.Now(),
	}
}

func (m *Manager) emit(evs []Event) {
	if m.observer == nil {
		return
	}
	for _, e := range evs {
		m.observer.OnEvent(e)
	}
}

func closeConn(endpoint string, conn Connection) {
	if err := conn.Close(); err != nil {
		log.WithField("endpoint", endpoint).WithError(err).Debug("error closing connection")
	}
}
