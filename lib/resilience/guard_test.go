package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	apperrors "github.com/go-i2p/connpool/lib/errors"
	"github.com/go-i2p/connpool/lib/pool"
	"github.com/go-i2p/connpool/lib/testutil"
)

func TestGuardFactoryFailsFast(t *testing.T) {
	mock := clock.NewMock()
	f := testutil.NewFactory()
	f.Fail("bad:1")
	g := NewGuard(testConfig(), WithClock(mock))
	factory := g.Factory(f.Dial)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := factory(ctx, "bad:1"); !errors.Is(err, testutil.ErrDial) {
			t.Fatalf("dial %d: expected ErrDial, got %v", i, err)
		}
	}

	_, err := factory(ctx, "bad:1")
	if !errors.Is(err, ErrCircuitOpen) || !errors.Is(err, apperrors.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if f.Calls("bad:1") != 3 {
		t.Errorf("open circuit must not dial, got %d calls", f.Calls("bad:1"))
	}

	// Other endpoints have their own breaker.
	if _, err := factory(ctx, "good:1"); err != nil {
		t.Errorf("unexpected error for independent endpoint: %v", err)
	}

	f.Recover("bad:1")
	mock.Add(time.Second)
	for i := 0; i < 2; i++ {
		if _, err := factory(ctx, "bad:1"); err != nil {
			t.Fatalf("trial %d: %v", i, err)
		}
	}
	if state := g.Breaker("bad:1").State(); state != CircuitClosed {
		t.Errorf("expected closed after recovery, got %v", state)
	}
	if len(g.Stats()) != 2 {
		t.Errorf("expected 2 breakers, got %d", len(g.Stats()))
	}
}

func TestGuardFactoryNamesEndpointOnOpenCircuit(t *testing.T) {
	relayOpen := fmt.Errorf("relay: %w", ErrCircuitOpen)
	next := func(ctx context.Context, endpoint string) (pool.Connection, error) {
		return nil, relayOpen
	}
	factory := GuardFactory(next, CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Minute})
	ctx := context.Background()

	_, err := factory(ctx, "up:1")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if got, want := err.Error(), "dial up:1: relay: circuit open"; got != want {
		t.Errorf("wrapped open circuit: got %q, want %q", got, want)
	}

	_, err = factory(ctx, "up:1")
	if got, want := err.Error(), "dial up:1: circuit open"; got != want {
		t.Errorf("local open circuit: got %q, want %q", got, want)
	}
}

func TestGuardFactoryWithManager(t *testing.T) {
	f := testutil.NewFactory()
	f.Fail("bad:1")
	cfg := pool.DefaultConfig()
	cfg.ValidationEnabled = false
	m, err := pool.New(GuardFactory(f.Dial, CircuitBreakerConfig{FailureThreshold: 2}), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	for i := 0; i < 2; i++ {
		if _, err := m.Acquire(context.Background(), "bad:1"); !errors.Is(err, testutil.ErrDial) {
			t.Fatalf("expected ErrDial, got %v", err)
		}
	}
	if _, err := m.Acquire(context.Background(), "bad:1"); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen through the pool, got %v", err)
	}
}
