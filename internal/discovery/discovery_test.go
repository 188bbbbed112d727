package discovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avolpe/scanflow/internal/metrics"
	"github.com/avolpe/scanflow/internal/targets"
)

// fakeProbe scripts per-address outcomes and records concurrency.
type fakeProbe struct {
	mu         sync.Mutex
	statuses   map[string]Status
	errs       map[string]error
	delay      time.Duration
	inFlight   int32
	maxInFlght int32
}

func (p *fakeProbe) Method() string { return "fake" }

func (p *fakeProbe) Check(ctx context.Context, address string) (Status, error) {
	current := atomic.AddInt32(&p.inFlight, 1)
	defer atomic.AddInt32(&p.inFlight, -1)

	p.mu.Lock()
	if current > p.maxInFlght {
		p.maxInFlght = current
	}
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return StatusError, ctx.Err()
		}
	}

	if err, ok := p.errs[address]; ok {
		return StatusError, err
	}
	if status, ok := p.statuses[address]; ok {
		return status, nil
	}
	return StatusInactive, nil
}

func candidates(addrs ...string) targets.CandidateList {
	list := make(targets.CandidateList, len(addrs))
	for i, a := range addrs {
		list[i] = targets.Target{Address: a}
	}
	return list
}

func TestFilterActive(t *testing.T) {
	t.Run("keeps only active hosts in candidate order", func(t *testing.T) {
		probe := &fakeProbe{statuses: map[string]Status{
			"10.0.0.1": StatusActive,
			"10.0.0.2": StatusInactive,
			"10.0.0.3": StatusActive,
			"10.0.0.4": StatusActive,
		}}
		engine := NewEngine(probe)
		engine.SetMetrics(metrics.New())

		got := engine.FilterActive(context.Background(), candidates("10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"))
		assert.Equal(t, []string{"10.0.0.1", "10.0.0.3", "10.0.0.4"}, got.Addresses())
	})

	t.Run("probe errors are treated as inactive, not fatal", func(t *testing.T) {
		probe := &fakeProbe{
			statuses: map[string]Status{"10.0.0.1": StatusActive, "10.0.0.3": StatusActive},
			errs:     map[string]error{"10.0.0.2": errors.New("probe tool crashed")},
		}
		engine := NewEngine(probe)
		engine.SetMetrics(metrics.New())

		got := engine.FilterActive(context.Background(), candidates("10.0.0.1", "10.0.0.2", "10.0.0.3"))
		assert.Equal(t, []string{"10.0.0.1", "10.0.0.3"}, got.Addresses())
	})

	t.Run("respects its own concurrency bound", func(t *testing.T) {
		statuses := make(map[string]Status)
		var addrs []string
		for _, a := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5", "10.0.0.6"} {
			statuses[a] = StatusActive
			addrs = append(addrs, a)
		}
		probe := &fakeProbe{statuses: statuses, delay: 30 * time.Millisecond}
		engine := NewEngine(probe)
		engine.SetMetrics(metrics.New())
		engine.SetConcurrency(2)

		got := engine.FilterActive(context.Background(), candidates(addrs...))

		require.Len(t, got, 6)
		assert.LessOrEqual(t, probe.maxInFlght, int32(2))
	})

	t.Run("slow probes are cut off by the per-host timeout", func(t *testing.T) {
		probe := &fakeProbe{
			statuses: map[string]Status{"10.0.0.1": StatusActive},
			delay:    200 * time.Millisecond,
		}
		engine := NewEngine(probe)
		engine.SetMetrics(metrics.New())
		engine.SetTimeout(20 * time.Millisecond)

		got := engine.FilterActive(context.Background(), candidates("10.0.0.1"))
		assert.Empty(t, got)
	})

	t.Run("empty candidate list", func(t *testing.T) {
		engine := NewEngine(&fakeProbe{})
		engine.SetMetrics(metrics.New())
		assert.Empty(t, engine.FilterActive(context.Background(), nil))
	})
}

func TestProbeDefaults(t *testing.T) {
	assert.Equal(t, "nmap", (&NmapProbe{}).Method())
	assert.Equal(t, "tcp", (&TCPProbe{}).Method())
	assert.Equal(t, "snmp", (&SNMPProbe{}).Method())
}

func TestTCPProbeUnreachable(t *testing.T) {
	// Reserved TEST-NET-1 address; connect attempts fail fast.
	probe := &TCPProbe{Ports: []int{9}, DialTimeout: 50 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	status, err := probe.Check(ctx, "192.0.2.1")
	require.NoError(t, err)
	assert.Equal(t, StatusInactive, status)
}
