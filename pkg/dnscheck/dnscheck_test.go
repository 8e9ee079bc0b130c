package dnscheck

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/tidemark-io/tidemark/pkg/engine"
	"github.com/tidemark-io/tidemark/pkg/telemetry"
)

func testChecker(t *testing.T, lookup LookupFunc, resolvers []Resolver) *Checker {
	t.Helper()

	events, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true, EnableAsync: false})
	if err != nil {
		t.Fatalf("NewEventPublisher failed: %v", err)
	}
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error"})
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}

	return NewChecker(events, logger,
		WithLookup(lookup),
		WithResolvers(resolvers),
		WithSleep(func(ctx context.Context, d time.Duration) error { return nil }),
	)
}

func poolOf(n int) []Resolver {
	resolvers := make([]Resolver, n)
	for i := range resolvers {
		resolvers[i] = Resolver{Name: string(rune('a' + i)), Addr: "127.0.0.1:53"}
	}
	return resolvers
}

func TestCNAMEExhaustionIsWarningNotError(t *testing.T) {
	attempts := 0
	lookup := func(ctx context.Context, r Resolver, fqdn string, qtype uint16) ([]string, error) {
		attempts++
		return nil, errors.New("SERVFAIL")
	}

	events, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true, EnableAsync: false})
	if err != nil {
		t.Fatal(err)
	}
	got := make(chan telemetry.Event, 8)
	events.Subscribe(func(e telemetry.Event) { got <- e }, telemetry.FilterByType(telemetry.EventTypeDNSCheckUnconfirmed))

	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error"})
	if err != nil {
		t.Fatal(err)
	}
	c := NewChecker(events, logger,
		WithLookup(lookup),
		WithResolvers(poolOf(4)),
		WithSleep(func(ctx context.Context, d time.Duration) error { return nil }),
	)

	domains := []engine.CustomDomain{{Domain: "www.example.com", TargetDomain: "lb.tidemark.example.com"}}
	checked := c.CheckCNAME(context.Background(), "exec-1", domains)

	if attempts != 30 {
		t.Errorf("expected exactly 30 attempts, got %d", attempts)
	}
	// Exhaustion hands the input back unchanged; the warning event is the
	// only signal.
	if len(checked) != 1 || checked[0] != domains[0] {
		t.Errorf("exhaustion must return the input domains unchanged, got %v", checked)
	}

	select {
	case e := <-got:
		if e.Level != telemetry.EventLevelWarning {
			t.Errorf("exhaustion must be a warning, got level %q", e.Level)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no unconfirmed event published")
	}
}

func TestResolverSelectionIsRoundRobin(t *testing.T) {
	var queried []string
	lookup := func(ctx context.Context, r Resolver, fqdn string, qtype uint16) ([]string, error) {
		queried = append(queried, r.Name)
		return nil, errors.New("no answer")
	}

	c := testChecker(t, lookup, poolOf(4))
	c.CheckCNAME(context.Background(), "exec-1", []engine.CustomDomain{
		{Domain: "www.example.com", TargetDomain: "lb.example.com"},
	})

	if len(queried) != 30 {
		t.Fatalf("expected 30 queries, got %d", len(queried))
	}
	for i, name := range queried {
		want := string(rune('a' + i%4))
		if name != want {
			t.Errorf("attempt %d: expected resolver %q, got %q", i, want, name)
		}
	}
}

func TestCNAMEStopsOnMatch(t *testing.T) {
	attempts := 0
	lookup := func(ctx context.Context, r Resolver, fqdn string, qtype uint16) ([]string, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("not propagated")
		}
		// Trailing dot and case differences must not defeat the match.
		return []string{"LB.Example.Com."}, nil
	}

	c := testChecker(t, lookup, poolOf(2))
	checked := c.CheckCNAME(context.Background(), "exec-1", []engine.CustomDomain{
		{Domain: "www.example.com", TargetDomain: "lb.example.com"},
	})

	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
	if len(checked) != 1 {
		t.Errorf("checked domain missing from the result")
	}
}

func TestMismatchedCNAMEKeepsPolling(t *testing.T) {
	attempts := 0
	lookup := func(ctx context.Context, r Resolver, fqdn string, qtype uint16) ([]string, error) {
		attempts++
		return []string{"somewhere.else.example.net."}, nil
	}

	domains := []engine.CustomDomain{
		{Domain: "www.example.com", TargetDomain: "lb.example.com"},
	}
	c := testChecker(t, lookup, poolOf(2))
	checked := c.CheckCNAME(context.Background(), "exec-1", domains)

	// A wrong target is treated like a resolver error: poll the full
	// budget, then warn.
	if attempts != 30 {
		t.Errorf("expected the full 30-attempt budget, got %d", attempts)
	}
	if len(checked) != 1 || checked[0] != domains[0] {
		t.Errorf("mismatch must still return the input domains unchanged, got %v", checked)
	}
}

func TestCheckDomainsUsesPlainBudget(t *testing.T) {
	attempts := 0
	lookup := func(ctx context.Context, r Resolver, fqdn string, qtype uint16) ([]string, error) {
		attempts++
		if qtype != dns.TypeA {
			t.Errorf("plain readiness check should query A records, got %d", qtype)
		}
		return nil, errors.New("NXDOMAIN")
	}

	c := testChecker(t, lookup, poolOf(3))
	c.CheckDomains(context.Background(), "exec-1", []string{"app.tidemark.example.com"})

	if attempts != 100 {
		t.Errorf("expected exactly 100 attempts, got %d", attempts)
	}
}

func TestCheckDomainsStopsOnResolution(t *testing.T) {
	attempts := 0
	lookup := func(ctx context.Context, r Resolver, fqdn string, qtype uint16) ([]string, error) {
		attempts++
		return []string{"203.0.113.10"}, nil
	}

	c := testChecker(t, lookup, poolOf(3))
	c.CheckDomains(context.Background(), "exec-1", []string{"app.tidemark.example.com"})

	if attempts != 1 {
		t.Errorf("expected a single attempt, got %d", attempts)
	}
}
