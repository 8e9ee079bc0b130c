// Package dnscheck verifies DNS readiness of service-exposed domains.
//
// Checks are best-effort by contract: DNS propagation delay and CDN fronting
// are expected, so an unconfirmed domain produces a warning event and the
// original input is returned unchanged. The prober never fails a deployment.
package dnscheck

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/tidemark-io/tidemark/pkg/engine"
	"github.com/tidemark-io/tidemark/pkg/retry"
	"github.com/tidemark-io/tidemark/pkg/telemetry"
)

// Retry budgets. CNAME checks gate custom-domain verification and poll
// faster overall; plain readiness checks get a longer total window.
const (
	cnameDelay    = 5 * time.Second
	cnameAttempts = 30

	domainDelay    = 3 * time.Second
	domainAttempts = 100
)

// Resolver is one DNS server in the probe pool.
type Resolver struct {
	// Name identifies the resolver in logs.
	Name string

	// Addr is the resolver's host:port.
	Addr string
}

// LookupFunc performs one DNS query against one resolver and returns the
// answer values (CNAME targets or A/AAAA addresses).
type LookupFunc func(ctx context.Context, resolver Resolver, fqdn string, qtype uint16) ([]string, error)

// Checker probes domains against a rotating resolver pool. Implements
// engine.DomainChecker.
type Checker struct {
	resolvers []Resolver
	lookup    LookupFunc
	sleep     func(ctx context.Context, d time.Duration) error

	events  *telemetry.EventPublisher
	metrics *telemetry.Metrics
	logger  *telemetry.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithLookup substitutes the DNS query function. Used by tests.
func WithLookup(lookup LookupFunc) Option {
	return func(c *Checker) { c.lookup = lookup }
}

// WithSleep substitutes the inter-attempt sleep. Used by tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Checker) { c.sleep = sleep }
}

// WithResolvers replaces the default resolver pool.
func WithResolvers(resolvers []Resolver) Option {
	return func(c *Checker) { c.resolvers = resolvers }
}

// WithMetrics attaches probe metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Checker) { c.metrics = m }
}

// NewChecker creates a checker over the default resolver pool: the major
// public resolvers plus whatever the host system is configured with.
func NewChecker(events *telemetry.EventPublisher, logger *telemetry.Logger, opts ...Option) *Checker {
	c := &Checker{
		resolvers: defaultResolvers(),
		lookup:    dnsLookup,
		events:    events,
		logger:    logger.NewComponentLogger("dnscheck"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// defaultResolvers returns the public resolver pool plus the system
// resolver when one can be read from the host configuration.
func defaultResolvers() []Resolver {
	resolvers := []Resolver{
		{Name: "google", Addr: "8.8.8.8:53"},
		{Name: "cloudflare", Addr: "1.1.1.1:53"},
		{Name: "quad9", Addr: "9.9.9.9:53"},
	}
	if cfg, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil && len(cfg.Servers) > 0 {
		resolvers = append(resolvers, Resolver{
			Name: "system",
			Addr: fmt.Sprintf("%s:%s", cfg.Servers[0], cfg.Port),
		})
	}
	return resolvers
}

// CheckCNAME implements engine.DomainChecker. Each custom domain is polled
// until its CNAME resolves to the expected target or the budget is
// exhausted. A resolver error and a mismatched target are treated alike:
// keep polling, and warn on exhaustion. The input domains are returned
// unchanged either way; confirmation is reported through events, never by
// dropping a domain from the result.
func (c *Checker) CheckCNAME(ctx context.Context, executionID string, domains []engine.CustomDomain) []engine.CustomDomain {
	checked := make([]engine.CustomDomain, 0, len(domains))

	for _, domain := range domains {
		pool := retry.NewPool(c.resolvers)
		policy := retry.Policy{Schedule: retry.Fixed(cnameDelay, cnameAttempts-1), Sleep: c.sleep}

		target, err := retry.Do(ctx, policy, func(attempt int) (string, retry.Outcome) {
			resolver := pool.Next()
			c.recordAttempt("cname")

			values, lookupErr := c.lookup(ctx, resolver, domain.Domain, dns.TypeCNAME)
			if lookupErr != nil {
				c.logger.WithExecutionID(executionID).
					Debugf("cname lookup of %s via %s failed: %v", domain.Domain, resolver.Name, lookupErr)
				return "", retry.Retry
			}
			for _, v := range values {
				if normalizeDomain(v) == normalizeDomain(domain.TargetDomain) {
					return v, retry.Done
				}
			}
			return "", retry.Retry
		})

		if err != nil {
			c.recordOutcome("cname", "unconfirmed")
			c.events.PublishDNSUnconfirmed(executionID, domain.Domain,
				fmt.Sprintf("Custom domain %s could not be confirmed to point to %s yet. DNS propagation can take some time, the domain will keep working once records are in place.",
					domain.Domain, domain.TargetDomain))
		} else {
			c.recordOutcome("cname", "resolved")
			c.events.PublishDNSResolved(executionID, domain.Domain, target)
		}
		checked = append(checked, domain)
	}

	return checked
}

// CheckDomains implements engine.DomainChecker. Verifies plain A/AAAA
// resolution of each domain.
func (c *Checker) CheckDomains(ctx context.Context, executionID string, domains []string) {
	for _, domain := range domains {
		pool := retry.NewPool(c.resolvers)
		policy := retry.Policy{Schedule: retry.Fixed(domainDelay, domainAttempts-1), Sleep: c.sleep}

		resolved, err := retry.Do(ctx, policy, func(attempt int) (string, retry.Outcome) {
			resolver := pool.Next()
			c.recordAttempt("a")

			values, lookupErr := c.lookup(ctx, resolver, domain, dns.TypeA)
			if lookupErr != nil || len(values) == 0 {
				return "", retry.Retry
			}
			return values[0], retry.Done
		})

		if err != nil {
			c.recordOutcome("a", "unconfirmed")
			c.events.PublishDNSUnconfirmed(executionID, domain,
				fmt.Sprintf("Domain %s could not be resolved yet, DNS propagation may still be in progress.", domain))
			continue
		}

		c.recordOutcome("a", "resolved")
		c.events.PublishDNSResolved(executionID, domain, resolved)
	}
}

func (c *Checker) recordAttempt(recordType string) {
	if c.metrics != nil {
		c.metrics.DNSProbeAttempt(recordType)
	}
}

func (c *Checker) recordOutcome(recordType, outcome string) {
	if c.metrics != nil {
		c.metrics.DNSProbeOutcome(recordType, outcome)
	}
}

// normalizeDomain strips the trailing dot and lowercases for comparison.
func normalizeDomain(d string) string {
	return strings.ToLower(strings.TrimSuffix(d, "."))
}

// dnsLookup queries one resolver directly. The stdlib resolver cannot be
// pointed at a specific server per query, which round-robin probing needs.
func dnsLookup(ctx context.Context, resolver Resolver, fqdn string, qtype uint16) ([]string, error) {
	client := new(dns.Client)
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(fqdn), qtype)

	resp, _, err := client.ExchangeContext(ctx, msg, resolver.Addr)
	if err != nil {
		return nil, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("resolver %s answered %s for %s", resolver.Name, dns.RcodeToString[resp.Rcode], fqdn)
	}

	var values []string
	for _, rr := range resp.Answer {
		switch record := rr.(type) {
		case *dns.CNAME:
			values = append(values, record.Target)
		case *dns.A:
			values = append(values, record.A.String())
		case *dns.AAAA:
			values = append(values, record.AAAA.String())
		}
	}
	return values, nil
}
