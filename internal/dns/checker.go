// Package dns verifies that a domain's public DNS points at the platform.
//
// Verification is read-only: the checker resolves live records and compares
// them against the targets the domain's strategy prescribes. Lookup failures
// (NXDOMAIN, timeouts, not-yet-propagated records) are ordinary unverified
// outcomes, not errors; an error is returned only for malformed input.
package dns

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"plinth/internal/domains/models"
	dErrors "plinth/pkg/domain-errors"
)

// Resolver is the lookup surface the checker needs. Production wraps
// *net.Resolver; tests substitute a fixture.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
}

// Result is the outcome of one verification pass. Message is user-facing
// when Verified is false.
type Result struct {
	Verified bool
	Message  string
}

const lookupTimeout = 5 * time.Second

// Checker compares live DNS against a domain's configured strategy.
type Checker struct {
	resolver    Resolver
	platformIP  string
	nameservers []string
}

// New builds a checker for the given platform targets. A nil resolver
// defaults to the system resolver.
func New(resolver Resolver, platformIP string, nameservers []string) *Checker {
	if resolver == nil {
		resolver = net.DefaultResolver
	}
	return &Checker{resolver: resolver, platformIP: platformIP, nameservers: nameservers}
}

// Verify runs one pass for the domain, dispatching on its DNS strategy.
// Idempotent and side-effect-free; safe to call repeatedly.
func (c *Checker) Verify(ctx context.Context, d *models.Domain) (Result, error) {
	if d == nil || d.Name == "" {
		return Result{}, dErrors.New(dErrors.CodeInvalidInput, "domain name is required")
	}
	ctx, cancel := context.WithTimeout(ctx, lookupTimeout)
	defer cancel()

	switch d.DNS.Kind {
	case models.StrategyRecords:
		return c.verifyRecords(ctx, d.Name)
	case models.StrategyDelegation:
		return c.verifyDelegation(ctx, d.Name)
	default:
		return Result{}, dErrors.Newf(dErrors.CodeInvalidInput, "domain %s has no dns strategy", d.Name)
	}
}

// verifyRecords checks the apex A record against the platform IP and the www
// CNAME against the domain itself. Both lookups run concurrently; the A
// record decides verification, the CNAME only shapes the failure message.
func (c *Checker) verifyRecords(ctx context.Context, name string) (Result, error) {
	var (
		apexIPs []string
		cname   string
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ips, err := c.resolver.LookupHost(ctx, name)
		if err == nil {
			apexIPs = ips
		}
		return nil
	})
	g.Go(func() error {
		target, err := c.resolver.LookupCNAME(ctx, "www."+name)
		if err == nil {
			cname = strings.TrimSuffix(target, ".")
		}
		return nil
	})
	// Lookup goroutines never return errors; Wait only joins them.
	_ = g.Wait()

	if len(apexIPs) == 0 {
		return Result{Message: fmt.Sprintf("no A record found for %s yet, DNS changes can take up to 48 hours to propagate", name)}, nil
	}
	for _, ip := range apexIPs {
		if ip == c.platformIP {
			return Result{Verified: true}, nil
		}
	}
	msg := fmt.Sprintf("A record for %s points to %s, expected %s", name, strings.Join(apexIPs, ", "), c.platformIP)
	if cname != "" && !strings.EqualFold(cname, name) {
		msg += fmt.Sprintf("; www CNAME points to %s, expected %s", cname, name)
	}
	return Result{Message: msg}, nil
}

// verifyDelegation checks that the authoritative nameserver set matches the
// platform's, ignoring order and case.
func (c *Checker) verifyDelegation(ctx context.Context, name string) (Result, error) {
	records, err := c.resolver.LookupNS(ctx, name)
	if err != nil || len(records) == 0 {
		return Result{Message: fmt.Sprintf("nameservers for %s are not visible yet, delegation changes can take up to 48 hours", name)}, nil
	}

	found := make([]string, 0, len(records))
	for _, ns := range records {
		found = append(found, strings.ToLower(strings.TrimSuffix(ns.Host, ".")))
	}
	expected := make([]string, 0, len(c.nameservers))
	for _, ns := range c.nameservers {
		expected = append(expected, strings.ToLower(strings.TrimSuffix(ns, ".")))
	}
	sort.Strings(found)
	sort.Strings(expected)

	if !equalSets(found, expected) {
		return Result{Message: fmt.Sprintf(
			"nameservers for %s are %s, expected %s",
			name, strings.Join(found, ", "), strings.Join(expected, ", "),
		)}, nil
	}
	return Result{Verified: true}, nil
}

func equalSets(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
