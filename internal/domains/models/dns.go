package models

import (
	dErrors "plinth/pkg/domain-errors"
)

// DNSStrategyKind selects how a domain is routed to the platform.
type DNSStrategyKind string

const (
	// StrategyRecords: the user keeps their DNS provider and adds an apex A
	// record plus a www CNAME pointing at the platform.
	StrategyRecords DNSStrategyKind = "records"
	// StrategyDelegation: the domain's authoritative nameservers are pointed
	// at the platform, which then manages all records.
	StrategyDelegation DNSStrategyKind = "delegation"
)

// DNSStrategy is a tagged variant: exactly one of Records or Delegation is
// set, matching Kind. Verification dispatches on Kind instead of sniffing
// which fields happen to be populated.
type DNSStrategy struct {
	Kind       DNSStrategyKind    `json:"kind"`
	Records    *RecordTargets     `json:"records,omitempty"`
	Delegation *DelegationTargets `json:"delegation,omitempty"`
}

// RecordTargets is the record set the user must configure.
type RecordTargets struct {
	// ARecord is the platform IP the apex must resolve to.
	ARecord string `json:"aRecord"`
	// CNAMETarget is the value of the www CNAME. It is the domain itself:
	// traffic is routed by host header at the load balancer, not by chained
	// CNAME resolution.
	CNAMETarget string `json:"cnameRecord"`
}

// DelegationTargets is the nameserver set the domain must delegate to.
type DelegationTargets struct {
	Nameservers []string `json:"nameservers"`
}

// RecordsStrategy builds a record-based strategy.
func RecordsStrategy(aRecord, cnameTarget string) DNSStrategy {
	return DNSStrategy{
		Kind:    StrategyRecords,
		Records: &RecordTargets{ARecord: aRecord, CNAMETarget: cnameTarget},
	}
}

// DelegationStrategy builds a nameserver-delegation strategy.
func DelegationStrategy(nameservers []string) DNSStrategy {
	return DNSStrategy{
		Kind:       StrategyDelegation,
		Delegation: &DelegationTargets{Nameservers: nameservers},
	}
}

// Validate checks the variant invariant: Kind set and matching payload present.
func (s DNSStrategy) Validate() error {
	switch s.Kind {
	case StrategyRecords:
		if s.Records == nil || s.Records.ARecord == "" {
			return dErrors.New(dErrors.CodeInvariantViolation, "records strategy requires an A record target")
		}
		if s.Delegation != nil {
			return dErrors.New(dErrors.CodeInvariantViolation, "records strategy cannot carry nameservers")
		}
	case StrategyDelegation:
		if s.Delegation == nil || len(s.Delegation.Nameservers) == 0 {
			return dErrors.New(dErrors.CodeInvariantViolation, "delegation strategy requires nameservers")
		}
		if s.Records != nil {
			return dErrors.New(dErrors.CodeInvariantViolation, "delegation strategy cannot carry record targets")
		}
	default:
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown dns strategy")
	}
	return nil
}
