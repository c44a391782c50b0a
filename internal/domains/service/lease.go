package service

import (
	"context"
	"sync"

	id "plinth/pkg/domain"
)

// leaseArena serializes lifecycle operations per domain. Verify and deploy
// both mutate status through multi-step external calls; running two at once
// on the same domain would interleave transitions. Different domains never
// contend.
type leaseArena struct {
	mu     sync.Mutex
	leases map[id.DomainID]*lease
}

type lease struct {
	op     string
	cancel context.CancelFunc
}

func newLeaseArena() *leaseArena {
	return &leaseArena{leases: make(map[id.DomainID]*lease)}
}

// acquire takes the domain's lease for the named operation and returns a
// context the operation must run under; cancelHolder aborts it. Returns the
// current holder's operation and false when the lease is already held.
func (a *leaseArena) acquire(ctx context.Context, domainID id.DomainID, op string) (context.Context, string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if current, held := a.leases[domainID]; held {
		return nil, current.op, false
	}
	opCtx, cancel := context.WithCancel(ctx)
	a.leases[domainID] = &lease{op: op, cancel: cancel}
	return opCtx, op, true
}

func (a *leaseArena) release(domainID id.DomainID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if entry, held := a.leases[domainID]; held {
		entry.cancel()
		delete(a.leases, domainID)
	}
}

// cancelHolder aborts whatever operation holds the domain's lease, if any.
// The holder releases the lease itself on the way out.
func (a *leaseArena) cancelHolder(domainID id.DomainID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if entry, held := a.leases[domainID]; held {
		entry.cancel()
	}
}

// holder reports the operation currently holding the domain's lease.
func (a *leaseArena) holder(domainID id.DomainID) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, held := a.leases[domainID]
	if !held {
		return "", false
	}
	return entry.op, true
}
