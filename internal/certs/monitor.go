// Package certs watches certificate provisioning on the hosting control
// plane and reflects the observed state onto domains. It never drives
// issuance; certificates are fully managed hosting-side.
package certs

import (
	"context"
	"log/slog"
	"time"

	"plinth/internal/domains/models"
	id "plinth/pkg/domain"
	"plinth/pkg/platform/scheduler"
)

// ControlPlane is the certificate read surface of the hosting API.
type ControlPlane interface {
	CertificateStatus(ctx context.Context, domainName string) (models.SSLStatus, error)
}

// Registry lists domains whose certificates are worth sweeping.
type Registry interface {
	ListByStatus(ctx context.Context, statuses ...models.DomainStatus) ([]*models.Domain, error)
}

// Reflector applies an observed certificate state to a domain.
type Reflector interface {
	ReflectCertificate(ctx context.Context, domainID id.DomainID, status models.SSLStatus) error
}

// Monitor periodically sweeps domains waiting on or holding certificates.
// A sweep failure for one domain never blocks the rest; control plane
// errors are logged and retried on the next cycle.
type Monitor struct {
	plane    ControlPlane
	registry Registry
	reflect  Reflector
	logger   *slog.Logger
	task     *scheduler.Task
}

func New(plane ControlPlane, registry Registry, reflector Reflector, interval time.Duration, logger *slog.Logger) *Monitor {
	m := &Monitor{
		plane:    plane,
		registry: registry,
		reflect:  reflector,
		logger:   logger,
	}
	m.task = scheduler.New(interval, m.sweep, scheduler.WithImmediate())
	return m
}

// Start begins sweeping until ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) { m.task.Start(ctx) }

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (m *Monitor) Stop() {
	m.task.Stop()
	<-m.task.Done()
}

func (m *Monitor) sweep(ctx context.Context) scheduler.Signal {
	domains, err := m.registry.ListByStatus(ctx, models.StatusSSLPending, models.StatusActive, models.StatusDeployed)
	if err != nil {
		m.logger.ErrorContext(ctx, "certificate sweep: list domains", "error", err)
		return scheduler.Continue
	}

	for _, d := range domains {
		status, err := m.plane.CertificateStatus(ctx, d.Name)
		if err != nil {
			m.logger.WarnContext(ctx, "certificate sweep: status lookup failed",
				"domain", d.Name, "error", err)
			continue
		}
		if status == d.SSLStatus {
			continue
		}
		if err := m.reflect.ReflectCertificate(ctx, d.ID, status); err != nil {
			m.logger.ErrorContext(ctx, "certificate sweep: reflect failed",
				"domain", d.Name, "status", status, "error", err)
		}
	}
	return scheduler.Continue
}
