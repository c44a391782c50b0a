package certs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"plinth/internal/domains/models"
	id "plinth/pkg/domain"
	"plinth/pkg/platform/scheduler"
)

type fakePlane struct {
	mu       sync.Mutex
	statuses map[string]models.SSLStatus
	errors   map[string]error
}

func (f *fakePlane) CertificateStatus(_ context.Context, name string) (models.SSLStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errors[name]; ok {
		return "", err
	}
	return f.statuses[name], nil
}

type fakeRegistry struct {
	mu      sync.Mutex
	domains []*models.Domain
}

func (f *fakeRegistry) ListByStatus(_ context.Context, statuses ...models.DomainStatus) ([]*models.Domain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Domain
	for _, d := range f.domains {
		for _, status := range statuses {
			if d.Status == status {
				out = append(out, d)
				break
			}
		}
	}
	return out, nil
}

type reflected struct {
	domainID id.DomainID
	status   models.SSLStatus
}

type fakeReflector struct {
	mu    sync.Mutex
	calls []reflected
}

func (f *fakeReflector) ReflectCertificate(_ context.Context, domainID id.DomainID, status models.SSLStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, reflected{domainID: domainID, status: status})
	return nil
}

func (f *fakeReflector) snapshot() []reflected {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]reflected, len(f.calls))
	copy(out, f.calls)
	return out
}

type MonitorSuite struct {
	suite.Suite
	plane     *fakePlane
	registry  *fakeRegistry
	reflector *fakeReflector
	monitor   *Monitor
}

func TestMonitorSuite(t *testing.T) {
	suite.Run(t, new(MonitorSuite))
}

func (s *MonitorSuite) SetupTest() {
	s.plane = &fakePlane{statuses: map[string]models.SSLStatus{}, errors: map[string]error{}}
	s.registry = &fakeRegistry{}
	s.reflector = &fakeReflector{}
	s.monitor = New(s.plane, s.registry, s.reflector, time.Minute, slog.New(slog.DiscardHandler))
}

func (s *MonitorSuite) addDomain(name string, status models.DomainStatus, ssl models.SSLStatus) *models.Domain {
	d := &models.Domain{
		ID:        id.DomainID(uuid.New()),
		Name:      name,
		Status:    status,
		SSLStatus: ssl,
	}
	s.registry.domains = append(s.registry.domains, d)
	return d
}

func (s *MonitorSuite) TestSweepReflectsChangedCertificates() {
	waiting := s.addDomain("waiting.com", models.StatusSSLPending, models.SSLProvisioning)
	s.addDomain("steady.com", models.StatusActive, models.SSLActive)
	s.addDomain("ignored.com", models.StatusPending, models.SSLNone)

	s.plane.statuses["waiting.com"] = models.SSLActive
	s.plane.statuses["steady.com"] = models.SSLActive
	s.plane.statuses["ignored.com"] = models.SSLActive

	signal := s.monitor.sweep(context.Background())
	s.Equal(scheduler.Continue, signal)

	calls := s.reflector.snapshot()
	s.Require().Len(calls, 1)
	s.Equal(waiting.ID, calls[0].domainID)
	s.Equal(models.SSLActive, calls[0].status)
}

func (s *MonitorSuite) TestSweepContinuesPastLookupFailures() {
	s.addDomain("broken.com", models.StatusSSLPending, models.SSLPending)
	healthy := s.addDomain("healthy.com", models.StatusSSLPending, models.SSLPending)

	s.plane.errors["broken.com"] = errors.New("control plane timeout")
	s.plane.statuses["healthy.com"] = models.SSLProvisioning

	s.monitor.sweep(context.Background())

	calls := s.reflector.snapshot()
	s.Require().Len(calls, 1)
	s.Equal(healthy.ID, calls[0].domainID)
}

func (s *MonitorSuite) TestStartStop() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.monitor.Start(ctx)
	s.monitor.Stop()

	select {
	case <-s.monitor.task.Done():
	case <-time.After(time.Second):
		s.Fail("monitor did not stop")
	}
}
