package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"plinth/internal/deploy"
	"plinth/internal/dns"
	"plinth/internal/domains/models"
	domainstore "plinth/internal/domains/store/domain"
	logstore "plinth/internal/domains/store/logs"
	purchasemodels "plinth/internal/purchase/models"
	id "plinth/pkg/domain"
	dErrors "plinth/pkg/domain-errors"
	audit "plinth/pkg/platform/audit"
	"plinth/pkg/platform/audit/publisher"
	auditmemory "plinth/pkg/platform/audit/store/memory"
)

const testPlatformIP = "130.211.43.242"

var testNameservers = []string{"ns1.plinth-dns.com", "ns2.plinth-dns.com"}

type fakeVerifier struct {
	mu     sync.Mutex
	result dns.Result
	err    error
	calls  int
}

func (f *fakeVerifier) Verify(_ context.Context, _ *models.Domain) (dns.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

type fakeProvider struct {
	name     string
	bindErr  error
	released []string
}

func (f *fakeProvider) Name() string        { return f.name }
func (f *fakeProvider) DisplayName() string { return f.name }

func (f *fakeProvider) Bind(_ context.Context, domainName, _ string) (deploy.BindResult, error) {
	if f.bindErr != nil {
		return deploy.BindResult{}, f.bindErr
	}
	return deploy.BindResult{URL: "https://" + domainName}, nil
}

func (f *fakeProvider) Release(_ context.Context, domainName string) error {
	f.released = append(f.released, domainName)
	return nil
}

type fakeOrders struct {
	cancelled []string
}

func (f *fakeOrders) CancelByDomain(domainName string) {
	f.cancelled = append(f.cancelled, domainName)
}

type ServiceSuite struct {
	suite.Suite
	ctx context.Context

	domains    *domainstore.InMemory
	logs       *logstore.InMemory
	verifier   *fakeVerifier
	provider   *fakeProvider
	orders     *fakeOrders
	auditStore *auditmemory.InMemoryStore
	svc        *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.domains = domainstore.NewInMemory()
	s.logs = logstore.NewInMemory()
	s.verifier = &fakeVerifier{result: dns.Result{Verified: true}}
	s.provider = &fakeProvider{name: "cloud_run"}
	s.orders = &fakeOrders{}
	s.auditStore = auditmemory.NewInMemoryStore()

	registry := deploy.NewRegistry()
	registry.Register(s.provider)

	s.svc = New(s.domains, s.logs, s.verifier, registry, testPlatformIP, testNameservers,
		WithAuditPublisher(publisher.NewPublisher(s.auditStore)),
		WithOrderCanceller(s.orders),
	)
}

func (s *ServiceSuite) addDomain(name string, kind models.DNSStrategyKind, projectID id.ProjectID) *models.Domain {
	d, err := s.svc.AddDomain(s.ctx, name, kind, projectID)
	s.Require().NoError(err)
	return d
}

func (s *ServiceSuite) auditActions(domainID id.DomainID) []string {
	events, err := s.auditStore.ListByDomain(s.ctx, domainID)
	s.Require().NoError(err)
	actions := make([]string, len(events))
	for i, e := range events {
		actions[i] = e.Action
	}
	return actions
}

func (s *ServiceSuite) TestAddDomain() {
	s.Run("records strategy waits in pending", func() {
		d := s.addDomain("example.com", models.StrategyRecords, id.ProjectID{})
		s.Equal(models.StatusPending, d.Status)
		s.Equal(models.ProviderExternal, d.Provider)
		s.Require().NotNil(d.DNS.Records)
		s.Equal(testPlatformIP, d.DNS.Records.ARecord)
		s.Equal("example.com", d.DNS.Records.CNAMETarget)
		s.Contains(s.auditActions(d.ID), string(audit.EventDomainAdded))
	})

	s.Run("delegation strategy waits on nameservers", func() {
		d := s.addDomain("delegated.dev", models.StrategyDelegation, id.ProjectID{})
		s.Equal(models.StatusPendingNameservers, d.Status)
		s.Require().NotNil(d.DNS.Delegation)
		s.Equal(testNameservers, d.DNS.Delegation.Nameservers)
	})

	s.Run("duplicate name conflicts case-insensitively", func() {
		_, err := s.svc.AddDomain(s.ctx, "EXAMPLE.com", models.StrategyRecords, id.ProjectID{})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("unknown strategy rejected", func() {
		_, err := s.svc.AddDomain(s.ctx, "strategyless.net", "dynamic", id.ProjectID{})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestVerifyDomain() {
	s.Run("success moves to ssl_pending and logs", func() {
		d := s.addDomain("verified.com", models.StrategyRecords, id.ProjectID{})
		out, err := s.svc.VerifyDomain(s.ctx, d.ID)
		s.Require().NoError(err)
		s.True(out.Verified)
		s.Equal(models.StatusSSLPending, out.Domain.Status)
		s.Equal(models.SSLPending, out.Domain.SSLStatus)

		entries, err := s.logs.ListByDomain(s.ctx, d.ID)
		s.Require().NoError(err)
		s.Require().Len(entries, 1)
		s.Equal(models.LogSuccess, entries[0].Status)
		s.Contains(s.auditActions(d.ID), string(audit.EventDomainVerified))
	})

	s.Run("failure keeps waiting state with the checker message", func() {
		s.verifier.result = dns.Result{Verified: false, Message: "records not visible yet"}
		d := s.addDomain("unverified.com", models.StrategyRecords, id.ProjectID{})

		out, err := s.svc.VerifyDomain(s.ctx, d.ID)
		s.Require().NoError(err)
		s.False(out.Verified)
		s.Equal(models.StatusPending, out.Domain.Status)
		s.Equal("records not visible yet", out.Domain.StatusMessage)
		s.Contains(s.auditActions(d.ID), string(audit.EventVerifyFailed))
	})

	s.Run("verifying an active domain is a no-op reporting verified", func() {
		s.verifier.result = dns.Result{Verified: true}
		d := s.addDomain("settled.com", models.StrategyRecords, id.ProjectID{})
		_, err := s.svc.VerifyDomain(s.ctx, d.ID)
		s.Require().NoError(err)
		s.Require().NoError(s.svc.ReflectCertificate(s.ctx, d.ID, models.SSLActive))

		callsBefore := s.verifier.calls
		out, err := s.svc.VerifyDomain(s.ctx, d.ID)
		s.Require().NoError(err)
		s.True(out.Verified)
		s.Equal(models.StatusActive, out.Domain.Status)
		s.Equal(callsBefore, s.verifier.calls)
	})

	s.Run("unknown domain", func() {
		_, err := s.svc.VerifyDomain(s.ctx, id.DomainID(uuid.New()))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("held lease rejects a second operation", func() {
		d := s.addDomain("leased.com", models.StrategyRecords, id.ProjectID{})
		_, _, ok := s.svc.leases.acquire(s.ctx, d.ID, "deploy")
		s.Require().True(ok)
		defer s.svc.leases.release(d.ID)

		_, err := s.svc.VerifyDomain(s.ctx, d.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *ServiceSuite) TestDeployDomain() {
	project := id.ProjectID(uuid.New())

	s.Run("deploy without a project leaves no log entry", func() {
		d := s.addDomain("unbound.com", models.StrategyRecords, id.ProjectID{})
		_, err := s.svc.DeployDomain(s.ctx, d.ID, "cloud_run")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		entries, listErr := s.logs.ListByDomain(s.ctx, d.ID)
		s.Require().NoError(listErr)
		s.Empty(entries)
	})

	s.Run("unknown provider rejected before touching state", func() {
		d := s.addDomain("unhosted.com", models.StrategyRecords, project)
		_, err := s.svc.DeployDomain(s.ctx, d.ID, "heroku")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		got, findErr := s.svc.GetDomain(s.ctx, d.ID)
		s.Require().NoError(findErr)
		s.Equal(models.StatusPending, got.Status)
	})

	s.Run("success binds and records the live url", func() {
		d := s.addDomain("bound.com", models.StrategyRecords, project)
		out, err := s.svc.DeployDomain(s.ctx, d.ID, "cloud_run")
		s.Require().NoError(err)
		s.True(out.Success)
		s.Equal("https://bound.com", out.URL)
		s.Equal(models.StatusDeployed, out.Domain.Status)
		s.Equal(models.MappingOK, out.Domain.MappingStatus)
		s.Equal("cloud_run", out.Domain.Deployment.Provider)
		s.Require().NotNil(out.Domain.Deployment.LastDeployedAt)
		s.Contains(s.auditActions(d.ID), string(audit.EventDomainDeployed))
	})

	s.Run("bind failure reverts status and suggests delegation", func() {
		s.provider.bindErr = dErrors.New(dErrors.CodeUnavailable, "hosting control plane unavailable")
		defer func() { s.provider.bindErr = nil }()
		d := s.addDomain("failing.com", models.StrategyRecords, project)

		out, err := s.svc.DeployDomain(s.ctx, d.ID, "cloud_run")
		s.Require().NoError(err)
		s.False(out.Success)
		s.Equal(models.StatusPending, out.Domain.Status)
		s.Equal(models.MappingError, out.Domain.MappingStatus)
		s.Contains(out.Domain.MappingError, "hosting control plane unavailable")
		s.Contains(out.Domain.MappingError, "nameserver delegation")

		entries, listErr := s.logs.ListByDomain(s.ctx, d.ID)
		s.Require().NoError(listErr)
		s.Require().Len(entries, 1)
		s.Equal(models.LogFailed, entries[0].Status)
		s.Contains(s.auditActions(d.ID), string(audit.EventDeployFailed))
	})

	s.Run("redeploy replaces the binding", func() {
		d := s.addDomain("rolling.com", models.StrategyRecords, project)
		_, err := s.svc.DeployDomain(s.ctx, d.ID, "cloud_run")
		s.Require().NoError(err)

		out, err := s.svc.DeployDomain(s.ctx, d.ID, "cloud_run")
		s.Require().NoError(err)
		s.True(out.Success)
		s.Equal(models.StatusDeployed, out.Domain.Status)
	})
}

func (s *ServiceSuite) TestLifecycleEndToEnd() {
	project := id.ProjectID(uuid.New())
	d := s.addDomain("example.com", models.StrategyRecords, project)
	s.Equal(models.StatusPending, d.Status)

	out, err := s.svc.VerifyDomain(s.ctx, d.ID)
	s.Require().NoError(err)
	s.True(out.Verified)
	s.Equal(models.StatusSSLPending, out.Domain.Status)

	s.Require().NoError(s.svc.ReflectCertificate(s.ctx, d.ID, models.SSLActive))
	got, err := s.svc.GetDomain(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusActive, got.Status)
	s.Equal(models.SSLActive, got.SSLStatus)

	deployed, err := s.svc.DeployDomain(s.ctx, d.ID, "cloud_run")
	s.Require().NoError(err)
	s.True(deployed.Success)
	s.Equal("https://example.com", deployed.URL)
	s.Equal(models.StatusDeployed, deployed.Domain.Status)

	actions := s.auditActions(d.ID)
	s.Contains(actions, string(audit.EventDomainAdded))
	s.Contains(actions, string(audit.EventDomainVerified))
	s.Contains(actions, string(audit.EventCertificateActive))
	s.Contains(actions, string(audit.EventDomainDeployed))
}

func (s *ServiceSuite) TestErrorRecovery() {
	d := s.addDomain("recovering.com", models.StrategyRecords, id.ProjectID{})

	stored, err := s.domains.FindByID(s.ctx, d.ID)
	s.Require().NoError(err)
	s.Require().NoError(stored.MarkError("registrar webhook failed", stored.UpdatedAt))
	s.Require().NoError(s.domains.Update(s.ctx, stored))

	out, err := s.svc.VerifyDomain(s.ctx, d.ID)
	s.Require().NoError(err)
	s.True(out.Verified)
	s.Equal(models.StatusSSLPending, out.Domain.Status)
	s.Empty(out.Domain.StatusMessage)
}

func (s *ServiceSuite) TestDeleteDomain() {
	s.Run("deleting an unknown id succeeds quietly", func() {
		s.Require().NoError(s.svc.DeleteDomain(s.ctx, id.DomainID(uuid.New())))
	})

	s.Run("delete releases the hosting binding and stops order polling", func() {
		project := id.ProjectID(uuid.New())
		d := s.addDomain("ephemeral.com", models.StrategyRecords, project)
		_, err := s.svc.DeployDomain(s.ctx, d.ID, "cloud_run")
		s.Require().NoError(err)

		s.Require().NoError(s.svc.DeleteDomain(s.ctx, d.ID))
		s.Contains(s.provider.released, "ephemeral.com")
		s.Contains(s.orders.cancelled, "ephemeral.com")

		_, err = s.svc.GetDomain(s.ctx, d.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.Contains(s.auditActions(d.ID), string(audit.EventDomainDeleted))
	})

	s.Run("repeat delete is a no-op", func() {
		d := s.addDomain("fleeting.com", models.StrategyRecords, id.ProjectID{})
		s.Require().NoError(s.svc.DeleteDomain(s.ctx, d.ID))
		s.Require().NoError(s.svc.DeleteDomain(s.ctx, d.ID))
	})

	s.Run("deletion frees the name for reconnection", func() {
		d := s.addDomain("recycled.com", models.StrategyRecords, id.ProjectID{})
		s.Require().NoError(s.svc.DeleteDomain(s.ctx, d.ID))
		s.addDomain("recycled.com", models.StrategyRecords, id.ProjectID{})
	})
}

func (s *ServiceSuite) TestUpdateDomain() {
	s.Run("project binding", func() {
		d := s.addDomain("binding.com", models.StrategyRecords, id.ProjectID{})
		project := id.ProjectID(uuid.New())

		got, err := s.svc.UpdateDomain(s.ctx, d.ID, UpdatePatch{ProjectID: &project})
		s.Require().NoError(err)
		s.Equal(project, got.ProjectID)
		s.Contains(s.auditActions(d.ID), string(audit.EventDomainUpdated))
	})

	s.Run("strategy switch resets to the matching waiting state", func() {
		d := s.addDomain("switching.com", models.StrategyRecords, id.ProjectID{})
		_, err := s.svc.VerifyDomain(s.ctx, d.ID)
		s.Require().NoError(err)

		kind := models.StrategyDelegation
		got, err := s.svc.UpdateDomain(s.ctx, d.ID, UpdatePatch{Strategy: &kind})
		s.Require().NoError(err)
		s.Equal(models.StatusPendingNameservers, got.Status)
		s.Require().NotNil(got.DNS.Delegation)
		s.Equal(testNameservers, got.DNS.Delegation.Nameservers)
	})

	s.Run("unknown domain", func() {
		_, err := s.svc.UpdateDomain(s.ctx, id.DomainID(uuid.New()), UpdatePatch{})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestReflectCertificate() {
	s.Run("rejects unknown statuses", func() {
		d := s.addDomain("certless.com", models.StrategyRecords, id.ProjectID{})
		err := s.svc.ReflectCertificate(s.ctx, d.ID, "revoked")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("same status is a no-op", func() {
		d := s.addDomain("steady.com", models.StrategyRecords, id.ProjectID{})
		s.Require().NoError(s.svc.ReflectCertificate(s.ctx, d.ID, models.SSLNone))
		s.Len(s.auditActions(d.ID), 1)
	})

	s.Run("activation while waiting promotes the domain", func() {
		d := s.addDomain("promoted.com", models.StrategyRecords, id.ProjectID{})
		_, err := s.svc.VerifyDomain(s.ctx, d.ID)
		s.Require().NoError(err)
		s.Require().NoError(s.svc.ReflectCertificate(s.ctx, d.ID, models.SSLActive))

		got, err := s.svc.GetDomain(s.ctx, d.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusActive, got.Status)
		s.Contains(s.auditActions(d.ID), string(audit.EventCertificateActive))
	})
}

func (s *ServiceSuite) TestRecordOrderCompletion() {
	actor := id.UserID(uuid.New())

	s.Run("registrar nameservers start the delegation flow", func() {
		order := purchasemodels.Order{
			ID:          "ord_100",
			Domain:      "bought.io",
			Status:      purchasemodels.OrderCompleted,
			Nameservers: []string{"ns1.registrar.net", "ns2.registrar.net"},
		}
		s.Require().NoError(s.svc.RecordOrderCompletion(s.ctx, order, actor))

		d, err := s.domains.FindByName(s.ctx, "bought.io")
		s.Require().NoError(err)
		s.Equal(models.StatusPendingNameservers, d.Status)
		s.Equal("Registrar", d.Provider)
		s.Equal(actor, d.ProjectUserID)
		s.Require().NotNil(d.DNS.Delegation)
		s.Equal(order.Nameservers, d.DNS.Delegation.Nameservers)
	})

	s.Run("no nameservers fall back to record setup", func() {
		order := purchasemodels.Order{ID: "ord_101", Domain: "records.dev", Status: purchasemodels.OrderCompleted}
		s.Require().NoError(s.svc.RecordOrderCompletion(s.ctx, order, actor))

		d, err := s.domains.FindByName(s.ctx, "records.dev")
		s.Require().NoError(err)
		s.Equal(models.StatusPending, d.Status)
		s.Require().NotNil(d.DNS.Records)
		s.Equal(testPlatformIP, d.DNS.Records.ARecord)
	})

	s.Run("already connected name is left alone", func() {
		s.addDomain("taken.com", models.StrategyRecords, id.ProjectID{})
		order := purchasemodels.Order{ID: "ord_102", Domain: "taken.com", Status: purchasemodels.OrderCompleted}
		s.Require().NoError(s.svc.RecordOrderCompletion(s.ctx, order, actor))

		d, err := s.domains.FindByName(s.ctx, "taken.com")
		s.Require().NoError(err)
		s.Equal(models.ProviderExternal, d.Provider)
	})
}

func (s *ServiceSuite) TestListDomains() {
	project := id.ProjectID(uuid.New())
	other := id.ProjectID(uuid.New())
	s.addDomain("mine.com", models.StrategyRecords, project)
	s.addDomain("other.org", models.StrategyRecords, other)

	listed, err := s.svc.ListDomains(s.ctx, project)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal("mine.com", listed[0].Name)
	s.False(listed[0].ExpiringSoon)

	all, err := s.svc.ListAllDomains(s.ctx)
	s.Require().NoError(err)
	s.Len(all, 2)
}

func (s *ServiceSuite) TestGetDeploymentLogs() {
	s.Run("unknown domain", func() {
		_, err := s.svc.GetDeploymentLogs(s.ctx, id.DomainID(uuid.New()))
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("records the attempt history", func() {
		project := id.ProjectID(uuid.New())
		d := s.addDomain("historied.com", models.StrategyRecords, project)
		_, err := s.svc.VerifyDomain(s.ctx, d.ID)
		s.Require().NoError(err)
		_, err = s.svc.DeployDomain(s.ctx, d.ID, "cloud_run")
		s.Require().NoError(err)

		entries, err := s.svc.GetDeploymentLogs(s.ctx, d.ID)
		s.Require().NoError(err)
		s.Require().Len(entries, 2)
	})
}
