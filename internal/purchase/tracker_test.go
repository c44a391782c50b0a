package purchase

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"plinth/internal/purchase/models"
	id "plinth/pkg/domain"
	"plinth/pkg/platform/audit"
	"plinth/pkg/platform/audit/publisher"
	auditmemory "plinth/pkg/platform/audit/store/memory"
	"plinth/pkg/platform/scheduler"
)

// scriptedRegistrar serves one response per OrderStatus call, holding the
// last one once the script runs out.
type scriptedRegistrar struct {
	mu     sync.Mutex
	script []models.Order
	calls  int
}

func (r *scriptedRegistrar) OrderStatus(context.Context, string) (models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.calls
	if idx >= len(r.script) {
		idx = len(r.script) - 1
	}
	r.calls++
	return r.script[idx], nil
}

func (r *scriptedRegistrar) Search(context.Context, string) ([]models.Offer, error) {
	return nil, nil
}

func (r *scriptedRegistrar) CreateCheckout(context.Context, string, string) (models.CheckoutSession, error) {
	return models.CheckoutSession{}, nil
}

type recordingMaterializer struct {
	mu     sync.Mutex
	orders []models.Order
	err    error
}

func (m *recordingMaterializer) RecordOrderCompletion(_ context.Context, order models.Order, _ id.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, order)
	return m.err
}

func (m *recordingMaterializer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

type fakeTicker struct{ c chan time.Time }

func (f *fakeTicker) C() <-chan time.Time { return f.c }
func (f *fakeTicker) Stop()               {}

type TrackerSuite struct {
	suite.Suite
	registrar    *scriptedRegistrar
	materializer *recordingMaterializer
	store        *auditmemory.InMemoryStore
	ticker       *fakeTicker
	nowMu        sync.Mutex
	now          time.Time
}

func TestTrackerSuite(t *testing.T) {
	suite.Run(t, new(TrackerSuite))
}

func (s *TrackerSuite) SetupTest() {
	s.registrar = &scriptedRegistrar{}
	s.materializer = &recordingMaterializer{}
	s.store = auditmemory.NewInMemoryStore()
	s.ticker = &fakeTicker{c: make(chan time.Time, 1)}
	s.now = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
}

func (s *TrackerSuite) clock() time.Time {
	s.nowMu.Lock()
	defer s.nowMu.Unlock()
	return s.now
}

func (s *TrackerSuite) advance(d time.Duration) {
	s.nowMu.Lock()
	s.now = s.now.Add(d)
	s.nowMu.Unlock()
}

func (s *TrackerSuite) newTracker() *Tracker {
	return NewTracker(
		s.registrar,
		nil,
		s.materializer,
		publisher.NewPublisher(s.store),
		3*time.Second,
		15*time.Minute,
		slog.New(slog.DiscardHandler),
		WithNow(s.clock),
		WithTickerFactory(func(time.Duration) scheduler.Ticker { return s.ticker }),
	)
}

// waitDone blocks until the tracker drops the order's task.
func (s *TrackerSuite) waitDone(t *Tracker, orderRef string) {
	deadline := time.After(2 * time.Second)
	for {
		t.mu.Lock()
		_, running := t.tasks[orderRef]
		t.mu.Unlock()
		if !running {
			return
		}
		select {
		case <-deadline:
			s.FailNow("tracker did not settle")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (s *TrackerSuite) actions() []string {
	events, err := s.store.ListAll(context.Background())
	s.Require().NoError(err)
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Action
	}
	return out
}

func (s *TrackerSuite) TestCompletedOrderMaterializesDomain() {
	s.registrar.script = []models.Order{
		{ID: "ord_1", Domain: "example.com", Status: models.OrderRegistering},
		{ID: "ord_1", Domain: "example.com", Status: models.OrderConfiguringDNS},
		{ID: "ord_1", Domain: "example.com", Status: models.OrderCompleted, Nameservers: []string{"ns1.plinth-dns.com"}},
	}
	tracker := s.newTracker()
	tracker.Track("ord_1", id.UserID(uuid.New()))

	s.ticker.c <- time.Time{}
	s.ticker.c <- time.Time{}
	s.waitDone(tracker, "ord_1")

	s.Equal(1, s.materializer.count())
	s.Contains(s.actions(), string(audit.EventOrderCompleted))
}

func (s *TrackerSuite) TestFailedOrderStopsWithoutRetry() {
	s.registrar.script = []models.Order{
		{ID: "ord_2", Domain: "example.com", Status: models.OrderFailed, Reason: "card declined"},
	}
	tracker := s.newTracker()
	tracker.Track("ord_2", id.UserID(uuid.New()))
	s.waitDone(tracker, "ord_2")

	s.Equal(0, s.materializer.count())
	s.Equal(1, s.registrar.calls)

	events, err := s.store.ListAll(context.Background())
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventOrderFailed), events[0].Action)
	s.Equal("card declined", events[0].Reason)
}

func (s *TrackerSuite) TestWindowExpiryEscalates() {
	s.registrar.script = []models.Order{
		{ID: "ord_3", Domain: "example.com", Status: models.OrderRegistering},
	}
	tracker := s.newTracker()
	tracker.Track("ord_3", id.UserID(uuid.New()))

	s.advance(16 * time.Minute)
	s.ticker.c <- time.Time{}
	s.waitDone(tracker, "ord_3")

	events, err := s.store.ListAll(context.Background())
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(string(audit.EventOrderFailed), events[0].Action)
	s.Contains(events[0].Reason, "contact support")
}

func (s *TrackerSuite) TestAbandonedCheckoutFailsWithoutEscalation() {
	s.registrar.script = []models.Order{
		{ID: "ord_4", Domain: "example.com", Status: models.OrderPendingPayment},
	}
	tracker := s.newTracker()
	tracker.Track("ord_4", id.UserID(uuid.New()))

	s.advance(16 * time.Minute)
	s.ticker.c <- time.Time{}
	s.waitDone(tracker, "ord_4")

	events, err := s.store.ListAll(context.Background())
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Contains(events[0].Reason, "payment was not completed")
	s.NotContains(events[0].Reason, "contact support")
}

func (s *TrackerSuite) TestCancelByDomainStopsPolling() {
	s.registrar.script = []models.Order{
		{ID: "ord_5", Domain: "example.com", Status: models.OrderRegistering},
	}
	tracker := s.newTracker()
	tracker.Track("ord_5", id.UserID(uuid.New()))

	// Let the immediate poll record the domain name.
	s.Require().Eventually(func() bool {
		tracker.mu.Lock()
		defer tracker.mu.Unlock()
		entry, ok := tracker.tasks["ord_5"]
		return ok && entry.domain == "example.com"
	}, time.Second, 5*time.Millisecond)

	tracker.CancelByDomain("example.com")
	s.waitDone(tracker, "ord_5")
	s.Equal(0, s.materializer.count())
}

func (s *TrackerSuite) TestTrackIsIdempotent() {
	s.registrar.script = []models.Order{
		{ID: "ord_6", Domain: "example.com", Status: models.OrderRegistering},
		{ID: "ord_6", Domain: "example.com", Status: models.OrderCompleted},
	}
	tracker := s.newTracker()
	actor := id.UserID(uuid.New())
	tracker.Track("ord_6", actor)
	tracker.Track("ord_6", actor)

	s.ticker.c <- time.Time{}
	s.waitDone(tracker, "ord_6")

	s.Equal(1, s.materializer.count())
	s.Equal(2, s.registrar.calls)
}
