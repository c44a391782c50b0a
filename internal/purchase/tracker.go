package purchase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	id "plinth/pkg/domain"
	"plinth/pkg/platform/audit"
	"plinth/pkg/platform/audit/publisher"
	"plinth/pkg/platform/scheduler"

	"plinth/internal/purchase/models"
)

// Materializer turns a completed order into a registered domain. Implemented
// by the domains orchestrator.
type Materializer interface {
	RecordOrderCompletion(ctx context.Context, order models.Order, actor id.UserID) error
}

// escalationMessage is surfaced when an order is still in flight at the end
// of the poll window. Payment has happened by then, so the order is never
// silently retried or discarded.
const escalationMessage = "order is taking longer than expected, contact support with your order reference"

// Tracker polls registrar orders until they settle. One polling task per
// order; tasks stop on terminal status, cancellation, or window expiry.
type Tracker struct {
	registrar    Registrar
	cache        *Cache
	materializer Materializer
	audit        *publisher.Publisher
	logger       *slog.Logger

	interval time.Duration
	window   time.Duration
	now      func() time.Time
	factory  scheduler.TickerFactory

	mu    sync.Mutex
	tasks map[string]*orderTask
}

type orderTask struct {
	task   *scheduler.Task
	cancel context.CancelFunc
	domain string
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithNow injects the clock used for window expiry checks.
func WithNow(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// WithTickerFactory injects the poll tick source.
func WithTickerFactory(factory scheduler.TickerFactory) TrackerOption {
	return func(t *Tracker) { t.factory = factory }
}

func NewTracker(registrar Registrar, cache *Cache, materializer Materializer, auditor *publisher.Publisher, interval, window time.Duration, logger *slog.Logger, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		registrar:    registrar,
		cache:        cache,
		materializer: materializer,
		audit:        auditor,
		logger:       logger,
		interval:     interval,
		window:       window,
		now:          time.Now,
		tasks:        make(map[string]*orderTask),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track starts polling the order. Tracking an order twice is a no-op; the
// first poller keeps running.
func (t *Tracker) Track(orderRef string, actor id.UserID) {
	if orderRef == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, running := t.tasks[orderRef]; running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	startedAt := t.now()

	opts := []scheduler.Option{scheduler.WithImmediate()}
	if t.factory != nil {
		opts = append(opts, scheduler.WithTickerFactory(t.factory))
	}
	task := scheduler.New(t.interval, t.pollFunc(orderRef, actor, startedAt), opts...)
	t.tasks[orderRef] = &orderTask{task: task, cancel: cancel}
	task.Start(ctx)

	go func() {
		<-task.Done()
		cancel()
		t.mu.Lock()
		delete(t.tasks, orderRef)
		t.mu.Unlock()
	}()
}

func (t *Tracker) pollFunc(orderRef string, actor id.UserID, startedAt time.Time) scheduler.Func {
	return func(ctx context.Context) scheduler.Signal {
		order, err := t.registrar.OrderStatus(ctx, orderRef)
		if err != nil {
			t.logger.WarnContext(ctx, "order poll failed", "order", orderRef, "error", err)
			if t.windowExpired(startedAt) {
				t.expire(ctx, orderRef, models.Order{ID: orderRef}, actor)
				return scheduler.Done
			}
			return scheduler.Continue
		}

		t.cache.PutOrder(ctx, order)
		t.rememberDomain(orderRef, order.Domain)

		switch order.Status {
		case models.OrderCompleted:
			t.complete(ctx, order, actor)
			return scheduler.Done
		case models.OrderFailed:
			t.emit(ctx, order, actor, audit.EventOrderFailed, order.Reason)
			return scheduler.Done
		}

		if t.windowExpired(startedAt) {
			t.expire(ctx, orderRef, order, actor)
			return scheduler.Done
		}
		return scheduler.Continue
	}
}

func (t *Tracker) windowExpired(startedAt time.Time) bool {
	return t.now().Sub(startedAt) >= t.window
}

func (t *Tracker) complete(ctx context.Context, order models.Order, actor id.UserID) {
	if err := t.materializer.RecordOrderCompletion(ctx, order, actor); err != nil {
		t.logger.ErrorContext(ctx, "materialize completed order failed",
			"order", order.ID, "domain", order.Domain, "error", err)
		t.emit(ctx, order, actor, audit.EventOrderFailed, "registration completed but domain setup failed: "+err.Error())
		return
	}
	t.emit(ctx, order, actor, audit.EventOrderCompleted, "")
}

// expire marks an order failed after the poll window lapses. Unpaid orders
// failed because the checkout was abandoned; anything further along gets the
// support escalation.
func (t *Tracker) expire(ctx context.Context, orderRef string, last models.Order, actor id.UserID) {
	reason := escalationMessage
	if last.Status == models.OrderPendingPayment || last.Status == "" {
		reason = "payment was not completed in time"
	}
	failed := last
	failed.ID = orderRef
	failed.Status = models.OrderFailed
	failed.Reason = reason
	t.cache.PutOrder(ctx, failed)
	t.emit(ctx, failed, actor, audit.EventOrderFailed, reason)
}

func (t *Tracker) emit(ctx context.Context, order models.Order, actor id.UserID, action audit.AuditEvent, reason string) {
	var actorStr string
	if !actor.IsNil() {
		actorStr = actor.String()
	}
	if err := t.audit.Emit(ctx, audit.Event{
		OrderRef: order.ID,
		Subject:  order.Domain,
		Action:   string(action),
		Reason:   reason,
		ActorID:  actorStr,
	}); err != nil {
		t.logger.WarnContext(ctx, "audit emit failed", "action", action, "error", err)
	}
}

func (t *Tracker) rememberDomain(orderRef, domainName string) {
	if domainName == "" {
		return
	}
	t.mu.Lock()
	if entry, ok := t.tasks[orderRef]; ok {
		entry.domain = domainName
	}
	t.mu.Unlock()
}

// Cancel stops polling an order. Used when its checkout is abandoned.
func (t *Tracker) Cancel(orderRef string) {
	t.mu.Lock()
	entry, ok := t.tasks[orderRef]
	t.mu.Unlock()
	if ok {
		entry.cancel()
		<-entry.task.Done()
	}
}

// CancelByDomain stops any poller working for the named domain. Domain
// deletion calls this so a late completion cannot resurrect the record.
func (t *Tracker) CancelByDomain(domainName string) {
	t.mu.Lock()
	var matches []*orderTask
	for _, entry := range t.tasks {
		if entry.domain == domainName {
			matches = append(matches, entry)
		}
	}
	t.mu.Unlock()
	for _, entry := range matches {
		entry.cancel()
		<-entry.task.Done()
	}
}

// Close stops all pollers and waits for them to finish.
func (t *Tracker) Close() {
	t.mu.Lock()
	entries := make([]*orderTask, 0, len(t.tasks))
	for _, entry := range t.tasks {
		entries = append(entries, entry)
	}
	t.mu.Unlock()
	for _, entry := range entries {
		entry.cancel()
		<-entry.task.Done()
	}
}
