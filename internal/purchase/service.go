package purchase

import (
	"context"
	"log/slog"
	"strings"

	"plinth/internal/purchase/models"
	dErrors "plinth/pkg/domain-errors"
	"plinth/pkg/platform/audit"
	"plinth/pkg/platform/audit/publisher"
	"plinth/pkg/requestcontext"
)

// Service fronts the registrar for search and checkout. Payment is entirely
// registrar-side: Buy only opens a checkout session, and registration work
// starts after the user pays there.
type Service struct {
	registrar Registrar
	cache     *Cache
	tracker   *Tracker
	audit     *publisher.Publisher
	logger    *slog.Logger
	returnURL string
}

func NewService(registrar Registrar, cache *Cache, tracker *Tracker, auditor *publisher.Publisher, returnURL string, logger *slog.Logger) *Service {
	return &Service{
		registrar: registrar,
		cache:     cache,
		tracker:   tracker,
		audit:     auditor,
		logger:    logger,
		returnURL: returnURL,
	}
}

// Search returns availability and pricing for a query, cached and sorted
// for display.
func (s *Service) Search(ctx context.Context, query string) ([]models.Offer, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "search query is required")
	}

	if offers, ok := s.cache.GetSearch(ctx, query); ok {
		return offers, nil
	}

	offers, err := s.registrar.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	SortOffers(offers)
	s.cache.PutSearch(ctx, query, offers)
	return offers, nil
}

// Buy opens a registrar checkout for the domain and starts tracking the
// resulting order. The caller redirects the user to CheckoutURL; the order
// poller picks up from there.
func (s *Service) Buy(ctx context.Context, domainName string) (models.CheckoutSession, error) {
	domainName = strings.ToLower(strings.TrimSpace(domainName))
	if domainName == "" {
		return models.CheckoutSession{}, dErrors.New(dErrors.CodeValidation, "domain name is required")
	}

	session, err := s.registrar.CreateCheckout(ctx, domainName, s.returnURL)
	if err != nil {
		return models.CheckoutSession{}, err
	}
	if session.Ref() == "" {
		return models.CheckoutSession{}, dErrors.New(dErrors.CodeInternal, "registrar returned no order reference")
	}

	if err := s.audit.Emit(ctx, audit.Event{
		OrderRef:  session.Ref(),
		Subject:   domainName,
		Action:    string(audit.EventCheckoutOpened),
		RequestID: requestcontext.RequestID(ctx),
		ActorID:   actorID(ctx),
		Client:    requestcontext.ClientLabel(ctx),
	}); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "action", audit.EventCheckoutOpened, "error", err)
	}

	s.tracker.Track(session.Ref(), requestcontext.UserID(ctx))
	return session, nil
}

// Order reports the latest known state of an order: the poller's cached
// snapshot when fresh, otherwise a direct registrar read.
func (s *Service) Order(ctx context.Context, orderRef string) (models.Order, error) {
	if orderRef == "" {
		return models.Order{}, dErrors.New(dErrors.CodeValidation, "order reference is required")
	}
	if order, ok := s.cache.GetOrder(ctx, orderRef); ok {
		return order, nil
	}
	return s.registrar.OrderStatus(ctx, orderRef)
}

// actorID renders the authenticated user for the audit trail. Background
// work has no user in context and records an empty actor.
func actorID(ctx context.Context) string {
	if uid := requestcontext.UserID(ctx); !uid.IsNil() {
		return uid.String()
	}
	return ""
}
