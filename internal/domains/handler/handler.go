// Package handler wires the domain lifecycle and purchase endpoints onto the
// HTTP router.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"plinth/internal/domains/models"
	"plinth/internal/domains/service"
	purchasemodels "plinth/internal/purchase/models"
	id "plinth/pkg/domain"
	dErrors "plinth/pkg/domain-errors"
	"plinth/pkg/platform/audit"
	"plinth/pkg/platform/httputil"
	"plinth/pkg/requestcontext"
)

// DomainService is the lifecycle surface the handler depends on.
type DomainService interface {
	AddDomain(ctx context.Context, rawName string, kind models.DNSStrategyKind, projectID id.ProjectID) (*models.Domain, error)
	GetDomain(ctx context.Context, domainID id.DomainID) (*models.Domain, error)
	ListDomains(ctx context.Context, projectID id.ProjectID) ([]service.Listing, error)
	ListAllDomains(ctx context.Context) ([]service.Listing, error)
	UpdateDomain(ctx context.Context, domainID id.DomainID, patch service.UpdatePatch) (*models.Domain, error)
	VerifyDomain(ctx context.Context, domainID id.DomainID) (*service.VerifyOutcome, error)
	DeployDomain(ctx context.Context, domainID id.DomainID, providerName string) (*service.DeployOutcome, error)
	DeleteDomain(ctx context.Context, domainID id.DomainID) error
	GetDeploymentLogs(ctx context.Context, domainID id.DomainID) ([]models.DeploymentLogEntry, error)
	GetAuditTrail(ctx context.Context, domainID id.DomainID) ([]audit.Event, error)
	RefetchDomain(ctx context.Context, domainID id.DomainID) (*models.Domain, error)
}

// PurchaseService is the registrar-facing surface the handler depends on.
type PurchaseService interface {
	Search(ctx context.Context, query string) ([]purchasemodels.Offer, error)
	Buy(ctx context.Context, domainName string) (purchasemodels.CheckoutSession, error)
	Order(ctx context.Context, orderRef string) (purchasemodels.Order, error)
}

// Handler exposes the domain and purchase endpoints.
type Handler struct {
	domains  DomainService
	purchase PurchaseService
	logger   *slog.Logger
}

func New(domains DomainService, purchase PurchaseService, logger *slog.Logger) *Handler {
	return &Handler{
		domains:  domains,
		purchase: purchase,
		logger:   logger,
	}
}

// Register mounts the authenticated dashboard endpoints.
func (h *Handler) Register(r chi.Router) {
	r.Route("/domains", func(r chi.Router) {
		r.Post("/", h.HandleAddDomain)
		r.Get("/", h.HandleListDomains)
		r.Route("/{domainID}", func(r chi.Router) {
			r.Get("/", h.HandleGetDomain)
			r.Patch("/", h.HandleUpdateDomain)
			r.Delete("/", h.HandleDeleteDomain)
			r.Post("/verify", h.HandleVerifyDomain)
			r.Post("/deploy", h.HandleDeployDomain)
			r.Get("/logs", h.HandleDeploymentLogs)
			r.Get("/audit", h.HandleAuditTrail)
		})
	})

	r.Route("/purchase", func(r chi.Router) {
		r.Get("/search", h.HandleSearch)
		r.Post("/checkout", h.HandleBuy)
		r.Get("/orders/{orderRef}", h.HandleOrder)
	})
}

// RegisterAdmin mounts the operator endpoints; the caller wraps them in the
// admin token middleware.
func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/domains", h.HandleListAllDomains)
	r.Post("/admin/domains/{domainID}/refetch", h.HandleRefetchDomain)
}

func (h *Handler) HandleAddDomain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if requestcontext.UserID(ctx).IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[AddDomainRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	projectID, err := req.ParsedProjectID()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if projectID.IsNil() {
		projectID = requestcontext.ProjectID(ctx)
	}

	d, err := h.domains.AddDomain(ctx, req.DomainName, req.ParsedStrategy(), projectID)
	if err != nil {
		h.logger.WarnContext(ctx, "add domain failed",
			"request_id", requestID,
			"domain", req.DomainName,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, d)
}

func (h *Handler) HandleListDomains(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	projectID := requestcontext.ProjectID(ctx)
	if raw := r.URL.Query().Get("projectId"); raw != "" {
		parsed, err := id.ParseProjectID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		projectID = parsed
	}
	if projectID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "project id is required"))
		return
	}

	listed, err := h.domains.ListDomains(ctx, projectID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"domains": listed})
}

func (h *Handler) HandleGetDomain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domainID, err := id.ParseDomainID(chi.URLParam(r, "domainID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	d, err := h.domains.GetDomain(ctx, domainID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) HandleUpdateDomain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	domainID, err := id.ParseDomainID(chi.URLParam(r, "domainID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateDomainRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	var patch service.UpdatePatch
	if req.ProjectID != nil {
		projectID, err := id.ParseProjectID(*req.ProjectID)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		patch.ProjectID = &projectID
	}
	if req.DNSStrategy != nil {
		kind := models.DNSStrategyKind(*req.DNSStrategy)
		patch.Strategy = &kind
	}

	d, err := h.domains.UpdateDomain(ctx, domainID, patch)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) HandleDeleteDomain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domainID, err := id.ParseDomainID(chi.URLParam(r, "domainID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.domains.DeleteDomain(ctx, domainID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleVerifyDomain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	domainID, err := id.ParseDomainID(chi.URLParam(r, "domainID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out, err := h.domains.VerifyDomain(ctx, domainID)
	if err != nil {
		h.logger.WarnContext(ctx, "verify failed",
			"request_id", requestID,
			"domain_id", domainID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "verification pass finished",
		"request_id", requestID,
		"domain", out.Domain.Name,
		"verified", out.Verified,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleDeployDomain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	domainID, err := id.ParseDomainID(chi.URLParam(r, "domainID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	req, ok := httputil.DecodeAndPrepare[DeployDomainRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}

	out, err := h.domains.DeployDomain(ctx, domainID, req.Provider)
	if err != nil {
		h.logger.WarnContext(ctx, "deploy failed",
			"request_id", requestID,
			"domain_id", domainID,
			"provider", req.Provider,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "deploy finished",
		"request_id", requestID,
		"domain", out.Domain.Name,
		"provider", req.Provider,
		"success", out.Success,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleDeploymentLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domainID, err := id.ParseDomainID(chi.URLParam(r, "domainID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, err := h.domains.GetDeploymentLogs(ctx, domainID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"logs": entries})
}

func (h *Handler) HandleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domainID, err := id.ParseDomainID(chi.URLParam(r, "domainID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	events, err := h.domains.GetAuditTrail(ctx, domainID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	offers, err := h.purchase.Search(ctx, r.URL.Query().Get("q"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"offers": offers})
}

func (h *Handler) HandleBuy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if requestcontext.UserID(ctx).IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[BuyDomainRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	session, err := h.purchase.Buy(ctx, req.DomainName)
	if err != nil {
		h.logger.WarnContext(ctx, "checkout failed",
			"request_id", requestID,
			"domain", req.DomainName,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, session)
}

func (h *Handler) HandleOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	order, err := h.purchase.Order(ctx, chi.URLParam(r, "orderRef"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, order)
}

func (h *Handler) HandleListAllDomains(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	listed, err := h.domains.ListAllDomains(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"domains": listed})
}

func (h *Handler) HandleRefetchDomain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	domainID, err := id.ParseDomainID(chi.URLParam(r, "domainID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	d, err := h.domains.RefetchDomain(ctx, domainID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}
