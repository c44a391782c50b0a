// Package purchase drives domain buying: registrar search, payment-gated
// checkout, and order polling until the registrar finishes registration.
package purchase

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"plinth/internal/purchase/models"
	dErrors "plinth/pkg/domain-errors"
	"plinth/pkg/platform/circuit"
	"plinth/pkg/platform/sentinel"
)

const probeCooldown = 30 * time.Second

// Registrar is the outbound surface of the registrar API.
type Registrar interface {
	Search(ctx context.Context, query string) ([]models.Offer, error)
	CreateCheckout(ctx context.Context, domainName, returnURL string) (models.CheckoutSession, error)
	OrderStatus(ctx context.Context, orderRef string) (models.Order, error)
}

// RegistrarClient talks to the registrar over HTTP behind a circuit
// breaker. Registrar outages must not cascade into the rest of the service;
// search and buy fail fast while the breaker is open.
type RegistrarClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *circuit.Breaker

	mu        sync.Mutex
	openSince time.Time
}

func NewRegistrarClient(baseURL, apiKey string, timeout time.Duration) *RegistrarClient {
	return &RegistrarClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    circuit.New("registrar"),
	}
}

type searchResponse struct {
	Results []models.Offer `json:"results"`
}

// Search queries availability and pricing for a name and its alternatives.
func (c *RegistrarClient) Search(ctx context.Context, query string) ([]models.Offer, error) {
	var resp searchResponse
	path := "/v1/domains/search?q=" + url.QueryEscape(query)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

type checkoutRequest struct {
	Domain    string `json:"domain"`
	ReturnURL string `json:"returnUrl,omitempty"`
}

// CreateCheckout opens a payment session for the domain. Registration only
// starts after the user completes payment on the returned URL.
func (c *RegistrarClient) CreateCheckout(ctx context.Context, domainName, returnURL string) (models.CheckoutSession, error) {
	var session models.CheckoutSession
	err := c.do(ctx, http.MethodPost, "/v1/checkouts", checkoutRequest{Domain: domainName, ReturnURL: returnURL}, &session)
	if err != nil {
		return models.CheckoutSession{}, err
	}
	if session.CheckoutURL == "" {
		return models.CheckoutSession{}, dErrors.New(dErrors.CodeInternal, "registrar returned no checkout URL")
	}
	return session, nil
}

// OrderStatus polls one order by registrar reference.
func (c *RegistrarClient) OrderStatus(ctx context.Context, orderRef string) (models.Order, error) {
	var order models.Order
	if err := c.do(ctx, http.MethodGet, "/v1/orders/"+url.PathEscape(orderRef), nil, &order); err != nil {
		return models.Order{}, err
	}
	return order, nil
}

func (c *RegistrarClient) do(ctx context.Context, method, path string, body, out any) error {
	if !c.allow() {
		return dErrors.Wrap(sentinel.ErrUnavailable, dErrors.CodeUnavailable, "registrar unavailable")
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "encode registrar request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build registrar request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure()
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "registrar unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		c.recordFailure()
		return dErrors.Newf(dErrors.CodeUnavailable, "registrar returned %d", resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		c.breaker.RecordSuccess()
		return dErrors.New(dErrors.CodeNotFound, "order not found")
	case resp.StatusCode >= 400:
		c.breaker.RecordSuccess()
		return dErrors.Newf(dErrors.CodeBadRequest, "registrar rejected the request with %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	c.breaker.RecordSuccess()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "decode registrar response")
	}
	return nil
}

func (c *RegistrarClient) allow() bool {
	if !c.breaker.IsOpen() {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Since(c.openSince) >= probeCooldown {
		c.openSince = time.Now()
		return true
	}
	return false
}

func (c *RegistrarClient) recordFailure() {
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.mu.Lock()
		c.openSince = time.Now()
		c.mu.Unlock()
	}
}

func readErrorBody(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(raw) == 0 {
		return "no detail"
	}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		return payload.Error
	}
	return string(raw)
}
