package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"plinth/internal/domains/models"
	dErrors "plinth/pkg/domain-errors"
	"plinth/pkg/platform/circuit"
	"plinth/pkg/platform/sentinel"
)

// probeCooldown is how long an open breaker blocks calls before a single
// probe request is let through.
const probeCooldown = 30 * time.Second

// ControlPlane is the hosting-side surface the rest of the service depends
// on. The certificate monitor shares it with the providers.
type ControlPlane interface {
	CreateMapping(ctx context.Context, provider, domainName, projectID string) (string, error)
	DeleteMapping(ctx context.Context, provider, domainName string) error
	CertificateStatus(ctx context.Context, domainName string) (models.SSLStatus, error)
}

// HostingClient talks to the hosting control plane over HTTP. All calls run
// through a circuit breaker so a degraded control plane fails fast instead
// of tying up verify and deploy operations.
type HostingClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *circuit.Breaker

	mu        sync.Mutex
	openSince time.Time
}

func NewHostingClient(baseURL, apiKey string, timeout time.Duration) *HostingClient {
	return &HostingClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    circuit.New("hosting"),
	}
}

type mappingRequest struct {
	Domain  string `json:"domain"`
	Project string `json:"project"`
}

type mappingResponse struct {
	URL string `json:"url"`
}

// CreateMapping routes the domain to the project on the given provider and
// returns the serving URL.
func (c *HostingClient) CreateMapping(ctx context.Context, provider, domainName, projectID string) (string, error) {
	var resp mappingResponse
	path := fmt.Sprintf("/v1/providers/%s/mappings", provider)
	if err := c.do(ctx, http.MethodPost, path, mappingRequest{Domain: domainName, Project: projectID}, &resp); err != nil {
		return "", err
	}
	if resp.URL == "" {
		resp.URL = "https://" + domainName
	}
	return resp.URL, nil
}

// DeleteMapping removes the domain's route. A missing mapping is treated as
// already released.
func (c *HostingClient) DeleteMapping(ctx context.Context, provider, domainName string) error {
	path := fmt.Sprintf("/v1/providers/%s/mappings/%s", provider, domainName)
	err := c.do(ctx, http.MethodDelete, path, nil, nil)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return nil
	}
	return err
}

type certificateResponse struct {
	Status models.SSLStatus `json:"status"`
}

// CertificateStatus reports the certificate state the control plane holds
// for the domain. Issuance itself is fully managed hosting-side.
func (c *HostingClient) CertificateStatus(ctx context.Context, domainName string) (models.SSLStatus, error) {
	var resp certificateResponse
	if err := c.do(ctx, http.MethodGet, "/v1/certificates/"+domainName, nil, &resp); err != nil {
		return "", err
	}
	if !resp.Status.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInternal, "hosting returned unknown certificate status %q", resp.Status)
	}
	return resp.Status, nil
}

func (c *HostingClient) do(ctx context.Context, method, path string, body, out any) error {
	if !c.allow() {
		return dErrors.Wrap(sentinel.ErrUnavailable, dErrors.CodeUnavailable, "hosting control plane unavailable")
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "encode hosting request")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "build hosting request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure()
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "hosting control plane unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		c.recordFailure()
		return dErrors.Newf(dErrors.CodeUnavailable, "hosting control plane returned %d", resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		c.breaker.RecordSuccess()
		return dErrors.New(dErrors.CodeNotFound, "hosting mapping not found")
	case resp.StatusCode >= 400:
		c.breaker.RecordSuccess()
		return dErrors.Newf(dErrors.CodeBadRequest, "hosting rejected the request with %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	c.breaker.RecordSuccess()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "decode hosting response")
	}
	return nil
}

// allow gates requests on the breaker state. When open, one probe per
// cooldown window is allowed through so recovery can be observed.
func (c *HostingClient) allow() bool {
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

func (c *HostingClient) recordFailure() {
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
