// Package e2e drives black-box scenarios against a running server. Point
// E2E_BASE_URL at the instance under test and supply a valid session token
// via E2E_SESSION_TOKEN.
package e2e

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TestContext carries request state across scenario steps: the HTTP client,
// the last response, and identifiers saved by earlier steps.
type TestContext struct {
	baseURL      string
	sessionToken string
	client       *http.Client

	lastStatus int
	lastBody   map[string]any

	domainID string
	orderRef string
	runID    string
}

func NewTestContext(baseURL, sessionToken string) *TestContext {
	return &TestContext{
		baseURL:      baseURL,
		sessionToken: sessionToken,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

// Reset clears per-scenario state so scenarios stay independent. Each
// scenario gets a fresh run id for {run} expansion in domain names, so
// reruns against a persistent server never collide on uniqueness.
func (tc *TestContext) Reset() {
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.domainID = ""
	tc.orderRef = ""

	raw := make([]byte, 4)
	_, _ = rand.Read(raw)
	tc.runID = hex.EncodeToString(raw)
}

// Expand substitutes the {run} placeholder in feature text with the
// scenario's run id.
func (tc *TestContext) Expand(s string) string {
	return strings.ReplaceAll(s, "{run}", tc.runID)
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body, true)
}

func (tc *TestContext) GET(path string) error {
	return tc.do(http.MethodGet, path, nil, true)
}

func (tc *TestContext) DELETE(path string) error {
	return tc.do(http.MethodDelete, path, nil, true)
}

// GETUnauthenticated issues a request without the session token, for steps
// exercising the auth boundary.
func (tc *TestContext) GETUnauthenticated(path string) error {
	return tc.do(http.MethodGet, path, nil, false)
}

func (tc *TestContext) do(method, path string, body any, authed bool) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, tc.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed && tc.sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+tc.sessionToken)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastBody = nil
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if len(raw) > 0 {
		// Non-JSON bodies are fine; steps that need fields will fail loudly.
		_ = json.Unmarshal(raw, &tc.lastBody)
	}
	return nil
}

func (tc *TestContext) LastStatus() int {
	return tc.lastStatus
}

// GetResponseField returns a field from the last JSON response, descending
// into nested objects via dot notation ("domain.status").
func (tc *TestContext) GetResponseField(field string) (any, error) {
	if tc.lastBody == nil {
		return nil, fmt.Errorf("no JSON response recorded")
	}
	var current any = tc.lastBody
	for _, part := range splitDots(field) {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", field, part)
		}
		current, ok = obj[part]
		if !ok {
			return nil, fmt.Errorf("field %q not present in response", field)
		}
	}
	return current, nil
}

func (tc *TestContext) SetDomainID(id string) { tc.domainID = id }
func (tc *TestContext) GetDomainID() string   { return tc.domainID }
func (tc *TestContext) SetOrderRef(ref string) { tc.orderRef = ref }
func (tc *TestContext) GetOrderRef() string    { return tc.orderRef }

func splitDots(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
