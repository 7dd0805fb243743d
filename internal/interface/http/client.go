package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/okiru-neo/okiru-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN CLIENT
// Used by the CLI to drive a running serve process.
// ══════════════════════════════════════════════════════════════════════════════

// AdminClient calls the admin API of a serve process.
type AdminClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewAdminClient creates a client for baseURL such as "http://127.0.0.1:8080".
// A nil httpClient gets a client with a 2 minute timeout.
func NewAdminClient(baseURL, token string, httpClient *http.Client) *AdminClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &AdminClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// Sweep asks the server to run a sweep. A zero at means the server's now.
// Returns shared.ErrSweepInProgress when the server reports a running sweep.
func (c *AdminClient) Sweep(ctx context.Context, at time.Time) (*SweepResponse, error) {
	var req SweepRequest
	if !at.IsZero() {
		req.At = &at
	}

	var resp SweepResponse
	if err := c.do(ctx, http.MethodPost, "/api/admin/sweep", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status returns the server's status sections.
func (c *AdminClient) Status(ctx context.Context) (map[string]any, error) {
	var status map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/admin/status", nil, &status); err != nil {
		return nil, err
	}
	return status, nil
}

// adminEnvelope mirrors JSONResponse with the payload left undecoded.
type adminEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func (c *AdminClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return shared.WrapError("admin", method+" "+path, shared.ErrServiceUnavailable, "serve process unreachable", err)
	}
	defer resp.Body.Close()

	var env adminEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: decode response (status %d): %w", method, path, resp.StatusCode, err)
	}

	if resp.StatusCode == http.StatusConflict && env.Error != nil && env.Error.Code == "sweep_in_progress" {
		return shared.ErrSweepInProgress
	}
	if !env.Success {
		msg := http.StatusText(resp.StatusCode)
		if env.Error != nil {
			msg = env.Error.Code + ": " + env.Error.Message
		}
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, msg)
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s %s: decode data: %w", method, path, err)
	}
	return nil
}
