package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cacd-dev/cacd/internal/authgate"
	"github.com/cacd-dev/cacd/internal/config"
)

// apiClient talks to a running daemon's gateway over the loopback HTTP
// surface described in spec §6.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// newAPIClient resolves the daemon's base URL and access token from the
// persisted config document, the same way the gateway itself does.
func newAPIClient() (*apiClient, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, fmt.Errorf("resolve config dir: %w", err)
	}
	cfg, err := config.Load(config.DocumentPath(dir))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	port := config.ResolvePort(cfg)
	return &apiClient{
		baseURL: fmt.Sprintf("http://127.0.0.1:%d", port),
		token:   cfg.AccessToken,
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// errDaemonUnreachable normalizes every network-level failure talking to
// the daemon into one user-facing error (spec §7 "daemon unreachable").
var errDaemonUnreachable = fmt.Errorf("cacd daemon is not reachable — start it with `cacd start`")

func (c *apiClient) do(method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(authgate.HeaderName, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errDaemonUnreachable
	}
	return resp, nil
}

// decode reads a JSON response into out, surfacing the gateway's
// {"error": "..."} envelope as a plain error on non-2xx status.
func decode(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
