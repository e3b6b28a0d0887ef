// Package wpclient talks to the management plugin of one WordPress site.
// It is a pure I/O primitive: one authenticated round trip per call, a
// per-call timeout, typed errors, no retries and no shared mutable state.
// Retry and circuit policy belong to the fleet coordinator.
package wpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wpfleet/internal/domain"
)

const (
	// HeaderAPIKey is the auth header the current plugin understands;
	// HeaderAPIKeyLegacy is accepted by older installs. Both are sent.
	HeaderAPIKey       = "X-WRM-API-Key"
	HeaderAPIKeyLegacy = "X-WRMS-API-Key"

	// apiBasePath is the plugin's REST namespace under the site base URL.
	apiBasePath = "/wp-json/wrms/v1"

	DefaultTimeout = 15 * time.Second

	// maxBodyBytes caps how much of a response is read.
	maxBodyBytes = 5 << 20
	// errBodyBytes caps how much of an error body is carried in an Error.
	errBodyBytes = 512
)

// Client fetches from remote management plugins. Safe for concurrent use.
type Client struct {
	http    *http.Client
	timeout time.Duration
}

// New returns a client applying the given per-call timeout, or
// DefaultTimeout when zero.
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		// The overall deadline is enforced per call via context so that a
		// caller-supplied shorter deadline still wins.
		http:    &http.Client{},
		timeout: timeout,
	}
}

// fetch performs one round trip and returns the raw JSON body.
func (c *Client) fetch(ctx context.Context, site domain.Site, method, path string, body any) (json.RawMessage, error) {
	if site.APIKey == "" {
		return nil, fmt.Errorf("site %s: api key is empty", site.ID)
	}
	base, err := url.Parse(site.BaseURL)
	if err != nil || !base.IsAbs() || base.Host == "" {
		return nil, fmt.Errorf("site %s: base url %q is not absolute", site.ID, site.BaseURL)
	}

	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := strings.TrimRight(site.BaseURL, "/") + apiBasePath + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderAPIKey, site.APIKey)
	req.Header.Set(HeaderAPIKeyLegacy, site.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, unreachable(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, unreachable(err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, authRejected(resp.StatusCode, truncate(raw))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, remoteError(resp.StatusCode, truncate(raw))
	}

	if !json.Valid(raw) {
		return nil, malformed(fmt.Errorf("response is not valid JSON"))
	}
	return json.RawMessage(raw), nil
}

func truncate(b []byte) string {
	if len(b) > errBodyBytes {
		b = b[:errBodyBytes]
	}
	return string(b)
}

// Status returns site metadata: core/PHP/MySQL versions, counts, SSL flag.
func (c *Client) Status(ctx context.Context, site domain.Site) (json.RawMessage, error) {
	return c.fetch(ctx, site, http.MethodGet, "/status", nil)
}

// Health is the unauthenticated liveness probe.
func (c *Client) Health(ctx context.Context, site domain.Site) (json.RawMessage, error) {
	return c.fetch(ctx, site, http.MethodGet, "/health", nil)
}

// Updates lists pending core, plugin and theme updates.
func (c *Client) Updates(ctx context.Context, site domain.Site) (json.RawMessage, error) {
	return c.fetch(ctx, site, http.MethodGet, "/updates", nil)
}

// PerformUpdates triggers remote update execution. Admin auth tier.
func (c *Client) PerformUpdates(ctx context.Context, site domain.Site, updateType string, items []string) (json.RawMessage, error) {
	payload := map[string]any{"type": updateType, "items": items}
	return c.fetch(ctx, site, http.MethodPost, "/updates/perform", payload)
}

// Plugins returns the plugin inventory with active/update flags.
func (c *Client) Plugins(ctx context.Context, site domain.Site) (json.RawMessage, error) {
	return c.fetch(ctx, site, http.MethodGet, "/plugins", nil)
}

// Themes returns the theme inventory.
func (c *Client) Themes(ctx context.Context, site domain.Site) (json.RawMessage, error) {
	return c.fetch(ctx, site, http.MethodGet, "/themes", nil)
}

// ActivatePlugin activates a plugin identified by its file path.
func (c *Client) ActivatePlugin(ctx context.Context, site domain.Site, plugin string) (json.RawMessage, error) {
	return c.fetch(ctx, site, http.MethodPost, "/plugins/activate", map[string]string{"plugin": plugin})
}

// DeactivatePlugin deactivates a plugin identified by its file path.
func (c *Client) DeactivatePlugin(ctx context.Context, site domain.Site, plugin string) (json.RawMessage, error) {
	return c.fetch(ctx, site, http.MethodPost, "/plugins/deactivate", map[string]string{"plugin": plugin})
}

// ActivateTheme switches the active theme by slug.
func (c *Client) ActivateTheme(ctx context.Context, site domain.Site, theme string) (json.RawMessage, error) {
	return c.fetch(ctx, site, http.MethodPost, "/themes/activate", map[string]string{"theme": theme})
}

// Users lists WordPress accounts. detailed requests the richer payload with
// emails included; older plugin versions ignore the flags.
func (c *Client) Users(ctx context.Context, site domain.Site, detailed bool) (json.RawMessage, error) {
	path := "/users"
	if detailed {
		path = "/users/detailed?include_email=true&detailed=true"
	}
	return c.fetch(ctx, site, http.MethodGet, path, nil)
}

// MaintenanceStatus reports whether maintenance mode is on.
func (c *Client) MaintenanceStatus(ctx context.Context, site domain.Site) (json.RawMessage, error) {
	return c.fetch(ctx, site, http.MethodGet, "/maintenance/status", nil)
}

// EnableMaintenance turns maintenance mode on, with an optional message.
func (c *Client) EnableMaintenance(ctx context.Context, site domain.Site, message string) (json.RawMessage, error) {
	var payload any
	if message != "" {
		payload = map[string]string{"message": message}
	}
	return c.fetch(ctx, site, http.MethodPost, "/maintenance/enable", payload)
}

// DisableMaintenance turns maintenance mode off.
func (c *Client) DisableMaintenance(ctx context.Context, site domain.Site) (json.RawMessage, error) {
	return c.fetch(ctx, site, http.MethodPost, "/maintenance/disable", nil)
}

// BackupStatus is the best-effort backup-plugin integration status.
func (c *Client) BackupStatus(ctx context.Context, site domain.Site) (json.RawMessage, error) {
	return c.fetch(ctx, site, http.MethodGet, "/backup/status", nil)
}
