package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tribute-gateway/internal/pkg/env"
)

// Client talks to the VPN panel API. Only the device listing used by the
// not-connected reminder is implemented here; subscription provisioning is
// handled panel-side through the subscription URL.
type Client struct {
	BaseURL  string
	APIToken string

	HTTPClient *http.Client
}

func NewClientFromEnv() *Client {
	return &Client{
		BaseURL:  strings.TrimRight(strings.TrimSpace(env.GetEnv("PANEL_API_URL", "")), "/"),
		APIToken: strings.TrimSpace(env.GetEnv("PANEL_API_TOKEN", "")),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Device is one connected client device of a panel user.
type Device struct {
	ID       string `json:"id"`
	Platform string `json:"platform"`
	LastSeen string `json:"last_seen"`
}

// GetUserDevices lists the devices currently registered for a panel user.
// Accepts both the enveloped (`{"devices": [...]}`) and the bare-array
// response shapes the panel has shipped over time.
func (c *Client) GetUserDevices(ctx context.Context, panelUserUUID string) ([]Device, error) {
	if c.BaseURL == "" {
		return nil, errors.New("PANEL_API_URL is not configured")
	}
	if strings.TrimSpace(panelUserUUID) == "" {
		return nil, errors.New("panel user uuid is required")
	}

	endpoint := c.BaseURL + "/api/users/" + url.PathEscape(panelUserUUID) + "/devices"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIToken)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("panel devices request failed: status=%d body=%s", resp.StatusCode, string(body))
	}

	var enveloped struct {
		Devices []Device `json:"devices"`
	}
	if err := json.Unmarshal(body, &enveloped); err == nil && enveloped.Devices != nil {
		return enveloped.Devices, nil
	}

	var bare []Device
	if err := json.Unmarshal(body, &bare); err != nil {
		return nil, fmt.Errorf("panel devices response: %w", err)
	}
	return bare, nil
}
