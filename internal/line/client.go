// Package line sends outbound messages through the session sidecar that
// holds the live protocol connections.
package line

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chatline/chatline/internal/greeting"
	"github.com/chatline/chatline/internal/store"
	"github.com/chatline/chatline/pkg/logging"
)

// Client talks to the sidecar's outbound send API.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	logger     *logging.Logger
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logging.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a sidecar send client. baseURL is the session service
// URL (e.g. "http://localhost:3333").
func NewClient(baseURL, apiToken string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  baseURL,
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logging.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type sendRequest struct {
	TenantID  int64  `json:"tenantId"`
	Number    string `json:"number"`
	Body      string `json:"body,omitempty"`
	MediaPath string `json:"mediaPath,omitempty"`
}

type dispatchRequest struct {
	TenantID   int64  `json:"tenantId"`
	CampaignID int64  `json:"campaignId"`
	ShippingID int64  `json:"shippingId"`
	Number     string `json:"number"`
}

// Send delivers a greeting on the ticket's line. A media path makes the
// sidecar attach the stored file.
func (c *Client) Send(ctx context.Context, out greeting.Outbound) error {
	payload := sendRequest{
		TenantID:  out.TenantID,
		Number:    out.Number,
		Body:      out.Body,
		MediaPath: out.MediaPath,
	}
	url := fmt.Sprintf("%s/lines/%s/messages", c.baseURL, out.LineID)
	return c.post(ctx, url, payload)
}

// Dispatch asks the sidecar to deliver the follow-up message of a
// confirmed campaign shipping. The sidecar owns the campaign content and
// the session, so the core only identifies the shipping.
func (c *Client) Dispatch(ctx context.Context, rec *store.ShippingRecord) error {
	payload := dispatchRequest{
		TenantID:   rec.TenantID,
		CampaignID: rec.CampaignID,
		ShippingID: rec.ID,
		Number:     rec.Number,
	}
	url := fmt.Sprintf("%s/campaigns/dispatch", c.baseURL)
	return c.post(ctx, url, payload)
}

func (c *Client) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("line: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("line: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("line: send request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("line: send failed with status %d: %s", resp.StatusCode, string(msg))
	}
	return nil
}
