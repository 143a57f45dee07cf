// Package media downloads message attachments from the session sidecar and
// writes them under the tenant's public media directory.
package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chatline/chatline/pkg/logging"
)

// maxAttachmentBytes caps a single download; anything larger is refused
// rather than buffered.
const maxAttachmentBytes = 64 << 20

// Downloader fetches the decrypted payload of a media message.
type Downloader interface {
	Download(ctx context.Context, lineID, messageID string) (*Attachment, error)
}

// Attachment is a downloaded media payload plus the content type the
// sidecar reported for it.
type Attachment struct {
	Data     []byte
	MimeType string
}

// Client talks to the session sidecar that holds the live protocol
// connection and can decrypt media for us.
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

// NewClient creates a sidecar media client. baseURL is the session service
// URL (e.g. "http://localhost:3333").
func NewClient(baseURL, apiToken string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  baseURL,
		apiToken: apiToken,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logging.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Download fetches the decrypted attachment for a message. The sidecar
// streams the raw bytes and reports the MIME type via Content-Type.
func (c *Client) Download(ctx context.Context, lineID, messageID string) (*Attachment, error) {
	url := fmt.Sprintf("%s/lines/%s/messages/%s/media", c.baseURL, lineID, messageID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("media: create download request: %w", err)
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("media: download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("media: download failed with status %d: %s", resp.StatusCode, string(body))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAttachmentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("media: read attachment body: %w", err)
	}
	if len(data) > maxAttachmentBytes {
		return nil, fmt.Errorf("media: attachment exceeds %d bytes", maxAttachmentBytes)
	}

	return &Attachment{
		Data:     data,
		MimeType: resp.Header.Get("Content-Type"),
	}, nil
}
