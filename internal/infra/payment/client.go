// Package payment provides the merchant-of-record checkout client.
//
// The merchant of record owns the checkout, tax and billing relationship;
// this client only creates hosted checkout sessions. Fulfilment is reported
// out-of-band through the webhook listener.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/sonavia/sonavia/internal/domain/license"
)

// Settings are the provider-specific settings decoded from configuration.
type Settings struct {
	StoreID         string `mapstructure:"store_id"`
	VariantStandard string `mapstructure:"variant_standard"`
	VariantExtended string `mapstructure:"variant_extended"`
	Embed           bool   `mapstructure:"embed"`
}

// Request describes a hosted checkout invocation.
type Request struct {
	ItemIDs   []string
	UserID    string
	License   license.Type
	Quantity  int
	Reference string // Idempotency reference for the checkout session
}

// Config represents payment client configuration.
type Config struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	Settings Settings
}

// Client creates hosted checkout sessions with the merchant of record.
type Client struct {
	baseURL    string
	apiKey     string
	settings   Settings
	httpClient *http.Client
}

// New creates a new payment client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("payment base URL is required")
	}
	if cfg.Settings.StoreID == "" {
		return nil, errors.New("payment store ID is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		settings:   cfg.Settings,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// variantFor maps a license tier to the provider's product variant.
func (c *Client) variantFor(lt license.Type) (string, error) {
	switch lt {
	case license.TypeStandard:
		return c.settings.VariantStandard, nil
	case license.TypeExtended:
		return c.settings.VariantExtended, nil
	default:
		return "", errors.Newf("no product variant configured for license type %q", lt)
	}
}

// HostedCheckoutURL creates a checkout session and returns the hosted URL
// the caller opens as a widget or redirect.
func (c *Client) HostedCheckoutURL(ctx context.Context, req Request) (string, error) {
	if len(req.ItemIDs) == 0 {
		return "", errors.New("no items to check out")
	}
	if req.UserID == "" {
		return "", errors.New("user ID is required")
	}

	variant, err := c.variantFor(req.License)
	if err != nil {
		return "", err
	}
	if variant == "" {
		return "", errors.Newf("product variant for license type %q is empty", req.License)
	}

	quantity := req.Quantity
	if quantity <= 0 {
		quantity = len(req.ItemIDs)
	}

	payload, err := json.Marshal(map[string]any{
		"store_id":  c.settings.StoreID,
		"variant":   variant,
		"quantity":  quantity,
		"embed":     c.settings.Embed,
		"reference": req.Reference,
		"custom": map[string]any{
			"user_id":  req.UserID,
			"item_ids": req.ItemIDs,
			"license":  req.License.String(),
		},
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to encode checkout request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/checkouts", bytes.NewReader(payload))
	if err != nil {
		return "", errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		return "", errors.Newf("checkout creation failed: status=%d body=%s", resp.StatusCode, string(raw))
	}

	var result struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", errors.Wrap(err, "failed to decode checkout response")
	}
	if result.URL == "" {
		return "", errors.New("provider returned empty checkout URL")
	}
	return result.URL, nil
}
