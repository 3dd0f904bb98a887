// Package backend provides a client for the catalog/data collaborator.
//
// The collaborator is a managed Postgres-backed service; this client covers
// the narrow query surface the core needs: purchases, album membership,
// profiles, search suggestions and signed download URLs.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"github.com/sonavia/sonavia/internal/domain/catalog"
	"github.com/sonavia/sonavia/internal/domain/entitlement"
	"github.com/sonavia/sonavia/internal/domain/license"
	"github.com/sonavia/sonavia/internal/domain/track"
)

var ErrNotFound = errors.New("record not found")

// Config represents backend client configuration.
type Config struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	RateLimitRPS float64
	RateBurst    int
}

// Client is the catalog/data collaborator client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates a new backend client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("backend base URL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 10
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}, nil
}

// purchaseRecord is the wire shape of a purchase row.
type purchaseRecord struct {
	ID          string    `json:"id"`
	TrackID     string    `json:"track_id"`
	AlbumID     string    `json:"album_id"`
	LicenseType string    `json:"license_type"`
	PurchasedAt time.Time `json:"purchased_at"`
}

// PurchasesByUser returns the user's fulfilled purchase records.
func (c *Client) PurchasesByUser(ctx context.Context, userID string) ([]entitlement.Purchase, error) {
	if userID == "" {
		return nil, errors.New("user ID is required")
	}

	params := url.Values{}
	params.Set("user_id", "eq."+userID)
	params.Set("select", "id,track_id,album_id,license_type,purchased_at")

	var records []purchaseRecord
	if err := c.getJSON(ctx, "/rest/v1/purchases", params, &records); err != nil {
		return nil, errors.Wrap(err, "failed to fetch purchases")
	}

	purchases := make([]entitlement.Purchase, 0, len(records))
	for _, r := range records {
		purchases = append(purchases, entitlement.Purchase{
			ID:          r.ID,
			TrackID:     r.TrackID,
			AlbumID:     r.AlbumID,
			License:     license.Type(r.LicenseType),
			PurchasedAt: r.PurchasedAt,
		})
	}
	return purchases, nil
}

// albumRecord is the wire shape of an album row with embedded tracks.
type albumRecord struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Artist      string        `json:"artist"`
	Description string        `json:"description"`
	ArtworkURL  string        `json:"artwork_url"`
	Tracks      []trackRecord `json:"tracks"`
}

// Album returns an album with its full track listing.
func (c *Client) Album(ctx context.Context, albumID string) (catalog.Album, error) {
	if albumID == "" {
		return catalog.Album{}, errors.New("album ID is required")
	}

	params := url.Values{}
	params.Set("id", "eq."+albumID)
	params.Set("select", "id,title,artist,description,artwork_url,tracks(*)")

	var records []albumRecord
	if err := c.getJSON(ctx, "/rest/v1/albums", params, &records); err != nil {
		return catalog.Album{}, errors.Wrap(err, "failed to fetch album")
	}
	if len(records) == 0 {
		return catalog.Album{}, ErrNotFound
	}

	r := records[0]
	album := catalog.Album{
		ID:          r.ID,
		Title:       r.Title,
		Artist:      r.Artist,
		Description: r.Description,
		ArtworkURL:  r.ArtworkURL,
	}
	for _, tr := range r.Tracks {
		album.Tracks = append(album.Tracks, tr.toDomain())
	}
	return album, nil
}

// profileRecord is the wire shape of a profile row.
type profileRecord struct {
	SubscriptionStatus string    `json:"subscription_status"`
	IsSubscriber       bool      `json:"is_subscriber"`
	RenewsAt           time.Time `json:"renews_at"`
}

// Profile returns the user's subscription profile.
func (c *Client) Profile(ctx context.Context, userID string) (entitlement.Profile, error) {
	if userID == "" {
		return entitlement.Profile{}, errors.New("user ID is required")
	}

	params := url.Values{}
	params.Set("id", "eq."+userID)
	params.Set("select", "subscription_status,is_subscriber,renews_at")

	var records []profileRecord
	if err := c.getJSON(ctx, "/rest/v1/profiles", params, &records); err != nil {
		return entitlement.Profile{}, errors.Wrap(err, "failed to fetch profile")
	}
	if len(records) == 0 {
		return entitlement.Profile{}, ErrNotFound
	}

	r := records[0]
	status := entitlement.StatusNone
	switch {
	case r.IsSubscriber:
		status = entitlement.StatusSubscriber
	case r.SubscriptionStatus == "active":
		status = entitlement.StatusMember
	}
	return entitlement.Profile{Status: status, RenewsAt: r.RenewsAt}, nil
}

// trackRecord is the wire shape of a track row.
type trackRecord struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Artists       []string `json:"artists"`
	AlbumID       string   `json:"album_id"`
	DurationMs    int64    `json:"duration_ms"`
	PreviewURL    string   `json:"preview_url"`
	ArtworkURL    string   `json:"artwork_url"`
	Tags          []string `json:"tags"`
	BPM           int      `json:"bpm"`
	PriceStandard float64  `json:"price_standard"`
	PriceExtended float64  `json:"price_extended"`
}

func (r trackRecord) toDomain() track.Track {
	return track.Track{
		ID:         r.ID,
		Title:      r.Title,
		Artists:    r.Artists,
		AlbumID:    r.AlbumID,
		Duration:   time.Duration(r.DurationMs) * time.Millisecond,
		PreviewURL: r.PreviewURL,
		ArtworkURL: r.ArtworkURL,
		Tags:       r.Tags,
		BPM:        r.BPM,
		Prices: map[license.Type]float64{
			license.TypeStandard: r.PriceStandard,
			license.TypeExtended: r.PriceExtended,
		},
	}
}

// SearchTracks returns catalog tracks matching the query, for search
// suggestions. Matching is delegated to the backend's text search.
func (c *Client) SearchTracks(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 8
	}

	params := url.Values{}
	params.Set("title", "ilike.*"+query+"*")
	params.Set("limit", strconv.Itoa(limit))

	var records []trackRecord
	if err := c.getJSON(ctx, "/rest/v1/tracks", params, &records); err != nil {
		return nil, errors.Wrap(err, "failed to search tracks")
	}

	tracks := make([]track.Track, 0, len(records))
	for _, r := range records {
		tracks = append(tracks, r.toDomain())
	}
	return tracks, nil
}

// TrackDownloadURL returns a time-limited download URL for a track's
// audio asset. Requires a valid session access token.
func (c *Client) TrackDownloadURL(ctx context.Context, accessToken, trackID string) (string, error) {
	if trackID == "" {
		return "", errors.New("track ID is required")
	}

	payload, _ := json.Marshal(map[string]string{"track_id": trackID})
	body, err := c.postAuthorized(ctx, "/functions/v1/download-url", accessToken, payload)
	if err != nil {
		return "", errors.Wrap(err, "failed to request download URL")
	}

	var result struct {
		URL       string    `json:"url"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", errors.Wrap(err, "failed to decode download URL response")
	}
	if result.URL == "" {
		return "", errors.New("backend returned empty download URL")
	}
	return result.URL, nil
}

// LicenseCertificate returns the PDF license certificate for a purchase.
func (c *Client) LicenseCertificate(ctx context.Context, accessToken, purchaseID string) ([]byte, error) {
	if purchaseID == "" {
		return nil, errors.New("purchase ID is required")
	}

	payload, _ := json.Marshal(map[string]string{"purchase_id": purchaseID})
	body, err := c.postAuthorized(ctx, "/functions/v1/license-certificate", accessToken, payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to request license certificate")
	}
	if len(body) == 0 {
		return nil, errors.New("backend returned empty certificate")
	}
	return body, nil
}

// getJSON performs a rate-limited GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter wait cancelled")
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return errors.Newf("unexpected status %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

// postAuthorized performs a rate-limited POST with a bearer token and
// returns the raw response body.
func (c *Client) postAuthorized(ctx context.Context, path, accessToken string, payload []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter wait cancelled")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
