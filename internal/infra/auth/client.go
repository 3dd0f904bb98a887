// Package auth provides a client for the external auth collaborator.
//
// Sessions are opaque credential bundles issued by the collaborator; this
// client owns sign-in/sign-out latency and publishes session changes on a
// notification channel consumed by the entitlement store.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoSession          = errors.New("no active session")
)

// Event represents a session change event type.
type Event string

const (
	EventSignedIn         Event = "signed_in"
	EventSignedOut        Event = "signed_out"
	EventTokenRefreshed   Event = "token_refreshed"
	EventPasswordRecovery Event = "password_recovery"
)

// Session represents an authenticated session.
type Session struct {
	UserID string
	Email  string
	Token  *oauth2.Token
}

// Equal reports whether two sessions carry the same identity and credential.
func (s *Session) Equal(other *Session) bool {
	if s == nil || other == nil {
		return s == other
	}
	return s.UserID == other.UserID && s.Token.AccessToken == other.Token.AccessToken
}

// Change represents a session change notification.
type Change struct {
	Event   Event
	Session *Session // nil for signed_out
}

// Config represents auth client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is the auth collaborator client.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu      sync.RWMutex
	current *Session

	changes chan Change
}

// New creates a new auth client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("auth base URL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		changes:    make(chan Change, 8),
	}, nil
}

// Changes returns the session change notification channel.
func (c *Client) Changes() <-chan Change {
	return c.changes
}

// CurrentSession returns the current session, or nil when anonymous.
func (c *Client) CurrentSession() *Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// tokenResponse is the collaborator's token grant response shape.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

// SignIn exchanges credentials for a session and emits a signed_in change.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	session, err := c.tokenGrant(ctx, "password", body)
	if err != nil {
		return nil, err
	}

	c.setCurrent(session)
	c.emit(Change{Event: EventSignedIn, Session: session})
	return session, nil
}

// Restore exchanges a persisted refresh token for a fresh session.
// Used on app start to resume the previous session.
func (c *Client) Restore(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, ErrNoSession
	}
	body := map[string]string{"refresh_token": refreshToken}
	session, err := c.tokenGrant(ctx, "refresh_token", body)
	if err != nil {
		return nil, err
	}

	c.setCurrent(session)
	c.emit(Change{Event: EventSignedIn, Session: session})
	return session, nil
}

// SignOut revokes the current session and emits a signed_out change.
// The local session is cleared even if revocation fails.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	session := c.current
	c.current = nil
	c.mu.Unlock()

	c.emit(Change{Event: EventSignedOut, Session: nil})

	if session == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/v1/logout", nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+session.Token.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to revoke session")
	}
	defer resp.Body.Close()
	return nil
}

func (c *Client) tokenGrant(ctx context.Context, grantType string, body map[string]string) (*Session, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode request")
	}

	reqURL := c.baseURL + "/auth/v1/token?grant_type=" + grantType
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrInvalidCredentials
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, errors.Newf("token grant failed: status=%d body=%s", resp.StatusCode, string(raw))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, errors.Wrap(err, "failed to decode token response")
	}

	return sessionFromTokenResponse(tr)
}

func sessionFromTokenResponse(tr tokenResponse) (*Session, error) {
	token := &oauth2.Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}

	userID := tr.User.ID
	if userID == "" {
		// Fall back to the subject claim of the access token.
		sub, err := subjectFromAccessToken(tr.AccessToken)
		if err != nil {
			return nil, err
		}
		userID = sub
	}

	return &Session{
		UserID: userID,
		Email:  tr.User.Email,
		Token:  token,
	}, nil
}

// subjectFromAccessToken extracts the subject claim without verifying the
// signature. Verification belongs to the collaborator; the client only needs
// the user identity carried in the token.
func subjectFromAccessToken(accessToken string) (string, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return "", errors.Wrap(err, "failed to parse access token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("access token has no subject")
	}
	return sub, nil
}

func (c *Client) setCurrent(s *Session) {
	c.mu.Lock()
	c.current = s
	c.mu.Unlock()
}

// emit publishes a change without blocking. A full channel drops the
// oldest pending change so consumers always converge on the latest state.
func (c *Client) emit(ch Change) {
	for {
		select {
		case c.changes <- ch:
			return
		default:
			select {
			case dropped := <-c.changes:
				zlog.Warn().Msgf("auth: dropping stale change event: %s", dropped.Event)
			default:
			}
		}
	}
}
