package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRefresher struct {
	entitlements atomic.Int32
	profiles     atomic.Int32
}

func (f *fakeRefresher) RefreshEntitlements(context.Context) error {
	f.entitlements.Add(1)
	return nil
}

func (f *fakeRefresher) RefreshSubscriptionProfile(context.Context) error {
	f.profiles.Add(1)
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeRefresher) {
	t.Helper()
	refresher := &fakeRefresher{}
	s := New(Config{Addr: ":0", Token: "hook-secret"}, refresher)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, refresher
}

func post(t *testing.T, url, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestCheckoutCompleted_TriggersRefresh(t *testing.T) {
	ts, refresher := newTestServer(t)

	resp := post(t, ts.URL+"/hooks/checkout-completed", "hook-secret",
		`{"event":"order.completed","user_id":"u1","reference":"ref-1"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Eventually(t, func() bool {
		return refresher.entitlements.Load() == 1 && refresher.profiles.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCheckoutCompleted_RejectsBadToken(t *testing.T) {
	ts, refresher := newTestServer(t)

	resp := post(t, ts.URL+"/hooks/checkout-completed", "wrong",
		`{"event":"order.completed"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = post(t, ts.URL+"/hooks/checkout-completed", "",
		`{"event":"order.completed"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Never(t, func() bool {
		return refresher.entitlements.Load() > 0
	}, 150*time.Millisecond, 20*time.Millisecond)
}

func TestCheckoutCompleted_IgnoresOtherEvents(t *testing.T) {
	ts, refresher := newTestServer(t)

	resp := post(t, ts.URL+"/hooks/checkout-completed", "hook-secret",
		`{"event":"order.refunded"}`)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	assert.Never(t, func() bool {
		return refresher.entitlements.Load() > 0
	}, 150*time.Millisecond, 20*time.Millisecond)
}

func TestCheckoutCompleted_RejectsMalformedPayload(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := post(t, ts.URL+"/hooks/checkout-completed", "hook-secret", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCheckoutCompleted_RejectsGet(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/hooks/checkout-completed")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
