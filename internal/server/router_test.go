package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-trust-engine/internal/devotp"
	"session-trust-engine/internal/engine"
	"session-trust-engine/internal/login"
	"session-trust-engine/internal/metrics"
	"session-trust-engine/internal/security"
	"session-trust-engine/internal/server/middleware"
)

type routerFixture struct {
	handler http.Handler
	codes   *devotp.MemoryStore
	// serviceKey is sent as X-Service-Key on every request when set.
	serviceKey string
}

func newRouterFixture(t *testing.T, dev bool) *routerFixture {
	t.Helper()
	tokens, err := security.NewTestTokenProvider()
	require.NoError(t, err)
	rec := metrics.New()
	codes := devotp.NewMemoryStore()
	e := engine.New(engine.MemoryRepositories(), engine.Options{
		ChallengeTTL: time.Minute,
		DevOTP:       codes,
		Tokens:       tokens,
		Metrics:      rec,
	}, nil)
	d := Deps{
		Engine:        e,
		Tokens:        tokens,
		Metrics:       rec,
		AdminAPIKey:   "admin-key",
		ServiceAPIKey: "service-key",
	}
	if dev {
		d.DevOTP = codes
	}
	return &routerFixture{handler: NewRouter(d), codes: codes, serviceKey: "service-key"}
}

func (f *routerFixture) do(t *testing.T, method, path string, body any, auth string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if auth != "" {
		req.Header.Set("Authorization", "Bearer "+auth)
	}
	if f.serviceKey != "" {
		req.Header.Set(middleware.ServiceKeyHeader, f.serviceKey)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestRouter_OpsEndpoints(t *testing.T) {
	f := newRouterFixture(t, false)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", nil, "").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/readyz", nil, "").Code)

	m := f.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, m.Code)
	assert.True(t, strings.Contains(m.Body.String(), "go_goroutines"))
}

func TestRouter_AdminRequiresKey(t *testing.T) {
	f := newRouterFixture(t, false)

	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/v1/admin/users/u1/terminate-all", nil, "").Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodPost, "/v1/admin/users/u1/terminate-all", nil, "wrong").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/v1/admin/users/u1/terminate-all", nil, "admin-key").Code)
}

func TestRouter_ServiceRoutesRequireKey(t *testing.T) {
	f := newRouterFixture(t, false)

	calls := []struct {
		method, path string
		body         any
	}{
		{http.MethodPost, "/v1/login/evaluate", map[string]string{"userId": "victim", "fingerprintHash": "fp"}},
		{http.MethodPost, "/v1/login/challenge/verify", map[string]string{"challengeId": "ch", "code": "000000"}},
		{http.MethodPost, "/v1/login/too-many-devices/resolve", map[string]any{"userId": "victim", "fingerprintHash": "fp", "terminateOthers": true}},
		{http.MethodPost, "/v1/login/sessions/terminate-others", map[string]string{"userId": "victim", "keepDeviceId": "x"}},
		{http.MethodGet, "/v1/sessions?userId=victim", nil},
		{http.MethodPost, "/v1/sessions/s1/terminate", map[string]string{"requestingUserId": "victim"}},
	}
	for _, key := range []string{"", "wrong"} {
		f.serviceKey = key
		for _, c := range calls {
			rec := f.do(t, c.method, c.path, c.body, "")
			assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s key=%q", c.method, c.path, key)
			assert.Contains(t, rec.Body.String(), "AUTH_004")
		}
	}

	f.serviceKey = "service-key"
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/v1/sessions?userId=victim", nil, "").Code)
}

func TestRouter_DevOTPOnlyWhenEnabled(t *testing.T) {
	off := newRouterFixture(t, false)
	assert.Equal(t, http.StatusNotFound, off.do(t, http.MethodGet, "/v1/dev/otp/anything", nil, "").Code)

	on := newRouterFixture(t, true)
	on.codes.Put(context.Background(), "ch-1", "123456", time.Now().Add(time.Minute))
	rec := on.do(t, http.MethodGet, "/v1/dev/otp/ch-1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "123456")
}

func TestRouter_EndToEnd(t *testing.T) {
	f := newRouterFixture(t, true)

	rec := f.do(t, http.MethodPost, "/v1/login/evaluate", map[string]string{"userId": "u1", "fingerprintHash": "fp"}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out login.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, login.StatusNewDevice, out.Status)

	rec = f.do(t, http.MethodGet, "/v1/dev/otp/"+out.ChallengeID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var code struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &code))

	rec = f.do(t, http.MethodPost, "/v1/login/challenge/verify", map[string]string{"challengeId": out.ChallengeID, "code": code.Code}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	out = login.Outcome{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, login.StatusApproved, out.Status)
	require.NotEmpty(t, out.Token)

	rec = f.do(t, http.MethodPost, "/v1/sessions/heartbeat", nil, out.Token)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/admin/users/u1/terminate-all", nil, "admin-key")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"terminatedCount":1}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/v1/sessions/heartbeat", nil, out.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "SESS_003")

	m := f.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Contains(t, m.Body.String(), "session_trust_login_outcomes_total")
}
