package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/amoylab/tether/internal/auth/jwt"
	"github.com/amoylab/tether/internal/common/config"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, renewalWindow time.Duration) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.MockServerConfig{SecretKey: "0123456789abcdef0123456789abcdef", RenewalWindow: renewalWindow}
	cfg.SetDefaults()
	tokens, err := jwt.NewService(jwt.Config{
		SecretKey:       cfg.SecretKey,
		AccessDuration:  cfg.AccessDuration,
		RefreshDuration: cfg.RefreshDuration,
	})
	require.NoError(t, err)

	srv := httptest.NewServer(newServer(zap.NewNop(), cfg, tokens).handler())
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp, buf.Bytes()
}

func login(t *testing.T, base string) (string, string) {
	t.Helper()
	resp, body := call(t, http.MethodPost, base+"/auth/login", "", map[string]string{"username": "alice", "password": "secret"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, int64(200), gjson.GetBytes(body, "code").Int())
	return gjson.GetBytes(body, "data.access_token").String(), gjson.GetBytes(body, "data.refresh_token").String()
}

func TestServer_LoginRejectsBadPassword(t *testing.T) {
	srv := newTestServer(t, 0)
	resp, body := call(t, http.MethodPost, srv.URL+"/auth/login", "", map[string]string{"username": "alice", "password": "nope"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(403), gjson.GetBytes(body, "code").Int())
}

func TestServer_SessionLifecycle(t *testing.T) {
	srv := newTestServer(t, 0)
	access, refresh := login(t, srv.URL)

	resp, body := call(t, http.MethodGet, srv.URL+"/api/profile", access, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", gjson.GetBytes(body, "data.username").String())
	assert.Empty(t, resp.Header.Get(config.DefaultRenewalHeader))

	resp, _ = call(t, http.MethodGet, srv.URL+"/api/profile", refresh, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp, body = call(t, http.MethodGet, srv.URL+"/api/profile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int64(401), gjson.GetBytes(body, "code").Int())

	resp, body = call(t, http.MethodPost, srv.URL+"/auth/refresh", "", map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	newAccess := gjson.GetBytes(body, "data.access_token").String()
	newRefresh := gjson.GetBytes(body, "data.refresh_token").String()
	assert.NotEmpty(t, newAccess)
	assert.NotEqual(t, refresh, newRefresh)

	// refresh tokens are single use
	resp, _ = call(t, http.MethodPost, srv.URL+"/auth/refresh", "", map[string]string{"refresh_token": refresh})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = call(t, http.MethodPost, srv.URL+"/auth/logout", newAccess, map[string]string{"refresh_token": newRefresh})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = call(t, http.MethodPost, srv.URL+"/auth/refresh", "", map[string]string{"refresh_token": newRefresh})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_RenewalHeader(t *testing.T) {
	srv := newTestServer(t, 24*time.Hour)
	access, _ := login(t, srv.URL)

	resp, _ := call(t, http.MethodGet, srv.URL+"/api/profile", access, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	renewed := resp.Header.Get(config.DefaultRenewalHeader)
	require.NotEmpty(t, renewed)
	assert.NotEqual(t, access, renewed)

	resp, _ = call(t, http.MethodGet, srv.URL+"/api/profile", renewed, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Echo(t *testing.T) {
	srv := newTestServer(t, 0)
	access, _ := login(t, srv.URL)

	resp, body := call(t, http.MethodPost, srv.URL+"/api/echo", access, map[string]int{"n": 1})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"code":200,"data":{"n":1}}`, string(body))
}

func TestServer_WebSocket(t *testing.T) {
	srv := newTestServer(t, 0)
	access, _ := login(t, srv.URL)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer not-a-jwt"}},
	})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + access}},
	})
	require.NoError(t, err)
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "welcome", gjson.GetBytes(data, "event").String())
	assert.Equal(t, "alice", gjson.GetBytes(data, "payload.username").String())

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"event":"ping"}`)))
	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"pong"}`, string(data))

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"event":"chat","payload":{"text":"hi"}}`)))
	_, data, err = conn.Read(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"chat","payload":{"text":"hi"}}`, string(data))
}
