package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/amoylab/tether/internal/auth/credential"
	"github.com/amoylab/tether/internal/common/cnst"
	"github.com/amoylab/tether/internal/common/errorx"
	"github.com/amoylab/tether/internal/eventbus"
	"github.com/amoylab/tether/pkg/utils"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// Login exchanges credentials for a token pair and starts a session. The
// response is returned even when the server rejected the login.
func (c *Client) Login(ctx context.Context, username, password string) (*Response, error) {
	scope := c.tracer.Start(ctx, cnst.SpanLogin)
	defer scope.End()
	ctx = scope.Ctx

	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return nil, err
	}
	resp, err := c.do(ctx, &RequestSpec{Method: http.MethodPost, Path: c.cfg.LoginPath, Body: body}, "")
	if err != nil {
		scope.Fail(err)
		return nil, err
	}

	code, hasCode := resp.Code()
	access := gjson.GetBytes(resp.Body, "data.access_token").String()
	refresh := gjson.GetBytes(resp.Body, "data.refresh_token").String()
	if resp.StatusCode != http.StatusOK || (hasCode && code != http.StatusOK) || access == "" || refresh == "" {
		err = fmt.Errorf("%w: status %d code %d", errorx.ErrLoginRejected, resp.StatusCode, code)
		scope.Fail(err)
		return resp, err
	}

	if err := credential.SaveSession(ctx, c.store, credential.Session{AccessToken: access, RefreshToken: refresh}); err != nil {
		scope.Fail(err)
		return resp, err
	}
	c.logger.Info("logged in", zap.String("username", username), zap.String("token", utils.Redact(access)))
	c.publish(ctx, eventbus.TokenRefreshed(access))
	return resp, nil
}

// Logout tells the server the session is over, then clears local
// credentials and publishes logged-out. The server call is best effort.
func (c *Client) Logout(ctx context.Context) error {
	s, err := credential.LoadSession(ctx, c.store)
	if err != nil {
		return err
	}

	if !s.Empty() {
		body, _ := json.Marshal(map[string]string{"refresh_token": s.RefreshToken})
		resp, err := c.do(ctx, &RequestSpec{Method: http.MethodPost, Path: c.cfg.LogoutPath, Body: body}, s.AccessToken)
		if err != nil {
			c.logger.Warn("logout call failed", zap.Error(err))
		} else if resp.StatusCode >= 300 {
			c.logger.Warn("logout call rejected", zap.Int("status", resp.StatusCode))
		}
	}

	if err := credential.ClearSession(ctx, c.store); err != nil {
		return err
	}
	c.logger.Info("logged out")
	c.publish(ctx, eventbus.NewEvent(eventbus.TypeLoggedOut))
	return nil
}

// Probe issues an authenticated request purely to let a stale token go
// through the refresh flow
func (c *Client) Probe(ctx context.Context) error {
	resp, err := c.Request(ctx, &RequestSpec{Method: http.MethodGet, Path: c.cfg.ProbePath})
	if err != nil {
		return err
	}
	return resp.Err()
}
