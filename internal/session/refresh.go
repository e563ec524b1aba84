package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/amoylab/tether/internal/auth/credential"
	"github.com/amoylab/tether/internal/auth/jwt"
	"github.com/amoylab/tether/internal/common/cnst"
	"github.com/amoylab/tether/internal/common/errorx"
	"github.com/amoylab/tether/internal/eventbus"
	"github.com/amoylab/tether/pkg/utils"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// refresh exchanges the stored refresh token for a new access token. On
// success the new tokens are persisted and token-refreshed is published. Any
// failure other than the credential store being unavailable ends the session.
func (c *Client) refresh(ctx context.Context, staleToken string) (string, error) {
	scope := c.tracer.Start(ctx, cnst.SpanRefresh)
	defer scope.End()
	ctx = scope.Ctx

	start := time.Now()
	token, err := c.exchange(ctx)
	if err != nil {
		scope.Fail(err)
		if isStoreFailure(err) {
			c.metrics.RefreshDone("error", start)
			c.logger.Error("credential store unavailable during refresh", zap.Error(err))
			return "", err
		}
		c.metrics.RefreshDone("failure", start)
		c.endSession(ctx, staleToken, err)
		return "", err
	}

	c.metrics.RefreshDone("success", start)
	scope.WithAttrs(attribute.Bool("refreshed", true))
	fields := []zap.Field{zap.String("token", utils.Redact(token))}
	if exp, err := jwt.ExpiresAt(token); err == nil {
		fields = append(fields, zap.Time("expires_at", exp))
	}
	c.logger.Info("access token refreshed", fields...)
	c.publish(ctx, eventbus.TokenRefreshed(token))
	return token, nil
}

// exchange performs the refresh round trip and persists its result
func (c *Client) exchange(ctx context.Context) (string, error) {
	refreshToken, err := c.store.Get(ctx, cnst.KeyRefreshToken)
	if err != nil {
		return "", &errorx.RefreshError{Reason: errorx.ReasonStore, Err: err}
	}
	if refreshToken == "" {
		return "", &errorx.RefreshError{Reason: errorx.ReasonMissingRefreshToken}
	}

	target, err := utils.ResolveURL(c.cfg.BaseURL, c.cfg.RefreshPath)
	if err != nil {
		return "", &errorx.RefreshError{Reason: errorx.ReasonNetwork, Err: err}
	}
	payload, err := json.Marshal(map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return "", &errorx.RefreshError{Reason: errorx.ReasonNetwork, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return "", &errorx.RefreshError{Reason: errorx.ReasonNetwork, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerRequestID, uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &errorx.RefreshError{Reason: errorx.ReasonNetwork, Err: err}
	}
	raw, err := utils.ReadAndClose(resp)
	if err != nil {
		return "", &errorx.RefreshError{Reason: errorx.ReasonNetwork, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &errorx.RefreshError{Reason: errorx.ReasonStatus, Status: resp.StatusCode}
	}

	body := normalizeBody(raw)
	if code := gjson.GetBytes(body, "code"); code.Exists() && code.Int() != http.StatusOK {
		return "", &errorx.RefreshError{Reason: errorx.ReasonCode, Status: resp.StatusCode, Code: code.Int()}
	}
	access := gjson.GetBytes(body, "data.access_token").String()
	if access == "" {
		return "", &errorx.RefreshError{Reason: errorx.ReasonContract, Status: resp.StatusCode}
	}

	s := credential.Session{
		AccessToken:  access,
		RefreshToken: gjson.GetBytes(body, "data.refresh_token").String(),
	}
	if err := credential.SaveSession(ctx, c.store, s); err != nil {
		return "", &errorx.RefreshError{Reason: errorx.ReasonStore, Err: err}
	}
	return access, nil
}

// endSession clears both tokens and publishes forced-logout. A client that
// never held a session has nothing to end and stays quiet.
func (c *Client) endSession(ctx context.Context, staleToken string, cause error) {
	var re *errorx.RefreshError
	if staleToken == "" && errors.As(cause, &re) && re.Reason == errorx.ReasonMissingRefreshToken {
		c.logger.Debug("refresh skipped, no session to recover")
		return
	}

	c.logger.Warn("token refresh failed, ending session", zap.Error(cause))
	if err := credential.ClearSession(ctx, c.store); err != nil {
		c.logger.Error("failed to clear credentials", zap.Error(err))
	}
	c.publish(ctx, eventbus.NewEvent(eventbus.TypeForcedLogout))
}

func isStoreFailure(err error) bool {
	var re *errorx.RefreshError
	return errors.As(err, &re) && re.Reason == errorx.ReasonStore
}
