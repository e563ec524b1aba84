package session

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/amoylab/tether/internal/common/errorx"
	"github.com/tidwall/gjson"
)

// RequestSpec describes one outbound call. Path is either an absolute URL or
// a path relative to the configured base URL.
type RequestSpec struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Response is the outcome of a call as seen by the caller. Body holds the
// normalised payload: a double-encoded JSON body is unwrapped once.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Expired is set on the synthetic response returned after the session ended
	Expired bool
}

var sessionExpiredBody = []byte(`{"code":401,"msg":"session expired"}`)

func expiredResponse() *Response {
	return &Response{
		StatusCode: http.StatusUnauthorized,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       append([]byte(nil), sessionExpiredBody...),
		Expired:    true,
	}
}

// Code returns the body's numeric code field, if any
func (r *Response) Code() (int64, bool) {
	code := gjson.GetBytes(r.Body, "code")
	if !code.Exists() {
		return 0, false
	}
	return code.Int(), true
}

// Decode unmarshals the normalised body into v
func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Err returns errorx.ErrSessionExpired for the synthetic expired response
func (r *Response) Err() error {
	if r.Expired {
		return errorx.ErrSessionExpired
	}
	return nil
}

// normalizeBody unwraps a body that is a JSON string holding a JSON document.
// Anything else, including unparsable input, is returned unchanged.
func normalizeBody(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' || !gjson.ValidBytes(trimmed) {
		return raw
	}
	inner := gjson.ParseBytes(trimmed).Str
	if !gjson.Valid(inner) {
		return raw
	}
	if p := gjson.Parse(inner); !p.IsObject() && !p.IsArray() {
		return raw
	}
	return []byte(inner)
}

// isAuthFailure reports a 401 transport status or a body code of 401
func isAuthFailure(r *Response) bool {
	if r.StatusCode == http.StatusUnauthorized {
		return true
	}
	code, ok := r.Code()
	return ok && code == http.StatusUnauthorized
}
