package utils

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// ResolveURL returns path unchanged when it is an absolute URL, otherwise it
// is joined onto base.
func ResolveURL(base, path string) (string, error) {
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path, nil
	}
	if base == "" {
		return "", fmt.Errorf("relative path %q without a base URL", path)
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	if path == "" {
		return b.String(), nil
	}
	return strings.TrimSuffix(b.String(), "/") + "/" + strings.TrimPrefix(path, "/"), nil
}

// ReadAndClose reads the whole response body and closes it
func ReadAndClose(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// CopyHeaders copies headers from one header set to another
func CopyHeaders(dst, src http.Header) {
	for k, v := range src {
		dst[k] = append([]string(nil), v...)
	}
}
