// Package util holds HTTP helpers shared by the board API client.
package util

import (
	"fmt"
	"net/http"
	"net/url"
)

// ProxyFunc selects the proxy for an outgoing request
type ProxyFunc func(*http.Request) (*url.URL, error)

// NewProxyFunc creates a proxy function from the configured proxy URLs.
// If neither is set, it falls back to the standard environment variables.
func NewProxyFunc(httpProxy, httpsProxy string) (ProxyFunc, error) {
	if httpProxy == "" && httpsProxy == "" {
		return http.ProxyFromEnvironment, nil
	}

	httpURL, err := parseProxy(httpProxy)
	if err != nil {
		return nil, fmt.Errorf("http proxy: %w", err)
	}
	httpsURL, err := parseProxy(httpsProxy)
	if err != nil {
		return nil, fmt.Errorf("https proxy: %w", err)
	}

	return func(req *http.Request) (*url.URL, error) {
		if req.URL.Scheme == "https" && httpsURL != nil {
			return httpsURL, nil
		}
		if httpURL != nil {
			return httpURL, nil
		}
		return http.ProxyFromEnvironment(req)
	}, nil
}

func parseProxy(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid proxy URL %q", raw)
	}
	return u, nil
}
