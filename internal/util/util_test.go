package util

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewProxyFunc_Configured(t *testing.T) {
	proxy, err := NewProxyFunc("http://proxy.local:8080", "http://secure.local:8443")
	if err != nil {
		t.Fatalf("NewProxyFunc failed: %v", err)
	}

	httpReq := &http.Request{URL: &url.URL{Scheme: "http", Host: "example.com"}}
	u, err := proxy(httpReq)
	if err != nil || u.Host != "proxy.local:8080" {
		t.Errorf("expected http proxy, got %v (%v)", u, err)
	}

	httpsReq := &http.Request{URL: &url.URL{Scheme: "https", Host: "example.com"}}
	u, err = proxy(httpsReq)
	if err != nil || u.Host != "secure.local:8443" {
		t.Errorf("expected https proxy, got %v (%v)", u, err)
	}
}

func TestNewProxyFunc_Invalid(t *testing.T) {
	if _, err := NewProxyFunc("not a url", ""); err == nil {
		t.Error("expected error for invalid proxy URL")
	}
}

func TestNewProxyFunc_Environment(t *testing.T) {
	proxy, err := NewProxyFunc("", "")
	if err != nil {
		t.Fatalf("NewProxyFunc failed: %v", err)
	}
	if proxy == nil {
		t.Fatal("expected environment proxy function")
	}
}

func TestRobotsChecker(t *testing.T) {
	var fetches int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&fetches, 1)
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\nCrawl-delay: 2\n"))
	}))
	defer server.Close()

	checker := NewRobotsChecker(server.Client(), "boardharvest/1.0", time.Minute)
	ctx := context.Background()

	allowed, delay, err := checker.CanFetch(ctx, server.URL+"/api/v2/hotpost")
	if err != nil {
		t.Fatalf("CanFetch failed: %v", err)
	}
	if !allowed {
		t.Error("expected public path to be allowed")
	}
	if delay != 2*time.Second {
		t.Errorf("expected crawl delay 2s, got %v", delay)
	}

	allowed, _, _ = checker.CanFetch(ctx, server.URL+"/private/data")
	if allowed {
		t.Error("expected private path to be disallowed")
	}

	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Errorf("expected robots.txt fetched once, got %d", n)
	}
}

func TestRobotsChecker_Missing(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	checker := NewRobotsChecker(server.Client(), "boardharvest", time.Minute)
	allowed, _, err := checker.CanFetch(context.Background(), server.URL+"/anything")
	if err != nil || !allowed {
		t.Errorf("expected missing robots.txt to allow everything, got %v (%v)", allowed, err)
	}
}

func TestNormalizeUserAgent(t *testing.T) {
	tests := map[string]string{
		"boardharvest/1.0 (+https://github.com)": "boardharvest",
		"curl":                                   "curl",
		"":                                       "",
	}
	for in, want := range tests {
		if got := NormalizeUserAgent(in); got != want {
			t.Errorf("NormalizeUserAgent(%q) = %q, want %q", in, got, want)
		}
	}
}
