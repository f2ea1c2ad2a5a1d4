package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shin315/fetchopt/internal/netopt"
)

func TestHeadReportsSizeAndFilename(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="data set.csv"`)
		w.Header().Set("Content-Length", "12345")
	}))
	defer server.Close()

	client := NewClient(ClientConfig{}, netopt.NewDNSCache(0))
	info, err := client.Head(context.Background(), server.URL+"/x")
	if err != nil {
		t.Fatal(err)
	}
	if info.Size != 12345 {
		t.Fatalf("size %d, want 12345", info.Size)
	}
	if info.Filename != "data set.csv" {
		t.Fatalf("filename %q", info.Filename)
	}
}

func TestHeadFilenameFallsBackToURLPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	client := NewClient(ClientConfig{}, nil)
	info, err := client.Head(context.Background(), server.URL+"/files/archive.tar.gz")
	if err != nil {
		t.Fatal(err)
	}
	if info.Filename != "archive.tar.gz" {
		t.Fatalf("filename %q, want archive.tar.gz", info.Filename)
	}
}

func TestHeadServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{}, nil)
	_, err := client.Head(context.Background(), server.URL)
	var transient *TransientError
	if !errors.As(err, &transient) {
		t.Fatalf("got %v, want TransientError", err)
	}
	if !IsRetryable(err) {
		t.Fatal("5xx should be retryable")
	}
}

func TestGetClientErrorIsNotRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{}, nil)
	_, err := client.Get(context.Background(), server.URL)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("got %v, want HTTPError", err)
	}
	if IsRetryable(err) {
		t.Fatal("4xx must not be retryable")
	}
}

func TestGetTimeoutClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewClient(ClientConfig{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := client.Get(ctx, server.URL)
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("got %v, want TimeoutError", err)
	}
	if !IsRetryable(err) {
		t.Fatal("timeouts should be retryable")
	}
}

func TestClientSendsConfiguredHeaders(t *testing.T) {
	var gotUA, gotCustom string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotCustom = r.Header.Get("X-Token")
	}))
	defer server.Close()

	client := NewClient(ClientConfig{
		UserAgent: "test-agent/1.0",
		Headers:   map[string]string{"X-Token": "secret"},
	}, nil)
	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if gotUA != "test-agent/1.0" {
		t.Fatalf("user agent %q", gotUA)
	}
	if gotCustom != "secret" {
		t.Fatalf("custom header %q", gotCustom)
	}
}

func TestClientDialsThroughDNSCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer server.Close()

	// The cache maps a fake hostname onto the test server's loopback
	// address; a request to that hostname only succeeds if the dialer
	// consults the cache.
	host, port, err := net.SplitHostPort(server.Listener.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	cache := netopt.NewDNSCache(0)
	cache.Set("fake.internal", host, time.Minute)

	client := NewClient(ClientConfig{}, cache)
	resp, err := client.Get(context.Background(), fmt.Sprintf("http://fake.internal:%s/", port))
	if err != nil {
		t.Fatalf("request through DNS cache failed: %v", err)
	}
	resp.Body.Close()
}
