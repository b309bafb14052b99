package lookup

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lookupbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"city": "Mumbai", "isp": "Example"}`))
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, testLogger())
	res := c.Fetch(context.Background(), srv.URL)
	if !res.OK() {
		t.Fatalf("expected success, got reason %q", res.Reason)
	}
	m, ok := res.Payload.(map[string]any)
	if !ok {
		t.Fatalf("expected map payload, got %T", res.Payload)
	}
	if m["city"] != "Mumbai" {
		t.Fatalf("unexpected payload: %v", m)
	}
}

func TestFetch_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A JSON body on a 500 must not rescue the lookup
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, testLogger())
	res := c.Fetch(context.Background(), srv.URL)
	if res.OK() {
		t.Fatal("expected failure on 500")
	}
	if res.Reason != domain.FailHTTP {
		t.Fatalf("expected FailHTTP, got %q", res.Reason)
	}
	if res.Status != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", res.Status)
	}
	if res.Code() != "HTTP 500" {
		t.Fatalf("unexpected code: %q", res.Code())
	}
}

func TestFetch_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, testLogger())
	res := c.Fetch(context.Background(), srv.URL)
	if res.Reason != domain.FailDecode {
		t.Fatalf("expected FailDecode, got %q", res.Reason)
	}
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(50*time.Millisecond, testLogger())
	res := c.Fetch(context.Background(), srv.URL)
	if res.Reason != domain.FailTimeout {
		t.Fatalf("expected FailTimeout, got %q", res.Reason)
	}
}

func TestFetch_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close() // connection refused from here on

	c := NewClient(time.Second, testLogger())
	res := c.Fetch(context.Background(), url)
	if res.Reason != domain.FailNetwork {
		t.Fatalf("expected FailNetwork, got %q", res.Reason)
	}
}

func TestFetch_Numbers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 9007199254740993}`))
	}))
	defer srv.Close()

	c := NewClient(5*time.Second, testLogger())
	res := c.Fetch(context.Background(), srv.URL)
	if !res.OK() {
		t.Fatalf("expected success, got %q", res.Reason)
	}
	// UseNumber keeps large integers exact
	m := res.Payload.(map[string]any)
	num, ok := m["id"].(json.Number)
	if !ok {
		t.Fatalf("expected json.Number, got %T", m["id"])
	}
	if num.String() != "9007199254740993" {
		t.Fatalf("large integer mangled: %v", num)
	}
}
