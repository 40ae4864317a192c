package hubspot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestSearchAllDrainsPagination(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/crm/v3/objects/contacts/search" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req SearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Limit != 100 {
			t.Fatalf("expected page size 100, got %d", req.Limit)
		}

		n := atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		switch n {
		case 1:
			if req.After != "" {
				t.Fatalf("first page should not carry a cursor, got %q", req.After)
			}
			fmt.Fprint(w, `{"results":[{"id":"1"},{"id":"2"}],"paging":{"next":{"after":"cur-2"}}}`)
		case 2:
			if req.After != "cur-2" {
				t.Fatalf("expected cursor cur-2, got %q", req.After)
			}
			fmt.Fprint(w, `{"results":[{"id":"3"}]}`)
		default:
			t.Fatalf("unexpected extra call %d", n)
		}
	}))
	defer srv.Close()

	c := NewClient("test-token", WithBaseURL(srv.URL))
	got, err := c.SearchAll(context.Background(), "contacts", SearchRequest{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 results across pages, got %d", len(got))
	}
	if got[2].ID != "3" {
		t.Fatalf("expected last result id 3, got %s", got[2].ID)
	}
}

func TestRetryOn429(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"results":[{"id":"42","label":"Sales","stages":[]}]}`)
	}))
	defer srv.Close()

	c := NewClient("test-token", WithBaseURL(srv.URL), WithMaxRetries(2))
	pipelines, err := c.DealPipelines(context.Background())
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(pipelines) != 1 || pipelines[0].ID != "42" {
		t.Fatalf("unexpected pipelines: %+v", pipelines)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected exactly one retry, got %d calls", calls)
	}
}

func TestRetryHonorsRetryAfter(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"results":[]}`)
	}))
	defer srv.Close()

	c := NewClient("test-token", WithBaseURL(srv.URL), WithMaxRetries(1))
	started := time.Now()
	if _, err := c.DealPipelines(context.Background()); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if elapsed := time.Since(started); elapsed < time.Second {
		t.Fatalf("retry fired after %v, before the advertised delay", elapsed)
	}
}

func TestParseRetryAfter(t *testing.T) {
	cases := []struct {
		header string
		want   time.Duration
	}{
		{"3", 3 * time.Second},
		{" 10 ", 10 * time.Second},
		{"0", 0},
		{"-2", 0},
		{"", 0},
		{"soon", 0},
	}
	for _, c := range cases {
		if got := parseRetryAfter(c.header); got != c.want {
			t.Fatalf("parseRetryAfter(%q) = %v, want %v", c.header, got, c.want)
		}
	}
}

func TestClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient("test-token", WithBaseURL(srv.URL), WithMaxRetries(3))
	_, err := c.ListOwners(context.Background())
	if err == nil {
		t.Fatalf("expected error on 400")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("4xx should not retry, got %d calls", calls)
	}
}

func TestOwnerDisplayName(t *testing.T) {
	cases := []struct {
		owner Owner
		want  string
	}{
		{Owner{LastName: "山田", FirstName: "太郎"}, "山田 太郎"},
		{Owner{LastName: "山田"}, "山田"},
		{Owner{FirstName: "太郎"}, "太郎"},
		{Owner{Email: "taro@example.com"}, "taro@example.com"},
	}
	for _, c := range cases {
		if got := c.owner.DisplayName(); got != c.want {
			t.Fatalf("DisplayName(%+v) = %q, want %q", c.owner, got, c.want)
		}
	}
}
