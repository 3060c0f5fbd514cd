package erp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/timmy/lenscat/internal/source"
)

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestFetchPageDecodesResponse(t *testing.T) {
	var gotAuth, gotPath, gotConstraints, gotCursor string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotCursor = r.URL.Query().Get("cursor")
		gotConstraints = r.URL.Query().Get("constraints")
		writeJSON(w, http.StatusOK, `{"response":{"results":[{"_id":"a"},{"_id":"b"}],"cursor":100,"remaining":7}}`)
	}))
	defer srv.Close()

	c := NewClient(&Config{BaseURL: srv.URL + "/", APIToken: "secret", MinStock: 1, ActiveOnly: true, ProductType: "frame"})
	page, err := c.FetchPage(context.Background(), source.EntityProduct, 100, 50)
	if err != nil {
		t.Fatalf("FetchPage returned error: %v", err)
	}

	if gotPath != "/obj/product" {
		t.Errorf("path = %s, want /obj/product", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotCursor != "100" {
		t.Errorf("cursor = %s, want 100", gotCursor)
	}
	var cs []Constraint
	if err := json.Unmarshal([]byte(gotConstraints), &cs); err != nil {
		t.Fatalf("constraints not valid JSON: %v", err)
	}
	if len(cs) != 3 {
		t.Errorf("sent %d constraints, want 3", len(cs))
	}
	if len(page.Results) != 2 || page.Cursor != 100 || page.Remaining != 7 {
		t.Errorf("unexpected page: %+v", page)
	}
	if !c.HasCostAccess() {
		t.Errorf("client with token should report cost access")
	}
}

func TestFetchPageLookupsHaveNoConstraints(t *testing.T) {
	var gotConstraints string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotConstraints = r.URL.Query().Get("constraints")
		writeJSON(w, http.StatusOK, `{"response":{"results":[],"cursor":0,"remaining":0}}`)
	}))
	defer srv.Close()

	c := NewClient(&Config{BaseURL: srv.URL, ActiveOnly: true})
	if _, err := c.FetchPage(context.Background(), source.EntityBrand, 0, 10); err != nil {
		t.Fatalf("FetchPage returned error: %v", err)
	}
	if gotConstraints != "" {
		t.Errorf("brand request carried constraints %q", gotConstraints)
	}
}

func TestFetchPageRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			writeJSON(w, http.StatusBadGateway, `{"error":"upstream"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"response":{"results":[{"_id":"a"}],"cursor":0,"remaining":0}}`)
	}))
	defer srv.Close()

	c := NewClient(&Config{BaseURL: srv.URL, RetryCount: 3, RetryWait: time.Millisecond})
	page, err := c.FetchPage(context.Background(), source.EntityBrand, 0, 10)
	if err != nil {
		t.Fatalf("FetchPage returned error: %v", err)
	}
	if len(page.Results) != 1 {
		t.Errorf("got %d results, want 1", len(page.Results))
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("server saw %d calls, want 3", n)
	}
}

func TestFetchPageErrors(t *testing.T) {
	testCases := []struct {
		name        string
		status      int
		unavailable bool
	}{
		{name: "server error", status: http.StatusServiceUnavailable, unavailable: true},
		{name: "client error", status: http.StatusUnauthorized, unavailable: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, `{"error":"nope"}`)
			}))
			defer srv.Close()

			c := NewClient(&Config{BaseURL: srv.URL})
			_, err := c.FetchPage(context.Background(), source.EntityBrand, 0, 10)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, source.ErrUnavailable); got != tc.unavailable {
				t.Errorf("errors.Is(err, ErrUnavailable) = %v, want %v (err: %v)", got, tc.unavailable, err)
			}
		})
	}
}

func TestPingUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(&Config{BaseURL: url, Timeout: time.Second})
	if err := c.Ping(context.Background()); !errors.Is(err, source.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
}
