package erp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saftbridge/saftbridge/internal/platform/resilience"
)

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	// Keep test retries fast.
	c.retry = resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond}
	return c
}

func TestClientFetchesAndCachesToken(t *testing.T) {
	var tokenCalls, dataCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tokenCalls, 1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse token form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q", got)
		}
		if got := r.PostForm.Get("client_id"); got != "saft-exporter" {
			t.Errorf("client_id = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-1",
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/api/data/query", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&dataCalls, 1)
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("Authorization = %q", got)
		}
		_ = json.NewEncoder(w).Encode(queryPage{Done: true})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(t, Config{
		BaseURL:      server.URL,
		TokenURL:     server.URL + "/token",
		ClientID:     "saft-exporter",
		ClientSecret: "hunter2",
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.Query(ctx, "SELECT Id FROM Company"); err != nil {
			t.Fatalf("Query: %v", err)
		}
	}

	if got := atomic.LoadInt32(&tokenCalls); got != 1 {
		t.Fatalf("token endpoint called %d times, want 1", got)
	}
	if got := atomic.LoadInt32(&dataCalls); got != 3 {
		t.Fatalf("data endpoint called %d times, want 3", got)
	}
}

func TestClientQueryFollowsPagination(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/data/query", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"done":           false,
			"nextRecordsUrl": "/api/data/query/next-01",
			"records": []map[string]any{
				{
					"attributes": map[string]any{"type": "TransactionLineItem"},
					"Id":         "a1",
					"HomeValue":  120.5,
					"Transaction": map[string]any{
						"Period": map[string]any{"Name": "2025/005"},
					},
				},
			},
		})
	})
	mux.HandleFunc("/api/data/query/next-01", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"done": true,
			"records": []map[string]any{
				{"Id": "a2", "HomeValue": nil},
			},
		})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(t, Config{BaseURL: server.URL})

	records, err := c.Query(context.Background(), "SELECT Id FROM TransactionLineItem")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if got := records[0].Get("Transaction.Period.Name"); got != "2025/005" {
		t.Fatalf("flattened period = %q", got)
	}
	if got := records[0].Get("HomeValue"); got != "120.5" {
		t.Fatalf("HomeValue = %q", got)
	}
	if got := records[1].Get("HomeValue"); got != "" {
		t.Fatalf("null HomeValue = %q, want empty", got)
	}
}

func TestClientRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(queryPage{Done: true})
	}))
	defer server.Close()

	c := newTestClient(t, Config{BaseURL: server.URL})

	if _, err := c.Query(context.Background(), "SELECT Id FROM Journal"); err != nil {
		t.Fatalf("Query after retry: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("made %d calls, want 2", got)
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "malformed query", http.StatusBadRequest)
	}))
	defer server.Close()

	c := newTestClient(t, Config{BaseURL: server.URL})

	_, err := c.Query(context.Background(), "SELEKT")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("made %d calls, want 1 (4xx must not retry)", got)
	}
}

func TestClientReauthenticatesAfterUnauthorized(t *testing.T) {
	var tokenCalls, dataCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&tokenCalls, 1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": fmt.Sprintf("tok-%d", n),
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/api/data/query", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&dataCalls, 1)
		if r.Header.Get("Authorization") == "Bearer tok-1" {
			http.Error(w, "session expired", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(queryPage{Done: true})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(t, Config{
		BaseURL:  server.URL,
		TokenURL: server.URL + "/token",
		ClientID: "saft-exporter",
	})

	if _, err := c.Query(context.Background(), "SELECT Id FROM Company"); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if got := atomic.LoadInt32(&tokenCalls); got != 2 {
		t.Fatalf("token endpoint called %d times, want 2 (refresh after 401)", got)
	}
	if got := atomic.LoadInt32(&dataCalls); got != 2 {
		t.Fatalf("data endpoint called %d times, want 2", got)
	}
}

func TestBulkQueryLifecycle(t *testing.T) {
	var statusCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/data/jobs/query", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("job create method = %s", r.Method)
		}
		var req bulkJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode job request: %v", err)
		}
		if req.Operation != "query" {
			t.Errorf("operation = %q", req.Operation)
		}
		_ = json.NewEncoder(w).Encode(bulkJob{ID: "750x1", State: jobStateOpen})
	})
	mux.HandleFunc("/api/data/jobs/query/750x1", func(w http.ResponseWriter, r *http.Request) {
		state := jobStateInProgress
		if atomic.AddInt32(&statusCalls, 1) >= 2 {
			state = jobStateComplete
		}
		_ = json.NewEncoder(w).Encode(bulkJob{ID: "750x1", State: state, NumberRecordsProcessed: 3})
	})
	mux.HandleFunc("/api/data/jobs/query/750x1/results", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("locator") == "" {
			w.Header().Set(headerLocator, "page-2")
			fmt.Fprint(w, "Id,HomeValue\nl1,100\nl2,-40.25\n")
			return
		}
		if got := r.URL.Query().Get("locator"); got != "page-2" {
			t.Errorf("locator = %q", got)
		}
		w.Header().Set(headerLocator, "null")
		fmt.Fprint(w, "Id,HomeValue\nl3,7\n")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(t, Config{BaseURL: server.URL, PollInterval: time.Millisecond})

	records, err := c.BulkQuery(context.Background(), "SELECT Id, HomeValue FROM TransactionLineItem")
	if err != nil {
		t.Fatalf("BulkQuery: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if got := records[1].Get("HomeValue"); got != "-40.25" {
		t.Fatalf("records[1] HomeValue = %q", got)
	}
	if got := records[2].Get("Id"); got != "l3" {
		t.Fatalf("records[2] Id = %q", got)
	}
}

func TestBulkQuerySurfacesJobFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/data/jobs/query", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(bulkJob{ID: "750x2", State: jobStateOpen})
	})
	mux.HandleFunc("/api/data/jobs/query/750x2", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(bulkJob{ID: "750x2", State: jobStateFailed, ErrorMessage: "query too complex"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(t, Config{BaseURL: server.URL, PollInterval: time.Millisecond})

	_, err := c.BulkQuery(context.Background(), "SELECT Id FROM TransactionLineItem")
	if !errors.Is(err, ErrJobFailed) {
		t.Fatalf("err = %v, want ErrJobFailed", err)
	}
}

func TestBulkQueryTimesOut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/data/jobs/query", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(bulkJob{ID: "750x3", State: jobStateOpen})
	})
	mux.HandleFunc("/api/data/jobs/query/750x3", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(bulkJob{ID: "750x3", State: jobStateInProgress})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c := newTestClient(t, Config{
		BaseURL:      server.URL,
		PollInterval: time.Millisecond,
		JobTimeout:   10 * time.Millisecond,
	})

	_, err := c.BulkQuery(context.Background(), "SELECT Id FROM TransactionLineItem")
	if !errors.Is(err, ErrJobTimeout) {
		t.Fatalf("err = %v, want ErrJobTimeout", err)
	}
}
