package enrichment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/veriline/veriline-backend/pkg/config"
)

func jsonVendorServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestFetcher(t *testing.T, strategies ...VendorStrategy) *Fetcher {
	t.Helper()
	fetcher, err := NewFetcher(strategies, nil, "veriline-test/1.0")
	if err != nil {
		t.Fatalf("NewFetcher: %v", err)
	}
	return fetcher
}

func TestFetcherSearchCollectsAcrossVendors(t *testing.T) {
	grainger := jsonVendorServer(t, `{"items": [{"name": "PVC Pipe", "price": 12.4}, {"name": "PVC Elbow", "price": 1.1}]}`)
	zoro := jsonVendorServer(t, `{"items": [{"name": "PVC Pipe Schedule 40", "price": 11.9}]}`)

	fetcher := newTestFetcher(t,
		testStrategy(t, config.VendorConfig{Name: "grainger", BaseURL: grainger.URL, Priority: 1, Enabled: true}, 10),
		testStrategy(t, config.VendorConfig{Name: "zoro", BaseURL: zoro.URL, Priority: 2, Enabled: true}, 10),
	)

	result, err := fetcher.Search(context.Background(), "pvc pipe")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.Sources != 2 {
		t.Errorf("Sources = %d, want 2", result.Sources)
	}
	if len(result.Items) != 3 {
		t.Errorf("Items = %d, want 3", len(result.Items))
	}
	if len(result.Failures) != 0 {
		t.Errorf("Failures = %v, want none", result.Failures)
	}
}

func TestFetcherSearchIsolatesVendorFailure(t *testing.T) {
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	t.Cleanup(broken.Close)
	healthy := jsonVendorServer(t, `{"items": [{"name": "Pipe strap", "price": 0.89}]}`)

	fetcher := newTestFetcher(t,
		testStrategy(t, config.VendorConfig{Name: "brokenco", BaseURL: broken.URL, Priority: 1, Enabled: true}, 10),
		testStrategy(t, config.VendorConfig{Name: "grainger", BaseURL: healthy.URL, Priority: 2, Enabled: true}, 10),
	)

	result, err := fetcher.Search(context.Background(), "pipe strap")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.Sources != 1 {
		t.Errorf("Sources = %d, want 1 (only the healthy vendor answered)", result.Sources)
	}
	if len(result.Items) != 1 || result.Items[0].Vendor != "grainger" {
		t.Errorf("Items = %+v, want the healthy vendor's item", result.Items)
	}
	if len(result.Failures) != 1 {
		t.Fatalf("Failures = %v, want exactly one", result.Failures)
	}
	if !strings.Contains(result.Failures[0].Error(), "brokenco") {
		t.Errorf("failure should name the vendor: %v", result.Failures[0])
	}
	if !strings.Contains(result.Failures[0].Error(), "502") {
		t.Errorf("failure should carry the status: %v", result.Failures[0])
	}
}

func TestFetcherEmptyVendorIsNotASource(t *testing.T) {
	empty := jsonVendorServer(t, `{"items": []}`)
	fetcher := newTestFetcher(t,
		testStrategy(t, config.VendorConfig{Name: "grainger", BaseURL: empty.URL, Enabled: true}, 10),
	)

	result, err := fetcher.Search(context.Background(), "unobtainium")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if result.Sources != 0 || len(result.Items) != 0 || len(result.Failures) != 0 {
		t.Errorf("result = %+v, want empty everything", result)
	}
}

func TestFetcherSendsIdentifyingHeaders(t *testing.T) {
	var gotAgent, gotAccept, gotQuery atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAgent.Store(r.Header.Get("User-Agent"))
		gotAccept.Store(r.Header.Get("Accept"))
		gotQuery.Store(r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(`{"items": []}`))
	}))
	t.Cleanup(server.Close)

	fetcher := newTestFetcher(t,
		testStrategy(t, config.VendorConfig{Name: "grainger", BaseURL: server.URL, Enabled: true}, 10),
	)
	if _, err := fetcher.Search(context.Background(), "copper fitting"); err != nil {
		t.Fatalf("Search: %v", err)
	}

	if got := gotAgent.Load(); got != "veriline-test/1.0" {
		t.Errorf("User-Agent = %v", got)
	}
	if got := gotAccept.Load(); got != "application/json" {
		t.Errorf("Accept = %v", got)
	}
	if got := gotQuery.Load(); got != "copper fitting" {
		t.Errorf("q = %v", got)
	}
}

func TestFetcherSkipsDisabledVendors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"items": []}`))
	}))
	t.Cleanup(server.Close)

	fetcher := newTestFetcher(t,
		testStrategy(t, config.VendorConfig{Name: "retired", BaseURL: server.URL, Enabled: false}, 10),
	)
	if vendors := fetcher.Vendors(); len(vendors) != 0 {
		t.Errorf("Vendors = %v, want none enabled", vendors)
	}

	result, err := fetcher.Search(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("disabled vendor was queried %d times", hits.Load())
	}
	if result.Sources != 0 || len(result.Items) != 0 {
		t.Errorf("result = %+v, want empty", result)
	}
}

func TestFetcherSearchStopsOnDeadContext(t *testing.T) {
	server := jsonVendorServer(t, `{"items": [{"name": "Pipe", "price": 1}]}`)
	fetcher := newTestFetcher(t,
		testStrategy(t, config.VendorConfig{Name: "grainger", BaseURL: server.URL, Enabled: true}, 10),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fetcher.Search(ctx, "pipe"); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestNewFetcherRejectsDuplicateVendors(t *testing.T) {
	server := jsonVendorServer(t, `{"items": []}`)
	a := testStrategy(t, config.VendorConfig{Name: "grainger", BaseURL: server.URL, Enabled: true}, 10)
	b := testStrategy(t, config.VendorConfig{Name: "grainger", BaseURL: server.URL, Enabled: true}, 10)

	if _, err := NewFetcher([]VendorStrategy{a, b}, nil, ""); err == nil {
		t.Fatal("expected error for duplicate vendor names")
	}
}
