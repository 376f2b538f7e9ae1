package enrichment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	maxConcurrentFetches = 4
	maxResponseBytes     = 1 << 20
	defaultUserAgent     = "veriline-enrichment/1.0"
)

// Result is the outcome of one multi-vendor search. A vendor failure never
// discards the items the other vendors returned.
type Result struct {
	Items    []ParsedItem
	Sources  int
	Failures []error
}

// Fetcher runs vendor searches in parallel while honoring each vendor's
// minimum request spacing.
type Fetcher struct {
	strategies []VendorStrategy
	limiters   map[string]*rate.Limiter
	client     *http.Client
	userAgent  string
}

// NewFetcher wires the enabled strategies. Disabled vendors are skipped so a
// vendor can be turned off in config without redeploying.
func NewFetcher(strategies []VendorStrategy, client *http.Client, userAgent string) (*Fetcher, error) {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	enabled := make([]VendorStrategy, 0, len(strategies))
	limiters := make(map[string]*rate.Limiter, len(strategies))
	for _, strategy := range strategies {
		if strategy == nil || !strategy.Enabled() {
			continue
		}
		if _, dup := limiters[strategy.Name()]; dup {
			return nil, fmt.Errorf("duplicate vendor strategy %s", strategy.Name())
		}
		limit := rate.Inf
		if delay := strategy.MinDelay(); delay > 0 {
			limit = rate.Every(delay)
		}
		limiters[strategy.Name()] = rate.NewLimiter(limit, 1)
		enabled = append(enabled, strategy)
	}

	return &Fetcher{
		strategies: enabled,
		limiters:   limiters,
		client:     client,
		userAgent:  userAgent,
	}, nil
}

// Vendors reports the enabled vendor names in priority order.
func (f *Fetcher) Vendors() []string {
	names := make([]string, 0, len(f.strategies))
	for _, strategy := range f.strategies {
		names = append(names, strategy.Name())
	}
	return names
}

// Search fans the query out to every enabled vendor. Each vendor's failure is
// collected into Result.Failures; the pass only errors when the context dies.
func (f *Fetcher) Search(ctx context.Context, query string) (Result, error) {
	items := make([][]ParsedItem, len(f.strategies))
	failures := make([]error, len(f.strategies))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, strategy := range f.strategies {
		g.Go(func() error {
			found, err := f.fetchVendor(gctx, strategy, query)
			if err != nil {
				failures[i] = fmt.Errorf("%s: %w", strategy.Name(), err)
				return nil
			}
			items[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var result Result
	for i := range f.strategies {
		if failures[i] != nil {
			result.Failures = append(result.Failures, failures[i])
			continue
		}
		if len(items[i]) > 0 {
			result.Sources++
			result.Items = append(result.Items, items[i]...)
		}
	}
	return result, nil
}

func (f *Fetcher) fetchVendor(ctx context.Context, strategy VendorStrategy, query string) ([]ParsedItem, error) {
	limiter := f.limiters[strategy.Name()]
	if err := limiter.Wait(ctx); err != nil {
		return nil, err
	}

	searchURL := strategy.SearchURL(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	return strategy.Parse(body, searchURL)
}
