package enrichment

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veriline/veriline-backend/pkg/config"
)

const defaultMaxItemsPerVendor = 10

// jsonCatalogStrategy queries a vendor product-search JSON API. The API is
// expected to answer GET <base_url>?q=<query> with
// {"items":[{"name","sku","url","unit","pack_qty","price","currency","availability"}]}.
type jsonCatalogStrategy struct {
	name     string
	baseURL  *url.URL
	priority int
	minDelay time.Duration
	enabled  bool
	maxItems int
}

type searchResponse struct {
	Items []json.RawMessage `json:"items"`
}

type searchResponseItem struct {
	Name         string          `json:"name"`
	SKU          string          `json:"sku"`
	URL          string          `json:"url"`
	Unit         string          `json:"unit"`
	PackQty      int             `json:"pack_qty"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	Availability string          `json:"availability"`
}

// NewJSONCatalogStrategy builds the strategy for one configured vendor.
func NewJSONCatalogStrategy(cfg config.VendorConfig, maxItems int) (VendorStrategy, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, fmt.Errorf("vendor name required")
	}
	parsed, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("vendor %s: invalid base url %q", name, cfg.BaseURL)
	}
	minDelay := time.Duration(cfg.RateLimitMS) * time.Millisecond
	if minDelay < 0 {
		minDelay = 0
	}
	if maxItems <= 0 {
		maxItems = defaultMaxItemsPerVendor
	}
	return &jsonCatalogStrategy{
		name:     name,
		baseURL:  parsed,
		priority: cfg.Priority,
		minDelay: minDelay,
		enabled:  cfg.Enabled,
		maxItems: maxItems,
	}, nil
}

// StrategiesFromConfig builds all configured vendor strategies, ordered by
// priority (lowest first) and name for determinism.
func StrategiesFromConfig(cfg config.EnrichmentConfig) ([]VendorStrategy, error) {
	strategies := make([]VendorStrategy, 0, len(cfg.Vendors))
	for _, vendor := range cfg.Vendors {
		strategy, err := NewJSONCatalogStrategy(vendor, cfg.MaxItemsPerVendor)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, strategy)
	}
	sort.SliceStable(strategies, func(i, j int) bool {
		if strategies[i].Priority() != strategies[j].Priority() {
			return strategies[i].Priority() < strategies[j].Priority()
		}
		return strategies[i].Name() < strategies[j].Name()
	})
	return strategies, nil
}

func (s *jsonCatalogStrategy) Name() string            { return s.name }
func (s *jsonCatalogStrategy) Enabled() bool           { return s.enabled }
func (s *jsonCatalogStrategy) Priority() int           { return s.priority }
func (s *jsonCatalogStrategy) MinDelay() time.Duration { return s.minDelay }

func (s *jsonCatalogStrategy) SearchURL(query string) string {
	u := *s.baseURL
	params := u.Query()
	params.Set("q", query)
	u.RawQuery = params.Encode()
	return u.String()
}

func (s *jsonCatalogStrategy) Parse(raw []byte, sourceURL string) ([]ParsedItem, error) {
	var response searchResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]ParsedItem, 0, len(response.Items))
	for _, rawItem := range response.Items {
		if len(items) == s.maxItems {
			break
		}
		var entry searchResponseItem
		if err := json.Unmarshal(rawItem, &entry); err != nil {
			continue
		}
		name := strings.TrimSpace(entry.Name)
		if name == "" || !entry.Price.IsPositive() {
			continue
		}
		itemURL := strings.TrimSpace(entry.URL)
		if itemURL == "" {
			itemURL = sourceURL
		}
		packQty := entry.PackQty
		if packQty <= 0 {
			packQty = 1
		}
		currency := strings.ToUpper(strings.TrimSpace(entry.Currency))
		if currency == "" {
			currency = "USD"
		}
		availability := strings.TrimSpace(entry.Availability)
		if availability == "" {
			availability = "unknown"
		}
		items = append(items, ParsedItem{
			Vendor:        s.name,
			SourceURL:     itemURL,
			SourceSKU:     strings.TrimSpace(entry.SKU),
			ItemName:      name,
			UnitOfMeasure: normalizeUnit(entry.Unit),
			PackQty:       packQty,
			Price:         entry.Price,
			Currency:      currency,
			Availability:  availability,
			Raw:           rawItem,
		})
	}
	return items, nil
}
