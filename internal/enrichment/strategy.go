package enrichment

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParsedItem is one normalized product observation from a vendor source.
type ParsedItem struct {
	Vendor        string
	SourceURL     string
	SourceSKU     string
	ItemName      string
	UnitOfMeasure string
	PackQty       int
	Price         decimal.Decimal
	Currency      string
	Availability  string
	Raw           json.RawMessage
}

// VendorStrategy describes one external product source. Strategies are
// stateless; the fetcher owns rate limiting and HTTP transport.
type VendorStrategy interface {
	Name() string
	Enabled() bool
	Priority() int
	MinDelay() time.Duration
	SearchURL(query string) string
	Parse(raw []byte, sourceURL string) ([]ParsedItem, error)
}

// unitAliases folds the unit spellings vendors use into a canonical
// vocabulary. Unknown units fall back to "each".
var unitAliases = map[string]string{
	"ea":          "each",
	"each":        "each",
	"unit":        "each",
	"pc":          "each",
	"pcs":         "each",
	"piece":       "each",
	"ft":          "ft",
	"foot":        "ft",
	"feet":        "ft",
	"lf":          "ft",
	"linear foot": "ft",
	"in":          "in",
	"inch":        "in",
	"inches":      "in",
	"lb":          "lb",
	"lbs":         "lb",
	"pound":       "lb",
	"pounds":      "lb",
	"gal":         "gal",
	"gallon":      "gal",
	"gallons":     "gal",
	"box":         "box",
	"bx":          "box",
	"pack":        "pack",
	"pk":          "pack",
	"roll":        "roll",
	"rl":          "roll",
	"set":         "set",
	"pair":        "pair",
	"pr":          "pair",
	"case":        "case",
	"cs":          "case",
	"sf":          "sqft",
	"sqft":        "sqft",
	"sq ft":       "sqft",
	"square foot": "sqft",
}

func normalizeUnit(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := unitAliases[key]; ok {
		return canonical
	}
	return "each"
}
