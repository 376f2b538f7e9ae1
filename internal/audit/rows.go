package audit

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// DecisionRow mirrors the line_item_decisions BigQuery schema. One row is
// appended per pipeline event; the ledger is append-only and survives row
// deletion in Postgres.
type DecisionRow struct {
	EventID         string             `bigquery:"event_id"`
	EventType       string             `bigquery:"event_type"`
	LineItemID      string             `bigquery:"line_item_id"`
	OccurredAt      time.Time          `bigquery:"occurred_at"`
	Verdict         *string            `bigquery:"verdict"`
	Score           *float64           `bigquery:"score"`
	ValidationSrc   *string            `bigquery:"validation_source"`
	MatchKind       *string            `bigquery:"match_kind"`
	CanonicalItemID *string            `bigquery:"canonical_item_id"`
	Confidence      *float64           `bigquery:"confidence"`
	SourcesCount    *int64             `bigquery:"sources_count"`
	ItemsAdded      *int64             `bigquery:"items_added"`
	PriceOutcome    *string            `bigquery:"price_outcome"`
	Decision        *string            `bigquery:"decision"`
	Note            *string            `bigquery:"note"`
	Payload         cbigquery.NullJSON `bigquery:"payload"`
}
