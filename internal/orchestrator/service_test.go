package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/veriline/veriline-backend/internal/lineitems"
	"github.com/veriline/veriline-backend/pkg/db/models"
	"github.com/veriline/veriline-backend/pkg/enums"
	pkgerrors "github.com/veriline/veriline-backend/pkg/errors"
	"github.com/veriline/veriline-backend/pkg/outbox"
	"github.com/veriline/veriline-backend/pkg/outbox/payloads"
)

type gormTxRunner struct{ db *gorm.DB }

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type recordingOutbox struct {
	events []outbox.DomainEvent
	fail   error
}

func (r *recordingOutbox) Emit(_ context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if r.fail != nil {
		return r.fail
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recordingOutbox) types() []enums.OutboxEventType {
	out := make([]enums.OutboxEventType, 0, len(r.events))
	for _, event := range r.events {
		out = append(out, event.EventType)
	}
	return out
}

type orchestratorFixture struct {
	db      *gorm.DB
	repo    *lineitems.Repository
	journal *recordingOutbox
	svc     Service
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()

	dsn := "file:orchestrator_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	lineItems := `
CREATE TABLE IF NOT EXISTS line_items (
  id TEXT PRIMARY KEY,
  raw_name TEXT NOT NULL,
  raw_description TEXT,
  quantity NUMERIC NOT NULL DEFAULT 1,
  unit TEXT,
  unit_price NUMERIC,
  service_line TEXT,
  service_type TEXT,
  scope_of_work TEXT,
  status TEXT NOT NULL DEFAULT 'new',
  canonical_item_id TEXT,
  match_kind TEXT,
  match_confidence REAL,
  ingest_passes INTEGER NOT NULL DEFAULT 0,
  price_outcome TEXT,
  price_note TEXT,
  explanation_note TEXT,
  orchestrator_lock TEXT,
  created_at DATETIME,
  updated_at DATETIME
);
`
	validationRecords := `
CREATE TABLE IF NOT EXISTS validation_records (
  id TEXT PRIMARY KEY,
  line_item_id TEXT NOT NULL,
  verdict TEXT NOT NULL,
  score REAL NOT NULL,
  reasons TEXT,
  source TEXT NOT NULL DEFAULT 'rules',
  created_at DATETIME
);
`
	require.NoError(t, db.Exec(lineItems).Error)
	require.NoError(t, db.Exec(validationRecords).Error)

	repo := lineitems.NewRepository(db)
	journal := &recordingOutbox{}
	svc, err := NewService(repo, gormTxRunner{db: db}, journal, nil, 1)
	require.NoError(t, err)

	return &orchestratorFixture{db: db, repo: repo, journal: journal, svc: svc}
}

func (f *orchestratorFixture) seed(t *testing.T, name string) *models.LineItem {
	t.Helper()
	item, created, err := f.repo.CreateIfAbsent(context.Background(), &models.LineItem{
		ID:       uuid.New(),
		RawName:  name,
		Quantity: decimal.NewFromInt(1),
		Status:   enums.LineItemStatusNew,
	})
	require.NoError(t, err)
	require.True(t, created)
	return item
}

func (f *orchestratorFixture) reload(t *testing.T, id uuid.UUID) *models.LineItem {
	t.Helper()
	item, err := f.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return item
}

func (f *orchestratorFixture) recordCount(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&models.ValidationRecord{}).Count(&n).Error)
	return n
}

func approvedEvent(id uuid.UUID) Validated {
	return Validated{
		ItemID:  id,
		Verdict: enums.VerdictApproved,
		Score:   0.85,
		Reasons: []string{"Matches facility maintenance vocabulary: pipe"},
		Source:  enums.ValidationSourceRules,
	}
}

func TestProcessApprovedValidationTransitions(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	item := f.seed(t, "1/2 inch PVC pipe")

	out, err := f.svc.Process(ctx, approvedEvent(item.ID))
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, enums.LineItemStatusNew, out.From)
	assert.Equal(t, enums.LineItemStatusAwaitingMatch, out.To)

	row := f.reload(t, item.ID)
	assert.Equal(t, enums.LineItemStatusAwaitingMatch, row.Status)
	assert.Nil(t, row.OrchestratorLock, "lock must be released after the transition")

	record, err := f.repo.LatestValidationRecord(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, enums.VerdictApproved, record.Verdict)
	assert.InDelta(t, 0.85, record.Score, 1e-9)

	require.Len(t, f.journal.events, 1)
	emitted := f.journal.events[0]
	assert.Equal(t, enums.EventLineItemValidated, emitted.EventType)
	assert.Equal(t, enums.AggregateLineItem, emitted.AggregateType)
	assert.Equal(t, item.ID, emitted.AggregateID)
	assert.Equal(t, eventVersion, emitted.Version)
	payload, ok := emitted.Data.(payloads.ValidatedEvent)
	require.True(t, ok)
	assert.Equal(t, enums.VerdictApproved, payload.Verdict)
}

func TestProcessReplayedEventIsNoOp(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	item := f.seed(t, "copper pipe")

	_, err := f.svc.Process(ctx, approvedEvent(item.ID))
	require.NoError(t, err)

	out, err := f.svc.Process(ctx, approvedEvent(item.ID))
	require.NoError(t, err)
	assert.False(t, out.Applied)
	assert.True(t, out.Replay)
	assert.True(t, out.Accepted())

	assert.Equal(t, int64(1), f.recordCount(t), "replay must not append another record")
	assert.Len(t, f.journal.events, 1, "replay must not journal again")
}

func TestProcessDropsEventInvalidForState(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	item := f.seed(t, "HVAC air filter")

	out, err := f.svc.Process(ctx, Matched{ItemID: item.ID, CanonicalItemID: uuid.New(), Confidence: 0.9, Kind: enums.MatchKindExact})
	require.NoError(t, err)
	assert.False(t, out.Accepted())
	assert.Equal(t, enums.LineItemStatusNew, out.From)

	row := f.reload(t, item.ID)
	assert.Equal(t, enums.LineItemStatusNew, row.Status)
	assert.Nil(t, row.CanonicalItemID)
	assert.Empty(t, f.journal.events)
}

func TestProcessLockContentionIsRetryable(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	item := f.seed(t, "ball valve")

	require.NoError(t, f.db.Exec(`UPDATE line_items SET orchestrator_lock = ? WHERE id = ?`, "other-worker", item.ID).Error)

	_, err := f.svc.Process(ctx, approvedEvent(item.ID))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
	assert.True(t, pkgerrors.MetadataFor(pkgerrors.As(err).Code()).Retryable)

	row := f.reload(t, item.ID)
	assert.Equal(t, enums.LineItemStatusNew, row.Status)
	require.NotNil(t, row.OrchestratorLock)
	assert.Equal(t, "other-worker", *row.OrchestratorLock)
	assert.Empty(t, f.journal.events)
}

func TestProcessRollsBackWhenJournalFails(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	item := f.seed(t, "pipe wrench")
	f.journal.fail = errors.New("outbox down")

	_, err := f.svc.Process(ctx, approvedEvent(item.ID))
	require.Error(t, err)

	row := f.reload(t, item.ID)
	assert.Equal(t, enums.LineItemStatusNew, row.Status, "failed transition must roll back")
	assert.Nil(t, row.OrchestratorLock, "lock must be released after a failed transition")
	assert.Equal(t, int64(0), f.recordCount(t))
}

func TestProcessHappyPathWalk(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	item := f.seed(t, "1/2 inch PVC pipe")
	canonicalID := uuid.New()

	out, err := f.svc.Process(ctx, approvedEvent(item.ID))
	require.NoError(t, err)
	require.Equal(t, enums.LineItemStatusAwaitingMatch, out.To)

	out, err = f.svc.Process(ctx, Matched{ItemID: item.ID, CanonicalItemID: canonicalID, Confidence: 0.9, Kind: enums.MatchKindFuzzy})
	require.NoError(t, err)
	require.Equal(t, enums.LineItemStatusMatched, out.To)

	out, err = f.svc.Process(ctx, PriceValidated{ItemID: item.ID, Validated: true, Outcome: enums.PriceOutcomeWithinRange, Note: "within band 10.00..20.00"})
	require.NoError(t, err)
	require.Equal(t, enums.LineItemStatusPriceValidated, out.To)

	row := f.reload(t, item.ID)
	assert.Equal(t, enums.LineItemStatusPriceValidated, row.Status)
	require.NotNil(t, row.CanonicalItemID)
	assert.Equal(t, canonicalID, *row.CanonicalItemID)
	require.NotNil(t, row.MatchKind)
	assert.Equal(t, enums.MatchKindFuzzy, *row.MatchKind)
	require.NotNil(t, row.PriceOutcome)
	assert.Equal(t, enums.PriceOutcomeWithinRange, *row.PriceOutcome)
	assert.Nil(t, row.OrchestratorLock)

	assert.Equal(t, []enums.OutboxEventType{
		enums.EventLineItemValidated,
		enums.EventLineItemMatched,
		enums.EventLineItemPriceValidated,
	}, f.journal.types())
}

func TestProcessMissIngestWalk(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	item := f.seed(t, "Custom titanium fitting")

	_, err := f.svc.Process(ctx, approvedEvent(item.ID))
	require.NoError(t, err)

	out, err := f.svc.Process(ctx, MatchMiss{ItemID: item.ID, ItemName: item.RawName})
	require.NoError(t, err)
	assert.Equal(t, enums.LineItemStatusAwaitingIngest, out.To)

	out, err = f.svc.Process(ctx, WebIngested{ItemID: item.ID, SourcesCount: 2, ItemsAdded: 3})
	require.NoError(t, err)
	assert.Equal(t, enums.LineItemStatusAwaitingMatch, out.To)
	assert.Equal(t, 1, out.Item.IngestPasses)

	// The ingest budget is spent, so a second miss escalates.
	out, err = f.svc.Process(ctx, MatchMiss{ItemID: item.ID, ItemName: item.RawName})
	require.NoError(t, err)
	assert.Equal(t, enums.LineItemStatusNeedsExplanation, out.To)

	assert.Equal(t, []enums.OutboxEventType{
		enums.EventLineItemValidated,
		enums.EventLineItemMatchMiss,
		enums.EventLineItemWebIngested,
		enums.EventLineItemMatchMiss,
	}, f.journal.types())
}

func TestProcessNeedsReviewThenHumanApproval(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	item := f.seed(t, "replacement parts")

	review := Validated{ItemID: item.ID, Verdict: enums.VerdictNeedsReview, Score: 0.6, Reasons: []string{"Requires human review"}, Source: enums.ValidationSourceRules}
	out, err := f.svc.Process(ctx, review)
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, enums.LineItemStatusNew, out.To, "needs_review leaves the item awaiting another verdict")
	assert.Equal(t, int64(1), f.recordCount(t))

	// Redelivery of the identical verdict is recognized as a duplicate.
	out, err = f.svc.Process(ctx, review)
	require.NoError(t, err)
	assert.True(t, out.Replay)
	assert.Equal(t, int64(1), f.recordCount(t))

	human := Validated{ItemID: item.ID, Verdict: enums.VerdictApproved, Score: 0.95, Reasons: []string{"Reviewed and approved"}, Source: enums.ValidationSourceHuman}
	out, err = f.svc.Process(ctx, human)
	require.NoError(t, err)
	assert.True(t, out.Applied)
	assert.Equal(t, enums.LineItemStatusAwaitingMatch, out.To)
	assert.Equal(t, int64(2), f.recordCount(t))

	record, err := f.repo.LatestValidationRecord(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ValidationSourceHuman, record.Source)
}

func TestResolveExplanationDecidesItem(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	item := f.seed(t, "industrial compressor")

	_, err := f.svc.Process(ctx, approvedEvent(item.ID))
	require.NoError(t, err)
	_, err = f.svc.Process(ctx, Matched{ItemID: item.ID, CanonicalItemID: uuid.New(), Confidence: 1, Kind: enums.MatchKindExact})
	require.NoError(t, err)
	_, err = f.svc.Process(ctx, PriceValidated{ItemID: item.ID, Validated: false, Outcome: enums.PriceOutcomeCostlier, Note: "exceeds 1.5x of band max"})
	require.NoError(t, err)

	resolved, err := f.svc.ResolveExplanation(ctx, item.ID, enums.ExplanationDecisionApprove, "vendor quote attached")
	require.NoError(t, err)
	assert.Equal(t, enums.LineItemStatusReadyForSubmission, resolved.Status)
	require.NotNil(t, resolved.ExplanationNote)
	assert.Equal(t, "vendor quote attached", *resolved.ExplanationNote)

	// Deciding again with the same outcome is an idempotent success.
	resolved, err = f.svc.ResolveExplanation(ctx, item.ID, enums.ExplanationDecisionApprove, "vendor quote attached")
	require.NoError(t, err)
	assert.Equal(t, enums.LineItemStatusReadyForSubmission, resolved.Status)

	// Reversing a terminal decision is refused.
	_, err = f.svc.ResolveExplanation(ctx, item.ID, enums.ExplanationDecisionDeny, "")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestResolveExplanationRequiresAwaitingItem(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	item := f.seed(t, "gate valve")

	_, err := f.svc.ResolveExplanation(ctx, item.ID, enums.ExplanationDecisionApprove, "")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.ResolveExplanation(ctx, item.ID, enums.ExplanationDecision("defer"), "")
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestStatusAggregatesStageDetails(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	item := f.seed(t, "1/2 inch PVC pipe")
	canonicalID := uuid.New()

	_, err := f.svc.Process(ctx, approvedEvent(item.ID))
	require.NoError(t, err)
	_, err = f.svc.Process(ctx, Matched{ItemID: item.ID, CanonicalItemID: canonicalID, Confidence: 0.9, Kind: enums.MatchKindFuzzy})
	require.NoError(t, err)
	_, err = f.svc.Process(ctx, PriceValidated{ItemID: item.ID, Validated: true, Outcome: enums.PriceOutcomeWithinRange, Note: "within band"})
	require.NoError(t, err)

	view, err := f.svc.Status(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LineItemStatusPriceValidated, view.Status)
	assert.False(t, view.LastUpdated.IsZero())

	require.NotNil(t, view.Validation)
	assert.Equal(t, enums.VerdictApproved, view.Validation.Verdict)
	assert.NotEmpty(t, view.Validation.Reasons)

	require.NotNil(t, view.Matching)
	require.NotNil(t, view.Matching.CanonicalItemID)
	assert.Equal(t, canonicalID, *view.Matching.CanonicalItemID)

	require.NotNil(t, view.Pricing)
	assert.Equal(t, enums.PriceOutcomeWithinRange, view.Pricing.Outcome)
	assert.Equal(t, "within band", view.Pricing.Note)

	assert.Nil(t, view.Explanation)
}

func TestStatusOnFreshItemHasNoStageDetails(t *testing.T) {
	f := newOrchestratorFixture(t)
	item := f.seed(t, "drain snake")

	view, err := f.svc.Status(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.LineItemStatusNew, view.Status)
	assert.Nil(t, view.Validation)
	assert.Nil(t, view.Matching)
	assert.Nil(t, view.Pricing)
	assert.Nil(t, view.Explanation)
}

func TestStatusUnknownItem(t *testing.T) {
	f := newOrchestratorFixture(t)

	_, err := f.svc.Status(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.Status(context.Background(), uuid.Nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestProcessUnknownLineItem(t *testing.T) {
	f := newOrchestratorFixture(t)

	_, err := f.svc.Process(context.Background(), approvedEvent(uuid.New()))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestOverrideStatusFreesStuckLock(t *testing.T) {
	f := newOrchestratorFixture(t)
	ctx := context.Background()
	item := f.seed(t, "air handler")

	require.NoError(t, f.db.Exec(`UPDATE line_items SET orchestrator_lock = ?, status = ? WHERE id = ?`,
		"crashed-worker", enums.LineItemStatusAwaitingMatch, item.ID).Error)

	updated, err := f.svc.OverrideStatus(ctx, item.ID, enums.LineItemStatusAwaitingMatch, nil)
	require.NoError(t, err)
	assert.Equal(t, enums.LineItemStatusAwaitingMatch, updated.Status)
	assert.Nil(t, updated.OrchestratorLock)

	row := f.reload(t, item.ID)
	assert.Nil(t, row.OrchestratorLock)

	// The freed item accepts events again.
	out, err := f.svc.Process(ctx, Matched{ItemID: item.ID, CanonicalItemID: uuid.New(), Confidence: 1, Kind: enums.MatchKindExact})
	require.NoError(t, err)
	assert.True(t, out.Applied)
}

func TestOverrideStatusRejectsUnknownStatus(t *testing.T) {
	f := newOrchestratorFixture(t)
	item := f.seed(t, "duct tape")

	_, err := f.svc.OverrideStatus(context.Background(), item.ID, enums.LineItemStatus("paused"), nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}
