package tagstate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkstamp/paperless-stamp/config"
	"github.com/inkstamp/paperless-stamp/model"
	"github.com/inkstamp/paperless-stamp/pkg/paperlesstest"
	"github.com/inkstamp/paperless-stamp/store"
)

func newMachine(t *testing.T, fake *paperlesstest.Fake) (*Machine, *store.MemoryJournal) {
	t.Helper()
	journal := store.NewMemoryJournal()
	m := NewMachine(fake, journal)
	require.NoError(t, m.Refresh(context.Background()))
	return m, journal
}

func document(t *testing.T, fake *paperlesstest.Fake, id int) *model.Document {
	t.Helper()
	doc, err := fake.GetDocument(context.Background(), id)
	require.NoError(t, err)
	return doc
}

func TestPlan(t *testing.T) {
	fake := paperlesstest.New()
	fake.AddDocument(model.Document{ID: 1}, []string{"stamp:paid", "Stamp:Received", "inbox", "stamp:error"}, nil, nil)
	fake.AddDocument(model.Document{ID: 2}, []string{"stamp:paid", "stamped:paid", "stamp:received"}, nil, nil)
	fake.AddDocument(model.Document{ID: 3}, []string{"stamped:paid"}, nil, nil)
	m, _ := newMachine(t, fake)

	plan := m.Plan(document(t, fake, 1))
	assert.Equal(t, []string{"paid", "received"}, plan.Pending)
	assert.Empty(t, plan.Suppressed)
	assert.Len(t, plan.TriggerIDs("paid", "received"), 2)

	plan = m.Plan(document(t, fake, 2))
	assert.Equal(t, []string{"received"}, plan.Pending)
	assert.Equal(t, []string{"paid"}, plan.Suppressed)

	plan = m.Plan(document(t, fake, 3))
	assert.True(t, plan.Empty())
}

func TestClaimRemovesTriggersBeforeWork(t *testing.T) {
	ctx := context.Background()
	fake := paperlesstest.New()
	fake.AddDocument(model.Document{ID: 1}, []string{"stamp:paid", "stamp:received", "inbox"}, nil, nil)
	m, journal := newMachine(t, fake)

	plan := m.Plan(document(t, fake, 1))
	require.NoError(t, m.Claim(ctx, plan, "cycle-1"))

	assert.Equal(t, []string{"inbox"}, fake.TagNames(1))
	claims, _ := journal.List(ctx)
	require.Len(t, claims, 1)
	assert.Equal(t, model.ClaimClaimed, claims[0].State)
	assert.Equal(t, []string{"paid", "received"}, claims[0].StampTypes)
	assert.Equal(t, "cycle-1", claims[0].CycleID)

	docs, _ := fake.ListStampable(ctx)
	assert.Empty(t, docs, "claimed document must not match the discovery query")
}

func TestClaimRemovesSuppressedTriggers(t *testing.T) {
	ctx := context.Background()
	fake := paperlesstest.New()
	fake.AddDocument(model.Document{ID: 1}, []string{"stamp:paid", "stamped:paid"}, nil, nil)
	m, journal := newMachine(t, fake)

	plan := m.Plan(document(t, fake, 1))
	require.Empty(t, plan.Pending)
	require.NoError(t, m.Claim(ctx, plan, "c"))

	assert.Equal(t, []string{"stamped:paid"}, fake.TagNames(1))
	claims, _ := journal.List(ctx)
	assert.Empty(t, claims)
}

func TestClaimFailureKeepsTriggers(t *testing.T) {
	ctx := context.Background()
	fake := paperlesstest.New()
	fake.AddDocument(model.Document{ID: 1}, []string{"stamp:paid"}, nil, nil)
	m, journal := newMachine(t, fake)
	fake.Failures["modify"] = errors.New("bad gateway")
	fake.FailOnce = true

	err := m.Claim(ctx, m.Plan(document(t, fake, 1)), "c")
	require.Error(t, err)

	assert.True(t, fake.HasTag(1, "stamp:paid"))
	claims, _ := journal.List(ctx)
	assert.Empty(t, claims)
}

func TestClaimFailureJournalsUntilTriggersAreBack(t *testing.T) {
	ctx := context.Background()
	fake := paperlesstest.New()
	fake.AddDocument(model.Document{ID: 1}, []string{"stamp:paid"}, nil, nil)
	m, journal := newMachine(t, fake)
	fake.Failures["modify"] = errors.New("bad gateway")

	err := m.Claim(ctx, m.Plan(document(t, fake, 1)), "c")
	require.Error(t, err)

	claims, _ := journal.List(ctx)
	require.Len(t, claims, 1)
	assert.Equal(t, model.ClaimClaimed, claims[0].State)

	// the removal went through remotely even though the call failed
	fake.SetTags(1)
	delete(fake.Failures, "modify")

	settled, err := m.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)
	assert.True(t, fake.HasTag(1, "stamp:paid"))
	claims, _ = journal.List(ctx)
	assert.Empty(t, claims)
}

func TestFinalizeDone(t *testing.T) {
	ctx := context.Background()
	fake := paperlesstest.New()
	fake.AddDocument(model.Document{ID: 1}, []string{"stamp:paid", "stamp:received"}, nil, nil)
	m, _ := newMachine(t, fake)

	require.NoError(t, m.Claim(ctx, m.Plan(document(t, fake, 1)), "c"))
	require.NoError(t, m.FinalizeDone(ctx, 1, []string{"paid", "received"}))

	assert.Equal(t, []string{"stamped:paid", "stamped:received"}, fake.TagNames(1))
	_, ok := m.Tags().ID("stamped:paid")
	assert.True(t, ok, "done tag should be indexed after creation")
}

func TestFinalizeError(t *testing.T) {
	ctx := context.Background()
	fake := paperlesstest.New()
	fake.AddDocument(model.Document{ID: 1}, []string{"stamp:paid"}, nil, nil)
	m, _ := newMachine(t, fake)

	require.NoError(t, m.Claim(ctx, m.Plan(document(t, fake, 1)), "c"))
	require.NoError(t, m.FinalizeError(ctx, 1, "document is encrypted"))

	assert.Equal(t, []string{"stamp:error"}, fake.TagNames(1))
	assert.Equal(t, []string{"[paperless-stamp] Stamping failed: document is encrypted"}, fake.NotesFor(1))

	docs, _ := fake.ListStampable(ctx)
	require.Len(t, docs, 1, "stamp:error still matches the prefix query")
	assert.True(t, m.Plan(&docs[0]).Empty(), "stamp:error is never a trigger")
}

func TestFinalizeErrorAttemptsNoteWhenTaggingFails(t *testing.T) {
	ctx := context.Background()
	fake := paperlesstest.New()
	fake.AddDocument(model.Document{ID: 1}, nil, nil, nil)
	m, _ := newMachine(t, fake)
	fake.Failures["modify"] = errors.New("timeout")

	err := m.FinalizeError(ctx, 1, "boom")
	require.Error(t, err)
	assert.Len(t, fake.NotesFor(1), 1)
}

func TestRestoreTriggers(t *testing.T) {
	ctx := context.Background()
	fake := paperlesstest.New()
	fake.AddDocument(model.Document{ID: 1}, []string{"stamp:paid", "inbox"}, nil, nil)
	m, _ := newMachine(t, fake)

	require.NoError(t, m.Claim(ctx, m.Plan(document(t, fake, 1)), "c"))
	require.NoError(t, m.RestoreTriggers(ctx, 1, []string{"paid"}))

	assert.Equal(t, []string{"inbox", "stamp:paid"}, fake.TagNames(1))
	assert.Empty(t, fake.NotesFor(1))
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	fake := paperlesstest.New()
	fake.AddDocument(model.Document{ID: 1}, []string{"stamp:paid"}, nil, nil)
	fake.AddDocument(model.Document{ID: 2}, []string{"stamp:received"}, nil, nil)
	m, journal := newMachine(t, fake)

	// document 1 crashed after claim, document 2 after the push
	require.NoError(t, m.Claim(ctx, m.Plan(document(t, fake, 1)), "c1"))
	require.NoError(t, m.Claim(ctx, m.Plan(document(t, fake, 2)), "c1"))
	require.NoError(t, m.MarkPushed(ctx, 2, []string{"received"}, "c1"))

	settled, err := m.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, settled)

	assert.Equal(t, []string{"stamp:paid"}, fake.TagNames(1))
	assert.Equal(t, []string{"stamped:received"}, fake.TagNames(2))
	claims, _ := journal.List(ctx)
	assert.Empty(t, claims)
}

func TestReconcileKeepsFailedEntries(t *testing.T) {
	ctx := context.Background()
	fake := paperlesstest.New()
	fake.AddDocument(model.Document{ID: 1}, []string{"stamp:paid"}, nil, nil)
	m, journal := newMachine(t, fake)
	require.NoError(t, m.Claim(ctx, m.Plan(document(t, fake, 1)), "c1"))

	fake.Failures["modify"] = errors.New("unreachable")
	settled, err := m.Reconcile(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, settled)

	claims, _ := journal.List(ctx)
	assert.Len(t, claims, 1, "entry is retried on the next sweep")
}

func TestResolveDate(t *testing.T) {
	fake := paperlesstest.New()
	paidField := fake.AddField("Paid Date", "date")
	amountField := fake.AddField("Amount", "monetary")
	m, _ := newMachine(t, fake)

	paid := config.TypeSettings{Name: "paid", DateField: "Paid Date", DateFallback: config.FallbackOmit}
	received := config.TypeSettings{Name: "received", DateField: "Received Date", DateFallback: config.FallbackDocumentCreated}

	tests := []struct {
		name     string
		doc      model.Document
		ts       config.TypeSettings
		expected string
	}{
		{
			name:     "custom field value",
			doc:      model.Document{CustomFields: []model.CustomFieldValue{{Field: paidField, Value: "2024-03-15"}}},
			ts:       paid,
			expected: "2024-03-15",
		},
		{
			name:     "value trimmed",
			doc:      model.Document{CustomFields: []model.CustomFieldValue{{Field: paidField, Value: " 2024-03-15 "}}},
			ts:       paid,
			expected: "2024-03-15",
		},
		{
			name:     "empty value with omit",
			doc:      model.Document{Created: "2023-11-01", CustomFields: []model.CustomFieldValue{{Field: paidField, Value: "  "}}},
			ts:       paid,
			expected: "",
		},
		{
			name:     "null value with omit",
			doc:      model.Document{Created: "2023-11-01", CustomFields: []model.CustomFieldValue{{Field: paidField, Value: nil}}},
			ts:       paid,
			expected: "",
		},
		{
			name:     "created fallback",
			doc:      model.Document{Created: "2023-11-01T08:15:00+01:00"},
			ts:       received,
			expected: "2023-11-01",
		},
		{
			name:     "numeric field",
			doc:      model.Document{CustomFields: []model.CustomFieldValue{{Field: amountField, Value: 12.5}}},
			ts:       config.TypeSettings{DateField: "amount", DateFallback: config.FallbackOmit},
			expected: "12.5",
		},
		{
			name:     "no date field configured",
			doc:      model.Document{Created: "2023-11-01"},
			ts:       config.TypeSettings{DateFallback: config.FallbackOmit},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, m.ResolveDate(&tt.doc, tt.ts))
		})
	}
}

func TestTagIndexEnsure(t *testing.T) {
	ctx := context.Background()
	fake := paperlesstest.New()
	existing := fake.AddTag("Stamped:Paid")
	m, _ := newMachine(t, fake)

	id, err := m.Tags().Ensure(ctx, "stamped:paid")
	require.NoError(t, err)
	assert.Equal(t, existing, id)

	id, err = m.Tags().Ensure(ctx, "stamped:received")
	require.NoError(t, err)
	name, ok := m.Tags().Name(id)
	assert.True(t, ok)
	assert.Equal(t, "stamped:received", name)

	fake.Failures["create_tag"] = errors.New("forbidden")
	_, err = m.Tags().Ensure(ctx, "stamped:other")
	assert.Error(t, err)
}

func TestRefreshErrors(t *testing.T) {
	fake := paperlesstest.New()
	fake.Failures["fields"] = errors.New("down")
	m := NewMachine(fake, store.NewMemoryJournal())

	err := m.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list custom fields")
}
