package tagstate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/inkstamp/paperless-stamp/config"
	"github.com/inkstamp/paperless-stamp/model"
	"github.com/inkstamp/paperless-stamp/pkg/logger"
	"github.com/inkstamp/paperless-stamp/store"
)

// NotePrefix marks notes written by the worker
const NotePrefix = "[paperless-stamp] Stamping failed: "

// Plan is the tag workflow decision for one document
type Plan struct {
	DocumentID int
	// Pending lists requested stamp types in tag discovery order
	Pending []string
	// Suppressed lists triggers whose done tag is already present
	Suppressed []string

	triggers map[string][]int
}

// Empty reports whether the document needs no tag changes
func (p *Plan) Empty() bool {
	return len(p.Pending) == 0 && len(p.Suppressed) == 0
}

// TriggerIDs returns the trigger tag IDs on the document for the given types
func (p *Plan) TriggerIDs(types ...string) []int {
	var ids []int
	for _, t := range types {
		ids = append(ids, p.triggers[t]...)
	}
	return ids
}

// Machine applies the claim and finalize transitions. The remote tag set
// is the source of truth; the journal only bridges the window between
// claim and finalize.
type Machine struct {
	client  Client
	tags    *TagIndex
	fields  *FieldIndex
	journal store.Journal
}

func NewMachine(client Client, journal store.Journal) *Machine {
	return &Machine{
		client:  client,
		tags:    NewTagIndex(client),
		fields:  NewFieldIndex(client),
		journal: journal,
	}
}

// Tags returns the tag index
func (m *Machine) Tags() *TagIndex {
	return m.tags
}

// Fields returns the custom field index
func (m *Machine) Fields() *FieldIndex {
	return m.fields
}

// Refresh reloads tags and custom fields
func (m *Machine) Refresh(ctx context.Context) error {
	if err := m.tags.Refresh(ctx); err != nil {
		return err
	}
	return m.fields.Refresh(ctx)
}

// Plan determines the pending stamp types of doc. A done tag suppresses
// its type even if the trigger was added again.
func (m *Machine) Plan(doc *model.Document) *Plan {
	plan := &Plan{DocumentID: doc.ID, triggers: make(map[string][]int)}

	done := make(map[string]bool)
	var triggered []string
	for _, id := range doc.Tags {
		name, ok := m.tags.Name(id)
		if !ok {
			continue
		}
		if t, ok := model.DoneType(name); ok {
			done[t] = true
			continue
		}
		if t, ok := model.TriggerType(name); ok {
			if _, seen := plan.triggers[t]; !seen {
				triggered = append(triggered, t)
			}
			plan.triggers[t] = append(plan.triggers[t], id)
		}
	}

	for _, t := range triggered {
		if done[t] {
			plan.Suppressed = append(plan.Suppressed, t)
		} else {
			plan.Pending = append(plan.Pending, t)
		}
	}
	return plan
}

// Claim journals the claim and removes every trigger in the plan. A failed
// removal may still have been applied remotely, so the triggers are put
// back before the journal entry is dropped. If that fails too, the entry
// stays for Reconcile.
func (m *Machine) Claim(ctx context.Context, plan *Plan, cycleID string) error {
	if len(plan.Pending) > 0 {
		err := m.journal.Save(ctx, model.Claim{
			DocumentID: plan.DocumentID,
			StampTypes: plan.Pending,
			State:      model.ClaimClaimed,
			CycleID:    cycleID,
			UpdatedAt:  time.Now(),
		})
		if err != nil {
			return fmt.Errorf("failed to journal claim: %w", err)
		}
	}

	remove := plan.TriggerIDs(slices.Concat(plan.Pending, plan.Suppressed)...)
	if err := m.client.ModifyTags(ctx, plan.DocumentID, nil, remove); err != nil {
		if len(plan.Pending) > 0 {
			if rerr := m.RestoreTriggers(ctx, plan.DocumentID, plan.Pending); rerr != nil {
				logger.Warn(ctx, "failed to restore triggers after failed claim, claim left for reconciliation", "error", rerr)
			} else {
				m.Release(ctx, plan.DocumentID)
			}
		}
		return fmt.Errorf("failed to remove trigger tags: %w", err)
	}

	if len(plan.Suppressed) > 0 {
		logger.Info(ctx, "removed triggers already satisfied by done tags", "stamp_types", plan.Suppressed)
	}
	return nil
}

// MarkPushed records that the stamped version was uploaded
func (m *Machine) MarkPushed(ctx context.Context, documentID int, types []string, cycleID string) error {
	return m.journal.Save(ctx, model.Claim{
		DocumentID: documentID,
		StampTypes: types,
		State:      model.ClaimPushed,
		CycleID:    cycleID,
		UpdatedAt:  time.Now(),
	})
}

// FinalizeDone adds stamped:X for every type
func (m *Machine) FinalizeDone(ctx context.Context, documentID int, types []string) error {
	if len(types) == 0 {
		return nil
	}
	add := make([]int, 0, len(types))
	for _, t := range types {
		id, err := m.tags.Ensure(ctx, model.DoneTag(t))
		if err != nil {
			return err
		}
		add = append(add, id)
	}
	if err := m.client.ModifyTags(ctx, documentID, add, nil); err != nil {
		return fmt.Errorf("failed to add done tags: %w", err)
	}
	return nil
}

// FinalizeError adds stamp:error and attaches a note describing cause.
// Both steps are attempted; their errors are joined.
func (m *Machine) FinalizeError(ctx context.Context, documentID int, cause string) error {
	var errs []error

	id, err := m.tags.Ensure(ctx, model.ErrorTagName)
	if err != nil {
		errs = append(errs, err)
	} else if err := m.client.ModifyTags(ctx, documentID, []int{id}, nil); err != nil {
		errs = append(errs, fmt.Errorf("failed to add error tag: %w", err))
	}

	if err := m.client.AddNote(ctx, documentID, NotePrefix+cause); err != nil {
		errs = append(errs, fmt.Errorf("failed to add error note: %w", err))
	}
	return errors.Join(errs...)
}

// RestoreTriggers re-adds stamp:X for every type so a later cycle retries
func (m *Machine) RestoreTriggers(ctx context.Context, documentID int, types []string) error {
	if len(types) == 0 {
		return nil
	}
	add := make([]int, 0, len(types))
	for _, t := range types {
		id, err := m.tags.Ensure(ctx, model.TriggerTag(t))
		if err != nil {
			return err
		}
		add = append(add, id)
	}
	if err := m.client.ModifyTags(ctx, documentID, add, nil); err != nil {
		return fmt.Errorf("failed to restore trigger tags: %w", err)
	}
	return nil
}

// Release drops the journal entry once tags are final
func (m *Machine) Release(ctx context.Context, documentID int) {
	if err := m.journal.Delete(ctx, documentID); err != nil {
		logger.Warn(ctx, "failed to drop claim journal entry", "error", err)
	}
}

// Reconcile settles claims left behind by an interrupted cycle: pushed
// claims get their done tags, others get their triggers back. Cycles never
// overlap, so every entry present when a cycle starts is orphaned.
func (m *Machine) Reconcile(ctx context.Context) (int, error) {
	claims, err := m.journal.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list claims: %w", err)
	}

	settled := 0
	var errs []error
	for _, c := range claims {
		docCtx := logger.WithDocument(ctx, c.DocumentID)
		if c.Pushed() {
			err = m.FinalizeDone(docCtx, c.DocumentID, c.StampTypes)
		} else {
			err = m.RestoreTriggers(docCtx, c.DocumentID, c.StampTypes)
		}
		if err != nil {
			logger.Warn(docCtx, "failed to reconcile claim", "state", c.State, "error", err)
			errs = append(errs, err)
			continue
		}
		logger.Info(docCtx, "reconciled interrupted claim", "state", c.State, "stamp_types", c.StampTypes, "claimed_in", c.CycleID)
		m.Release(docCtx, c.DocumentID)
		settled++
	}
	return settled, errors.Join(errs...)
}

// ResolveDate picks the stamp date for a type: the configured custom
// field, else the creation date when the fallback asks for it, else none.
func (m *Machine) ResolveDate(doc *model.Document, ts config.TypeSettings) string {
	if ts.DateField != "" {
		if v, ok := m.fields.Value(doc, ts.DateField); ok {
			return v
		}
	}
	if ts.DateFallback == config.FallbackDocumentCreated && doc.Created != "" {
		return doc.CreatedDate()
	}
	return ""
}
