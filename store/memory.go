package store

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/inkstamp/paperless-stamp/model"
)

// MemoryHistory keeps outcomes in memory, evicting the oldest beyond
// maxOutcomes
type MemoryHistory struct {
	outcomes    []model.StampOutcome
	nextID      int64
	mu          sync.RWMutex
	maxOutcomes int // 0 = unlimited
}

func NewMemoryHistory(maxOutcomes int) *MemoryHistory {
	if maxOutcomes < 0 {
		maxOutcomes = 0
	}
	return &MemoryHistory{maxOutcomes: maxOutcomes}
}

func (s *MemoryHistory) Record(ctx context.Context, outcome *model.StampOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	outcome.ID = s.nextID
	if outcome.CreatedAt.IsZero() {
		outcome.CreatedAt = time.Now()
	}
	s.outcomes = append(s.outcomes, *outcome)

	s.cleanupIfNeeded()
	return nil
}

// List returns up to limit outcomes, newest first. limit <= 0 returns all.
func (s *MemoryHistory) List(ctx context.Context, limit int) ([]model.StampOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.outcomes)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]model.StampOutcome, 0, n)
	for i := len(s.outcomes) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, s.outcomes[i])
	}
	return result, nil
}

// ForDocument returns every retained outcome for a document, newest first
func (s *MemoryHistory) ForDocument(ctx context.Context, documentID int) ([]model.StampOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.StampOutcome
	for i := len(s.outcomes) - 1; i >= 0; i-- {
		if s.outcomes[i].DocumentID == documentID {
			result = append(result, s.outcomes[i])
		}
	}
	return result, nil
}

// Count returns the number of retained outcomes
func (s *MemoryHistory) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.outcomes)
}

// cleanupIfNeeded drops the oldest outcomes beyond maxOutcomes.
// Must be called with lock held
func (s *MemoryHistory) cleanupIfNeeded() {
	if s.maxOutcomes <= 0 || len(s.outcomes) <= s.maxOutcomes {
		return
	}

	removeCount := len(s.outcomes) - s.maxOutcomes
	for _, o := range s.outcomes[:removeCount] {
		slog.Debug("auto-cleaning old outcome",
			"outcome_id", o.ID,
			"document_id", o.DocumentID,
			"created_at", o.CreatedAt,
		)
	}
	s.outcomes = slices.Clone(s.outcomes[removeCount:])
}

// MemorySettings is a process-local settings layer
type MemorySettings struct {
	values map[string]string
	mu     sync.RWMutex
}

func NewMemorySettings() *MemorySettings {
	return &MemorySettings{values: make(map[string]string)}
}

func (s *MemorySettings) All(ctx context.Context) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.values), nil
}

func (s *MemorySettings) Set(ctx context.Context, values map[string]string) error {
	return s.Apply(ctx, values, nil)
}

func (s *MemorySettings) Apply(ctx context.Context, set map[string]string, remove []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.values, set)
	for _, key := range remove {
		delete(s.values, key)
	}
	return nil
}

// MemoryJournal keeps claims for the lifetime of the process
type MemoryJournal struct {
	claims map[int]model.Claim
	mu     sync.RWMutex
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{claims: make(map[int]model.Claim)}
}

func (j *MemoryJournal) Save(ctx context.Context, claim model.Claim) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if claim.UpdatedAt.IsZero() {
		claim.UpdatedAt = time.Now()
	}
	claim.StampTypes = slices.Clone(claim.StampTypes)
	j.claims[claim.DocumentID] = claim
	return nil
}

func (j *MemoryJournal) Delete(ctx context.Context, documentID int) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.claims, documentID)
	return nil
}

// List returns all claims ordered by document ID
func (j *MemoryJournal) List(ctx context.Context) ([]model.Claim, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	result := slices.Collect(maps.Values(j.claims))
	slices.SortFunc(result, func(a, b model.Claim) int {
		return a.DocumentID - b.DocumentID
	})
	return result, nil
}
