// Package store persists stamp history, runtime settings and the claim
// journal. Each concern has a memory implementation; sqlite and redis
// back the durable deployments.
package store

import (
	"context"

	"github.com/inkstamp/paperless-stamp/model"
)

// History is the append-only outcome sink
type History interface {
	Record(ctx context.Context, outcome *model.StampOutcome) error
	List(ctx context.Context, limit int) ([]model.StampOutcome, error)
	ForDocument(ctx context.Context, documentID int) ([]model.StampOutcome, error)
}

// Settings is the runtime-editable key-value layer
type Settings interface {
	All(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, values map[string]string) error
	// Apply writes set and removes the keys in remove as one update
	Apply(ctx context.Context, set map[string]string, remove []string) error
}

// Journal records claims until their tags are finalized
type Journal interface {
	Save(ctx context.Context, claim model.Claim) error
	Delete(ctx context.Context, documentID int) error
	List(ctx context.Context) ([]model.Claim, error)
}
