// Package tagstate drives the per-document stamp workflow purely through
// paperless tags: stamp:X requests a stamp, removing it claims the work,
// and stamped:X or stamp:error records the result.
package tagstate

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/inkstamp/paperless-stamp/model"
	"github.com/inkstamp/paperless-stamp/pkg/logger"
)

// Client is the subset of the paperless API the tag workflow needs
type Client interface {
	ListTags(ctx context.Context) ([]model.Tag, error)
	CreateTag(ctx context.Context, name string) (*model.Tag, error)
	ListCustomFields(ctx context.Context) ([]model.CustomField, error)
	ModifyTags(ctx context.Context, id int, add, remove []int) error
	AddNote(ctx context.Context, id int, note string) error
}

// TagIndex maps tag names to IDs. Names are matched case-insensitively.
// It is refreshed once per cycle and is not safe for concurrent use.
type TagIndex struct {
	client Client
	byName map[string]int
	byID   map[int]string
}

func NewTagIndex(client Client) *TagIndex {
	return &TagIndex{
		client: client,
		byName: make(map[string]int),
		byID:   make(map[int]string),
	}
}

// Refresh reloads all tags from paperless
func (x *TagIndex) Refresh(ctx context.Context) error {
	tags, err := x.client.ListTags(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tags: %w", err)
	}
	x.byName = make(map[string]int, len(tags))
	x.byID = make(map[int]string, len(tags))
	for _, t := range tags {
		x.add(t)
	}
	return nil
}

func (x *TagIndex) add(t model.Tag) {
	x.byName[strings.ToLower(t.Name)] = t.ID
	x.byID[t.ID] = t.Name
}

// Name returns the tag name for id
func (x *TagIndex) Name(id int) (string, bool) {
	name, ok := x.byID[id]
	return name, ok
}

// ID returns the tag ID for name
func (x *TagIndex) ID(name string) (int, bool) {
	id, ok := x.byName[strings.ToLower(name)]
	return id, ok
}

// Ensure returns the ID of the named tag, creating the tag if needed
func (x *TagIndex) Ensure(ctx context.Context, name string) (int, error) {
	if id, ok := x.ID(name); ok {
		return id, nil
	}

	logger.Info(ctx, "creating tag", "tag", name)
	tag, err := x.client.CreateTag(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("failed to create tag %s: %w", name, err)
	}
	x.add(*tag)
	return tag.ID, nil
}

// FieldIndex maps custom field names to IDs
type FieldIndex struct {
	client Client
	byName map[string]int
}

func NewFieldIndex(client Client) *FieldIndex {
	return &FieldIndex{client: client, byName: make(map[string]int)}
}

// Refresh reloads all custom field definitions
func (f *FieldIndex) Refresh(ctx context.Context) error {
	fields, err := f.client.ListCustomFields(ctx)
	if err != nil {
		return fmt.Errorf("failed to list custom fields: %w", err)
	}
	f.byName = make(map[string]int, len(fields))
	for _, field := range fields {
		f.byName[field.Name] = field.ID
	}
	return nil
}

func (f *FieldIndex) id(name string) (int, bool) {
	if id, ok := f.byName[name]; ok {
		return id, true
	}
	for n, id := range f.byName {
		if strings.EqualFold(n, name) {
			return id, true
		}
	}
	return 0, false
}

// Value returns the trimmed value of the named custom field on doc.
// Missing fields and empty values report false.
func (f *FieldIndex) Value(doc *model.Document, name string) (string, bool) {
	id, ok := f.id(name)
	if !ok {
		return "", false
	}
	for _, cf := range doc.CustomFields {
		if cf.Field != id || cf.Value == nil {
			continue
		}
		var s string
		switch v := cf.Value.(type) {
		case string:
			s = v
		case float64:
			s = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			s = fmt.Sprint(v)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s, true
		}
	}
	return "", false
}
