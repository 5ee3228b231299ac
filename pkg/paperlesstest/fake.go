// Package paperlesstest provides an in-memory paperless server double for
// worker and tag state tests.
package paperlesstest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/inkstamp/paperless-stamp/model"
)

// ErrNotFound is returned for unknown documents
var ErrNotFound = errors.New("not found")

// Upload is one pushed version
type Upload struct {
	DocumentID int
	PDF        []byte
	Label      string
}

// Note is one attached note
type Note struct {
	DocumentID int
	Text       string
}

// Fake implements the paperless operations the worker uses. Tag edits
// apply to the current server-side state like the real bulk edit.
type Fake struct {
	mu sync.Mutex

	docs      map[int]*model.Document
	archives  map[int][]byte
	originals map[int][]byte
	tags      []model.Tag
	fields    []model.CustomField
	nextTagID int

	Uploads []Upload
	Notes   []Note

	// failure injection, keyed by operation name
	// (list, download, upload, modify, note, tags, fields, create_tag)
	Failures map[string]error
	// FailOnce clears a failure after it fired once
	FailOnce bool

	Calls []string
}

func New() *Fake {
	return &Fake{
		docs:      make(map[int]*model.Document),
		archives:  make(map[int][]byte),
		originals: make(map[int][]byte),
		nextTagID: 1,
		Failures:  make(map[string]error),
	}
}

// AddTag creates a tag and returns its ID
func (f *Fake) AddTag(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addTagLocked(name)
}

func (f *Fake) addTagLocked(name string) int {
	for _, t := range f.tags {
		if strings.EqualFold(t.Name, name) {
			return t.ID
		}
	}
	id := f.nextTagID
	f.nextTagID++
	f.tags = append(f.tags, model.Tag{ID: id, Name: name})
	return id
}

// AddField creates a custom field definition and returns its ID
func (f *Fake) AddField(name, dataType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := len(f.fields) + 1
	f.fields = append(f.fields, model.CustomField{ID: id, Name: name, DataType: dataType})
	return id
}

// AddDocument registers a document carrying the named tags. archive may
// be nil for documents without an archive version.
func (f *Fake) AddDocument(doc model.Document, tagNames []string, archive, original []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, name := range tagNames {
		doc.Tags = append(doc.Tags, f.addTagLocked(name))
	}
	if archive != nil {
		f.archives[doc.ID] = archive
		if doc.ArchivedFileName == "" {
			doc.ArchivedFileName = fmt.Sprintf("%07d.pdf", doc.ID)
		}
	}
	f.originals[doc.ID] = original
	d := doc
	f.docs[doc.ID] = &d
}

// TagNames returns the current tag names of a document, sorted
func (f *Fake) TagNames(documentID int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, ok := f.docs[documentID]
	if !ok {
		return nil
	}
	var names []string
	for _, id := range doc.Tags {
		names = append(names, f.tagNameLocked(id))
	}
	slices.Sort(names)
	return names
}

// HasTag reports whether a document currently carries the named tag
func (f *Fake) HasTag(documentID int, name string) bool {
	return slices.ContainsFunc(f.TagNames(documentID), func(n string) bool {
		return strings.EqualFold(n, name)
	})
}

// SetTags replaces a document's tags by name
func (f *Fake) SetTags(documentID int, names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc := f.docs[documentID]
	doc.Tags = nil
	for _, name := range names {
		doc.Tags = append(doc.Tags, f.addTagLocked(name))
	}
}

// NotesFor returns the notes attached to a document
func (f *Fake) NotesFor(documentID int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var notes []string
	for _, n := range f.Notes {
		if n.DocumentID == documentID {
			notes = append(notes, n.Text)
		}
	}
	return notes
}

// UploadsFor returns the versions pushed for a document
func (f *Fake) UploadsFor(documentID int) []Upload {
	f.mu.Lock()
	defer f.mu.Unlock()

	var uploads []Upload
	for _, u := range f.Uploads {
		if u.DocumentID == documentID {
			uploads = append(uploads, u)
		}
	}
	return uploads
}

func (f *Fake) tagNameLocked(id int) string {
	for _, t := range f.tags {
		if t.ID == id {
			return t.Name
		}
	}
	return ""
}

// fail records the call and returns an injected failure, if any
func (f *Fake) fail(op string) error {
	f.Calls = append(f.Calls, op)
	err, ok := f.Failures[op]
	if !ok {
		return nil
	}
	if f.FailOnce {
		delete(f.Failures, op)
	}
	return err
}

func (f *Fake) ListStampable(ctx context.Context) ([]model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("list"); err != nil {
		return nil, err
	}

	var docs []model.Document
	for _, doc := range f.docs {
		for _, id := range doc.Tags {
			if strings.HasPrefix(strings.ToLower(f.tagNameLocked(id)), model.TriggerPrefix) {
				d := *doc
				d.Tags = slices.Clone(doc.Tags)
				docs = append(docs, d)
				break
			}
		}
	}
	slices.SortFunc(docs, func(a, b model.Document) int { return a.ID - b.ID })
	return docs, nil
}

func (f *Fake) GetDocument(ctx context.Context, id int) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("get"); err != nil {
		return nil, err
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	d := *doc
	d.Tags = slices.Clone(doc.Tags)
	return &d, nil
}

func (f *Fake) Download(ctx context.Context, id int, original bool) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("download"); err != nil {
		return nil, err
	}
	if original {
		f.Calls = append(f.Calls, "download_original")
		return f.originals[id], nil
	}
	data, ok := f.archives[id]
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

func (f *Fake) ListTags(ctx context.Context) ([]model.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("tags"); err != nil {
		return nil, err
	}
	return slices.Clone(f.tags), nil
}

func (f *Fake) CreateTag(ctx context.Context, name string) (*model.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("create_tag"); err != nil {
		return nil, err
	}
	id := f.addTagLocked(name)
	return &model.Tag{ID: id, Name: name}, nil
}

func (f *Fake) ListCustomFields(ctx context.Context) ([]model.CustomField, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("fields"); err != nil {
		return nil, err
	}
	return slices.Clone(f.fields), nil
}

func (f *Fake) ModifyTags(ctx context.Context, id int, add, remove []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("modify"); err != nil {
		return err
	}
	doc, ok := f.docs[id]
	if !ok {
		return ErrNotFound
	}
	tags := slices.DeleteFunc(slices.Clone(doc.Tags), func(t int) bool {
		return slices.Contains(remove, t)
	})
	for _, t := range add {
		if !slices.Contains(tags, t) {
			tags = append(tags, t)
		}
	}
	doc.Tags = tags
	return nil
}

func (f *Fake) AddNote(ctx context.Context, id int, note string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("note"); err != nil {
		return err
	}
	f.Notes = append(f.Notes, Note{DocumentID: id, Text: note})
	return nil
}

func (f *Fake) UploadVersion(ctx context.Context, id int, pdf []byte, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("upload"); err != nil {
		return err
	}
	f.Uploads = append(f.Uploads, Upload{DocumentID: id, PDF: slices.Clone(pdf), Label: label})
	return nil
}
