package model

import "strconv"

// Document is the subset of a paperless document the worker reads
type Document struct {
	ID               int                `json:"id"`
	Title            string             `json:"title"`
	Created          string             `json:"created"`
	Tags             []int              `json:"tags"`
	ArchivedFileName string             `json:"archived_file_name"`
	CustomFields     []CustomFieldValue `json:"custom_fields"`
}

// CustomFieldValue is one custom field instance attached to a document
type CustomFieldValue struct {
	Field int `json:"field"`
	Value any `json:"value"`
}

// CustomField is a custom field definition
type CustomField struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	DataType string `json:"data_type"`
}

// Tag is a paperless tag
type Tag struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// HasArchive reports whether paperless keeps an archive file for the document
func (d *Document) HasArchive() bool {
	return d.ArchivedFileName != ""
}

// CreatedDate returns the date portion of the created timestamp
func (d *Document) CreatedDate() string {
	if len(d.Created) < 10 {
		return d.Created
	}
	return d.Created[:10]
}

// DisplayTitle falls back to a generic title when paperless has none
func (d *Document) DisplayTitle() string {
	if d.Title != "" {
		return d.Title
	}
	return "Document " + strconv.Itoa(d.ID)
}
