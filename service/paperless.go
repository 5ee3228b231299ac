package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/inkstamp/paperless-stamp/config"
	"github.com/inkstamp/paperless-stamp/model"
)

type PaperlessService struct {
	config     *config.PaperlessConfig
	baseURL    string
	httpClient *http.Client
}

// page is one page of a paginated paperless list response
type page[T any] struct {
	Count   int    `json:"count"`
	Next    string `json:"next"`
	Results []T    `json:"results"`
}

// BulkEditRequest is the body of POST /api/documents/bulk_edit/
type BulkEditRequest struct {
	Documents  []int          `json:"documents"`
	Method     string         `json:"method"`
	Parameters map[string]any `json:"parameters"`
}

// NoteRequest is the body of POST /api/documents/{id}/notes/
type NoteRequest struct {
	Note string `json:"note"`
}

func NewPaperlessService(cfg *config.PaperlessConfig) *PaperlessService {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PaperlessService{
		config:  cfg,
		baseURL: strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// ListStampable returns every document carrying a stamp:* tag
func (s *PaperlessService) ListStampable(ctx context.Context) ([]model.Document, error) {
	query := url.Values{}
	query.Set("tags__name__istartswith", model.TriggerPrefix)
	if s.config.PageSize > 0 {
		query.Set("page_size", strconv.Itoa(s.config.PageSize))
	}
	return getAllPages[model.Document](ctx, s, "/api/documents/?"+query.Encode())
}

// GetDocument returns full details for a single document
func (s *PaperlessService) GetDocument(ctx context.Context, id int) (*model.Document, error) {
	var doc model.Document
	if err := s.getJSON(ctx, fmt.Sprintf("/api/documents/%d/", id), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Download returns the archive file bytes, or the original upload when
// original is set
func (s *PaperlessService) Download(ctx context.Context, id int, original bool) ([]byte, error) {
	path := fmt.Sprintf("/api/documents/%d/download/", id)
	if original {
		path += "?original=true"
	}
	resp, err := s.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ConnectionError{URL: s.baseURL, Err: fmt.Errorf("failed to read download: %w", err)}
	}
	return data, nil
}

// ListTags returns all tags
func (s *PaperlessService) ListTags(ctx context.Context) ([]model.Tag, error) {
	return getAllPages[model.Tag](ctx, s, "/api/tags/")
}

// CreateTag creates a tag and returns it with its new ID
func (s *PaperlessService) CreateTag(ctx context.Context, name string) (*model.Tag, error) {
	var tag model.Tag
	if err := s.sendJSON(ctx, http.MethodPost, "/api/tags/", map[string]string{"name": name}, &tag); err != nil {
		return nil, err
	}
	return &tag, nil
}

// ListCustomFields returns all custom field definitions
func (s *PaperlessService) ListCustomFields(ctx context.Context) ([]model.CustomField, error) {
	return getAllPages[model.CustomField](ctx, s, "/api/custom_fields/")
}

// ModifyTags adds and removes tags on a document. Paperless applies the
// change to the document's current tag set.
func (s *PaperlessService) ModifyTags(ctx context.Context, id int, add, remove []int) error {
	if len(add) == 0 && len(remove) == 0 {
		return nil
	}
	if add == nil {
		add = []int{}
	}
	if remove == nil {
		remove = []int{}
	}
	req := BulkEditRequest{
		Documents: []int{id},
		Method:    "modify_tags",
		Parameters: map[string]any{
			"add_tags":    add,
			"remove_tags": remove,
		},
	}
	return s.sendJSON(ctx, http.MethodPost, "/api/documents/bulk_edit/", req, nil)
}

// AddNote attaches a free-text note to a document
func (s *PaperlessService) AddNote(ctx context.Context, id int, note string) error {
	return s.sendJSON(ctx, http.MethodPost, fmt.Sprintf("/api/documents/%d/notes/", id), NoteRequest{Note: note}, nil)
}

// UploadVersion pushes pdf as a new version of the document. The
// previous file is kept by paperless.
func (s *PaperlessService) UploadVersion(ctx context.Context, id int, pdf []byte, label string) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("document", fmt.Sprintf("document-%d.pdf", id))
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(pdf); err != nil {
		return fmt.Errorf("failed to write form file: %w", err)
	}
	if label != "" {
		if err := writer.WriteField("version_label", label); err != nil {
			return fmt.Errorf("failed to write form field: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	resp, err := s.do(ctx, http.MethodPost, fmt.Sprintf("/api/documents/%d/update_version/", id), &body, writer.FormDataContentType())
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func getAllPages[T any](ctx context.Context, s *PaperlessService, path string) ([]T, error) {
	var results []T
	next := path
	for next != "" {
		var p page[T]
		if err := s.getJSON(ctx, next, &p); err != nil {
			return nil, err
		}
		results = append(results, p.Results...)
		next = p.Next
	}
	return results, nil
}

func (s *PaperlessService) getJSON(ctx context.Context, path string, out any) error {
	resp, err := s.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ConnectionError{URL: s.baseURL, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (s *PaperlessService) sendJSON(ctx context.Context, method, path string, in, out any) error {
	jsonData, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := s.do(ctx, method, path, bytes.NewReader(jsonData), "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ConnectionError{URL: s.baseURL, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// do sends a request and maps failures onto the service error types.
// Absolute URLs (pagination links) are used as given.
func (s *PaperlessService) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = s.baseURL + path
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+s.config.Token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, &ConnectionError{URL: s.baseURL, Err: err}
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorDetail))
		return nil, newResponseError(resp.StatusCode, data)
	}
	return resp, nil
}
