// Package analysis integrates the external document-analysis (OCR)
// service. Submission is asynchronous: the analyzer calls back with
// structured fields, and the document service records them in a separate
// idempotent step.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	id "veristay/pkg/domain"
	dErrors "veristay/pkg/domain-errors"
)

// Submitter hands a document to the analyzer.
type Submitter interface {
	Submit(ctx context.Context, docID id.DocumentID, docType string, fileRef string) error
}

// Client talks to the analyzer over HTTP JSON.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type submitRequest struct {
	DocumentID string `json:"document_id"`
	Type       string `json:"type"`
	FileRef    string `json:"file_ref"`
}

// Submit enqueues a document for analysis. The analyzer reports results to
// the analysis callback endpoint; Submit only confirms acceptance.
func (c *Client) Submit(ctx context.Context, docID id.DocumentID, docType string, fileRef string) error {
	body, err := json.Marshal(submitRequest{
		DocumentID: docID.String(),
		Type:       docType,
		FileRef:    fileRef,
	})
	if err != nil {
		return fmt.Errorf("encode analysis request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/analyses", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "document analysis service unreachable")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return dErrors.New(dErrors.CodeUnavailable, "document analysis service rejected submission").
			WithDetail("status", resp.StatusCode)
	}
	return nil
}

// NopSubmitter accepts submissions without an analyzer. Used in dev, where
// results are posted manually against the callback endpoint.
type NopSubmitter struct{}

func (NopSubmitter) Submit(context.Context, id.DocumentID, string, string) error { return nil }

// MatchName reports whether the analyzer-extracted name plausibly belongs
// to the resident: every token of the resident's name must appear among
// the document's name tokens, case-insensitively. "Dana Okafor" matches
// "OKAFOR, DANA M" but not "Dana Smith".
func MatchName(residentName, documentName string) bool {
	want := tokens(residentName)
	if len(want) == 0 {
		return false
	}
	have := make(map[string]bool)
	for _, t := range tokens(documentName) {
		have[t] = true
	}
	for _, t := range want {
		if !have[t] {
			return false
		}
	}
	return true
}

func tokens(name string) []string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '\t'
	})
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
