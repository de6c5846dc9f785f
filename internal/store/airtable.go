package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const defaultAirtableURL = "https://api.airtable.com/v0"

// Airtable talks to the Airtable REST API for one base/table. It implements
// Store. Requests are capped at BatchLimit records, per the API contract.
type Airtable struct {
	baseURL   string
	baseID    string
	table     string
	apiKey    string
	pathField string
	client    *http.Client
}

// NewAirtable creates a client for one base/table. pathField is the record
// attribute holding the frame's folder+filename path.
func NewAirtable(apiKey, baseID, table, pathField string) *Airtable {
	return &Airtable{
		baseURL:   defaultAirtableURL,
		baseID:    baseID,
		table:     table,
		apiKey:    apiKey,
		pathField: pathField,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// WithBaseURL overrides the API endpoint, for tests and proxies.
func (a *Airtable) WithBaseURL(u string) *Airtable {
	a.baseURL = strings.TrimSuffix(u, "/")
	return a
}

type airtableRecord struct {
	ID     string         `json:"id,omitempty"`
	Fields map[string]any `json:"fields"`
}

type listResponse struct {
	Records []airtableRecord `json:"records"`
	Offset  string           `json:"offset"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Query lists records matching the filter. Multiple pages are followed
// until the API stops returning an offset.
func (a *Airtable) Query(ctx context.Context, f Filter) ([]Record, error) {
	formula, err := a.formula(f)
	if err != nil {
		return nil, err
	}

	var out []Record
	offset := ""
	for {
		q := url.Values{}
		q.Set("filterByFormula", formula)
		q.Set("pageSize", "100")
		if offset != "" {
			q.Set("offset", offset)
		}

		endpoint := fmt.Sprintf("%s/%s/%s?%s", a.baseURL, a.baseID, url.PathEscape(a.table), q.Encode())
		body, err := a.do(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}

		var resp listResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("parse list response: %w", err)
		}
		for _, r := range resp.Records {
			out = append(out, Record{ID: r.ID, Fields: r.Fields})
		}
		if resp.Offset == "" {
			return out, nil
		}
		offset = resp.Offset
	}
}

// Update writes fields to a single record.
func (a *Airtable) Update(ctx context.Context, id string, fields map[string]any) error {
	payload, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return fmt.Errorf("marshal update: %w", err)
	}
	endpoint := fmt.Sprintf("%s/%s/%s/%s", a.baseURL, a.baseID, url.PathEscape(a.table), id)
	_, err = a.do(ctx, http.MethodPatch, endpoint, payload)
	return err
}

// UpdateBatch writes up to BatchLimit records in one request. Larger sets
// are the caller's problem (the writer chunks them).
func (a *Airtable) UpdateBatch(ctx context.Context, updates []RecordUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	if len(updates) > BatchLimit {
		return fmt.Errorf("batch of %d exceeds store limit %d", len(updates), BatchLimit)
	}

	recs := make([]airtableRecord, len(updates))
	for i, u := range updates {
		recs[i] = airtableRecord{ID: u.ID, Fields: u.Fields}
	}
	payload, err := json.Marshal(map[string]any{"records": recs})
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}
	endpoint := fmt.Sprintf("%s/%s/%s", a.baseURL, a.baseID, url.PathEscape(a.table))
	_, err = a.do(ctx, http.MethodPatch, endpoint, payload)
	return err
}

// Fields returns the field names present on one record. Airtable has no
// schema endpoint on the data API, so the record itself is the schema.
func (a *Airtable) Fields(ctx context.Context, id string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/%s", a.baseURL, a.baseID, url.PathEscape(a.table), id)
	body, err := a.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var rec airtableRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	return Record{ID: rec.ID, Fields: rec.Fields}.FieldNames(), nil
}

func (a *Airtable) formula(f Filter) (string, error) {
	switch {
	case f.PathEquals != "":
		return fmt.Sprintf("{%s} = '%s'", a.pathField, escapeFormula(f.PathEquals)), nil
	case f.PathContains != "":
		return fmt.Sprintf("SEARCH('%s', {%s})", escapeFormula(f.PathContains), a.pathField), nil
	default:
		return "", fmt.Errorf("empty filter")
	}
}

func escapeFormula(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}

func (a *Airtable) do(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Msg: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Msg: err.Error()}
	}

	if resp.StatusCode == http.StatusOK {
		return respBody, nil
	}
	return nil, classifyStatus(resp.StatusCode, respBody)
}

var unknownFieldRe = regexp.MustCompile(`[Uu]nknown field name:?\s*"?([^"]+)"?`)

func classifyStatus(status int, body []byte) *Error {
	var er errorResponse
	msg := string(body)
	if json.Unmarshal(body, &er) == nil && er.Error.Message != "" {
		msg = er.Error.Message
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: KindAuth, Status: status, Msg: msg}
	case status == http.StatusNotFound:
		return &Error{Kind: KindNotFound, Status: status, Msg: msg}
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Status: status, Msg: msg}
	case status == http.StatusUnprocessableEntity:
		if er.Error.Type == "UNKNOWN_FIELD_NAME" {
			field := er.Error.Message
			if m := unknownFieldRe.FindStringSubmatch(er.Error.Message); m != nil {
				field = strings.TrimSpace(m[1])
			}
			return &Error{Kind: KindUnknownField, Field: field, Status: status, Msg: msg}
		}
		// Other 422s (INVALID_VALUE_FOR_COLUMN etc.) are permanent
		// validation failures; retrying the same payload cannot succeed.
		return &Error{Kind: KindInvalid, Status: status, Msg: msg}
	default:
		return &Error{Kind: KindTransient, Status: status, Msg: msg}
	}
}
