package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/noah-isme/sma-clearance-api/internal/dto"
	"github.com/noah-isme/sma-clearance-api/internal/models"
	appErrors "github.com/noah-isme/sma-clearance-api/pkg/errors"
)

const defaultTimeout = 10 * time.Second

// Client talks to the clearance API on behalf of one caller.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New constructs a client for baseURL, e.g. http://localhost:8080/api/v1. token is sent as a
// bearer credential when non-empty.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

// FetchApprovalItems returns the server's current approval items of one clearance.
func (c *Client) FetchApprovalItems(ctx context.Context, studentID string, semester models.Semester) ([]models.ApprovalItem, error) {
	var items []models.ApprovalItem
	if _, err := c.do(ctx, http.MethodGet, clearancePath(studentID, semester)+"/items", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// FetchAggregate returns the aggregate clearance record.
func (c *Client) FetchAggregate(ctx context.Context, studentID string, semester models.Semester) (*models.AggregateClearance, error) {
	var record models.AggregateClearance
	if _, err := c.do(ctx, http.MethodGet, clearancePath(studentID, semester), nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ValidateSubmission asks the server whether a submission would be accepted.
func (c *Client) ValidateSubmission(ctx context.Context, key models.ItemKey, submission models.Submission) (dto.ValidationResponse, error) {
	var result dto.ValidationResponse
	body, err := submissionBody(submission)
	if err != nil {
		return result, err
	}
	_, err = c.do(ctx, http.MethodPost, itemPath(key)+"/validate", body, &result)
	return result, err
}

// SubmitApproval requests approval of the item. changed is false when the server left the
// item as it was.
func (c *Client) SubmitApproval(ctx context.Context, key models.ItemKey, submission models.Submission) (*models.ApprovalItem, bool, error) {
	body, err := submissionBody(submission)
	if err != nil {
		return nil, false, err
	}
	var item models.ApprovalItem
	meta, err := c.do(ctx, http.MethodPost, itemPath(key)+"/request", body, &item)
	if err != nil {
		return nil, false, err
	}
	changed, _ := meta["changed"].(bool)
	return &item, changed, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, dest interface{}) (map[string]interface{}, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, "clearance api not reachable")
	}
	defer resp.Body.Close() //nolint:errcheck

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, resp.StatusCode, fmt.Sprintf("unexpected response (HTTP %d)", resp.StatusCode))
	}
	if env.Error != nil {
		return nil, env.Error
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, appErrors.New(appErrors.ErrInternal.Code, resp.StatusCode, fmt.Sprintf("request failed (HTTP %d)", resp.StatusCode))
	}
	if dest != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, dest); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return env.Meta, nil
}

func submissionBody(submission models.Submission) ([]byte, error) {
	raw, err := models.MarshalSubmission(submission)
	if err != nil {
		return nil, fmt.Errorf("encode submission: %w", err)
	}
	return json.Marshal(dto.SubmissionRequest{Submission: raw})
}

func clearancePath(studentID string, semester models.Semester) string {
	return "/clearances/" + url.PathEscape(studentID) + "/" + url.PathEscape(string(semester))
}

func itemPath(key models.ItemKey) string {
	return clearancePath(key.StudentID, key.Semester) + "/items/" + url.PathEscape(string(key.EntityKind)) + "/" + url.PathEscape(key.EntityID)
}
