package dataapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Generation fetches a generation record by id.
func (c *Client) Generation(ctx context.Context, id string) (*GenerationRecord, error) {
	var out GenerationRecord
	if err := c.do(ctx, http.MethodGet, "/generations/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateGeneration writes a new generation record and returns it with the
// assigned id.
func (c *Client) CreateGeneration(ctx context.Context, gc *GenerationCreate) (*GenerationRecord, error) {
	var out GenerationRecord
	if err := c.do(ctx, http.MethodPost, "/generations", gc, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateGeneration applies a partial update to a generation record.
func (c *Client) UpdateGeneration(ctx context.Context, id string, patch map[string]any) error {
	return c.do(ctx, http.MethodPut, "/generations/"+url.PathEscape(id), patch, nil)
}

// RateGeneration records a rating press for a generation.
func (c *Client) RateGeneration(ctx context.Context, id, kind, masterAccountID string) error {
	body := map[string]any{
		"kind":            kind,
		"masterAccountId": masterAccountID,
	}
	return c.do(ctx, http.MethodPost, "/generations/rate_gen/"+url.PathEscape(id), body, nil)
}

// MostFrequentTools returns the tools an account uses most, best first.
func (c *Client) MostFrequentTools(ctx context.Context, masterAccountID string, limit int) ([]ToolUsage, error) {
	var out []ToolUsage
	path := "/generations/users/" + url.PathEscape(masterAccountID) + "/most-frequent-tools"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// LogEvent writes an audit event. The event id and timestamp are filled in
// when the caller leaves them empty.
func (c *Client) LogEvent(ctx context.Context, ev Event) error {
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return c.do(ctx, http.MethodPost, "/events", ev, nil)
}

// Execute hands a prepared generation to the execution service.
func (c *Client) Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResult, error) {
	var out ExecuteResult
	if err := c.do(ctx, http.MethodPost, "/execute", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
