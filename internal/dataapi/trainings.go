package dataapi

import (
	"context"
	"net/http"
	"net/url"
)

// Trainings lists the training jobs owned by an account.
func (c *Client) Trainings(ctx context.Context, masterAccountID string) ([]Training, error) {
	var out []Training
	path := "/trainings/users/" + url.PathEscape(masterAccountID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Training fetches one training job by id.
func (c *Client) Training(ctx context.Context, id string) (*Training, error) {
	var out Training
	if err := c.do(ctx, http.MethodGet, "/trainings/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateTraining starts a new training job.
func (c *Client) CreateTraining(ctx context.Context, masterAccountID, name, baseModel string) (*Training, error) {
	body := map[string]any{
		"masterAccountId": masterAccountID,
		"name":            name,
		"baseModel":       baseModel,
	}
	var out Training
	if err := c.do(ctx, http.MethodPost, "/trainings", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
