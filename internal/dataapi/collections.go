package dataapi

import (
	"context"
	"net/http"
	"net/url"
)

// Collections lists the collections owned by an account.
func (c *Client) Collections(ctx context.Context, masterAccountID string) ([]Collection, error) {
	var out []Collection
	path := "/collections/users/" + url.PathEscape(masterAccountID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateCollection creates a named collection for an account.
func (c *Client) CreateCollection(ctx context.Context, masterAccountID, name string) (*Collection, error) {
	body := map[string]any{
		"masterAccountId": masterAccountID,
		"name":            name,
	}
	var out Collection
	if err := c.do(ctx, http.MethodPost, "/collections", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RenameCollection changes a collection's name.
func (c *Client) RenameCollection(ctx context.Context, id, name string) error {
	body := map[string]any{"name": name}
	return c.do(ctx, http.MethodPut, "/collections/"+url.PathEscape(id), body, nil)
}

// DeleteCollection removes a collection.
func (c *Client) DeleteCollection(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/collections/"+url.PathEscape(id), nil, nil)
}
