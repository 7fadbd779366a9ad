package dataapi

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Loras fetches one page of the LoRA listing.
func (c *Client) Loras(ctx context.Context, p LoraListParams) (*LoraPage, error) {
	q := url.Values{}
	if p.Category != "" {
		q.Set("category", p.Category)
	}
	if p.Checkpoint != "" {
		q.Set("checkpoint", p.Checkpoint)
	}
	if p.Page > 0 {
		q.Set("page", strconv.Itoa(p.Page))
	}
	if p.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(p.PageSize))
	}
	if p.MasterAccountID != "" {
		q.Set("masterAccountId", p.MasterAccountID)
	}
	path := "/loras/list"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out LoraPage
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Lora fetches one LoRA by id or slug.
func (c *Client) Lora(ctx context.Context, idOrSlug string) (*Lora, error) {
	var out Lora
	if err := c.do(ctx, http.MethodGet, "/loras/"+url.PathEscape(idOrSlug), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
