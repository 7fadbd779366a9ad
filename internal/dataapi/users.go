package dataapi

import (
	"context"
	"net/http"
	"net/url"
)

// FindOrCreateUser resolves a platform identity to a master account,
// creating the account on first contact.
func (c *Client) FindOrCreateUser(ctx context.Context, platform, platformID string, pc *PlatformContext) (*ResolveResult, error) {
	body := map[string]any{
		"platform":   platform,
		"platformId": platformID,
	}
	if pc != nil {
		body["platformContext"] = pc
	}
	var out ResolveResult
	if err := c.do(ctx, http.MethodPost, "/users/find-or-create", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StatusReport fetches the account summary shown by /status.
func (c *Client) StatusReport(ctx context.Context, masterAccountID string) (*StatusReport, error) {
	var out StatusReport
	path := "/users/" + url.PathEscape(masterAccountID) + "/status-report"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Wallets lists the wallets linked to an account.
func (c *Client) Wallets(ctx context.Context, masterAccountID string) ([]Wallet, error) {
	var out []Wallet
	path := "/users/" + url.PathEscape(masterAccountID) + "/wallets"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ToolPreferences fetches the stored per-tool preferences of an account.
// The tool is addressed by display name. A 404 means no preferences exist.
func (c *Client) ToolPreferences(ctx context.Context, masterAccountID, toolName string) (map[string]any, error) {
	var out map[string]any
	path := "/users/" + url.PathEscape(masterAccountID) + "/preferences/" + url.PathEscape(toolName)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetToolPreference merges one parameter value into the account's
// preferences for a tool.
func (c *Client) SetToolPreference(ctx context.Context, masterAccountID, toolName, param string, value any) error {
	path := "/users/" + url.PathEscape(masterAccountID) + "/preferences/" + url.PathEscape(toolName)
	return c.do(ctx, http.MethodPost, path, map[string]any{param: value}, nil)
}

// LoraFavorites lists the LoRA ids an account has favorited.
func (c *Client) LoraFavorites(ctx context.Context, masterAccountID string) ([]string, error) {
	var out []string
	path := "/users/" + url.PathEscape(masterAccountID) + "/preferences/lora-favorites"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddLoraFavorite adds a LoRA to the account's favorites.
func (c *Client) AddLoraFavorite(ctx context.Context, masterAccountID, loraID string) error {
	path := "/users/" + url.PathEscape(masterAccountID) + "/preferences/lora-favorites"
	return c.do(ctx, http.MethodPost, path, map[string]any{"loraId": loraID}, nil)
}

// RemoveLoraFavorite removes a LoRA from the account's favorites.
func (c *Client) RemoveLoraFavorite(ctx context.Context, masterAccountID, loraID string) error {
	path := "/users/" + url.PathEscape(masterAccountID) + "/preferences/lora-favorites/" + url.PathEscape(loraID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// RequestMagicAmount starts a magic-amount wallet verification for an
// unclaimed wallet.
func (c *Client) RequestMagicAmount(ctx context.Context, masterAccountID, address, chainID string) (*MagicAmountLink, error) {
	body := map[string]any{
		"walletAddress": address,
		"chainId":       chainID,
	}
	var out MagicAmountLink
	path := "/users/" + url.PathEscape(masterAccountID) + "/wallets/requests/magic-amount"
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequestPlatformLink asks the data service to merge the wallet's holding
// account into the requester's. A 409 means a request for this wallet is
// already pending.
func (c *Client) RequestPlatformLink(ctx context.Context, req PlatformLinkRequest) (*PlatformLinkResult, error) {
	var out PlatformLinkResult
	if err := c.do(ctx, http.MethodPost, "/users/request-platform-link", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResolveLinkRequest settles a pending link request. Action is one of
// approve, reject, or report.
func (c *Client) ResolveLinkRequest(ctx context.Context, requestID, action string) (*LinkResolution, error) {
	var out LinkResolution
	path := "/users/link-requests/" + url.PathEscape(requestID) + "/" + url.PathEscape(action)
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
