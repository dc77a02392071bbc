package api

import (
	"context"
	"fmt"
)

// AccountInfo is the pair of identifiers the accounting and timetracking
// services key their URLs on. Discovered once via users/me and cached.
type AccountInfo struct {
	AccountID  string `json:"account_id"`
	BusinessID int64  `json:"business_id"`
}

func (a AccountInfo) complete() bool {
	return a.AccountID != "" && a.BusinessID != 0
}

// SetAccountInfo seeds previously persisted account identifiers, skipping
// the discovery round trip.
func (c *Client) SetAccountInfo(info AccountInfo) {
	c.accountMu.Lock()
	c.account = info
	c.accountMu.Unlock()
}

// EnsureAccountInfo returns the account identifiers, fetching them from
// users/me on first use. Plain blocking call; no concurrency needed for a
// single lookup.
func (c *Client) EnsureAccountInfo(ctx context.Context) (AccountInfo, error) {
	c.accountMu.Lock()
	defer c.accountMu.Unlock()

	if c.account.complete() {
		return c.account, nil
	}

	var out struct {
		Response struct {
			BusinessMemberships []struct {
				Business struct {
					ID        int64  `json:"id"`
					AccountID string `json:"account_id"`
				} `json:"business"`
			} `json:"business_memberships"`
		} `json:"response"`
	}
	if err := c.Get(ctx, c.AuthURL("users/me"), nil, &out); err != nil {
		return AccountInfo{}, fmt.Errorf("fetching account info: %w", err)
	}

	memberships := out.Response.BusinessMemberships
	if len(memberships) == 0 {
		return AccountInfo{}, fmt.Errorf("no business memberships found for this user")
	}

	business := memberships[0].Business
	info := AccountInfo{AccountID: business.AccountID, BusinessID: business.ID}
	if !info.complete() {
		return AccountInfo{}, fmt.Errorf("could not determine account or business id")
	}

	c.account = info
	if c.persistAccount != nil {
		if err := c.persistAccount(info); err != nil {
			c.logger.Warn("persisting account info failed", "error", err)
		}
	}
	return info, nil
}

// AuthURL builds an auth-service URL.
func (c *Client) AuthURL(path string) string {
	return c.authBase + "/" + path
}

// AccountingURL builds an accounting-service URL, discovering the account id
// if needed.
func (c *Client) AccountingURL(ctx context.Context, path string) (string, error) {
	info, err := c.EnsureAccountInfo(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s", c.accountingBase, info.AccountID, path), nil
}

// TimetrackingURL builds a timetracking-service URL, discovering the
// business id if needed.
func (c *Client) TimetrackingURL(ctx context.Context, path string) (string, error) {
	info, err := c.EnsureAccountInfo(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%d/%s", c.timetrackingBase, info.BusinessID, path), nil
}
