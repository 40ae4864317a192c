package hubspot

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Owner is a HubSpot user who can own CRM records.
type Owner struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Archived  bool   `json:"archived"`
}

// DisplayName renders "last first" to match Japanese name order, falling
// back to whichever part exists, then the email address.
func (o Owner) DisplayName() string {
	last := strings.TrimSpace(o.LastName)
	first := strings.TrimSpace(o.FirstName)
	switch {
	case last != "" && first != "":
		return last + " " + first
	case last != "":
		return last
	case first != "":
		return first
	default:
		return o.Email
	}
}

type ownersResponse struct {
	Results []Owner `json:"results"`
	Paging  *paging `json:"paging"`
}

// ListOwners returns every active owner, draining pagination.
func (c *Client) ListOwners(ctx context.Context) ([]Owner, error) {
	var all []Owner
	after := ""
	for {
		path := "/crm/v3/owners?limit=100"
		if after != "" {
			path += "&after=" + after
		}
		var resp ownersResponse
		if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
			return nil, fmt.Errorf("list owners: %w", err)
		}
		for _, o := range resp.Results {
			if o.Archived {
				continue
			}
			all = append(all, o)
		}
		if resp.Paging == nil || resp.Paging.Next == nil || resp.Paging.Next.After == "" {
			return all, nil
		}
		after = resp.Paging.Next.After
	}
}

// GetOwner fetches one owner by id, including archived users. Used as a
// fallback when an owner no longer appears in the active listing.
func (c *Client) GetOwner(ctx context.Context, id string) (Owner, error) {
	var owner Owner
	err := c.do(ctx, http.MethodGet, "/crm/v3/owners/"+id+"?archived=false", nil, &owner)
	if err == nil {
		return owner, nil
	}
	if apiErr, ok := err.(*APIError); ok && apiErr.StatusCode == http.StatusNotFound {
		if err2 := c.do(ctx, http.MethodGet, "/crm/v3/owners/"+id+"?archived=true", nil, &owner); err2 == nil {
			return owner, nil
		}
	}
	return Owner{}, fmt.Errorf("get owner %s: %w", id, err)
}
