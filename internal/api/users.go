package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/kingrea/opex/internal/domain"
)

// UserFilter narrows GET /users.
type UserFilter struct {
	Role domain.Role
	Site string
}

// ListUsers returns users, optionally filtered by role and site.
func (c *Client) ListUsers(ctx context.Context, filter UserFilter) ([]domain.User, error) {
	query := url.Values{}
	if filter.Role != "" {
		query.Set("role", string(filter.Role))
	}
	if filter.Site != "" {
		query.Set("site", filter.Site)
	}
	var out []domain.User
	if err := c.do(ctx, http.MethodGet, "/users", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
