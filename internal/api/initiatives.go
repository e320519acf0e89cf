package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/kingrea/opex/internal/domain"
)

// ListInitiatives returns initiatives matching the filter.
func (c *Client) ListInitiatives(ctx context.Context, filter domain.InitiativeFilter) ([]domain.Initiative, error) {
	query := url.Values{}
	if filter.Site != "" {
		query.Set("site", filter.Site)
	}
	if filter.Status != "" {
		query.Set("status", filter.Status)
	}
	if filter.Search != "" {
		query.Set("search", filter.Search)
	}
	var out []domain.Initiative
	if err := c.do(ctx, http.MethodGet, "/initiatives", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetInitiative fetches one initiative.
func (c *Client) GetInitiative(ctx context.Context, id int64) (domain.Initiative, error) {
	var out domain.Initiative
	if err := c.do(ctx, http.MethodGet, idPath("/initiatives/%d", id), nil, nil, &out); err != nil {
		return domain.Initiative{}, err
	}
	return out, nil
}

// CreateInitiative registers a new initiative.
func (c *Client) CreateInitiative(ctx context.Context, initiative domain.Initiative) (domain.Initiative, error) {
	if err := initiative.Validate(); err != nil {
		return domain.Initiative{}, fmt.Errorf("api: create initiative: %w", err)
	}
	var out domain.Initiative
	if err := c.do(ctx, http.MethodPost, "/initiatives", nil, initiative, &out); err != nil {
		return domain.Initiative{}, err
	}
	return out, nil
}

// UpdateInitiative saves edits to an initiative.
func (c *Client) UpdateInitiative(ctx context.Context, initiative domain.Initiative) (domain.Initiative, error) {
	if initiative.ID == 0 {
		return domain.Initiative{}, fmt.Errorf("api: update initiative: id is required")
	}
	if err := initiative.Validate(); err != nil {
		return domain.Initiative{}, fmt.Errorf("api: update initiative: %w", err)
	}
	var out domain.Initiative
	if err := c.do(ctx, http.MethodPut, idPath("/initiatives/%d", initiative.ID), nil, initiative, &out); err != nil {
		return domain.Initiative{}, err
	}
	return out, nil
}
